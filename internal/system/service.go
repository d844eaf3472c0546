package system

import (
	"context"
	"database/sql"
	"log"
	"runtime"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strefethen/heos-hub-go/internal/config"
	"github.com/strefethen/heos-hub-go/internal/heos"
)

// Version is the hub version, set at build time or defaulted.
var Version = "1.0.0"

// SessionController is the slice of the HEOS client the system service needs.
type SessionController interface {
	Status() heos.SessionStatus
	Players() []heos.Player
	SignIn(ctx context.Context, username, password string) error
	SignOut(ctx context.Context) error
	CheckAccount(ctx context.Context) (heos.AccountStatus, error)
}

// CredentialStore persists account credentials across restarts.
// Implemented by the settings service.
type CredentialStore interface {
	SaveAccount(username, password string) error
	ClearAccount() error
}

// HealthReporter reports a background service's health.
type HealthReporter interface {
	IsHealthy() bool
}

// SchedulerStatusProvider provides routine scheduler running status.
type SchedulerStatusProvider interface {
	IsRunning() bool
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Service provides hub status, the dashboard view and HEOS account control.
// Uses reader connection only as this service only performs SELECT queries.
type Service struct {
	cfg             config.Config
	logger          *log.Logger
	reader          *sql.DB
	session         SessionController
	credentials     CredentialStore
	historyHealth   HealthReporter
	schedulerStatus SchedulerStatusProvider
	startTime       time.Time
}

// NewService creates a new system service.
// Accepts a DBPair but only uses the reader (read-only service).
func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger, session SessionController, credentials CredentialStore, historyHealth HealthReporter, schedulerStatus SchedulerStatusProvider) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		cfg:             cfg,
		logger:          logger,
		reader:          dbPair.Reader(),
		session:         session,
		credentials:     credentials,
		historyHealth:   historyHealth,
		schedulerStatus: schedulerStatus,
		startTime:       time.Now(),
	}
}

// SystemInfo holds hub status information.
type SystemInfo struct {
	HubVersion       string             `json:"hub_version"`
	Env              string             `json:"env"`
	Uptime           int64              `json:"uptime_seconds"`
	MemoryUsageMB    float64            `json:"memory_mb"`
	SQLiteConnected  bool               `json:"sqlite_connected"`
	HistoryHealthy   bool               `json:"history_healthy"`
	SchedulerRunning bool               `json:"scheduler_running"`
	PlayersOnline    int                `json:"players_online"`
	PlayersTotal     int                `json:"players_total"`
	Session          heos.SessionStatus `json:"session"`
}

// RoutineSummary is a summary of a routine for dashboard display.
type RoutineSummary struct {
	RoutineID    string     `json:"routine_id"`
	Name         string     `json:"name"`
	Schedule     string     `json:"schedule"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastRunError *string    `json:"last_run_error,omitempty"`
}

// PlayerActivity is one player's playback snapshot for the dashboard.
type PlayerActivity struct {
	PlayerID int    `json:"player_id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Song     string `json:"song,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Station  string `json:"station,omitempty"`
}

// AttentionItem represents an item that needs user attention.
type AttentionItem struct {
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ResolveHint string         `json:"resolve_hint,omitempty"`
}

// DashboardData holds data for the dashboard view.
type DashboardData struct {
	NextRoutine      *RoutineSummary  `json:"next_routine,omitempty"`
	UpcomingRoutines []RoutineSummary `json:"upcoming_routines"`
	NowPlaying       []PlayerActivity `json:"now_playing"`
	AttentionItems   []AttentionItem  `json:"attention_items"`
}

// cronParser accepts standard five-field cron expressions, matching the
// parser the routine scheduler registers jobs with.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// GetSystemInfo returns current hub status.
func (s *Service) GetSystemInfo() (*SystemInfo, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sqliteConnected := true
	if err := s.reader.Ping(); err != nil {
		sqliteConnected = false
	}

	historyHealthy := true
	if s.historyHealth != nil {
		historyHealthy = s.historyHealth.IsHealthy()
	}

	schedulerRunning := false
	if s.schedulerStatus != nil {
		schedulerRunning = s.schedulerStatus.IsRunning()
	}

	playersOnline := 0
	players := s.session.Players()
	for _, p := range players {
		if p.Online {
			playersOnline++
		}
	}

	return &SystemInfo{
		HubVersion:       Version,
		Env:              s.cfg.Env,
		Uptime:           int64(time.Since(s.startTime).Seconds()),
		MemoryUsageMB:    float64(memStats.Alloc) / 1024 / 1024,
		SQLiteConnected:  sqliteConnected,
		HistoryHealthy:   historyHealthy,
		SchedulerRunning: schedulerRunning,
		PlayersOnline:    playersOnline,
		PlayersTotal:     len(players),
		Session:          s.session.Status(),
	}, nil
}

// GetDashboardData returns data for the dashboard view.
func (s *Service) GetDashboardData() (*DashboardData, error) {
	dashboard := &DashboardData{
		UpcomingRoutines: []RoutineSummary{},
		NowPlaying:       []PlayerActivity{},
		AttentionItems:   []AttentionItem{},
	}

	dashboard.UpcomingRoutines = s.upcomingRoutines(time.Now(), 20)
	if len(dashboard.UpcomingRoutines) > 0 {
		dashboard.NextRoutine = &dashboard.UpcomingRoutines[0]
	}

	for _, p := range s.session.Players() {
		activity := PlayerActivity{
			PlayerID: int(p.ID),
			Name:     p.Name,
			State:    string(p.State),
		}
		if p.State == heos.PlayStatePlay {
			activity.Song = p.NowPlaying.Song
			activity.Artist = p.NowPlaying.Artist
			activity.Station = p.NowPlaying.Station
		}
		dashboard.NowPlaying = append(dashboard.NowPlaying, activity)
	}

	dashboard.AttentionItems = s.checkAttentionItems()

	return dashboard, nil
}

// upcomingRoutines loads enabled routines and computes each one's next run
// from its cron schedule, sorted soonest first.
func (s *Service) upcomingRoutines(now time.Time, limit int) []RoutineSummary {
	summaries := []RoutineSummary{}

	rows, err := s.reader.Query(`
		SELECT routine_id, name, schedule, last_run_at, last_run_error
		FROM routines
		WHERE enabled = 1
	`)
	if err != nil {
		s.logger.Printf("Failed to query routines for dashboard: %v", err)
		return summaries
	}
	defer rows.Close()

	for rows.Next() {
		var (
			routineID, name, schedule string
			lastRunAt                 sql.NullString
			lastRunError              sql.NullString
		)
		if err := rows.Scan(&routineID, &name, &schedule, &lastRunAt, &lastRunError); err != nil {
			s.logger.Printf("Failed to scan routine row: %v", err)
			continue
		}

		summary := RoutineSummary{
			RoutineID: routineID,
			Name:      name,
			Schedule:  schedule,
		}

		sched, err := cronParser.Parse(schedule)
		if err != nil {
			s.logger.Printf("Routine %s has unparseable schedule %q: %v", routineID, schedule, err)
			continue
		}
		next := sched.Next(now)
		if !next.IsZero() {
			summary.NextRunAt = &next
		}

		if lastRunAt.Valid && lastRunAt.String != "" {
			if parsed, err := time.Parse(time.RFC3339, lastRunAt.String); err == nil {
				summary.LastRunAt = &parsed
			}
		}
		if lastRunError.Valid && lastRunError.String != "" {
			summary.LastRunError = &lastRunError.String
		}

		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i].NextRunAt, summaries[j].NextRunAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// checkAttentionItems checks for items that need user attention.
// Always returns a non-nil slice so the dashboard serializes an array.
func (s *Service) checkAttentionItems() []AttentionItem {
	items := []AttentionItem{}

	status := s.session.Status()
	if status.State != heos.StateReady {
		severity := "warning"
		if status.State == heos.StateDisconnected {
			severity = "critical"
		}
		item := AttentionItem{
			Type:        "session_not_ready",
			Severity:    severity,
			Message:     "HEOS connection is not ready",
			Details:     map[string]any{"state": string(status.State)},
			ResolveHint: "Check that the HEOS device is powered on and reachable",
		}
		if status.LastError != "" {
			item.Details["last_error"] = status.LastError
		}
		items = append(items, item)
	}

	offlineCount := 0
	for _, p := range s.session.Players() {
		if !p.Online {
			offlineCount++
		}
	}
	if offlineCount > 0 {
		items = append(items, AttentionItem{
			Type:     "players_offline",
			Severity: "warning",
			Message:  "Some players are offline",
			Details: map[string]any{
				"offline_count": offlineCount,
			},
			ResolveHint: "Check player power and network connectivity",
		})
	}

	var failedRunCount int
	err := s.reader.QueryRow(`
		SELECT COUNT(*) FROM history_events
		WHERE type = 'ROUTINE_RUN_FAILED' AND timestamp > datetime('now', '-24 hours')
	`).Scan(&failedRunCount)
	if err == nil && failedRunCount > 0 {
		items = append(items, AttentionItem{
			Type:     "failed_routines",
			Severity: "error",
			Message:  "Some routines failed to run",
			Details: map[string]any{
				"failed_count": failedRunCount,
				"time_window":  "24 hours",
			},
			ResolveHint: "Review routine history for details",
		})
	}

	if err := s.reader.Ping(); err != nil {
		items = append(items, AttentionItem{
			Type:        "database_unhealthy",
			Severity:    "critical",
			Message:     "Database connection is unhealthy",
			ResolveHint: "Check database file permissions and disk space",
		})
	}

	return items
}

// SignIn authenticates the HEOS account on the live session and persists
// the credentials so reconnects and restarts re-authenticate.
func (s *Service) SignIn(ctx context.Context, username, password string) error {
	if err := s.session.SignIn(ctx, username, password); err != nil {
		return err
	}
	if s.credentials != nil {
		if err := s.credentials.SaveAccount(username, password); err != nil {
			s.logger.Printf("Failed to persist account credentials: %v", err)
		}
	}
	return nil
}

// SignOut detaches the HEOS account and clears the stored credentials.
func (s *Service) SignOut(ctx context.Context) error {
	if err := s.session.SignOut(ctx); err != nil {
		return err
	}
	if s.credentials != nil {
		if err := s.credentials.ClearAccount(); err != nil {
			s.logger.Printf("Failed to clear account credentials: %v", err)
		}
	}
	return nil
}

// CheckAccount asks the device which account it is signed in as.
func (s *Service) CheckAccount(ctx context.Context) (heos.AccountStatus, error) {
	return s.session.CheckAccount(ctx)
}
