package system

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
)

// RegisterRoutes wires system routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/system/status", api.Handler(getSystemStatus(service)))
	router.Method(http.MethodGet, "/v1/system/account", api.Handler(getAccount(service)))
	router.Method(http.MethodPost, "/v1/system/account/sign-in", api.Handler(signIn(service)))
	router.Method(http.MethodPost, "/v1/system/account/sign-out", api.Handler(signOut(service)))
	router.Method(http.MethodGet, "/v1/dashboard", api.Handler(getDashboard(service)))
}

// getSystemStatus handles GET /v1/system/status
func getSystemStatus(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		info, err := service.GetSystemInfo()
		if err != nil {
			return apperrors.NewInternalError("Failed to get system status")
		}

		return api.WriteResource(w, http.StatusOK, formatSystemInfo(info))
	}
}

// getAccount handles GET /v1/system/account
func getAccount(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		account, err := service.CheckAccount(r.Context())
		if err != nil {
			return apperrors.FromHEOS(err)
		}

		return api.WriteResource(w, http.StatusOK, formatAccount(account))
	}
}

// signIn handles POST /v1/system/account/sign-in
func signIn(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if body.Username == "" || body.Password == "" {
			return apperrors.NewValidationError("username and password are required", nil)
		}

		if err := service.SignIn(r.Context(), body.Username, body.Password); err != nil {
			return apperrors.FromHEOS(err)
		}

		return api.WriteResource(w, http.StatusOK, formatAccount(heos.AccountStatus{
			SignedIn: true,
			Username: body.Username,
		}))
	}
}

// signOut handles POST /v1/system/account/sign-out
func signOut(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := service.SignOut(r.Context()); err != nil {
			return apperrors.FromHEOS(err)
		}

		return api.WriteResource(w, http.StatusOK, formatAccount(heos.AccountStatus{}))
	}
}

// getDashboard handles GET /v1/dashboard
func getDashboard(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		data, err := service.GetDashboardData()
		if err != nil {
			return apperrors.NewInternalError("Failed to get dashboard data")
		}

		return api.WriteResource(w, http.StatusOK, formatDashboardData(data))
	}
}

// formatSystemInfo formats SystemInfo for JSON response.
func formatSystemInfo(info *SystemInfo) map[string]any {
	return map[string]any{
		"object":            "system_status",
		"hub_version":       info.HubVersion,
		"env":               info.Env,
		"uptime_seconds":    info.Uptime,
		"memory_mb":         info.MemoryUsageMB,
		"sqlite_connected":  info.SQLiteConnected,
		"history_healthy":   info.HistoryHealthy,
		"scheduler_running": info.SchedulerRunning,
		"players_online":    info.PlayersOnline,
		"players_total":     info.PlayersTotal,
		"session":           formatSession(info.Session),
	}
}

// formatSession formats the HEOS session status and counters.
func formatSession(status heos.SessionStatus) map[string]any {
	session := map[string]any{
		"state":      string(status.State),
		"endpoint":   status.Endpoint,
		"reconnects": status.Reconnects,
		"account":    formatAccount(status.Account),
		"players":    status.Players,
		"groups":     status.Groups,
		"sources":    status.Sources,
		"counters": map[string]any{
			"commands_sent":       status.CommandsSent,
			"command_timeouts":    status.CommandTimeouts,
			"pending_commands":    status.PendingCommands,
			"discarded_responses": status.DiscardedResponses,
			"stale_event_applies": status.StaleEventApplies,
			"events_published":    status.EventsPublished,
			"events_dropped":      status.EventsDropped,
			"subscribers":         status.Subscribers,
		},
	}
	if !status.ConnectedAt.IsZero() {
		session["connected_at"] = status.ConnectedAt.UTC().Format(time.RFC3339)
	}
	if !status.LastRefresh.IsZero() {
		session["last_refresh"] = status.LastRefresh.UTC().Format(time.RFC3339)
	}
	if status.LastError != "" {
		session["last_error"] = status.LastError
	}
	return session
}

// formatAccount formats the HEOS account state.
func formatAccount(account heos.AccountStatus) map[string]any {
	result := map[string]any{
		"object":    "account",
		"signed_in": account.SignedIn,
	}
	if account.Username != "" {
		result["username"] = account.Username
	}
	return result
}

// formatDashboardData formats DashboardData for JSON response. The next_up
// key is always present so clients can bind to it, null when nothing is
// scheduled.
func formatDashboardData(data *DashboardData) map[string]any {
	var nextUp any
	if data.NextRoutine != nil {
		nextUp = formatRoutineSummary(data.NextRoutine)
	}

	return map[string]any{
		"object":            "dashboard",
		"next_up":           nextUp,
		"upcoming_routines": formatRoutineSummaries(data.UpcomingRoutines),
		"now_playing":       formatPlayerActivities(data.NowPlaying),
		"attention_items":   formatAttentionItems(data.AttentionItems),
	}
}

// formatRoutineSummaries formats a slice of RoutineSummary for JSON response.
func formatRoutineSummaries(routines []RoutineSummary) []map[string]any {
	result := make([]map[string]any, 0, len(routines))
	for i := range routines {
		result = append(result, formatRoutineSummary(&routines[i]))
	}
	return result
}

// formatRoutineSummary formats a single RoutineSummary for JSON response.
func formatRoutineSummary(r *RoutineSummary) map[string]any {
	result := map[string]any{
		"routine_id": r.RoutineID,
		"name":       r.Name,
		"schedule":   r.Schedule,
	}

	if r.NextRunAt != nil {
		result["next_run_at"] = r.NextRunAt.UTC().Format(time.RFC3339)
	}
	if r.LastRunAt != nil {
		result["last_run_at"] = r.LastRunAt.UTC().Format(time.RFC3339)
	}
	if r.LastRunError != nil {
		result["last_run_error"] = *r.LastRunError
	}

	return result
}

// formatPlayerActivities formats a slice of PlayerActivity for JSON response.
func formatPlayerActivities(activities []PlayerActivity) []map[string]any {
	result := make([]map[string]any, 0, len(activities))
	for _, a := range activities {
		formatted := map[string]any{
			"player_id": a.PlayerID,
			"name":      a.Name,
			"state":     a.State,
		}
		if a.Song != "" {
			formatted["song"] = a.Song
		}
		if a.Artist != "" {
			formatted["artist"] = a.Artist
		}
		if a.Station != "" {
			formatted["station"] = a.Station
		}
		result = append(result, formatted)
	}
	return result
}

// formatAttentionItems formats a slice of AttentionItem for JSON response.
func formatAttentionItems(items []AttentionItem) []map[string]any {
	result := make([]map[string]any, 0, len(items))
	for _, item := range items {
		formatted := map[string]any{
			"type":     item.Type,
			"severity": item.Severity,
			"message":  item.Message,
		}
		if len(item.Details) > 0 {
			formatted["details"] = item.Details
		}
		if item.ResolveHint != "" {
			formatted["resolve_hint"] = item.ResolveHint
		}
		result = append(result, formatted)
	}
	return result
}
