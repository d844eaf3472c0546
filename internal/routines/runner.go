package routines

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strefethen/heos-hub-go/internal/heos"
	"github.com/strefethen/heos-hub-go/internal/history"
)

// DefaultRunTimeout caps how long one routine run may take across all of
// its players.
const DefaultRunTimeout = 30 * time.Second

// Controller is the slice of the HEOS client routine actions need.
type Controller interface {
	PlayPreset(ctx context.Context, pid heos.PlayerID, preset int) error
	PlayInput(ctx context.Context, pid heos.PlayerID, input string) error
	PlayStream(ctx context.Context, pid heos.PlayerID, sid heos.SourceID, cid, mid string) error
	SetVolume(ctx context.Context, pid heos.PlayerID, level int) error
	SetPlayState(ctx context.Context, pid heos.PlayerID, state heos.PlayState) error
}

// scheduleParser accepts standard five-field cron expressions.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a cron expression and returns its schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return scheduleParser.Parse(expr)
}

// Runner fires routines on their cron schedules. Each enabled routine holds
// one cron entry; create, update and delete reschedule through it.
type Runner struct {
	logger     *log.Logger
	repo       *Repository
	client     Controller
	history    *history.Service
	cron       *cron.Cron
	runTimeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

// NewRunner creates a routine runner. historyService may be nil.
func NewRunner(logger *log.Logger, repo *Repository, client Controller, historyService *history.Service) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		logger:     logger,
		repo:       repo,
		client:     client,
		history:    historyService,
		cron:       cron.New(cron.WithParser(scheduleParser)),
		runTimeout: DefaultRunTimeout,
		entries:    make(map[string]cron.EntryID),
	}
}

// Start loads enabled routines, schedules them and starts the cron loop.
func (r *Runner) Start() error {
	routines, err := r.repo.ListEnabled()
	if err != nil {
		return fmt.Errorf("load enabled routines: %w", err)
	}

	for _, routine := range routines {
		if err := r.Schedule(routine); err != nil {
			r.logger.Printf("Skipping routine %s (%s): %v", routine.RoutineID, routine.Name, err)
		}
	}

	r.cron.Start()
	r.mu.Lock()
	r.running = true
	count := len(r.entries)
	r.mu.Unlock()

	r.logger.Printf("Routine runner started with %d scheduled routine(s)", count)
	return nil
}

// Stop halts the cron loop and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.logger.Println("Routine runner stopping...")
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.logger.Println("Routine runner stopped")
}

// IsRunning reports whether the cron loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Schedule registers or replaces the cron entry for a routine. Disabled
// routines are unscheduled.
func (r *Runner) Schedule(routine Routine) error {
	r.Unschedule(routine.RoutineID)

	if !routine.Enabled {
		return nil
	}

	routineID := routine.RoutineID
	entryID, err := r.cron.AddFunc(routine.Schedule, func() {
		r.fire(routineID)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", routine.Schedule, err)
	}

	r.mu.Lock()
	r.entries[routineID] = entryID
	r.mu.Unlock()
	return nil
}

// Unschedule removes a routine's cron entry, if present.
func (r *Runner) Unschedule(routineID string) {
	r.mu.Lock()
	entryID, ok := r.entries[routineID]
	if ok {
		delete(r.entries, routineID)
	}
	r.mu.Unlock()

	if ok {
		r.cron.Remove(entryID)
	}
}

// NextRun returns the next scheduled fire time for a routine, or nil when
// it is not scheduled.
func (r *Runner) NextRun(routineID string) *time.Time {
	r.mu.Lock()
	entryID, ok := r.entries[routineID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	entry := r.cron.Entry(entryID)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

// RunNow executes a routine immediately, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, routine *Routine) error {
	return r.execute(ctx, routine, "manual")
}

// fire is the cron callback. It reloads the routine so edits between fires
// take effect without rescheduling.
func (r *Runner) fire(routineID string) {
	routine, err := r.repo.GetByID(routineID)
	if err != nil {
		r.logger.Printf("Routine %s failed to load: %v", routineID, err)
		return
	}
	if routine == nil || !routine.Enabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.runTimeout)
	defer cancel()

	if err := r.execute(ctx, routine, "schedule"); err != nil {
		r.logger.Printf("Routine %s (%s) run failed: %v", routine.RoutineID, routine.Name, err)
	}
}

// execute applies the routine's action to each of its players. The first
// error is kept but the remaining players still run.
func (r *Runner) execute(ctx context.Context, routine *Routine, trigger string) error {
	r.recordRun(routine, history.EventRoutineRunStarted, nil, map[string]any{"trigger": trigger})

	var firstErr error
	for _, pid := range routine.PlayerIDs {
		if err := r.applyAction(ctx, heos.PlayerID(pid), routine.Action); err != nil {
			r.logger.Printf("Routine %s action on player %d: %v", routine.RoutineID, pid, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("player %d: %w", pid, err)
			}
		}
	}

	if err := r.repo.RecordRun(routine.RoutineID, time.Now(), firstErr); err != nil {
		r.logger.Printf("Routine %s run result not stored: %v", routine.RoutineID, err)
	}

	if firstErr != nil {
		errorLevel := history.EventLevelError
		r.recordRun(routine, history.EventRoutineRunFailed, &errorLevel, map[string]any{
			"trigger": trigger,
			"error":   firstErr.Error(),
		})
		return firstErr
	}

	r.recordRun(routine, history.EventRoutineRunCompleted, nil, map[string]any{"trigger": trigger})
	return nil
}

// applyAction dispatches one action to one player.
func (r *Runner) applyAction(ctx context.Context, pid heos.PlayerID, action Action) error {
	switch action.Type {
	case ActionPlayPreset:
		if action.Preset == nil {
			return fmt.Errorf("action %s missing preset", action.Type)
		}
		return r.client.PlayPreset(ctx, pid, *action.Preset)
	case ActionPlayInput:
		if action.Input == nil {
			return fmt.Errorf("action %s missing input", action.Type)
		}
		return r.client.PlayInput(ctx, pid, *action.Input)
	case ActionPlayStream:
		if action.SourceID == nil {
			return fmt.Errorf("action %s missing source_id", action.Type)
		}
		cid, mid := "", ""
		if action.ContainerID != nil {
			cid = *action.ContainerID
		}
		if action.MediaID != nil {
			mid = *action.MediaID
		}
		return r.client.PlayStream(ctx, pid, heos.SourceID(*action.SourceID), cid, mid)
	case ActionSetVolume:
		if action.Level == nil {
			return fmt.Errorf("action %s missing level", action.Type)
		}
		return r.client.SetVolume(ctx, pid, *action.Level)
	case ActionSetState:
		if action.State == nil {
			return fmt.Errorf("action %s missing state", action.Type)
		}
		return r.client.SetPlayState(ctx, pid, heos.PlayState(*action.State))
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (r *Runner) recordRun(routine *Routine, eventType history.EventType, level *history.EventLevel, payload map[string]any) {
	if r.history == nil {
		return
	}

	routineID := routine.RoutineID
	input := history.WriteEventInput{
		Type:      string(eventType),
		Level:     level,
		RoutineID: &routineID,
		Message:   routine.Name,
		Payload:   payload,
	}
	if _, err := r.history.RecordEvent(input); err != nil {
		r.logger.Printf("Routine %s history not recorded: %v", routineID, err)
	}
}
