package routines

import (
	"context"
	"log"
	"time"

	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
	"github.com/strefethen/heos-hub-go/internal/history"
)

// Service provides routine management. Mutations go through the repository
// and then reschedule the runner so the cron entries track the stored state.
type Service struct {
	repo    *Repository
	runner  *Runner
	history *history.Service
	logger  *log.Logger
}

// NewService creates a routines service. runner and historyService may be
// nil, which disables scheduling and history respectively.
func NewService(repo *Repository, runner *Runner, historyService *history.Service, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:    repo,
		runner:  runner,
		history: historyService,
		logger:  logger,
	}
}

// List returns all routines.
func (s *Service) List() ([]Routine, error) {
	return s.repo.List()
}

// Get returns one routine, or a ROUTINE_NOT_FOUND error.
func (s *Service) Get(routineID string) (*Routine, error) {
	routine, err := s.repo.GetByID(routineID)
	if err != nil {
		return nil, err
	}
	if routine == nil {
		return nil, routineNotFound(routineID)
	}
	return routine, nil
}

// Create validates and stores a routine, then schedules it.
func (s *Service) Create(input CreateRoutineInput) (*Routine, error) {
	if input.Name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	if len(input.PlayerIDs) == 0 {
		return nil, apperrors.NewValidationError("player_ids must not be empty", nil)
	}
	if err := validateSchedule(input.Schedule); err != nil {
		return nil, err
	}
	if err := validateAction(input.Action); err != nil {
		return nil, err
	}

	routine, err := s.repo.Create(input)
	if err != nil {
		return nil, err
	}

	s.reschedule(routine)
	s.recordChange(history.EventRoutineCreated, routine)
	return routine, nil
}

// Update validates and applies changes, then reschedules the routine.
func (s *Service) Update(routineID string, input UpdateRoutineInput) (*Routine, error) {
	if input.Schedule != nil {
		if err := validateSchedule(*input.Schedule); err != nil {
			return nil, err
		}
	}
	if input.Action != nil {
		if err := validateAction(*input.Action); err != nil {
			return nil, err
		}
	}
	if input.PlayerIDs != nil && len(input.PlayerIDs) == 0 {
		return nil, apperrors.NewValidationError("player_ids must not be empty", nil)
	}

	routine, err := s.repo.Update(routineID, input)
	if err != nil {
		return nil, err
	}
	if routine == nil {
		return nil, routineNotFound(routineID)
	}

	s.reschedule(routine)
	s.recordChange(history.EventRoutineUpdated, routine)
	return routine, nil
}

// SetEnabled toggles a routine on or off and reschedules it.
func (s *Service) SetEnabled(routineID string, enabled bool) (*Routine, error) {
	return s.Update(routineID, UpdateRoutineInput{Enabled: &enabled})
}

// Delete removes a routine and its schedule.
func (s *Service) Delete(routineID string) error {
	routine, err := s.Get(routineID)
	if err != nil {
		return err
	}

	deleted, err := s.repo.Delete(routineID)
	if err != nil {
		return err
	}
	if !deleted {
		return routineNotFound(routineID)
	}

	if s.runner != nil {
		s.runner.Unschedule(routineID)
	}
	s.recordChange(history.EventRoutineDeleted, routine)
	return nil
}

// Run executes a routine immediately, outside its schedule.
func (s *Service) Run(ctx context.Context, routineID string) error {
	routine, err := s.Get(routineID)
	if err != nil {
		return err
	}
	if s.runner == nil {
		return apperrors.NewInternalError("Routine runner is not available")
	}
	return s.runner.RunNow(ctx, routine)
}

// NextRun returns the next scheduled fire time, or nil when unscheduled.
func (s *Service) NextRun(routineID string) *time.Time {
	if s.runner == nil {
		return nil
	}
	return s.runner.NextRun(routineID)
}

// IsRunning reports whether the scheduler is active.
func (s *Service) IsRunning() bool {
	if s.runner == nil {
		return false
	}
	return s.runner.IsRunning()
}

func (s *Service) reschedule(routine *Routine) {
	if s.runner == nil {
		return
	}
	if err := s.runner.Schedule(*routine); err != nil {
		s.logger.Printf("Routine %s not scheduled: %v", routine.RoutineID, err)
	}
}

func (s *Service) recordChange(eventType history.EventType, routine *Routine) {
	if s.history == nil {
		return
	}

	routineID := routine.RoutineID
	input := history.WriteEventInput{
		Type:      string(eventType),
		RoutineID: &routineID,
		Message:   routine.Name,
		Payload: map[string]any{
			"schedule":    routine.Schedule,
			"action_type": string(routine.Action.Type),
			"enabled":     routine.Enabled,
		},
	}
	if _, err := s.history.RecordEvent(input); err != nil {
		s.logger.Printf("Routine %s history not recorded: %v", routineID, err)
	}
}

// validateSchedule checks the cron expression parses.
func validateSchedule(expr string) error {
	if expr == "" {
		return apperrors.NewAppError(apperrors.ErrorCodeInvalidSchedule, "schedule is required", 400, nil, nil)
	}
	if _, err := ParseSchedule(expr); err != nil {
		return apperrors.NewAppError(apperrors.ErrorCodeInvalidSchedule, "schedule is not a valid cron expression", 400, map[string]any{
			"schedule": expr,
			"error":    err.Error(),
		}, nil)
	}
	return nil
}

// validateAction checks the action type and its required parameters.
func validateAction(action Action) error {
	switch action.Type {
	case ActionPlayPreset:
		if action.Preset == nil || *action.Preset < 1 {
			return invalidAction("play_preset requires a positive preset")
		}
	case ActionPlayInput:
		if action.Input == nil || *action.Input == "" {
			return invalidAction("play_input requires an input name")
		}
	case ActionPlayStream:
		if action.SourceID == nil {
			return invalidAction("play_stream requires a source_id")
		}
		hasContainer := action.ContainerID != nil && *action.ContainerID != ""
		hasMedia := action.MediaID != nil && *action.MediaID != ""
		if !hasContainer && !hasMedia {
			return invalidAction("play_stream requires a container_id or media_id")
		}
	case ActionSetVolume:
		if action.Level == nil || *action.Level < 0 || *action.Level > 100 {
			return invalidAction("set_volume requires a level between 0 and 100")
		}
	case ActionSetState:
		if action.State == nil {
			return invalidAction("set_state requires a state")
		}
		switch heos.PlayState(*action.State) {
		case heos.PlayStatePlay, heos.PlayStatePause, heos.PlayStateStop:
		default:
			return invalidAction("set_state state must be play, pause or stop")
		}
	default:
		return invalidAction("unknown action type")
	}
	return nil
}

func invalidAction(message string) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrorCodeInvalidAction, message, 400, nil, nil)
}

func routineNotFound(routineID string) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrorCodeRoutineNotFound, "Routine not found", 404, map[string]any{
		"routine_id": routineID,
	}, nil)
}
