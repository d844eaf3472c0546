package routines

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetByID retrieves a routine by ID. Returns (nil, nil) when it does not exist.
func (r *Repository) GetByID(routineID string) (*Routine, error) {
	row := r.reader.QueryRow(`
		SELECT routine_id, name, enabled, schedule, action_type, action_json,
			player_ids, last_run_at, last_run_error, created_at, updated_at
		FROM routines
		WHERE routine_id = ?
	`, routineID)

	routine, err := scanRoutine(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return routine, nil
}

// List retrieves all routines, newest first.
func (r *Repository) List() ([]Routine, error) {
	rows, err := r.reader.Query(`
		SELECT routine_id, name, enabled, schedule, action_type, action_json,
			player_ids, last_run_at, last_run_error, created_at, updated_at
		FROM routines
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	routines := []Routine{}
	for rows.Next() {
		routine, err := scanRoutine(rows.Scan)
		if err != nil {
			return nil, err
		}
		routines = append(routines, *routine)
	}
	return routines, rows.Err()
}

// ListEnabled retrieves every enabled routine, used to build the schedule.
func (r *Repository) ListEnabled() ([]Routine, error) {
	rows, err := r.reader.Query(`
		SELECT routine_id, name, enabled, schedule, action_type, action_json,
			player_ids, last_run_at, last_run_error, created_at, updated_at
		FROM routines
		WHERE enabled = 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	routines := []Routine{}
	for rows.Next() {
		routine, err := scanRoutine(rows.Scan)
		if err != nil {
			return nil, err
		}
		routines = append(routines, *routine)
	}
	return routines, rows.Err()
}

// Create inserts a routine and returns the stored record.
func (r *Repository) Create(input CreateRoutineInput) (*Routine, error) {
	routineID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	actionJSON, err := json.Marshal(input.Action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	playerIDs := input.PlayerIDs
	if playerIDs == nil {
		playerIDs = []int{}
	}
	playersJSON, err := json.Marshal(playerIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal player ids: %w", err)
	}

	_, err = r.writer.Exec(`
		INSERT INTO routines (routine_id, name, enabled, schedule, action_type, action_json, player_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, routineID, input.Name, boolToInt(enabled), input.Schedule, string(input.Action.Type), string(actionJSON), string(playersJSON), now, now)
	if err != nil {
		return nil, err
	}

	return r.GetByID(routineID)
}

// Update applies the provided fields to an existing routine.
func (r *Repository) Update(routineID string, input UpdateRoutineInput) (*Routine, error) {
	current, err := r.GetByID(routineID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	if input.Name != nil {
		current.Name = *input.Name
	}
	if input.Enabled != nil {
		current.Enabled = *input.Enabled
	}
	if input.Schedule != nil {
		current.Schedule = *input.Schedule
	}
	if input.Action != nil {
		current.Action = *input.Action
	}
	if input.PlayerIDs != nil {
		current.PlayerIDs = input.PlayerIDs
	}

	actionJSON, err := json.Marshal(current.Action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}
	playersJSON, err := json.Marshal(current.PlayerIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal player ids: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = r.writer.Exec(`
		UPDATE routines
		SET name = ?, enabled = ?, schedule = ?, action_type = ?, action_json = ?, player_ids = ?, updated_at = ?
		WHERE routine_id = ?
	`, current.Name, boolToInt(current.Enabled), current.Schedule, string(current.Action.Type), string(actionJSON), string(playersJSON), now, routineID)
	if err != nil {
		return nil, err
	}

	return r.GetByID(routineID)
}

// Delete removes a routine. Returns false when it did not exist.
func (r *Repository) Delete(routineID string) (bool, error) {
	result, err := r.writer.Exec(`DELETE FROM routines WHERE routine_id = ?`, routineID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RecordRun stores the outcome of a run. A nil runErr clears last_run_error.
func (r *Repository) RecordRun(routineID string, ranAt time.Time, runErr error) error {
	var lastRunError any
	if runErr != nil {
		lastRunError = runErr.Error()
	}
	_, err := r.writer.Exec(`
		UPDATE routines
		SET last_run_at = ?, last_run_error = ?
		WHERE routine_id = ?
	`, ranAt.UTC().Format(time.RFC3339), lastRunError, routineID)
	return err
}

// scanRoutine reads one routine row via the given scan function, shared
// between QueryRow and Rows iteration.
func scanRoutine(scan func(dest ...any) error) (*Routine, error) {
	var routine Routine
	var enabled int
	var actionType, actionJSON, playersJSON string
	var lastRunAt, lastRunError sql.NullString
	var createdAt, updatedAt string

	err := scan(
		&routine.RoutineID,
		&routine.Name,
		&enabled,
		&routine.Schedule,
		&actionType,
		&actionJSON,
		&playersJSON,
		&lastRunAt,
		&lastRunError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	routine.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(actionJSON), &routine.Action); err != nil {
		return nil, fmt.Errorf("parse action for routine %s: %w", routine.RoutineID, err)
	}
	routine.Action.Type = ActionType(actionType)

	routine.PlayerIDs = []int{}
	if playersJSON != "" {
		if err := json.Unmarshal([]byte(playersJSON), &routine.PlayerIDs); err != nil {
			return nil, fmt.Errorf("parse player ids for routine %s: %w", routine.RoutineID, err)
		}
	}

	if lastRunAt.Valid && lastRunAt.String != "" {
		if parsed, err := time.Parse(time.RFC3339, lastRunAt.String); err == nil {
			routine.LastRunAt = &parsed
		}
	}
	if lastRunError.Valid && lastRunError.String != "" {
		routine.LastRunError = &lastRunError.String
	}

	routine.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	routine.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &routine, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
