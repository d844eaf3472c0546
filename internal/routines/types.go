package routines

import (
	"database/sql"
	"time"
)

// ActionType is what a routine does when it fires.
type ActionType string

const (
	// ActionPlayPreset plays a numbered HEOS favorite preset.
	ActionPlayPreset ActionType = "play_preset"
	// ActionPlayInput switches to a hardware input.
	ActionPlayInput ActionType = "play_input"
	// ActionPlayStream starts a browse result (station, playlist, track).
	ActionPlayStream ActionType = "play_stream"
	// ActionSetVolume sets an absolute volume level.
	ActionSetVolume ActionType = "set_volume"
	// ActionSetState starts, pauses or stops playback.
	ActionSetState ActionType = "set_state"
)

// Action holds the type-specific parameters of a routine action. Only the
// fields the action type needs are set; the rest stay nil.
type Action struct {
	Type ActionType `json:"type"`

	// play_preset
	Preset *int `json:"preset,omitempty"`

	// play_input
	Input *string `json:"input,omitempty"`

	// play_stream
	SourceID    *int    `json:"source_id,omitempty"`
	ContainerID *string `json:"container_id,omitempty"`
	MediaID     *string `json:"media_id,omitempty"`

	// set_volume
	Level *int `json:"level,omitempty"`

	// set_state
	State *string `json:"state,omitempty"`
}

// Routine is a scheduled action against one or more players.
type Routine struct {
	RoutineID    string     `json:"routine_id"`
	Name         string     `json:"name"`
	Enabled      bool       `json:"enabled"`
	Schedule     string     `json:"schedule"`
	Action       Action     `json:"action"`
	PlayerIDs    []int      `json:"player_ids"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastRunError *string    `json:"last_run_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CreateRoutineInput contains the input for creating a routine.
type CreateRoutineInput struct {
	Name      string `json:"name"`
	Enabled   *bool  `json:"enabled,omitempty"`
	Schedule  string `json:"schedule"`
	Action    Action `json:"action"`
	PlayerIDs []int  `json:"player_ids"`
}

// UpdateRoutineInput contains the input for updating a routine.
type UpdateRoutineInput struct {
	Name      *string `json:"name,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
	Schedule  *string `json:"schedule,omitempty"`
	Action    *Action `json:"action,omitempty"`
	PlayerIDs []int   `json:"player_ids,omitempty"`
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for routines.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new routines Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}
