package history

// EventType represents the type of history event.
type EventType string

const (
	EventCommandSucceeded    EventType = "COMMAND_SUCCEEDED"
	EventCommandFailed       EventType = "COMMAND_FAILED"
	EventPlayersChanged      EventType = "PLAYERS_CHANGED"
	EventGroupsChanged       EventType = "GROUPS_CHANGED"
	EventPlayerAdded         EventType = "PLAYER_ADDED"
	EventPlayerRemoved       EventType = "PLAYER_REMOVED"
	EventSessionConnected    EventType = "SESSION_CONNECTED"
	EventSessionLost         EventType = "SESSION_LOST"
	EventAccountChanged      EventType = "ACCOUNT_CHANGED"
	EventRoutineCreated      EventType = "ROUTINE_CREATED"
	EventRoutineUpdated      EventType = "ROUTINE_UPDATED"
	EventRoutineDeleted      EventType = "ROUTINE_DELETED"
	EventRoutineRunStarted   EventType = "ROUTINE_RUN_STARTED"
	EventRoutineRunCompleted EventType = "ROUTINE_RUN_COMPLETED"
	EventRoutineRunFailed    EventType = "ROUTINE_RUN_FAILED"
	EventDeviceDiscovered    EventType = "DEVICE_DISCOVERED"
	EventSystemStartup       EventType = "SYSTEM_STARTUP"
	EventSystemError         EventType = "SYSTEM_ERROR"
)

// EventCorrelation contains IDs that link related events together.
type EventCorrelation struct {
	RequestID *string `json:"request_id,omitempty"`
	RoutineID *string `json:"routine_id,omitempty"`
	PlayerID  *int    `json:"player_id,omitempty"`
	GroupID   *int    `json:"group_id,omitempty"`
}
