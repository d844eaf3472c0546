package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventTypeConstants(t *testing.T) {
	require.Equal(t, EventType("COMMAND_SUCCEEDED"), EventCommandSucceeded)
	require.Equal(t, EventType("COMMAND_FAILED"), EventCommandFailed)
	require.Equal(t, EventType("PLAYERS_CHANGED"), EventPlayersChanged)
	require.Equal(t, EventType("GROUPS_CHANGED"), EventGroupsChanged)
	require.Equal(t, EventType("PLAYER_ADDED"), EventPlayerAdded)
	require.Equal(t, EventType("PLAYER_REMOVED"), EventPlayerRemoved)
	require.Equal(t, EventType("SESSION_CONNECTED"), EventSessionConnected)
	require.Equal(t, EventType("SESSION_LOST"), EventSessionLost)
	require.Equal(t, EventType("ACCOUNT_CHANGED"), EventAccountChanged)
	require.Equal(t, EventType("ROUTINE_CREATED"), EventRoutineCreated)
	require.Equal(t, EventType("ROUTINE_UPDATED"), EventRoutineUpdated)
	require.Equal(t, EventType("ROUTINE_DELETED"), EventRoutineDeleted)
	require.Equal(t, EventType("ROUTINE_RUN_STARTED"), EventRoutineRunStarted)
	require.Equal(t, EventType("ROUTINE_RUN_COMPLETED"), EventRoutineRunCompleted)
	require.Equal(t, EventType("ROUTINE_RUN_FAILED"), EventRoutineRunFailed)
	require.Equal(t, EventType("DEVICE_DISCOVERED"), EventDeviceDiscovered)
	require.Equal(t, EventType("SYSTEM_STARTUP"), EventSystemStartup)
	require.Equal(t, EventType("SYSTEM_ERROR"), EventSystemError)
}

func TestEventLevelConstants(t *testing.T) {
	require.Equal(t, EventLevel("DEBUG"), EventLevelDebug)
	require.Equal(t, EventLevel("INFO"), EventLevelInfo)
	require.Equal(t, EventLevel("WARN"), EventLevelWarn)
	require.Equal(t, EventLevel("ERROR"), EventLevelError)
}

func TestEventCorrelationJSON(t *testing.T) {
	requestID := "req-123"
	routineID := "routine-456"
	playerID := 7
	groupID := 100

	correlation := EventCorrelation{
		RequestID: &requestID,
		RoutineID: &routineID,
		PlayerID:  &playerID,
		GroupID:   &groupID,
	}

	data, err := json.Marshal(correlation)
	require.NoError(t, err)

	var decoded map[string]any
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	require.Equal(t, "req-123", decoded["request_id"])
	require.Equal(t, "routine-456", decoded["routine_id"])
	require.Equal(t, float64(7), decoded["player_id"])
	require.Equal(t, float64(100), decoded["group_id"])
}

func TestEventCorrelationJSON_OmitsEmpty(t *testing.T) {
	correlation := EventCorrelation{}

	data, err := json.Marshal(correlation)
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))
}

func TestEventCorrelationJSON_Partial(t *testing.T) {
	playerID := 3

	correlation := EventCorrelation{PlayerID: &playerID}

	data, err := json.Marshal(correlation)
	require.NoError(t, err)

	var decoded map[string]any
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	require.Len(t, decoded, 1)
	require.Equal(t, float64(3), decoded["player_id"])
}

func TestHistoryEventJSON(t *testing.T) {
	routineID := "routine-1"
	playerID := 5

	event := HistoryEvent{
		EventID:   "evt-1",
		Timestamp: time.Date(2026, 3, 15, 7, 30, 0, 0, time.UTC),
		Type:      string(EventRoutineRunCompleted),
		Level:     EventLevelInfo,
		RoutineID: &routineID,
		PlayerID:  &playerID,
		Message:   "Routine finished",
		Payload:   map[string]any{"duration_ms": float64(420)},
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded HistoryEvent
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	require.Equal(t, event.EventID, decoded.EventID)
	require.True(t, event.Timestamp.Equal(decoded.Timestamp))
	require.Equal(t, event.Type, decoded.Type)
	require.Equal(t, event.Level, decoded.Level)
	require.NotNil(t, decoded.RoutineID)
	require.Equal(t, "routine-1", *decoded.RoutineID)
	require.NotNil(t, decoded.PlayerID)
	require.Equal(t, 5, *decoded.PlayerID)
	require.Nil(t, decoded.RequestID)
	require.Nil(t, decoded.GroupID)
	require.Equal(t, event.Message, decoded.Message)
	require.Equal(t, event.Payload, decoded.Payload)
}

func TestHistoryEventJSON_OmitsNilCorrelation(t *testing.T) {
	event := HistoryEvent{
		EventID:   "evt-2",
		Timestamp: time.Now().UTC(),
		Type:      string(EventSystemStartup),
		Level:     EventLevelInfo,
		Message:   "Hub started",
		Payload:   map[string]any{},
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	require.NotContains(t, decoded, "request_id")
	require.NotContains(t, decoded, "routine_id")
	require.NotContains(t, decoded, "player_id")
	require.NotContains(t, decoded, "group_id")
}

func TestHistoryEvent_UnmarshalFromRawJSON(t *testing.T) {
	raw := `{
		"event_id": "evt-3",
		"timestamp": "2026-03-15T07:30:00Z",
		"type": "PLAYER_ADDED",
		"level": "INFO",
		"player_id": 12,
		"message": "Player appeared",
		"payload": {}
	}`

	var event HistoryEvent
	err := json.Unmarshal([]byte(raw), &event)
	require.NoError(t, err)

	require.Equal(t, "evt-3", event.EventID)
	require.Equal(t, string(EventPlayerAdded), event.Type)
	require.Equal(t, EventLevelInfo, event.Level)
	require.NotNil(t, event.PlayerID)
	require.Equal(t, 12, *event.PlayerID)
	require.Equal(t, "Player appeared", event.Message)
}

func TestWriteEventInputJSON(t *testing.T) {
	level := EventLevelWarn
	input := WriteEventInput{
		Type:    string(EventPlayerRemoved),
		Level:   &level,
		Message: "Player vanished",
	}

	data, err := json.Marshal(input)
	require.NoError(t, err)

	var decoded map[string]any
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	require.Equal(t, "PLAYER_REMOVED", decoded["type"])
	require.Equal(t, "WARN", decoded["level"])
	require.NotContains(t, decoded, "request_id")
	require.NotContains(t, decoded, "payload")
}

func TestEventQueryFiltersJSON(t *testing.T) {
	typeFilter := string(EventCommandFailed)
	level := EventLevelError
	routineID := "routine-9"

	filters := EventQueryFilters{
		Type:      &typeFilter,
		Level:     &level,
		RoutineID: &routineID,
		Limit:     50,
		Offset:    10,
	}

	data, err := json.Marshal(filters)
	require.NoError(t, err)

	var decoded map[string]any
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	require.Equal(t, "COMMAND_FAILED", decoded["type"])
	require.Equal(t, "ERROR", decoded["level"])
	require.Equal(t, "routine-9", decoded["routine_id"])
	require.Equal(t, float64(50), decoded["limit"])
	require.Equal(t, float64(10), decoded["offset"])
}

func TestEventQueryFiltersJSON_Empty(t *testing.T) {
	filters := EventQueryFilters{}

	data, err := json.Marshal(filters)
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))
}

func TestEventTypeStringConversion(t *testing.T) {
	eventType := EventRoutineRunFailed
	require.Equal(t, "ROUTINE_RUN_FAILED", string(eventType))

	level := EventLevelError
	require.Equal(t, "ERROR", string(level))
}
