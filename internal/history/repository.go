package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventLevel is the severity of a history event.
type EventLevel string

const (
	EventLevelDebug EventLevel = "DEBUG"
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// HistoryEvent is one row of the hub's activity log.
type HistoryEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Level     EventLevel     `json:"level"`
	RequestID *string        `json:"request_id,omitempty"`
	RoutineID *string        `json:"routine_id,omitempty"`
	PlayerID  *int           `json:"player_id,omitempty"`
	GroupID   *int           `json:"group_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload"`
}

// WriteEventInput carries the fields for a new history event.
type WriteEventInput struct {
	Type      string         `json:"type"`
	Level     *EventLevel    `json:"level,omitempty"`
	RequestID *string        `json:"request_id,omitempty"`
	RoutineID *string        `json:"routine_id,omitempty"`
	PlayerID  *int           `json:"player_id,omitempty"`
	GroupID   *int           `json:"group_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventQueryFilters narrows a query. Nil fields are not filtered on.
type EventQueryFilters struct {
	Type      *string     `json:"type,omitempty"`
	Level     *EventLevel `json:"level,omitempty"`
	StartDate *string     `json:"start_date,omitempty"` // RFC 3339
	EndDate   *string     `json:"end_date,omitempty"`   // RFC 3339
	RoutineID *string     `json:"routine_id,omitempty"`
	PlayerID  *int        `json:"player_id,omitempty"`
	GroupID   *int        `json:"group_id,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}

// DBPair is the slice of db.DBPair the repository needs.
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository persists history events in SQLite.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

const eventColumns = "event_id, timestamp, type, level, request_id, routine_id, player_id, group_id, message, payload"

// InsertEvent stores a new event and returns it as persisted. The level
// defaults to INFO and the timestamp is taken at insert time.
func (r *Repository) InsertEvent(input WriteEventInput) (*HistoryEvent, error) {
	level := EventLevelInfo
	if input.Level != nil {
		level = *input.Level
	}
	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	eventID := uuid.New().String()
	_, err = r.writer.Exec(
		"INSERT INTO history_events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		eventID, time.Now().UTC().Format(time.RFC3339), input.Type, string(level),
		input.RequestID, input.RoutineID, input.PlayerID, input.GroupID,
		input.Message, string(payloadJSON),
	)
	if err != nil {
		return nil, err
	}
	return r.GetEvent(eventID)
}

// GetEvent returns the event with the given id, or nil when absent.
func (r *Repository) GetEvent(eventID string) (*HistoryEvent, error) {
	row := r.reader.QueryRow(
		"SELECT "+eventColumns+" FROM history_events WHERE event_id = ?", eventID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// QueryEvents returns matching events newest first, along with the total
// number of matches before pagination.
func (r *Repository) QueryEvents(filters EventQueryFilters) ([]HistoryEvent, int, error) {
	where, args := filterClause(filters)

	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM history_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	rows, err := r.reader.Query(
		"SELECT "+eventColumns+" FROM history_events "+where+
			" ORDER BY timestamp DESC LIMIT ? OFFSET ?",
		append(args, limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []HistoryEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}
	return events, total, rows.Err()
}

// PruneOldEvents deletes events older than retentionDays and reports how
// many rows were removed.
func (r *Repository) PruneOldEvents(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)
	result, err := r.writer.Exec("DELETE FROM history_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// filterClause assembles the WHERE clause for the optional query filters.
func filterClause(filters EventQueryFilters) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, value any) {
		conditions = append(conditions, cond)
		args = append(args, value)
	}

	if filters.Type != nil {
		add("type = ?", *filters.Type)
	}
	if filters.Level != nil {
		add("level = ?", string(*filters.Level))
	}
	if filters.RoutineID != nil {
		add("routine_id = ?", *filters.RoutineID)
	}
	if filters.PlayerID != nil {
		add("player_id = ?", *filters.PlayerID)
	}
	if filters.GroupID != nil {
		add("group_id = ?", *filters.GroupID)
	}
	if filters.StartDate != nil {
		add("timestamp >= ?", *filters.StartDate)
	}
	if filters.EndDate != nil {
		add("timestamp <= ?", *filters.EndDate)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// scanEvent reads one row from either a Row or a Rows cursor.
func scanEvent(row interface{ Scan(...any) error }) (*HistoryEvent, error) {
	var (
		event                HistoryEvent
		timestamp, level     string
		payloadJSON          string
		requestID, routineID sql.NullString
		playerID, groupID    sql.NullInt64
	)
	err := row.Scan(&event.EventID, &timestamp, &event.Type, &level,
		&requestID, &routineID, &playerID, &groupID, &event.Message, &payloadJSON)
	if err != nil {
		return nil, err
	}

	event.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		// Rows written through raw SQL may carry SQLite's datetime format.
		event.Timestamp, _ = time.Parse("2006-01-02 15:04:05", timestamp)
	}
	event.Level = EventLevel(level)
	if requestID.Valid {
		event.RequestID = &requestID.String
	}
	if routineID.Valid {
		event.RoutineID = &routineID.String
	}
	if playerID.Valid {
		id := int(playerID.Int64)
		event.PlayerID = &id
	}
	if groupID.Valid {
		id := int(groupID.Int64)
		event.GroupID = &id
	}
	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, err
	}
	return &event, nil
}
