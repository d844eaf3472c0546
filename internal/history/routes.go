package history

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
)

// validEventLevels maps query values onto event levels.
var validEventLevels = map[string]EventLevel{
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}

// RegisterRoutes wires history routes to the router. History rows are
// written by the hub itself; the API is read only.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/history/events", api.Handler(queryEvents(service)))
	router.Method(http.MethodGet, "/v1/history/events/{event_id}", api.Handler(getEvent(service)))
}

// GET /v1/history/events
func queryEvents(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := filtersFromQuery(r.URL.Query())
		if err != nil {
			return err
		}

		events, _, hasMore, err := service.QueryEvents(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query history events")
		}

		items := make([]map[string]any, 0, len(events))
		for i := range events {
			items = append(items, formatEvent(&events[i]))
		}
		return api.WriteList(w, "/v1/history/events", items, hasMore)
	}
}

// GET /v1/history/events/{event_id}
func getEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		eventID := chi.URLParam(r, "event_id")

		event, err := service.GetEvent(eventID)
		var notFound *EventNotFoundError
		switch {
		case errors.As(err, &notFound):
			return apperrors.NewAppError(apperrors.ErrorCodeEventNotFound, "Event not found", 404, map[string]any{
				"event_id": eventID,
			}, nil)
		case err != nil:
			return apperrors.NewInternalError("Failed to get history event")
		}

		return api.WriteResource(w, http.StatusOK, formatEvent(event))
	}
}

// filtersFromQuery validates the supported query parameters and builds the
// repository filter set. Unknown parameters are ignored.
func filtersFromQuery(query url.Values) (EventQueryFilters, error) {
	filters := EventQueryFilters{Limit: DefaultQueryLimit}

	var err error
	if filters.StartDate, err = datetimeParam(query, "from"); err != nil {
		return filters, err
	}
	if filters.EndDate, err = datetimeParam(query, "to"); err != nil {
		return filters, err
	}

	if v := query.Get("type"); v != "" {
		filters.Type = &v
	}
	if v := query.Get("level"); v != "" {
		level, ok := validEventLevels[v]
		if !ok {
			return filters, apperrors.NewValidationError("invalid level", map[string]any{
				"level":        v,
				"valid_levels": []string{"INFO", "WARN", "ERROR"},
			})
		}
		filters.Level = &level
	}

	if v := query.Get("routine_id"); v != "" {
		filters.RoutineID = &v
	}
	if filters.PlayerID, err = intParam(query, "player_id"); err != nil {
		return filters, err
	}
	if filters.GroupID, err = intParam(query, "group_id"); err != nil {
		return filters, err
	}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{
				"limit": v,
			})
		}
		filters.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{
				"offset": v,
			})
		}
		filters.Offset = offset
	}

	return filters, nil
}

// datetimeParam returns the named query value after checking it parses as
// RFC 3339. Timestamps are stored in that format, so the raw string goes
// straight into the SQL comparison.
func datetimeParam(query url.Values, key string) (*string, error) {
	v := query.Get(key)
	if v == "" {
		return nil, nil
	}
	if _, err := time.Parse(time.RFC3339, v); err != nil {
		return nil, apperrors.NewValidationError("invalid '"+key+"' datetime format, expected ISO 8601", map[string]any{key: v})
	}
	return &v, nil
}

// intParam parses the named query value as a numeric ID filter.
func intParam(query url.Values, key string) (*int, error) {
	v := query.Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid "+key+", must be an integer", map[string]any{key: v})
	}
	return &n, nil
}

// formatEvent renders one event in API shape. Correlation IDs and the
// payload are folded in only when present.
func formatEvent(event *HistoryEvent) map[string]any {
	result := map[string]any{
		"object":    "history_event",
		"event_id":  event.EventID,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
		"type":      event.Type,
		"level":     string(event.Level),
		"message":   event.Message,
	}

	correlation := map[string]any{}
	if id := event.RequestID; id != nil {
		correlation["request_id"] = *id
	}
	if id := event.RoutineID; id != nil {
		correlation["routine_id"] = *id
	}
	if id := event.PlayerID; id != nil {
		correlation["player_id"] = *id
	}
	if id := event.GroupID; id != nil {
		correlation["group_id"] = *id
	}
	if len(correlation) > 0 {
		result["correlation"] = correlation
	}

	if len(event.Payload) > 0 {
		result["payload"] = event.Payload
	}

	return result
}
