package routines

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
)

// RegisterRoutes wires routine routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/routines", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		routines, err := service.List()
		if err != nil {
			return apperrors.NewInternalError("Failed to list routines")
		}
		data := make([]any, 0, len(routines))
		for i := range routines {
			data = append(data, formatRoutine(&routines[i], service.NextRun(routines[i].RoutineID)))
		}
		return api.WriteList(w, "/v1/routines", data, false)
	}))

	router.Method(http.MethodPost, "/v1/routines", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var input CreateRoutineInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		routine, err := service.Create(input)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusCreated, formatRoutine(routine, service.NextRun(routine.RoutineID)))
	}))

	router.Route("/v1/routines/{routine_id}", func(routine chi.Router) {
		routine.Method(http.MethodGet, "/", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			routineID := chi.URLParam(r, "routine_id")
			stored, err := service.Get(routineID)
			if err != nil {
				return err
			}
			return api.WriteResource(w, http.StatusOK, formatRoutine(stored, service.NextRun(routineID)))
		}))

		routine.Method(http.MethodPut, "/", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			routineID := chi.URLParam(r, "routine_id")
			var input UpdateRoutineInput
			if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
				return apperrors.NewValidationError("invalid request body", nil)
			}

			updated, err := service.Update(routineID, input)
			if err != nil {
				return err
			}
			return api.WriteResource(w, http.StatusOK, formatRoutine(updated, service.NextRun(routineID)))
		}))

		routine.Method(http.MethodDelete, "/", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			routineID := chi.URLParam(r, "routine_id")
			if err := service.Delete(routineID); err != nil {
				return err
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":     "routine_action",
				"routine_id": routineID,
				"action":     "delete",
			})
		}))

		routine.Method(http.MethodPut, "/enabled", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			routineID := chi.URLParam(r, "routine_id")
			var body struct {
				Enabled *bool `json:"enabled"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
				return apperrors.NewValidationError("enabled is required", nil)
			}

			updated, err := service.SetEnabled(routineID, *body.Enabled)
			if err != nil {
				return err
			}
			return api.WriteResource(w, http.StatusOK, formatRoutine(updated, service.NextRun(routineID)))
		}))

		routine.Method(http.MethodPost, "/run", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			routineID := chi.URLParam(r, "routine_id")
			if err := service.Run(r.Context(), routineID); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":     "routine_action",
				"routine_id": routineID,
				"action":     "run",
			})
		}))
	})
}

// formatRoutine formats a routine for JSON response.
func formatRoutine(routine *Routine, nextRun *time.Time) map[string]any {
	result := map[string]any{
		"object":     "routine",
		"routine_id": routine.RoutineID,
		"name":       routine.Name,
		"enabled":    routine.Enabled,
		"schedule":   routine.Schedule,
		"action":     formatAction(routine.Action),
		"player_ids": routine.PlayerIDs,
		"created_at": routine.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": routine.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if nextRun != nil {
		result["next_run_at"] = nextRun.UTC().Format(time.RFC3339)
	}
	if routine.LastRunAt != nil {
		result["last_run_at"] = routine.LastRunAt.UTC().Format(time.RFC3339)
	}
	if routine.LastRunError != nil {
		result["last_run_error"] = *routine.LastRunError
	}
	return result
}

// formatAction formats an action, emitting only the fields its type uses.
func formatAction(action Action) map[string]any {
	result := map[string]any{
		"type": string(action.Type),
	}
	if action.Preset != nil {
		result["preset"] = *action.Preset
	}
	if action.Input != nil {
		result["input"] = *action.Input
	}
	if action.SourceID != nil {
		result["source_id"] = *action.SourceID
	}
	if action.ContainerID != nil {
		result["container_id"] = *action.ContainerID
	}
	if action.MediaID != nil {
		result["media_id"] = *action.MediaID
	}
	if action.Level != nil {
		result["level"] = *action.Level
	}
	if action.State != nil {
		result["state"] = *action.State
	}
	return result
}
