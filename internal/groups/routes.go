package groups

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
)

// RegisterRoutes wires group routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/groups", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		groups := service.List()
		data := make([]any, 0, len(groups))
		for _, g := range groups {
			data = append(data, formatGroup(g))
		}
		return api.WriteList(w, "/v1/groups", data, false)
	}))

	router.Method(http.MethodPost, "/v1/groups", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Leader  *int  `json:"leader"`
			Members []int `json:"members"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Leader == nil {
			return apperrors.NewValidationError("leader is required", nil)
		}
		if len(body.Members) == 0 {
			return apperrors.NewValidationError("members must not be empty", nil)
		}

		leader := heos.PlayerID(*body.Leader)
		members := make([]heos.PlayerID, 0, len(body.Members))
		for _, m := range body.Members {
			members = append(members, heos.PlayerID(m))
		}

		if err := service.Create(r.Context(), leader, members); err != nil {
			return apperrors.FromHEOS(err)
		}

		// The device assigns the group id. If the confirming event has
		// already landed the new group is in the registry.
		if group, ok := service.FindByLeader(leader); ok {
			return api.WriteResource(w, http.StatusCreated, formatGroup(group))
		}
		return api.WriteAction(w, http.StatusAccepted, map[string]any{
			"object":  "group_action",
			"action":  "create",
			"leader":  *body.Leader,
			"members": body.Members,
		})
	}))

	router.Route("/v1/groups/{group_id}", func(group chi.Router) {
		group.Method(http.MethodGet, "/", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			gid, err := parseGroupID(r)
			if err != nil {
				return err
			}
			g, err := service.Get(gid)
			if err != nil {
				return err
			}
			return api.WriteResource(w, http.StatusOK, formatGroup(g))
		}))

		group.Method(http.MethodDelete, "/", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			gid, err := parseGroupID(r)
			if err != nil {
				return err
			}
			if err := service.Dissolve(r.Context(), gid); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":   "group_action",
				"group_id": int(gid),
				"action":   "dissolve",
			})
		}))

		group.Method(http.MethodPut, "/volume", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			gid, err := parseGroupID(r)
			if err != nil {
				return err
			}
			var body struct {
				Level *int `json:"level"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Level == nil {
				return apperrors.NewValidationError("level is required", nil)
			}
			if *body.Level < 0 || *body.Level > 100 {
				return apperrors.NewValidationError("level must be between 0 and 100", map[string]any{
					"level": *body.Level,
				})
			}
			if err := service.SetVolume(r.Context(), gid, *body.Level); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":   "group_action",
				"group_id": int(gid),
				"action":   "set_volume",
				"level":    *body.Level,
			})
		}))

		group.Method(http.MethodPut, "/mute", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			gid, err := parseGroupID(r)
			if err != nil {
				return err
			}
			var body struct {
				Muted *bool `json:"muted"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Muted == nil {
				return apperrors.NewValidationError("muted is required", nil)
			}
			if err := service.SetMute(r.Context(), gid, *body.Muted); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":   "group_action",
				"group_id": int(gid),
				"action":   "set_mute",
				"muted":    *body.Muted,
			})
		}))

		group.Method(http.MethodPost, "/mute/toggle", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			gid, err := parseGroupID(r)
			if err != nil {
				return err
			}
			if err := service.ToggleMute(r.Context(), gid); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":   "group_action",
				"group_id": int(gid),
				"action":   "toggle_mute",
			})
		}))
	})
}

func parseGroupID(r *http.Request) (heos.GroupID, error) {
	raw := chi.URLParam(r, "group_id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError("group_id must be an integer", map[string]any{
			"group_id": raw,
		})
	}
	return heos.GroupID(id), nil
}

// formatGroup formats a group for JSON response.
func formatGroup(g heos.Group) map[string]any {
	members := make([]map[string]any, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, map[string]any{
			"player_id": int(m.ID),
			"name":      m.Name,
			"role":      string(m.Role),
		})
	}
	return map[string]any{
		"object":   "group",
		"group_id": int(g.ID),
		"name":     g.Name,
		"leader":   int(g.Leader),
		"members":  members,
		"volume":   g.Volume,
		"muted":    g.Muted,
	}
}
