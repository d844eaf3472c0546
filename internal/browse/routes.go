package browse

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
)

var addCriteria = map[string]heos.AddCriteria{
	"play_now":         heos.AddPlayNow,
	"play_next":        heos.AddPlayNext,
	"add_to_end":       heos.AddToEnd,
	"replace_and_play": heos.AddReplaceAndPlay,
}

// RegisterRoutes wires browse routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Route("/v1/browse", func(browse chi.Router) {
		browse.Method(http.MethodGet, "/sources", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			sources := service.Sources()
			data := make([]any, 0, len(sources))
			for _, src := range sources {
				data = append(data, formatSource(src))
			}
			return api.WriteList(w, "/v1/browse/sources", data, false)
		}))

		browse.Method(http.MethodPost, "/sources/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			if err := service.RefreshSources(r.Context()); err != nil {
				return apperrors.FromHEOS(err)
			}
			sources := service.Sources()
			data := make([]any, 0, len(sources))
			for _, src := range sources {
				data = append(data, formatSource(src))
			}
			return api.WriteList(w, "/v1/browse/sources", data, false)
		}))

		browse.Method(http.MethodGet, "/sources/{source_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			sid, err := parseSourceID(r)
			if err != nil {
				return err
			}
			src, err := service.Source(sid)
			if err != nil {
				return err
			}
			return api.WriteResource(w, http.StatusOK, formatSource(src))
		}))

		browse.Method(http.MethodGet, "/sources/{source_id}/entries", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			sid, err := parseSourceID(r)
			if err != nil {
				return err
			}
			cid := r.URL.Query().Get("container_id")
			entries, err := service.Browse(r.Context(), sid, cid)
			if err != nil {
				return apperrors.FromHEOS(err)
			}
			url := "/v1/browse/sources/" + strconv.Itoa(int(sid)) + "/entries"
			return api.WriteList(w, url, formatEntries(entries), false)
		}))

		browse.Method(http.MethodGet, "/favorites", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			entries, err := service.Favorites(r.Context())
			if err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteList(w, "/v1/browse/favorites", formatEntries(entries), false)
		}))

		browse.Method(http.MethodGet, "/playlists", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			entries, err := service.Playlists(r.Context())
			if err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteList(w, "/v1/browse/playlists", formatEntries(entries), false)
		}))

		browse.Method(http.MethodPost, "/play", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			body, err := decodePlayInput(r)
			if err != nil {
				return err
			}
			if err := service.Play(r.Context(), body.pid, body.sid, body.cid, body.mid); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "browse_action",
				"action":    "play",
				"player_id": int(body.pid),
				"source_id": int(body.sid),
			})
		}))

		browse.Method(http.MethodPost, "/queue", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			body, err := decodePlayInput(r)
			if err != nil {
				return err
			}
			criteria := heos.AddToEnd
			if body.criteria != "" {
				var ok bool
				criteria, ok = addCriteria[body.criteria]
				if !ok {
					return apperrors.NewValidationError("criteria must be play_now, play_next, add_to_end or replace_and_play", map[string]any{
						"criteria": body.criteria,
					})
				}
			}
			if err := service.Enqueue(r.Context(), body.pid, body.sid, body.cid, body.mid, criteria); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "browse_action",
				"action":    "queue",
				"player_id": int(body.pid),
				"source_id": int(body.sid),
				"criteria":  body.criteria,
			})
		}))
	})
}

type playInput struct {
	pid      heos.PlayerID
	sid      heos.SourceID
	cid      string
	mid      string
	criteria string
}

func decodePlayInput(r *http.Request) (playInput, error) {
	var body struct {
		PlayerID    *int   `json:"player_id"`
		SourceID    *int   `json:"source_id"`
		ContainerID string `json:"container_id"`
		MediaID     string `json:"media_id"`
		Criteria    string `json:"criteria"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return playInput{}, apperrors.NewValidationError("invalid request body", nil)
	}
	if body.PlayerID == nil {
		return playInput{}, apperrors.NewValidationError("player_id is required", nil)
	}
	if body.SourceID == nil {
		return playInput{}, apperrors.NewValidationError("source_id is required", nil)
	}
	if body.ContainerID == "" && body.MediaID == "" {
		return playInput{}, apperrors.NewValidationError("container_id or media_id is required", nil)
	}
	return playInput{
		pid:      heos.PlayerID(*body.PlayerID),
		sid:      heos.SourceID(*body.SourceID),
		cid:      body.ContainerID,
		mid:      body.MediaID,
		criteria: body.Criteria,
	}, nil
}

func parseSourceID(r *http.Request) (heos.SourceID, error) {
	raw := chi.URLParam(r, "source_id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError("source_id must be an integer", map[string]any{
			"source_id": raw,
		})
	}
	return heos.SourceID(id), nil
}

// formatSource formats a music source for JSON response.
func formatSource(src heos.Source) map[string]any {
	source := map[string]any{
		"object":    "source",
		"source_id": int(src.ID),
		"name":      src.Name,
		"type":      src.Type,
		"available": src.Available,
	}
	if src.ImageURL != "" {
		source["image_url"] = src.ImageURL
	}
	if src.ServiceUsername != "" {
		source["service_username"] = src.ServiceUsername
	}
	return source
}

func formatEntries(entries []heos.BrowseEntry) []any {
	data := make([]any, 0, len(entries))
	for _, entry := range entries {
		data = append(data, formatEntry(entry))
	}
	return data
}

// formatEntry formats a browse result for JSON response.
func formatEntry(entry heos.BrowseEntry) map[string]any {
	e := map[string]any{
		"object":    "browse_entry",
		"name":      entry.Name,
		"type":      entry.Type,
		"container": entry.Container,
		"playable":  entry.Playable,
	}
	if entry.ImageURL != "" {
		e["image_url"] = entry.ImageURL
	}
	if entry.SourceID != 0 {
		e["source_id"] = int(entry.SourceID)
	}
	if entry.ContainerID != "" {
		e["container_id"] = entry.ContainerID
	}
	if entry.MediaID != "" {
		e["media_id"] = entry.MediaID
	}
	return e
}
