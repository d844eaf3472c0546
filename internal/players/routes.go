package players

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
)

// RegisterRoutes wires player routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/players", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		players := service.List()
		data := make([]any, 0, len(players))
		for _, p := range players {
			data = append(data, formatPlayer(p))
		}
		return api.WriteList(w, "/v1/players", data, false)
	}))

	router.Route("/v1/players/{player_id}", func(player chi.Router) {
		player.Method(http.MethodGet, "/", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			p, err := service.Get(pid)
			if err != nil {
				return err
			}
			return api.WriteResource(w, http.StatusOK, formatPlayer(p))
		}))

		player.Method(http.MethodGet, "/now-playing", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			media, err := service.NowPlaying(r.Context(), pid)
			if err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteResource(w, http.StatusOK, formatNowPlaying(pid, media))
		}))

		player.Method(http.MethodPost, "/play", api.Handler(playStateAction(service, heos.PlayStatePlay)))
		player.Method(http.MethodPost, "/pause", api.Handler(playStateAction(service, heos.PlayStatePause)))
		player.Method(http.MethodPost, "/stop", api.Handler(playStateAction(service, heos.PlayStateStop)))

		player.Method(http.MethodPut, "/state", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			var body struct {
				State string `json:"state"`
			}
			if err := decodeJSON(r, &body); err != nil {
				return apperrors.NewValidationError("invalid request body", nil)
			}
			state := heos.PlayState(body.State)
			switch state {
			case heos.PlayStatePlay, heos.PlayStatePause, heos.PlayStateStop:
			default:
				return apperrors.NewValidationError("state must be play, pause or stop", map[string]any{
					"state": body.State,
				})
			}
			if err := service.SetPlayState(r.Context(), pid, state); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "set_state",
				"state":     string(state),
			})
		}))

		player.Method(http.MethodPost, "/next", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			if err := service.Next(r.Context(), pid); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "next",
			})
		}))

		player.Method(http.MethodPost, "/previous", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			if err := service.Previous(r.Context(), pid); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "previous",
			})
		}))

		player.Method(http.MethodPut, "/play-mode", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			var body struct {
				Repeat  string `json:"repeat"`
				Shuffle bool   `json:"shuffle"`
			}
			if err := decodeJSON(r, &body); err != nil {
				return apperrors.NewValidationError("invalid request body", nil)
			}
			repeat := heos.RepeatMode(body.Repeat)
			switch repeat {
			case heos.RepeatOff, heos.RepeatAll, heos.RepeatOne:
			default:
				return apperrors.NewValidationError("repeat must be off, on_all or on_one", map[string]any{
					"repeat": body.Repeat,
				})
			}
			if err := service.SetPlayMode(r.Context(), pid, repeat, body.Shuffle); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "set_play_mode",
				"repeat":    string(repeat),
				"shuffle":   body.Shuffle,
			})
		}))

		player.Method(http.MethodPut, "/volume", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			var body struct {
				Level *int `json:"level"`
			}
			if err := decodeJSON(r, &body); err != nil || body.Level == nil {
				return apperrors.NewValidationError("level is required", nil)
			}
			if *body.Level < 0 || *body.Level > 100 {
				return apperrors.NewValidationError("level must be between 0 and 100", map[string]any{
					"level": *body.Level,
				})
			}
			if err := service.SetVolume(r.Context(), pid, *body.Level); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "set_volume",
				"level":     *body.Level,
			})
		}))

		player.Method(http.MethodPost, "/volume/up", api.Handler(volumeStepAction(service, "volume_up")))
		player.Method(http.MethodPost, "/volume/down", api.Handler(volumeStepAction(service, "volume_down")))

		player.Method(http.MethodPut, "/mute", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			var body struct {
				Muted *bool `json:"muted"`
			}
			if err := decodeJSON(r, &body); err != nil || body.Muted == nil {
				return apperrors.NewValidationError("muted is required", nil)
			}
			if err := service.SetMute(r.Context(), pid, *body.Muted); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "set_mute",
				"muted":     *body.Muted,
			})
		}))

		player.Method(http.MethodPost, "/mute/toggle", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			if err := service.ToggleMute(r.Context(), pid); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "toggle_mute",
			})
		}))

		player.Method(http.MethodGet, "/queue", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			items, err := service.Queue(r.Context(), pid)
			if err != nil {
				return apperrors.FromHEOS(err)
			}
			data := make([]any, 0, len(items))
			for _, item := range items {
				data = append(data, formatQueueItem(item))
			}
			return api.WriteList(w, "/v1/players/"+strconv.Itoa(int(pid))+"/queue", data, false)
		}))

		player.Method(http.MethodDelete, "/queue", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			if err := service.ClearQueue(r.Context(), pid); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "clear_queue",
			})
		}))

		player.Method(http.MethodPost, "/queue/{queue_id}/play", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			qid, convErr := strconv.Atoi(chi.URLParam(r, "queue_id"))
			if convErr != nil || qid < 1 {
				return apperrors.NewValidationError("queue_id must be a positive integer", map[string]any{
					"queue_id": chi.URLParam(r, "queue_id"),
				})
			}
			if err := service.PlayQueueItem(r.Context(), pid, qid); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "play_queue_item",
				"queue_id":  qid,
			})
		}))

		player.Method(http.MethodPost, "/play-preset", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			var body struct {
				Preset *int `json:"preset"`
			}
			if err := decodeJSON(r, &body); err != nil || body.Preset == nil {
				return apperrors.NewValidationError("preset is required", nil)
			}
			if *body.Preset < 1 {
				return apperrors.NewValidationError("preset must be a positive integer", map[string]any{
					"preset": *body.Preset,
				})
			}
			if err := service.PlayPreset(r.Context(), pid, *body.Preset); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "play_preset",
				"preset":    *body.Preset,
			})
		}))

		player.Method(http.MethodPost, "/play-input", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			pid, err := parsePlayerID(r)
			if err != nil {
				return err
			}
			var body struct {
				Input string `json:"input"`
			}
			if err := decodeJSON(r, &body); err != nil || body.Input == "" {
				return apperrors.NewValidationError("input is required", nil)
			}
			if err := service.PlayInput(r.Context(), pid, body.Input); err != nil {
				return apperrors.FromHEOS(err)
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":    "player_action",
				"player_id": int(pid),
				"action":    "play_input",
				"input":     body.Input,
			})
		}))
	})
}

// playStateAction builds a handler for the play/pause/stop convenience routes.
func playStateAction(service *Service, state heos.PlayState) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		pid, err := parsePlayerID(r)
		if err != nil {
			return err
		}
		if err := service.SetPlayState(r.Context(), pid, state); err != nil {
			return apperrors.FromHEOS(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":    "player_action",
			"player_id": int(pid),
			"action":    string(state),
		})
	}
}

// volumeStepAction builds a handler for the volume/up and volume/down routes.
// The step defaults to 5 and is capped at HEOS's limit of 10.
func volumeStepAction(service *Service, action string) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		pid, err := parsePlayerID(r)
		if err != nil {
			return err
		}
		step := 5
		if r.Body != nil && r.ContentLength != 0 {
			var body struct {
				Step *int `json:"step"`
			}
			if err := decodeJSON(r, &body); err != nil {
				return apperrors.NewValidationError("invalid request body", nil)
			}
			if body.Step != nil {
				step = *body.Step
			}
		}
		if step < 1 || step > 10 {
			return apperrors.NewValidationError("step must be between 1 and 10", map[string]any{
				"step": step,
			})
		}

		var cmdErr error
		if action == "volume_up" {
			cmdErr = service.VolumeUp(r.Context(), pid, step)
		} else {
			cmdErr = service.VolumeDown(r.Context(), pid, step)
		}
		if cmdErr != nil {
			return apperrors.FromHEOS(cmdErr)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":    "player_action",
			"player_id": int(pid),
			"action":    action,
			"step":      step,
		})
	}
}

func parsePlayerID(r *http.Request) (heos.PlayerID, error) {
	raw := chi.URLParam(r, "player_id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError("player_id must be an integer", map[string]any{
			"player_id": raw,
		})
	}
	return heos.PlayerID(id), nil
}

// formatPlayer formats a player for JSON response.
func formatPlayer(p heos.Player) map[string]any {
	player := map[string]any{
		"object":    "player",
		"player_id": int(p.ID),
		"name":      p.Name,
		"model":     p.Model,
		"version":   p.Version,
		"ip":        p.IP,
		"network":   p.Network,
		"line_out":  p.LineOut,
		"serial":    p.Serial,
		"online":    p.Online,
		"volume":    p.Volume,
		"muted":     p.Muted,
		"state":     string(p.State),
		"repeat":    string(p.Repeat),
		"shuffle":   p.Shuffle,
	}
	if p.NowPlaying.Type != "" {
		player["now_playing"] = formatMedia(p.NowPlaying)
	}
	return player
}

// formatNowPlaying formats a now-playing fetch for JSON response.
func formatNowPlaying(pid heos.PlayerID, media heos.NowPlaying) map[string]any {
	return map[string]any{
		"object":    "now_playing",
		"player_id": int(pid),
		"media":     formatMedia(media),
	}
}

func formatMedia(media heos.NowPlaying) map[string]any {
	m := map[string]any{
		"type":   media.Type,
		"song":   media.Song,
		"album":  media.Album,
		"artist": media.Artist,
	}
	if media.Station != "" {
		m["station"] = media.Station
	}
	if media.ImageURL != "" {
		m["image_url"] = media.ImageURL
	}
	if media.AlbumID != "" {
		m["album_id"] = media.AlbumID
	}
	if media.MediaID != "" {
		m["media_id"] = media.MediaID
	}
	if media.QueueID > 0 {
		m["queue_id"] = media.QueueID
	}
	if media.SourceID != 0 {
		m["source_id"] = int(media.SourceID)
	}
	if media.DurationMS > 0 {
		m["duration_ms"] = media.DurationMS
		m["elapsed_ms"] = media.ElapsedMS
	}
	return m
}

// formatQueueItem formats a queue entry for JSON response.
func formatQueueItem(item heos.QueueItem) map[string]any {
	q := map[string]any{
		"object":   "queue_item",
		"queue_id": item.QueueID,
		"song":     item.Song,
		"album":    item.Album,
		"artist":   item.Artist,
	}
	if item.ImageURL != "" {
		q["image_url"] = item.ImageURL
	}
	if item.MediaID != "" {
		q["media_id"] = item.MediaID
	}
	if item.AlbumID != "" {
		q["album_id"] = item.AlbumID
	}
	return q
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}
