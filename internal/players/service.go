package players

import (
	"context"
	"log"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
	"github.com/strefethen/heos-hub-go/internal/history"
)

// Controller is the slice of the HEOS client the players service needs.
type Controller interface {
	Players() []heos.Player
	Player(id heos.PlayerID) (heos.Player, bool)
	SetPlayState(ctx context.Context, pid heos.PlayerID, state heos.PlayState) error
	Next(ctx context.Context, pid heos.PlayerID) error
	Previous(ctx context.Context, pid heos.PlayerID) error
	SetPlayMode(ctx context.Context, pid heos.PlayerID, repeat heos.RepeatMode, shuffle bool) error
	NowPlaying(ctx context.Context, pid heos.PlayerID) (heos.NowPlaying, error)
	SetVolume(ctx context.Context, pid heos.PlayerID, level int) error
	VolumeUp(ctx context.Context, pid heos.PlayerID, step int) error
	VolumeDown(ctx context.Context, pid heos.PlayerID, step int) error
	SetMute(ctx context.Context, pid heos.PlayerID, muted bool) error
	ToggleMute(ctx context.Context, pid heos.PlayerID) error
	Queue(ctx context.Context, pid heos.PlayerID) ([]heos.QueueItem, error)
	ClearQueue(ctx context.Context, pid heos.PlayerID) error
	PlayQueueItem(ctx context.Context, pid heos.PlayerID, qid int) error
	PlayPreset(ctx context.Context, pid heos.PlayerID, preset int) error
	PlayInput(ctx context.Context, pid heos.PlayerID, input string) error
}

// Service exposes player control backed by the live HEOS session. Reads come
// from the client's registry; commands go to the device and are logged to
// history with the request id that caused them.
type Service struct {
	client  Controller
	history *history.Service
	logger  *log.Logger
}

// NewService creates a players service. historyService may be nil.
func NewService(client Controller, historyService *history.Service, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		client:  client,
		history: historyService,
		logger:  logger,
	}
}

// List returns every known player.
func (s *Service) List() []heos.Player {
	return s.client.Players()
}

// Get returns one player by id, or a PLAYER_NOT_FOUND error.
func (s *Service) Get(pid heos.PlayerID) (heos.Player, error) {
	player, ok := s.client.Player(pid)
	if !ok {
		return heos.Player{}, playerNotFound(pid)
	}
	return player, nil
}

// SetPlayState starts, pauses or stops playback.
func (s *Service) SetPlayState(ctx context.Context, pid heos.PlayerID, state heos.PlayState) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.SetPlayState(ctx, pid, state)
	s.record(ctx, "player/set_play_state", pid, map[string]any{"state": string(state)}, err)
	return err
}

// Next advances to the next track.
func (s *Service) Next(ctx context.Context, pid heos.PlayerID) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.Next(ctx, pid)
	s.record(ctx, "player/play_next", pid, nil, err)
	return err
}

// Previous goes back one track.
func (s *Service) Previous(ctx context.Context, pid heos.PlayerID) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.Previous(ctx, pid)
	s.record(ctx, "player/play_previous", pid, nil, err)
	return err
}

// SetPlayMode changes repeat and shuffle together.
func (s *Service) SetPlayMode(ctx context.Context, pid heos.PlayerID, repeat heos.RepeatMode, shuffle bool) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.SetPlayMode(ctx, pid, repeat, shuffle)
	s.record(ctx, "player/set_play_mode", pid, map[string]any{"repeat": string(repeat), "shuffle": shuffle}, err)
	return err
}

// NowPlaying fetches the current media directly from the device.
func (s *Service) NowPlaying(ctx context.Context, pid heos.PlayerID) (heos.NowPlaying, error) {
	if _, err := s.Get(pid); err != nil {
		return heos.NowPlaying{}, err
	}
	return s.client.NowPlaying(ctx, pid)
}

// SetVolume sets an absolute volume level.
func (s *Service) SetVolume(ctx context.Context, pid heos.PlayerID, level int) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.SetVolume(ctx, pid, level)
	s.record(ctx, "player/set_volume", pid, map[string]any{"level": level}, err)
	return err
}

// VolumeUp raises the volume by step.
func (s *Service) VolumeUp(ctx context.Context, pid heos.PlayerID, step int) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.VolumeUp(ctx, pid, step)
	s.record(ctx, "player/volume_up", pid, map[string]any{"step": step}, err)
	return err
}

// VolumeDown lowers the volume by step.
func (s *Service) VolumeDown(ctx context.Context, pid heos.PlayerID, step int) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.VolumeDown(ctx, pid, step)
	s.record(ctx, "player/volume_down", pid, map[string]any{"step": step}, err)
	return err
}

// SetMute mutes or unmutes a player.
func (s *Service) SetMute(ctx context.Context, pid heos.PlayerID, muted bool) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.SetMute(ctx, pid, muted)
	s.record(ctx, "player/set_mute", pid, map[string]any{"muted": muted}, err)
	return err
}

// ToggleMute flips the mute state.
func (s *Service) ToggleMute(ctx context.Context, pid heos.PlayerID) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.ToggleMute(ctx, pid)
	s.record(ctx, "player/toggle_mute", pid, nil, err)
	return err
}

// Queue returns the player's play queue.
func (s *Service) Queue(ctx context.Context, pid heos.PlayerID) ([]heos.QueueItem, error) {
	if _, err := s.Get(pid); err != nil {
		return nil, err
	}
	return s.client.Queue(ctx, pid)
}

// ClearQueue empties the play queue.
func (s *Service) ClearQueue(ctx context.Context, pid heos.PlayerID) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.ClearQueue(ctx, pid)
	s.record(ctx, "player/clear_queue", pid, nil, err)
	return err
}

// PlayQueueItem jumps playback to a queue entry.
func (s *Service) PlayQueueItem(ctx context.Context, pid heos.PlayerID, qid int) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.PlayQueueItem(ctx, pid, qid)
	s.record(ctx, "player/play_queue", pid, map[string]any{"qid": qid}, err)
	return err
}

// PlayPreset plays a numbered station preset.
func (s *Service) PlayPreset(ctx context.Context, pid heos.PlayerID, preset int) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.PlayPreset(ctx, pid, preset)
	s.record(ctx, "browse/play_preset", pid, map[string]any{"preset": preset}, err)
	return err
}

// PlayInput switches the player to a hardware input.
func (s *Service) PlayInput(ctx context.Context, pid heos.PlayerID, input string) error {
	if _, err := s.Get(pid); err != nil {
		return err
	}
	err := s.client.PlayInput(ctx, pid, input)
	s.record(ctx, "browse/play_input", pid, map[string]any{"input": input}, err)
	return err
}

// record writes a COMMAND_* history row. Failures are logged, never fatal.
func (s *Service) record(ctx context.Context, command string, pid heos.PlayerID, args map[string]any, cmdErr error) {
	if s.history == nil {
		return
	}

	playerID := int(pid)
	input := history.WriteEventInput{
		Type:     string(history.EventCommandSucceeded),
		PlayerID: &playerID,
		Message:  command,
		Payload:  args,
	}
	if requestID := api.RequestIDFromContext(ctx); requestID != "" {
		input.RequestID = &requestID
	}
	if cmdErr != nil {
		level := history.EventLevelError
		input.Type = string(history.EventCommandFailed)
		input.Level = &level
		if input.Payload == nil {
			input.Payload = map[string]any{}
		}
		input.Payload["error"] = cmdErr.Error()
	}

	if _, err := s.history.RecordEvent(input); err != nil {
		s.logger.Printf("players: record command history: %v", err)
	}
}

func playerNotFound(pid heos.PlayerID) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrorCodePlayerNotFound, "Player not found", 404, map[string]any{
		"player_id": int(pid),
	}, nil)
}
