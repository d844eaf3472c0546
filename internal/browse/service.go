package browse

import (
	"context"
	"log"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
	"github.com/strefethen/heos-hub-go/internal/history"
)

// Controller is the slice of the HEOS client the browse service needs.
type Controller interface {
	Sources() []heos.Source
	RefreshSources(ctx context.Context) error
	Browse(ctx context.Context, sid heos.SourceID, cid string) ([]heos.BrowseEntry, error)
	Favorites(ctx context.Context) ([]heos.BrowseEntry, error)
	Playlists(ctx context.Context) ([]heos.BrowseEntry, error)
	PlayStream(ctx context.Context, pid heos.PlayerID, sid heos.SourceID, cid, mid string) error
	AddToQueue(ctx context.Context, pid heos.PlayerID, sid heos.SourceID, cid, mid string, criteria heos.AddCriteria) error
}

// Service exposes music source browsing and playback of browse results.
type Service struct {
	client  Controller
	history *history.Service
	logger  *log.Logger
}

// NewService creates a browse service. historyService may be nil.
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

// Sources returns the cached music source list.
func (s *Service) Sources() []heos.Source {
	return s.client.Sources()
}

// Source returns one source by id, or a SOURCE_NOT_FOUND error.
func (s *Service) Source(sid heos.SourceID) (heos.Source, error) {
	for _, src := range s.client.Sources() {
		if src.ID == sid {
			return src, nil
		}
	}
	return heos.Source{}, sourceNotFound(sid)
}

// RefreshSources re-fetches the source list from the device.
func (s *Service) RefreshSources(ctx context.Context) error {
	return s.client.RefreshSources(ctx)
}

// Browse lists a source's top level, or a container inside it.
func (s *Service) Browse(ctx context.Context, sid heos.SourceID, cid string) ([]heos.BrowseEntry, error) {
	if _, err := s.Source(sid); err != nil {
		return nil, err
	}
	return s.client.Browse(ctx, sid, cid)
}

// Favorites lists the signed-in account's favorites.
func (s *Service) Favorites(ctx context.Context) ([]heos.BrowseEntry, error) {
	return s.client.Favorites(ctx)
}

// Playlists lists the signed-in account's playlists.
func (s *Service) Playlists(ctx context.Context) ([]heos.BrowseEntry, error) {
	return s.client.Playlists(ctx)
}

// Play starts a browse result on a player.
func (s *Service) Play(ctx context.Context, pid heos.PlayerID, sid heos.SourceID, cid, mid string) error {
	err := s.client.PlayStream(ctx, pid, sid, cid, mid)
	s.record(ctx, "browse/play_stream", pid, map[string]any{
		"sid": int(sid),
		"cid": cid,
		"mid": mid,
	}, err)
	return err
}

// Enqueue adds a browse result to a player's queue.
func (s *Service) Enqueue(ctx context.Context, pid heos.PlayerID, sid heos.SourceID, cid, mid string, criteria heos.AddCriteria) error {
	err := s.client.AddToQueue(ctx, pid, sid, cid, mid, criteria)
	s.record(ctx, "browse/add_to_queue", pid, map[string]any{
		"sid":      int(sid),
		"cid":      cid,
		"mid":      mid,
		"criteria": int(criteria),
	}, err)
	return err
}

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
		s.logger.Printf("browse: record command history: %v", err)
	}
}

func sourceNotFound(sid heos.SourceID) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrorCodeSourceNotFound, "Music source not found", 404, map[string]any{
		"source_id": int(sid),
	}, nil)
}
