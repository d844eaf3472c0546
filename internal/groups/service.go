package groups

import (
	"context"
	"log"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
	"github.com/strefethen/heos-hub-go/internal/history"
)

// Controller is the slice of the HEOS client the groups service needs.
type Controller interface {
	Groups() []heos.Group
	Group(id heos.GroupID) (heos.Group, bool)
	CreateGroup(ctx context.Context, leader heos.PlayerID, members []heos.PlayerID) error
	DissolveGroup(ctx context.Context, gid heos.GroupID) error
	SetGroupVolume(ctx context.Context, gid heos.GroupID, level int) error
	SetGroupMute(ctx context.Context, gid heos.GroupID, muted bool) error
	ToggleGroupMute(ctx context.Context, gid heos.GroupID) error
}

// Service exposes group management backed by the live HEOS session.
type Service struct {
	client  Controller
	history *history.Service
	logger  *log.Logger
}

// NewService creates a groups service. historyService may be nil.
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

// List returns every known group.
func (s *Service) List() []heos.Group {
	return s.client.Groups()
}

// Get returns one group by id, or a GROUP_NOT_FOUND error.
func (s *Service) Get(gid heos.GroupID) (heos.Group, error) {
	group, ok := s.client.Group(gid)
	if !ok {
		return heos.Group{}, groupNotFound(gid)
	}
	return group, nil
}

// Create groups the members under the leader. The call returns once the
// device has confirmed the change or the confirmation window has passed.
// Validation of leader and member ids happens against the live registry.
func (s *Service) Create(ctx context.Context, leader heos.PlayerID, members []heos.PlayerID) error {
	err := s.client.CreateGroup(ctx, leader, members)
	payload := map[string]any{"leader": int(leader), "members": memberInts(members)}
	s.record(ctx, "group/set_group", nil, payload, err)
	return err
}

// Dissolve breaks a group apart, returning its members to standalone play.
func (s *Service) Dissolve(ctx context.Context, gid heos.GroupID) error {
	if _, err := s.Get(gid); err != nil {
		return err
	}
	err := s.client.DissolveGroup(ctx, gid)
	s.record(ctx, "group/set_group", &gid, map[string]any{"dissolve": true}, err)
	return err
}

// SetVolume sets the group volume. The device fans it out to members.
func (s *Service) SetVolume(ctx context.Context, gid heos.GroupID, level int) error {
	if _, err := s.Get(gid); err != nil {
		return err
	}
	err := s.client.SetGroupVolume(ctx, gid, level)
	s.record(ctx, "group/set_volume", &gid, map[string]any{"level": level}, err)
	return err
}

// SetMute mutes or unmutes the whole group.
func (s *Service) SetMute(ctx context.Context, gid heos.GroupID, muted bool) error {
	if _, err := s.Get(gid); err != nil {
		return err
	}
	err := s.client.SetGroupMute(ctx, gid, muted)
	s.record(ctx, "group/set_mute", &gid, map[string]any{"muted": muted}, err)
	return err
}

// ToggleMute flips the whole group's mute state.
func (s *Service) ToggleMute(ctx context.Context, gid heos.GroupID) error {
	if _, err := s.Get(gid); err != nil {
		return err
	}
	err := s.client.ToggleGroupMute(ctx, gid)
	s.record(ctx, "group/toggle_mute", &gid, nil, err)
	return err
}

// FindByLeader returns the group led by the given player, if any. Used to
// report the resulting group right after a create.
func (s *Service) FindByLeader(leader heos.PlayerID) (heos.Group, bool) {
	for _, g := range s.client.Groups() {
		if g.Leader == leader {
			return g, true
		}
	}
	return heos.Group{}, false
}

func (s *Service) record(ctx context.Context, command string, gid *heos.GroupID, args map[string]any, cmdErr error) {
	if s.history == nil {
		return
	}

	input := history.WriteEventInput{
		Type:    string(history.EventCommandSucceeded),
		Message: command,
		Payload: args,
	}
	if gid != nil {
		groupID := int(*gid)
		input.GroupID = &groupID
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
		s.logger.Printf("groups: record command history: %v", err)
	}
}

func memberInts(members []heos.PlayerID) []int {
	out := make([]int, 0, len(members))
	for _, m := range members {
		out = append(out, int(m))
	}
	return out
}

func groupNotFound(gid heos.GroupID) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrorCodeGroupNotFound, "Group not found", 404, map[string]any{
		"group_id": int(gid),
	}, nil)
}
