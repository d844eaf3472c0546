package heos

import (
	"context"
)

// Refresh re-enumerates players and groups and atomically replaces the
// registry with the result. Runs in the caller's goroutine; the session also
// calls this on every entry into ready and whenever an event invalidates the
// model.
func (c *Client) Refresh(ctx context.Context) error {
	return c.doRefresh(ctx)
}

// RefreshSources re-fetches the music source list on demand.
func (c *Client) RefreshSources(ctx context.Context) error {
	return c.doSourcesRefresh(ctx)
}

func (c *Client) doRefresh(ctx context.Context) error {
	players, err := c.fetchPlayers(ctx)
	if err != nil {
		return &RefreshError{Stage: "players", Err: err}
	}
	for i := range players {
		c.fillPlayerState(ctx, &players[i])
	}

	groups, err := c.fetchGroups(ctx)
	if err != nil {
		return &RefreshError{Stage: "groups", Err: err}
	}
	for i := range groups {
		c.fillGroupState(ctx, &groups[i])
	}

	added, removed := c.registry.replaceAll(players, groups, c.now())

	for _, p := range removed {
		c.dispatcher.publish(Event{Type: EventPlayerRemoved, PlayerID: p.ID})
	}
	for _, p := range added {
		c.dispatcher.publish(Event{Type: EventPlayerAdded, PlayerID: p.ID})
	}
	// Announce the rebuilt model so subscribers re-read it. These are
	// synthesized, not wire events, and never feed back into apply.
	c.dispatcher.publish(Event{Type: EventPlayersChanged})
	c.dispatcher.publish(Event{Type: EventGroupsChanged})

	c.logger.Printf("HEOS: refresh complete: %d player(s), %d group(s)", len(players), len(groups))
	return nil
}

func (c *Client) doSourcesRefresh(ctx context.Context) error {
	msg, err := c.submit(ctx, cmdGetMusicSources, nil)
	if err != nil {
		return &RefreshError{Stage: "sources", Err: err}
	}
	var payload []sourcePayload
	if err := decodePayload(msg, &payload); err != nil {
		return &RefreshError{Stage: "sources", Err: err}
	}

	sources := make([]Source, 0, len(payload))
	for _, s := range payload {
		sources = append(sources, s.toSource())
	}
	c.registry.replaceSources(sources)
	c.dispatcher.publish(Event{Type: EventSourcesChanged})
	return nil
}

func (c *Client) fetchPlayers(ctx context.Context) ([]Player, error) {
	msg, err := c.submit(ctx, cmdGetPlayers, nil)
	if err != nil {
		return nil, err
	}
	var payload []playerPayload
	if err := decodePayload(msg, &payload); err != nil {
		return nil, err
	}

	players := make([]Player, 0, len(payload))
	for _, p := range payload {
		players = append(players, p.toPlayer())
	}
	return players, nil
}

func (c *Client) fetchGroups(ctx context.Context) ([]Group, error) {
	msg, err := c.submit(ctx, cmdGetGroups, nil)
	if err != nil {
		return nil, err
	}
	if len(msg.Payload) == 0 {
		// No groups formed; the device omits the payload entirely.
		return nil, nil
	}
	var payload []groupPayload
	if err := decodePayload(msg, &payload); err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(payload))
	for _, g := range payload {
		groups = append(groups, g.toGroup())
	}
	return groups, nil
}

// fillPlayerState pulls the per-player state a bare enumeration lacks. Each
// fetch is best effort: a player that answers only half the queries still
// lands in the registry with the half it answered.
func (c *Client) fillPlayerState(ctx context.Context, p *Player) {
	attrs := pidAttrs(p.ID)

	if msg, err := c.submit(ctx, cmdGetPlayState, attrs); err == nil {
		if state := PlayState(msg.Attr("state")); state.valid() {
			p.State = state
		}
	}
	if msg, err := c.submit(ctx, cmdGetVolume, attrs); err == nil {
		if level, err := msg.IntAttr("level"); err == nil {
			p.Volume = level
		}
	}
	if msg, err := c.submit(ctx, cmdGetMute, attrs); err == nil {
		p.Muted = msg.Attr("state") == "on"
	}
	if msg, err := c.submit(ctx, cmdGetPlayMode, attrs); err == nil {
		if repeat := RepeatMode(msg.Attr("repeat")); repeat.valid() {
			p.Repeat = repeat
		}
		p.Shuffle = msg.Attr("shuffle") == "on"
	}
	if msg, err := c.submit(ctx, cmdGetNowPlaying, attrs); err == nil {
		var payload nowPlayingPayload
		if err := decodePayload(msg, &payload); err == nil {
			p.NowPlaying = payload.toNowPlaying()
		}
	}
}

// fillGroupState pulls group volume and mute, best effort.
func (c *Client) fillGroupState(ctx context.Context, g *Group) {
	attrs := gidAttrs(g.ID)

	if msg, err := c.submit(ctx, cmdGetGroupVolume, attrs); err == nil {
		if level, err := msg.IntAttr("level"); err == nil {
			g.Volume = level
		}
	}
	if msg, err := c.submit(ctx, cmdGetGroupMute, attrs); err == nil {
		g.Muted = msg.Attr("state") == "on"
	}
}

// fetchNowPlaying refreshes one player's media after a now-playing event.
// Publishes a follow-up event once the registry holds the new media, so
// subscribers re-reading on notification see the fresh state.
func (c *Client) fetchNowPlaying(ctx context.Context, pid PlayerID) {
	msg, err := c.submit(ctx, cmdGetNowPlaying, pidAttrs(pid))
	if err != nil {
		c.logger.Printf("HEOS: now-playing fetch for pid %d failed: %v", pid, err)
		return
	}
	var payload nowPlayingPayload
	if err := decodePayload(msg, &payload); err != nil {
		c.logger.Printf("HEOS: now-playing fetch for pid %d failed: %v", pid, err)
		return
	}

	c.registry.setNowPlaying(pid, payload.toNowPlaying())
	c.dispatcher.publish(Event{Type: EventNowPlayingChanged, PlayerID: pid})
}
