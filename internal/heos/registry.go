package heos

import (
	"sort"
	"sync"
	"time"
)

// registry is the authoritative in-memory model of players, groups and
// sources. It has exactly two write paths: event application from the read
// loop, and wholesale replacement from a refresh. Command success never
// touches it; intent becomes state only when the device confirms it.
type registry struct {
	mu      sync.RWMutex
	players map[PlayerID]*Player
	groups  map[GroupID]*Group
	sources []Source

	lastRefresh  time.Time
	refreshCount int64
	staleApplies int64
}

// applyOutcome tells the session what follow-up work an event requires.
type applyOutcome struct {
	refreshAll     bool
	refreshSources bool
	fetchMedia     bool
}

func newRegistry() *registry {
	return &registry{
		players: make(map[PlayerID]*Player),
		groups:  make(map[GroupID]*Group),
	}
}

// replaceAll swaps in the result of a full refresh atomically: entries absent
// from the result are removed, new ones added, existing ones replaced. The
// returned slices are the players that appeared and disappeared, so the
// session can synthesize added/removed events from the diff.
func (r *registry) replaceAll(players []Player, groups []Group, now time.Time) (added, removed []Player) {
	nextPlayers := make(map[PlayerID]*Player, len(players))
	for i := range players {
		p := players[i]
		nextPlayers[p.ID] = &p
	}
	nextGroups := make(map[GroupID]*Group, len(groups))
	for i := range groups {
		g := groups[i]
		nextGroups[g.ID] = &g
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range nextPlayers {
		if _, known := r.players[id]; !known {
			added = append(added, *p)
		}
	}
	for id, p := range r.players {
		if _, still := nextPlayers[id]; !still {
			removed = append(removed, *p)
		}
	}

	r.players = nextPlayers
	r.groups = nextGroups
	r.lastRefresh = now
	r.refreshCount++
	return added, removed
}

// replaceSources swaps in a fresh source enumeration.
func (r *registry) replaceSources(sources []Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = make([]Source, len(sources))
	copy(r.sources, sources)
}

// setNowPlaying stores freshly fetched media for a player. No-op when the
// player vanished between fetch and store.
func (r *registry) setNowPlaying(pid PlayerID, media NowPlaying) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[pid]; ok {
		p.NowPlaying = media
	}
}

// apply folds one event into the model, touching only the fields the event
// concerns. Events for unknown ids change nothing; the outcome asks for a
// refresh instead of guessing at state the device never confirmed.
func (r *registry) apply(ev Event) applyOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case EventPlayersChanged, EventGroupsChanged:
		return applyOutcome{refreshAll: true}

	case EventSourcesChanged:
		return applyOutcome{refreshSources: true}

	case EventPlayerStateChanged:
		p, ok := r.players[ev.PlayerID]
		if !ok {
			return r.stale()
		}
		if ev.State.valid() {
			p.State = ev.State
		}

	case EventPlayerVolumeChanged:
		p, ok := r.players[ev.PlayerID]
		if !ok {
			return r.stale()
		}
		p.Volume = ev.Level
		p.Muted = ev.Muted

	case EventGroupVolumeChanged:
		g, ok := r.groups[ev.GroupID]
		if !ok {
			return r.stale()
		}
		g.Volume = ev.Level
		g.Muted = ev.Muted

	case EventRepeatModeChanged:
		p, ok := r.players[ev.PlayerID]
		if !ok {
			return r.stale()
		}
		if ev.Repeat.valid() {
			p.Repeat = ev.Repeat
		}

	case EventShuffleModeChanged:
		p, ok := r.players[ev.PlayerID]
		if !ok {
			return r.stale()
		}
		p.Shuffle = ev.Shuffle

	case EventNowPlayingProgress:
		p, ok := r.players[ev.PlayerID]
		if !ok {
			return r.stale()
		}
		p.NowPlaying.ElapsedMS = ev.ElapsedMS
		if ev.DurationMS > 0 {
			p.NowPlaying.DurationMS = ev.DurationMS
		}

	case EventNowPlayingChanged:
		if _, ok := r.players[ev.PlayerID]; !ok {
			return r.stale()
		}
		// Media details are not in the event; they need a follow-up fetch.
		return applyOutcome{fetchMedia: true}
	}

	return applyOutcome{}
}

func (r *registry) stale() applyOutcome {
	r.staleApplies++
	return applyOutcome{refreshAll: true}
}

// player returns a copy of one player.
func (r *registry) player(id PlayerID) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// playerList returns copies of all players ordered by id, so two snapshots of
// the same state compare equal.
func (r *registry) playerList() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		list = append(list, *p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// group returns a copy of one group, members included.
func (r *registry) group(id GroupID) (Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return Group{}, false
	}
	return copyGroup(g), true
}

// groupList returns copies of all groups ordered by id.
func (r *registry) groupList() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		list = append(list, copyGroup(g))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// sourceList returns a copy of the last source enumeration in device order.
func (r *registry) sourceList() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Source, len(r.sources))
	copy(list, r.sources)
	return list
}

// membership reports which group a player currently belongs to and with
// which role.
func (r *registry) membership(pid PlayerID) (GroupID, GroupRole, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, g := range r.groups {
		for _, m := range g.Members {
			if m.ID == pid {
				return id, m.Role, true
			}
		}
	}
	return 0, "", false
}

func (r *registry) knowsPlayer(pid PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[pid]
	return ok
}

func (r *registry) lastRefreshAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefresh
}

func (r *registry) counts() (players, groups, sources int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players), len(r.groups), len(r.sources)
}

func (r *registry) staleApplyCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.staleApplies
}

func copyGroup(g *Group) Group {
	out := *g
	out.Members = make([]GroupMember, len(g.Members))
	copy(out.Members, g.Members)
	return out
}
