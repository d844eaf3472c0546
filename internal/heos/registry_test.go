package heos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPlayers() []Player {
	return []Player{
		{ID: 1, Name: "Living Room", Model: "HEOS 5", Volume: 25, State: PlayStateStop, Repeat: RepeatOff, Online: true},
		{ID: 2, Name: "Kitchen", Model: "HEOS 1", Volume: 40, State: PlayStatePlay, Repeat: RepeatOff, Online: true},
	}
}

func testGroups() []Group {
	return []Group{
		{
			ID:     100,
			Name:   "Downstairs",
			Leader: 1,
			Members: []GroupMember{
				{ID: 1, Name: "Living Room", Role: GroupRoleLeader},
				{ID: 2, Name: "Kitchen", Role: GroupRoleMember},
			},
			Volume: 30,
		},
	}
}

func TestRegistry_ReplaceAll(t *testing.T) {
	r := newRegistry()

	added, removed := r.replaceAll(testPlayers(), testGroups(), time.Now())
	require.Len(t, added, 2)
	require.Empty(t, removed)

	players := r.playerList()
	require.Len(t, players, 2)
	require.Equal(t, PlayerID(1), players[0].ID)
	require.Equal(t, PlayerID(2), players[1].ID)

	group, ok := r.group(100)
	require.True(t, ok)
	require.Equal(t, PlayerID(1), group.Leader)
	require.Len(t, group.Members, 2)
}

func TestRegistry_ReplaceAllDiff(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), nil, time.Now())

	// Player 2 disappears, player 3 appears.
	next := []Player{
		{ID: 1, Name: "Living Room", Online: true},
		{ID: 3, Name: "Bedroom", Online: true},
	}
	added, removed := r.replaceAll(next, nil, time.Now())

	require.Len(t, added, 1)
	require.Equal(t, PlayerID(3), added[0].ID)
	require.Len(t, removed, 1)
	require.Equal(t, PlayerID(2), removed[0].ID)

	_, ok := r.player(2)
	require.False(t, ok)
	_, ok = r.player(3)
	require.True(t, ok)
}

func TestRegistry_ReplaceAllIdempotent(t *testing.T) {
	r := newRegistry()

	r.replaceAll(testPlayers(), testGroups(), time.Now())
	first := r.playerList()
	firstGroups := r.groupList()

	added, removed := r.replaceAll(testPlayers(), testGroups(), time.Now())
	require.Empty(t, added)
	require.Empty(t, removed)
	require.Equal(t, first, r.playerList())
	require.Equal(t, firstGroups, r.groupList())
}

func TestRegistry_ReplaceAllDropsVanishedGroups(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), testGroups(), time.Now())

	r.replaceAll(testPlayers(), nil, time.Now())

	require.Empty(t, r.groupList())
	_, _, grouped := r.membership(1)
	require.False(t, grouped)
}

func TestRegistry_ApplyVolumeEvent(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), nil, time.Now())

	outcome := r.apply(Event{Type: EventPlayerVolumeChanged, PlayerID: 1, Level: 55, Muted: true})
	require.False(t, outcome.refreshAll)

	p, ok := r.player(1)
	require.True(t, ok)
	require.Equal(t, 55, p.Volume)
	require.True(t, p.Muted)

	// Only player 1 was touched.
	other, _ := r.player(2)
	require.Equal(t, 40, other.Volume)
}

func TestRegistry_ApplyStateEvent(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), nil, time.Now())

	r.apply(Event{Type: EventPlayerStateChanged, PlayerID: 1, State: PlayStatePlay})

	p, _ := r.player(1)
	require.Equal(t, PlayStatePlay, p.State)
}

func TestRegistry_ApplyUnknownPlayerIsNoOp(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), nil, time.Now())
	before := r.playerList()

	outcome := r.apply(Event{Type: EventPlayerVolumeChanged, PlayerID: 99, Level: 80})

	require.True(t, outcome.refreshAll)
	require.Equal(t, before, r.playerList())
	require.EqualValues(t, 1, r.staleApplyCount())
}

func TestRegistry_ApplyStructuralEventRequestsRefresh(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), nil, time.Now())
	before := r.playerList()

	outcome := r.apply(Event{Type: EventPlayersChanged})
	require.True(t, outcome.refreshAll)
	// Structural events never mutate directly; the refresh does.
	require.Equal(t, before, r.playerList())

	outcome = r.apply(Event{Type: EventSourcesChanged})
	require.True(t, outcome.refreshSources)
}

func TestRegistry_ApplyNowPlayingRequestsFetch(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), nil, time.Now())

	outcome := r.apply(Event{Type: EventNowPlayingChanged, PlayerID: 1})
	require.True(t, outcome.fetchMedia)
	require.False(t, outcome.refreshAll)

	// Unknown player downgrades to a refresh.
	outcome = r.apply(Event{Type: EventNowPlayingChanged, PlayerID: 99})
	require.False(t, outcome.fetchMedia)
	require.True(t, outcome.refreshAll)
}

func TestRegistry_ApplyProgress(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), nil, time.Now())

	r.apply(Event{Type: EventNowPlayingProgress, PlayerID: 1, ElapsedMS: 30000, DurationMS: 180000})

	p, _ := r.player(1)
	require.Equal(t, 30000, p.NowPlaying.ElapsedMS)
	require.Equal(t, 180000, p.NowPlaying.DurationMS)
}

func TestRegistry_ApplyGroupVolume(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), testGroups(), time.Now())

	r.apply(Event{Type: EventGroupVolumeChanged, GroupID: 100, Level: 60, Muted: true})

	g, _ := r.group(100)
	require.Equal(t, 60, g.Volume)
	require.True(t, g.Muted)
}

func TestRegistry_SetNowPlaying(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), nil, time.Now())

	media := NowPlaying{Type: "song", Song: "So What", Artist: "Miles Davis", Album: "Kind of Blue"}
	r.setNowPlaying(1, media)

	p, _ := r.player(1)
	require.Equal(t, media, p.NowPlaying)

	// Vanished player: drop silently.
	r.setNowPlaying(99, media)
}

func TestRegistry_QueriesReturnCopies(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), testGroups(), time.Now())

	p, _ := r.player(1)
	p.Volume = 99
	again, _ := r.player(1)
	require.Equal(t, 25, again.Volume)

	g, _ := r.group(100)
	g.Members[0].Name = "mangled"
	gAgain, _ := r.group(100)
	require.Equal(t, "Living Room", gAgain.Members[0].Name)
}

func TestRegistry_Membership(t *testing.T) {
	r := newRegistry()
	r.replaceAll(testPlayers(), testGroups(), time.Now())

	gid, role, ok := r.membership(1)
	require.True(t, ok)
	require.Equal(t, GroupID(100), gid)
	require.Equal(t, GroupRoleLeader, role)

	gid, role, ok = r.membership(2)
	require.True(t, ok)
	require.Equal(t, GroupID(100), gid)
	require.Equal(t, GroupRoleMember, role)

	_, _, ok = r.membership(42)
	require.False(t, ok)
}

func TestRegistry_Sources(t *testing.T) {
	r := newRegistry()

	r.replaceSources([]Source{
		{ID: 3, Name: "TuneIn", Type: "music_service"},
		{ID: SourceFavorites, Name: "Favorites", Type: "heos_service", Available: true},
	})

	sources := r.sourceList()
	require.Len(t, sources, 2)
	require.Equal(t, SourceFavorites, sources[1].ID)
}
