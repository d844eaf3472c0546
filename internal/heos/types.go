package heos

// PlayerID is the stable numeric id a device reports for itself. Ids can be
// negative; they survive reboots but not factory resets.
type PlayerID int

// GroupID identifies a group. On the wire it equals the leader's PlayerID.
type GroupID int

// SourceID identifies a music source (service, favorites, inputs, ...).
type SourceID int

// Well-known source ids from the CLI protocol.
const (
	SourceFavorites SourceID = 1028
	SourcePlaylists SourceID = 1025
	SourceInputs    SourceID = 1027
)

// PlayState matches the wire values for player/set_play_state.
type PlayState string

const (
	PlayStatePlay  PlayState = "play"
	PlayStatePause PlayState = "pause"
	PlayStateStop  PlayState = "stop"
)

func (s PlayState) valid() bool {
	switch s {
	case PlayStatePlay, PlayStatePause, PlayStateStop:
		return true
	}
	return false
}

// RepeatMode matches the wire values for player/set_play_mode.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "on_all"
	RepeatOne RepeatMode = "on_one"
)

func (r RepeatMode) valid() bool {
	switch r {
	case RepeatOff, RepeatAll, RepeatOne:
		return true
	}
	return false
}

// Player is one controllable audio endpoint and its last confirmed state.
// Volume, mute, play state and now-playing fields change only when a device
// event or a refresh confirms them, never when a command merely succeeds.
type Player struct {
	ID      PlayerID
	Name    string
	Model   string
	Version string
	IP      string
	Network string
	LineOut int
	Serial  string
	Online  bool

	Volume  int
	Muted   bool
	State   PlayState
	Repeat  RepeatMode
	Shuffle bool

	NowPlaying NowPlaying
}

// NowPlaying describes the media a player is rendering.
type NowPlaying struct {
	Type       string
	Song       string
	Station    string
	Album      string
	Artist     string
	ImageURL   string
	AlbumID    string
	MediaID    string
	QueueID    int
	SourceID   SourceID
	DurationMS int
	ElapsedMS  int
}

// GroupRole distinguishes the leader inside a group member list.
type GroupRole string

const (
	GroupRoleLeader GroupRole = "leader"
	GroupRoleMember GroupRole = "member"
)

// GroupMember is one player's membership entry in a group.
type GroupMember struct {
	ID   PlayerID
	Name string
	Role GroupRole
}

// Group is a set of players playing in sync behind one leader.
type Group struct {
	ID      GroupID
	Name    string
	Leader  PlayerID
	Members []GroupMember
	Volume  int
	Muted   bool
}

// MemberIDs returns every member pid, leader first.
func (g *Group) MemberIDs() []PlayerID {
	ids := make([]PlayerID, 0, len(g.Members))
	ids = append(ids, g.Leader)
	for _, m := range g.Members {
		if m.ID != g.Leader {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Source is a browsable/playable music source entry.
type Source struct {
	ID              SourceID
	Name            string
	Type            string
	ImageURL        string
	Available       bool
	ServiceUsername string
}

// BrowseEntry is one row of a browse result: a container to descend into or
// a playable item.
type BrowseEntry struct {
	Name        string
	Type        string
	ImageURL    string
	SourceID    SourceID
	ContainerID string
	MediaID     string
	Container   bool
	Playable    bool
}

// QueueItem is one entry of a player's play queue.
type QueueItem struct {
	QueueID  int
	Song     string
	Album    string
	Artist   string
	ImageURL string
	MediaID  string
	AlbumID  string
}

// AccountStatus reports the HEOS account attached to the session.
type AccountStatus struct {
	SignedIn bool
	Username string
}
