package heos

// EventType classifies the change notifications subscribers can receive.
// Most map 1:1 onto wire events; player_added/player_removed are derived from
// refresh diffs, session_changed and system_error originate in the session
// manager. The set is closed: the dispatcher never invents new types.
type EventType string

const (
	EventPlayersChanged      EventType = "players_changed"
	EventGroupsChanged       EventType = "groups_changed"
	EventPlayerStateChanged  EventType = "player_state_changed"
	EventNowPlayingChanged   EventType = "now_playing_changed"
	EventNowPlayingProgress  EventType = "now_playing_progress"
	EventPlayerVolumeChanged EventType = "player_volume_changed"
	EventGroupVolumeChanged  EventType = "group_volume_changed"
	EventQueueChanged        EventType = "queue_changed"
	EventRepeatModeChanged   EventType = "repeat_mode_changed"
	EventShuffleModeChanged  EventType = "shuffle_mode_changed"
	EventSourcesChanged      EventType = "sources_changed"
	EventUserChanged         EventType = "user_changed"
	EventPlayerAdded         EventType = "player_added"
	EventPlayerRemoved       EventType = "player_removed"
	EventSessionChanged      EventType = "session_changed"
	EventSystemError         EventType = "system_error"
)

// Event is one decoded change notification. Only the fields relevant to the
// Type are set; everything else stays at its zero value.
type Event struct {
	Type EventType

	PlayerID PlayerID
	GroupID  GroupID

	Level   int
	Muted   bool
	State   PlayState
	Repeat  RepeatMode
	Shuffle bool

	DurationMS int
	ElapsedMS  int

	SignedIn bool
	Username string

	SessionState SessionState
	Message      string
}

// decodeEvent maps a wire event message onto a typed Event. Unknown event
// names and events missing their required ids report ok=false; the read loop
// logs and drops those.
func decodeEvent(msg *Message) (Event, bool) {
	switch msg.EventName() {
	case "players_changed":
		return Event{Type: EventPlayersChanged}, true

	case "groups_changed":
		return Event{Type: EventGroupsChanged}, true

	case "sources_changed":
		return Event{Type: EventSourcesChanged}, true

	case "player_state_changed":
		pid, err := msg.IntAttr("pid")
		if err != nil {
			return Event{}, false
		}
		return Event{
			Type:     EventPlayerStateChanged,
			PlayerID: PlayerID(pid),
			State:    PlayState(msg.Attr("state")),
		}, true

	case "player_volume_changed":
		pid, err := msg.IntAttr("pid")
		if err != nil {
			return Event{}, false
		}
		level, err := msg.IntAttr("level")
		if err != nil {
			return Event{}, false
		}
		return Event{
			Type:     EventPlayerVolumeChanged,
			PlayerID: PlayerID(pid),
			Level:    level,
			Muted:    msg.Attr("mute") == "on",
		}, true

	case "group_volume_changed":
		gid, err := msg.IntAttr("gid")
		if err != nil {
			return Event{}, false
		}
		level, _ := msg.IntAttr("level")
		return Event{
			Type:    EventGroupVolumeChanged,
			GroupID: GroupID(gid),
			Level:   level,
			Muted:   msg.Attr("mute") == "on",
		}, true

	case "player_now_playing_changed":
		pid, err := msg.IntAttr("pid")
		if err != nil {
			return Event{}, false
		}
		return Event{Type: EventNowPlayingChanged, PlayerID: PlayerID(pid)}, true

	case "player_now_playing_progress":
		pid, err := msg.IntAttr("pid")
		if err != nil {
			return Event{}, false
		}
		elapsed, _ := msg.IntAttr("cur_pos")
		duration, _ := msg.IntAttr("duration")
		return Event{
			Type:       EventNowPlayingProgress,
			PlayerID:   PlayerID(pid),
			ElapsedMS:  elapsed,
			DurationMS: duration,
		}, true

	case "player_queue_changed":
		pid, err := msg.IntAttr("pid")
		if err != nil {
			return Event{}, false
		}
		return Event{Type: EventQueueChanged, PlayerID: PlayerID(pid)}, true

	case "repeat_mode_changed":
		pid, err := msg.IntAttr("pid")
		if err != nil {
			return Event{}, false
		}
		return Event{
			Type:     EventRepeatModeChanged,
			PlayerID: PlayerID(pid),
			Repeat:   RepeatMode(msg.Attr("repeat")),
		}, true

	case "shuffle_mode_changed":
		pid, err := msg.IntAttr("pid")
		if err != nil {
			return Event{}, false
		}
		return Event{
			Type:     EventShuffleModeChanged,
			PlayerID: PlayerID(pid),
			Shuffle:  msg.Attr("shuffle") == "on",
		}, true

	case "user_changed":
		_, signedOut := msg.Attributes["signed_out"]
		return Event{
			Type:     EventUserChanged,
			SignedIn: !signedOut,
			Username: msg.Attr("un"),
		}, true
	}

	return Event{}, false
}
