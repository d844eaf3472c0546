package heos

import (
	"encoding/json"
)

// Wire shapes for JSON payloads. The device mixes numbers, quoted numbers and
// yes/no strings across commands, so these stay separate from the public types
// and convert explicitly.

type playerPayload struct {
	Name    string   `json:"name"`
	PID     PlayerID `json:"pid"`
	Model   string   `json:"model"`
	Version string   `json:"version"`
	IP      string   `json:"ip"`
	Network string   `json:"network"`
	LineOut int      `json:"lineout"`
	Serial  string   `json:"serial"`
}

func (p playerPayload) toPlayer() Player {
	return Player{
		ID:      p.PID,
		Name:    p.Name,
		Model:   p.Model,
		Version: p.Version,
		IP:      p.IP,
		Network: p.Network,
		LineOut: p.LineOut,
		Serial:  p.Serial,
		Online:  true,
		State:   PlayStateStop,
		Repeat:  RepeatOff,
	}
}

type groupMemberPayload struct {
	Name string   `json:"name"`
	PID  PlayerID `json:"pid"`
	Role string   `json:"role"`
}

type groupPayload struct {
	Name    string               `json:"name"`
	GID     GroupID              `json:"gid"`
	Players []groupMemberPayload `json:"players"`
}

func (g groupPayload) toGroup() Group {
	group := Group{
		ID:      g.GID,
		Name:    g.Name,
		Members: make([]GroupMember, 0, len(g.Players)),
	}
	for _, member := range g.Players {
		role := GroupRoleMember
		if member.Role == string(GroupRoleLeader) {
			role = GroupRoleLeader
			group.Leader = member.PID
		}
		group.Members = append(group.Members, GroupMember{
			ID:   member.PID,
			Name: member.Name,
			Role: role,
		})
	}
	return group
}

type nowPlayingPayload struct {
	Type     string   `json:"type"`
	Song     string   `json:"song"`
	Station  string   `json:"station"`
	Album    string   `json:"album"`
	Artist   string   `json:"artist"`
	ImageURL string   `json:"image_url"`
	AlbumID  string   `json:"album_id"`
	MID      string   `json:"mid"`
	QID      int      `json:"qid"`
	SID      SourceID `json:"sid"`
}

func (n nowPlayingPayload) toNowPlaying() NowPlaying {
	return NowPlaying{
		Type:     n.Type,
		Song:     n.Song,
		Station:  n.Station,
		Album:    n.Album,
		Artist:   n.Artist,
		ImageURL: n.ImageURL,
		AlbumID:  n.AlbumID,
		MediaID:  n.MID,
		QueueID:  n.QID,
		SourceID: n.SID,
	}
}

type sourcePayload struct {
	Name            string     `json:"name"`
	ImageURL        string     `json:"image_url"`
	Type            string     `json:"type"`
	SID             SourceID   `json:"sid"`
	Available       jsonString `json:"available"`
	ServiceUsername string     `json:"service_username"`
}

func (s sourcePayload) toSource() Source {
	return Source{
		ID:              s.SID,
		Name:            s.Name,
		Type:            s.Type,
		ImageURL:        s.ImageURL,
		Available:       string(s.Available) == "true",
		ServiceUsername: s.ServiceUsername,
	}
}

type browseEntryPayload struct {
	Container jsonString `json:"container"`
	Playable  jsonString `json:"playable"`
	Type      string     `json:"type"`
	Name      string     `json:"name"`
	ImageURL  string     `json:"image_url"`
	SID       SourceID   `json:"sid"`
	CID       string     `json:"cid"`
	MID       string     `json:"mid"`
}

func (b browseEntryPayload) toBrowseEntry() BrowseEntry {
	return BrowseEntry{
		Name:        b.Name,
		Type:        b.Type,
		ImageURL:    b.ImageURL,
		SourceID:    b.SID,
		ContainerID: b.CID,
		MediaID:     b.MID,
		Container:   string(b.Container) == "yes",
		Playable:    string(b.Playable) == "yes",
	}
}

type queueItemPayload struct {
	Song     string `json:"song"`
	Album    string `json:"album"`
	Artist   string `json:"artist"`
	ImageURL string `json:"image_url"`
	QID      int    `json:"qid"`
	MID      string `json:"mid"`
	AlbumID  string `json:"album_id"`
}

func (q queueItemPayload) toQueueItem() QueueItem {
	return QueueItem{
		QueueID:  q.QID,
		Song:     q.Song,
		Album:    q.Album,
		Artist:   q.Artist,
		ImageURL: q.ImageURL,
		MediaID:  q.MID,
		AlbumID:  q.AlbumID,
	}
}

// jsonString tolerates fields the device sends as either a string or a bare
// literal (older firmware quotes booleans, newer does not).
type jsonString string

func (s *jsonString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = jsonString(str)
		return nil
	}
	*s = jsonString(data)
	return nil
}

func decodePayload[T any](msg *Message, out *T) error {
	if len(msg.Payload) == 0 {
		return &ProtocolError{Reason: msg.Command + " response missing payload"}
	}
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		return &ProtocolError{Reason: "bad " + msg.Command + " payload", Err: err}
	}
	return nil
}
