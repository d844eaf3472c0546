package heos

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Command paths for every request this client issues. The device echoes the
// path back in the response envelope, which is what the correlator keys on.
const (
	cmdRegisterForEvents = "system/register_for_change_events"
	cmdCheckAccount      = "system/check_account"
	cmdSignIn            = "system/sign_in"
	cmdSignOut           = "system/sign_out"
	cmdHeartBeat         = "system/heart_beat"

	cmdGetPlayers       = "player/get_players"
	cmdGetPlayerInfo    = "player/get_player_info"
	cmdGetPlayState     = "player/get_play_state"
	cmdSetPlayState     = "player/set_play_state"
	cmdGetNowPlaying    = "player/get_now_playing_media"
	cmdGetVolume        = "player/get_volume"
	cmdSetVolume        = "player/set_volume"
	cmdVolumeUp         = "player/volume_up"
	cmdVolumeDown       = "player/volume_down"
	cmdGetMute          = "player/get_mute"
	cmdSetMute          = "player/set_mute"
	cmdToggleMute       = "player/toggle_mute"
	cmdGetPlayMode      = "player/get_play_mode"
	cmdSetPlayMode      = "player/set_play_mode"
	cmdPlayNext         = "player/play_next"
	cmdPlayPrevious     = "player/play_previous"
	cmdGetQueue         = "player/get_queue"
	cmdClearQueue       = "player/clear_queue"
	cmdPlayQueue        = "player/play_queue"

	cmdGetGroups       = "group/get_groups"
	cmdGetGroupInfo    = "group/get_group_info"
	cmdSetGroup        = "group/set_group"
	cmdGetGroupVolume  = "group/get_volume"
	cmdSetGroupVolume  = "group/set_volume"
	cmdGetGroupMute    = "group/get_mute"
	cmdSetGroupMute    = "group/set_mute"
	cmdToggleGroupMute = "group/toggle_mute"

	cmdGetMusicSources = "browse/get_music_sources"
	cmdBrowse          = "browse/browse"
	cmdPlayStream      = "browse/play_stream"
	cmdPlayPreset      = "browse/play_preset"
	cmdPlayInput       = "browse/play_input"
	cmdAddToQueue      = "browse/add_to_queue"
)

const eventPrefix = "event/"

// Message is one parsed inbound frame: either a command response or an
// unsolicited event. Events carry no result; responses always do.
type Message struct {
	Command    string
	Result     string
	RawMessage string
	Attributes map[string]string
	Payload    json.RawMessage
	Options    json.RawMessage
}

type envelope struct {
	Heos struct {
		Command string `json:"command"`
		Result  string `json:"result"`
		Message string `json:"message"`
	} `json:"heos"`
	Payload json.RawMessage `json:"payload"`
	Options json.RawMessage `json:"options"`
}

// parseMessage decodes one CRLF-framed JSON envelope.
func parseMessage(frame []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &ProtocolError{Reason: "malformed response envelope", Err: err}
	}
	if env.Heos.Command == "" {
		return nil, &ProtocolError{Reason: "response envelope missing command"}
	}

	return &Message{
		Command:    env.Heos.Command,
		Result:     env.Heos.Result,
		RawMessage: env.Heos.Message,
		Attributes: parseAttributes(env.Heos.Message),
		Payload:    env.Payload,
		Options:    env.Options,
	}, nil
}

// parseAttributes splits the envelope message field ("k=v&k2=v2") into a map.
// Values are URL-decoded when possible; devices are not consistent about
// encoding, so undecodable values are kept verbatim.
func parseAttributes(message string) map[string]string {
	attrs := make(map[string]string)
	if message == "" {
		return attrs
	}
	for _, pair := range strings.Split(message, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if key == "" {
			continue
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		attrs[key] = value
	}
	return attrs
}

// IsEvent reports whether the message is an unsolicited change event.
func (m *Message) IsEvent() bool {
	return strings.HasPrefix(m.Command, eventPrefix)
}

// EventName returns the event name without the "event/" prefix.
func (m *Message) EventName() string {
	return strings.TrimPrefix(m.Command, eventPrefix)
}

// Succeeded reports whether the device accepted the command.
func (m *Message) Succeeded() bool {
	return m.Result == "success"
}

// UnderProcess reports an interim acknowledgement: the device has accepted
// the command and will send the real response later under the same command
// path. The correlator keeps the pending entry alive when it sees one.
func (m *Message) UnderProcess() bool {
	_, ok := m.Attributes["command under process"]
	return ok
}

// Attr returns a message attribute, or "" when absent.
func (m *Message) Attr(key string) string {
	return m.Attributes[key]
}

// IntAttr returns a numeric message attribute.
func (m *Message) IntAttr(key string) (int, error) {
	raw, ok := m.Attributes[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("attribute %q is not numeric: %q", key, raw)
	}
	return n, nil
}

// commandError builds the device-rejection error for a failed response.
// Failure details ride in the eid and text message attributes.
func (m *Message) commandError() *CommandError {
	eid, _ := m.IntAttr("eid")
	return &CommandError{
		Command: m.Command,
		EID:     eid,
		Text:    m.Attr("text"),
	}
}

// encodeCommand renders an outbound request frame:
// heos://<path>?<urlencoded attributes>\r\n
// Attribute order follows url.Values.Encode (sorted), which the devices do
// not care about but keeps frames deterministic for tests.
func encodeCommand(path string, attrs url.Values) []byte {
	var b strings.Builder
	b.WriteString("heos://")
	b.WriteString(path)
	if len(attrs) > 0 {
		b.WriteByte('?')
		b.WriteString(attrs.Encode())
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

func pidAttrs(pid PlayerID) url.Values {
	return url.Values{"pid": {strconv.Itoa(int(pid))}}
}

func gidAttrs(gid GroupID) url.Values {
	return url.Values{"gid": {strconv.Itoa(int(gid))}}
}
