package eventfeed

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/heos"
)

// ==========================================================================
// Test Setup Helpers
// ==========================================================================

func newTestFeed() *Feed {
	return NewFeed(nil, log.New(io.Discard, "", 0))
}

// markStarted flips the feed to running without a HEOS subscription so
// client handling can be exercised in isolation.
func markStarted(f *Feed) {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
}

func dialTestFeed(t *testing.T, feed *Feed) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(websocketHandler(feed))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, feed *Feed, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for feed.ClientCount() != want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, want, feed.ClientCount())
}

// ==========================================================================
// Tests
// ==========================================================================

func TestNewFeed(t *testing.T) {
	feed := newTestFeed()
	assert.Equal(t, 0, feed.ClientCount())
}

func TestFeed_StopBeforeStart(t *testing.T) {
	feed := newTestFeed()
	feed.Stop()
	feed.Stop()
}

func TestFeed_RejectsClientBeforeStart(t *testing.T) {
	feed := newTestFeed()
	conn := dialTestFeed(t, feed)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "connection must close when the feed is not running")
	assert.Equal(t, 0, feed.ClientCount())
}

func TestFeed_BroadcastReachesClient(t *testing.T) {
	feed := newTestFeed()
	markStarted(feed)
	defer feed.Stop()

	conn := dialTestFeed(t, feed)
	waitForClients(t, feed, 1)

	frame, err := json.Marshal(formatEvent(heos.Event{Type: heos.EventPlayersChanged}))
	require.NoError(t, err)
	feed.broadcast(frame)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "event", decoded["object"])
	assert.Equal(t, "players_changed", decoded["type"])
}

func TestFeed_StopDisconnectsClients(t *testing.T) {
	feed := newTestFeed()
	markStarted(feed)

	conn := dialTestFeed(t, feed)
	waitForClients(t, feed, 1)

	feed.Stop()
	assert.Equal(t, 0, feed.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestFormatEvent_PlayerState(t *testing.T) {
	frame := formatEvent(heos.Event{
		Type:     heos.EventPlayerStateChanged,
		PlayerID: 7,
		State:    heos.PlayStatePlay,
	})

	assert.Equal(t, "event", frame["object"])
	assert.Equal(t, "player_state_changed", frame["type"])
	assert.Equal(t, 7, frame["player_id"])
	assert.Equal(t, "play", frame["state"])
}

func TestFormatEvent_PlayerVolume(t *testing.T) {
	frame := formatEvent(heos.Event{
		Type:     heos.EventPlayerVolumeChanged,
		PlayerID: 7,
		Level:    35,
		Muted:    true,
	})

	assert.Equal(t, 7, frame["player_id"])
	assert.Equal(t, 35, frame["level"])
	assert.Equal(t, true, frame["muted"])
	assert.NotContains(t, frame, "group_id")
}

func TestFormatEvent_GroupVolume(t *testing.T) {
	frame := formatEvent(heos.Event{
		Type:    heos.EventGroupVolumeChanged,
		GroupID: 100,
		Level:   20,
	})

	assert.Equal(t, 100, frame["group_id"])
	assert.Equal(t, 20, frame["level"])
	assert.Equal(t, false, frame["muted"])
	assert.NotContains(t, frame, "player_id")
}

func TestFormatEvent_PlayerScoped(t *testing.T) {
	for _, eventType := range []heos.EventType{
		heos.EventNowPlayingChanged,
		heos.EventQueueChanged,
		heos.EventPlayerAdded,
		heos.EventPlayerRemoved,
	} {
		t.Run(string(eventType), func(t *testing.T) {
			frame := formatEvent(heos.Event{Type: eventType, PlayerID: 3})
			assert.Equal(t, 3, frame["player_id"])
			assert.NotContains(t, frame, "state")
			assert.NotContains(t, frame, "level")
		})
	}
}

func TestFormatEvent_Progress(t *testing.T) {
	frame := formatEvent(heos.Event{
		Type:       heos.EventNowPlayingProgress,
		PlayerID:   3,
		ElapsedMS:  61000,
		DurationMS: 240000,
	})

	assert.Equal(t, 61000, frame["elapsed_ms"])
	assert.Equal(t, 240000, frame["duration_ms"])
}

func TestFormatEvent_RepeatAndShuffle(t *testing.T) {
	repeat := formatEvent(heos.Event{
		Type:     heos.EventRepeatModeChanged,
		PlayerID: 3,
		Repeat:   heos.RepeatAll,
	})
	assert.Equal(t, "on_all", repeat["repeat"])

	shuffle := formatEvent(heos.Event{
		Type:     heos.EventShuffleModeChanged,
		PlayerID: 3,
		Shuffle:  true,
	})
	assert.Equal(t, true, shuffle["shuffle"])
}

func TestFormatEvent_UserChanged(t *testing.T) {
	signedIn := formatEvent(heos.Event{
		Type:     heos.EventUserChanged,
		SignedIn: true,
		Username: "listener@example.com",
	})
	assert.Equal(t, true, signedIn["signed_in"])
	assert.Equal(t, "listener@example.com", signedIn["username"])

	signedOut := formatEvent(heos.Event{Type: heos.EventUserChanged})
	assert.Equal(t, false, signedOut["signed_in"])
	assert.NotContains(t, signedOut, "username")
}

func TestFormatEvent_SessionChanged(t *testing.T) {
	frame := formatEvent(heos.Event{
		Type:         heos.EventSessionChanged,
		SessionState: heos.StateReady,
	})
	assert.Equal(t, "ready", frame["state"])
}

func TestFormatEvent_SystemError(t *testing.T) {
	frame := formatEvent(heos.Event{
		Type:    heos.EventSystemError,
		Message: "command timed out",
	})
	assert.Equal(t, "command timed out", frame["message"])
}

func TestFormatEvent_TopologyEventsCarryNoExtras(t *testing.T) {
	frame := formatEvent(heos.Event{Type: heos.EventPlayersChanged, PlayerID: 9})
	assert.Len(t, frame, 2)
	assert.Equal(t, "players_changed", frame["type"])
}
