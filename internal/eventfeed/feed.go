package eventfeed

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strefethen/heos-hub-go/internal/heos"
)

const (
	// writeTimeout bounds a single frame write to one client.
	writeTimeout = 10 * time.Second
	// pingInterval keeps idle connections alive through proxies.
	pingInterval = 30 * time.Second
	// sendBuffer is the per-client frame queue depth.
	sendBuffer = 64
)

// EventSource is the slice of the HEOS client the feed needs.
type EventSource interface {
	Subscribe(types ...heos.EventType) *heos.Subscription
}

// Feed fans HEOS change events out to WebSocket clients. One subscription
// feeds all clients; a slow client loses frames, never stalls the rest.
type Feed struct {
	logger *log.Logger
	source EventSource

	mu      sync.Mutex
	clients map[*client]struct{}
	sub     *heos.Subscription
	started bool

	wg sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewFeed creates an event feed.
func NewFeed(source EventSource, logger *log.Logger) *Feed {
	if logger == nil {
		logger = log.Default()
	}
	return &Feed{
		logger:  logger,
		source:  source,
		clients: make(map[*client]struct{}),
	}
}

// Start subscribes to the HEOS event stream and begins fanning out.
func (f *Feed) Start() {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.sub = f.source.Subscribe()
	f.mu.Unlock()

	f.wg.Add(1)
	go f.fanout()
}

// Stop closes the subscription and disconnects every client.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	sub := f.sub
	f.sub = nil
	clients := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.clients = make(map[*client]struct{})
	f.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	for _, c := range clients {
		close(c.send)
	}
	f.wg.Wait()
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// fanout forwards subscription events to all clients until the
// subscription channel closes.
func (f *Feed) fanout() {
	defer f.wg.Done()

	for ev := range f.sub.C() {
		frame, err := json.Marshal(formatEvent(ev))
		if err != nil {
			f.logger.Printf("event feed: encode %s event: %v", ev.Type, err)
			continue
		}
		f.broadcast(frame)
	}
}

func (f *Feed) broadcast(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- frame:
		default:
			// Client queue full; drop the frame for this client.
		}
	}
}

// handleConn registers an upgraded connection and starts its pumps.
func (f *Feed) handleConn(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	count := len(f.clients)
	f.mu.Unlock()

	f.logger.Printf("event feed: client connected (%d total)", count)

	go f.writePump(c)
	go f.readPump(c)
}

// remove unregisters a client. The send channel closes exactly once, when
// the client leaves the map.
func (f *Feed) remove(c *client) {
	f.mu.Lock()
	_, present := f.clients[c]
	if present {
		delete(f.clients, c)
	}
	count := len(f.clients)
	f.mu.Unlock()

	if present {
		close(c.send)
		f.logger.Printf("event feed: client disconnected (%d total)", count)
	}
}

// writePump writes queued frames and periodic pings until the client's send
// channel closes or a write fails.
func (f *Feed) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				deadline := time.Now().Add(writeTimeout)
				c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				c.conn.Close()
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				f.remove(c)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.remove(c)
				c.conn.Close()
				return
			}
		}
	}
}

// readPump drains client messages until the connection drops. The feed is
// one-way; inbound frames are discarded.
func (f *Feed) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			f.remove(c)
			c.conn.Close()
			return
		}
	}
}

// formatEvent builds the wire frame for one event. Only the fields relevant
// to the event type are included.
func formatEvent(ev heos.Event) map[string]any {
	frame := map[string]any{
		"object": "event",
		"type":   string(ev.Type),
	}

	switch ev.Type {
	case heos.EventPlayerStateChanged:
		frame["player_id"] = int(ev.PlayerID)
		frame["state"] = string(ev.State)
	case heos.EventPlayerVolumeChanged:
		frame["player_id"] = int(ev.PlayerID)
		frame["level"] = ev.Level
		frame["muted"] = ev.Muted
	case heos.EventGroupVolumeChanged:
		frame["group_id"] = int(ev.GroupID)
		frame["level"] = ev.Level
		frame["muted"] = ev.Muted
	case heos.EventNowPlayingChanged, heos.EventQueueChanged, heos.EventPlayerAdded, heos.EventPlayerRemoved:
		frame["player_id"] = int(ev.PlayerID)
	case heos.EventNowPlayingProgress:
		frame["player_id"] = int(ev.PlayerID)
		frame["elapsed_ms"] = ev.ElapsedMS
		frame["duration_ms"] = ev.DurationMS
	case heos.EventRepeatModeChanged:
		frame["player_id"] = int(ev.PlayerID)
		frame["repeat"] = string(ev.Repeat)
	case heos.EventShuffleModeChanged:
		frame["player_id"] = int(ev.PlayerID)
		frame["shuffle"] = ev.Shuffle
	case heos.EventUserChanged:
		frame["signed_in"] = ev.SignedIn
		if ev.Username != "" {
			frame["username"] = ev.Username
		}
	case heos.EventSessionChanged:
		frame["state"] = string(ev.SessionState)
	case heos.EventSystemError:
		frame["message"] = ev.Message
	}

	return frame
}
