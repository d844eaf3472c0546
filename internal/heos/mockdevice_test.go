package heos

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockDevice is a scripted HEOS endpoint. It listens on a loopback port,
// answers commands from a handler table, and can push events or drop the
// connection mid-session. Every command it receives is logged for
// assertions.
type mockDevice struct {
	t *testing.T

	mu       sync.Mutex
	listener net.Listener
	addrStr  string
	conns    map[net.Conn]struct{}
	handlers map[string]deviceHandler
	silent   map[string]bool
	received []deviceCommand
	closed   bool
}

type deviceHandler func(attrs url.Values) []byte

type deviceCommand struct {
	Path  string
	Attrs url.Values
}

func newMockDevice(t *testing.T) *mockDevice {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	d := &mockDevice{
		t:        t,
		listener: listener,
		addrStr:  listener.Addr().String(),
		conns:    make(map[net.Conn]struct{}),
		handlers: make(map[string]deviceHandler),
		silent:   make(map[string]bool),
	}
	d.installDefaults()
	go d.acceptLoop(listener)
	t.Cleanup(d.close)
	return d
}

// installDefaults wires a plausible two-player system: no groups, a couple
// of music sources, nobody signed in. Commands without a handler are
// acknowledged with a bare success echoing the request attributes.
func (d *mockDevice) installDefaults() {
	d.handlers[cmdGetPlayers] = func(url.Values) []byte {
		return successFrame(cmdGetPlayers, "", []map[string]any{
			{"name": "Living Room", "pid": 1, "model": "HEOS 5", "version": "3.34.410", "ip": "192.168.1.41", "network": "wifi", "lineout": 0, "serial": "AUX0170111"},
			{"name": "Kitchen", "pid": 2, "model": "HEOS 1", "version": "3.34.410", "ip": "192.168.1.42", "network": "wifi", "lineout": 0, "serial": "AUX0170112"},
		})
	}
	d.handlers[cmdGetGroups] = func(url.Values) []byte {
		return successFrame(cmdGetGroups, "", nil)
	}
	d.handlers[cmdGetPlayState] = func(attrs url.Values) []byte {
		return successFrame(cmdGetPlayState, "pid="+attrs.Get("pid")+"&state=stop", nil)
	}
	d.handlers[cmdGetVolume] = func(attrs url.Values) []byte {
		return successFrame(cmdGetVolume, "pid="+attrs.Get("pid")+"&level=25", nil)
	}
	d.handlers[cmdGetMute] = func(attrs url.Values) []byte {
		return successFrame(cmdGetMute, "pid="+attrs.Get("pid")+"&state=off", nil)
	}
	d.handlers[cmdGetPlayMode] = func(attrs url.Values) []byte {
		return successFrame(cmdGetPlayMode, "pid="+attrs.Get("pid")+"&repeat=off&shuffle=off", nil)
	}
	d.handlers[cmdGetNowPlaying] = func(attrs url.Values) []byte {
		return successFrame(cmdGetNowPlaying, "pid="+attrs.Get("pid"), map[string]any{
			"type": "song", "song": "", "album": "", "artist": "", "image_url": "",
			"album_id": "", "mid": "", "qid": 1, "sid": 0,
		})
	}
	d.handlers[cmdGetGroupVolume] = func(attrs url.Values) []byte {
		return successFrame(cmdGetGroupVolume, "gid="+attrs.Get("gid")+"&level=20", nil)
	}
	d.handlers[cmdGetGroupMute] = func(attrs url.Values) []byte {
		return successFrame(cmdGetGroupMute, "gid="+attrs.Get("gid")+"&state=off", nil)
	}
	d.handlers[cmdGetMusicSources] = func(url.Values) []byte {
		return successFrame(cmdGetMusicSources, "", []map[string]any{
			{"name": "TuneIn", "image_url": "", "type": "music_service", "sid": 3},
			{"name": "Favorites", "image_url": "", "type": "heos_service", "sid": 1028, "available": "true"},
		})
	}
	d.handlers[cmdCheckAccount] = func(url.Values) []byte {
		return successFrame(cmdCheckAccount, "signed_out", nil)
	}
}

func (d *mockDevice) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			conn.Close()
			return
		}
		d.conns[conn] = struct{}{}
		d.mu.Unlock()
		go d.serve(conn)
	}
}

func (d *mockDevice) serve(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			d.mu.Lock()
			delete(d.conns, conn)
			d.mu.Unlock()
			conn.Close()
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		path, attrs := parseDeviceRequest(line)

		d.mu.Lock()
		d.received = append(d.received, deviceCommand{Path: path, Attrs: attrs})
		handler := d.handlers[path]
		quiet := d.silent[path]
		d.mu.Unlock()

		if quiet {
			continue
		}

		var frame []byte
		if handler != nil {
			frame = handler(attrs)
		} else {
			frame = successFrame(path, attrs.Encode(), nil)
		}
		if frame != nil {
			conn.Write(frame)
		}
	}
}

func parseDeviceRequest(line string) (string, url.Values) {
	line = strings.TrimPrefix(line, "heos://")
	path, query, _ := strings.Cut(line, "?")
	attrs, _ := url.ParseQuery(query)
	return path, attrs
}

func (d *mockDevice) addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addrStr
}

// handle overrides the response for one command path.
func (d *mockDevice) handle(path string, fn deviceHandler) {
	d.mu.Lock()
	d.handlers[path] = fn
	d.mu.Unlock()
}

// failWith makes one command path answer with a fail result.
func (d *mockDevice) failWith(path string, eid int, text string) {
	d.handle(path, func(attrs url.Values) []byte {
		return failFrame(path, eid, text)
	})
}

// silence swallows a command path entirely, never answering.
func (d *mockDevice) silence(path string) {
	d.mu.Lock()
	d.silent[path] = true
	d.mu.Unlock()
}

func (d *mockDevice) unsilence(path string) {
	d.mu.Lock()
	delete(d.silent, path)
	d.mu.Unlock()
}

// sendEvent pushes an unsolicited event frame to every live connection.
func (d *mockDevice) sendEvent(name, message string) {
	d.sendRaw(eventFrame(name, message))
}

func (d *mockDevice) sendRaw(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for conn := range d.conns {
		conn.Write(frame)
	}
}

// dropConnections severs every live connection, leaving the listener up so
// the client can reconnect.
func (d *mockDevice) dropConnections() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for conn := range d.conns {
		conn.Close()
		delete(d.conns, conn)
	}
}

// stop takes the whole device offline. restart brings it back on the same
// address.
func (d *mockDevice) stop() {
	d.mu.Lock()
	listener := d.listener
	d.listener = nil
	d.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	d.dropConnections()
}

func (d *mockDevice) restart() {
	d.mu.Lock()
	addr := d.addrStr
	d.mu.Unlock()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		d.t.Fatalf("relisten on %s: %v", addr, err)
	}

	d.mu.Lock()
	d.listener = listener
	d.mu.Unlock()
	go d.acceptLoop(listener)
}

func (d *mockDevice) close() {
	d.mu.Lock()
	d.closed = true
	listener := d.listener
	d.listener = nil
	conns := make([]net.Conn, 0, len(d.conns))
	for conn := range d.conns {
		conns = append(conns, conn)
	}
	d.conns = make(map[net.Conn]struct{})
	d.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, conn := range conns {
		conn.Close()
	}
}

// commands returns a snapshot of everything received so far.
func (d *mockDevice) commands() []deviceCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]deviceCommand, len(d.received))
	copy(out, d.received)
	return out
}

func (d *mockDevice) commandCount(path string) int {
	n := 0
	for _, cmd := range d.commands() {
		if cmd.Path == path {
			n++
		}
	}
	return n
}

func (d *mockDevice) lastCommand(path string) (deviceCommand, bool) {
	cmds := d.commands()
	for i := len(cmds) - 1; i >= 0; i-- {
		if cmds[i].Path == path {
			return cmds[i], true
		}
	}
	return deviceCommand{}, false
}

// ---- frame builders ----

func deviceFrame(command, result, message string, payload any) []byte {
	envelope := map[string]any{"command": command, "message": message}
	if result != "" {
		envelope["result"] = result
	}
	frame := map[string]any{"heos": envelope}
	if payload != nil {
		frame["payload"] = payload
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		panic(err)
	}
	return append(raw, '\r', '\n')
}

func successFrame(command, message string, payload any) []byte {
	return deviceFrame(command, "success", message, payload)
}

func failFrame(command string, eid int, text string) []byte {
	message := url.Values{}
	message.Set("eid", jsonNumber(eid))
	message.Set("text", text)
	return deviceFrame(command, "fail", message.Encode(), nil)
}

func eventFrame(name, message string) []byte {
	return deviceFrame(eventPrefix+name, "", message, nil)
}

func jsonNumber(n int) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}

// ---- client/test helpers ----

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newTestClient builds a client aimed at the device with timeouts tightened
// for tests. Heartbeats are pushed out of the way unless a test dials them
// in.
func newTestClient(t *testing.T, d *mockDevice, cfg Config) *Client {
	t.Helper()

	cfg.Endpoint = d.addr()
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 500 * time.Millisecond
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Hour
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = time.Second
	}

	c := NewClient(cfg, testLogger())
	t.Cleanup(c.Shutdown)
	return c
}

func connectTestClient(t *testing.T, d *mockDevice, cfg Config) *Client {
	t.Helper()

	c := newTestClient(t, d, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return c
}

func waitForState(t *testing.T, c *Client, want SessionState) {
	t.Helper()
	eventually(t, func() bool { return c.State() == want },
		"session never reached state "+string(want))
}

func waitForEvent(t *testing.T, sub *Subscription, want EventType) Event {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("event %s never arrived", want)
		}
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
