package heos

import (
	"context"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for Config fields left at zero.
const (
	DefaultCommandTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReconnectMaxDelay = 30 * time.Second
	DefaultDialTimeout       = 10 * time.Second
)

// Config carries the resolved endpoint and credentials for one device
// connection. The client never reads configuration storage; whoever
// constructs it has already decided where to connect and as whom.
type Config struct {
	// Endpoint is the device address, host or host:port. A bare host gets
	// the standard CLI port 1255.
	Endpoint string

	// Username and Password are optional HEOS account credentials. When set,
	// the session signs in after every (re)connect.
	Username string
	Password string

	CommandTimeout    time.Duration
	HeartbeatInterval time.Duration
	ReconnectMaxDelay time.Duration
	DialTimeout       time.Duration

	// SubscriptionBuffer overrides the per-subscriber event queue depth.
	SubscriptionBuffer int
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return cfg
}

// Client is the session handle: it owns the connection lifecycle, the
// registry, and the typed command surface. Construct with NewClient, start
// with Connect, stop with Shutdown.
type Client struct {
	cfg    Config
	logger *log.Logger

	registry   *registry
	correlator *correlator
	dispatcher *dispatcher

	mu          sync.RWMutex
	transport   *transport
	state       SessionState
	lastErr     error
	account     AccountStatus
	connectedAt time.Time
	credentials credentials
	started     bool
	reconnects  int64

	stopCh   chan struct{}
	stopOnce sync.Once
	runDone  chan struct{}

	firstOnce  sync.Once
	firstReady chan error

	refreshCh        chan struct{}
	sourcesRefreshCh chan struct{}
	mediaCh          chan PlayerID

	commandsSent    int64
	commandTimeouts int64

	now func() time.Time
}

type credentials struct {
	username string
	password string
}

// NewClient builds a client for one device endpoint. A nil logger falls back
// to the standard logger.
func NewClient(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	resolved := cfg.withDefaults()

	return &Client{
		cfg:        resolved,
		logger:     logger,
		registry:   newRegistry(),
		correlator: newCorrelator(logger),
		dispatcher: newDispatcher(logger, resolved.SubscriptionBuffer),
		state:      StateDisconnected,
		credentials: credentials{
			username: resolved.Username,
			password: resolved.Password,
		},
		stopCh:           make(chan struct{}),
		runDone:          make(chan struct{}),
		firstReady:       make(chan error, 1),
		refreshCh:        make(chan struct{}, 1),
		sourcesRefreshCh: make(chan struct{}, 1),
		mediaCh:          make(chan PlayerID, 16),
		now:              time.Now,
	}
}

// submit sends one command and waits for its correlated response. This is
// the only path commands take to the wire.
func (c *Client) submit(ctx context.Context, path string, attrs url.Values) (*Message, error) {
	c.mu.RLock()
	t := c.transport
	c.mu.RUnlock()
	if t == nil {
		if c.isStopped() {
			return nil, ErrShutdown
		}
		return nil, ErrDisconnected
	}

	pending, err := c.correlator.add(path, c.now())
	if err != nil {
		return nil, err
	}

	if err := t.send(encodeCommand(path, attrs)); err != nil {
		c.correlator.fail(path, pending, ErrDisconnected)
		return nil, ErrDisconnected
	}
	atomic.AddInt64(&c.commandsSent, 1)

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case outcome := <-pending.resultCh:
		return outcome.msg, outcome.err
	case <-timer.C:
		c.correlator.remove(path, pending)
		atomic.AddInt64(&c.commandTimeouts, 1)
		c.logger.Printf("HEOS: %s timed out after %s", path, c.cfg.CommandTimeout)
		return nil, ErrCommandTimeout
	case <-ctx.Done():
		c.correlator.remove(path, pending)
		return nil, ctx.Err()
	}
}

// Subscribe registers for the given event types; no types means all. The
// subscription keeps receiving across reconnects until closed.
func (c *Client) Subscribe(types ...EventType) *Subscription {
	return c.dispatcher.subscribe(types...)
}

// Players returns a snapshot of all known players, ordered by id.
func (c *Client) Players() []Player {
	return c.registry.playerList()
}

// Player returns a snapshot of one player.
func (c *Client) Player(id PlayerID) (Player, bool) {
	return c.registry.player(id)
}

// Groups returns a snapshot of all known groups, ordered by id.
func (c *Client) Groups() []Group {
	return c.registry.groupList()
}

// Group returns a snapshot of one group.
func (c *Client) Group(id GroupID) (Group, bool) {
	return c.registry.group(id)
}

// Sources returns the last fetched source enumeration.
func (c *Client) Sources() []Source {
	return c.registry.sourceList()
}

// Account returns the signed-in account state.
func (c *Client) Account() AccountStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// SessionStatus is a point-in-time view of the session and its counters.
type SessionStatus struct {
	State       SessionState
	Endpoint    string
	ConnectedAt time.Time
	LastError   string
	Account     AccountStatus
	Reconnects  int64

	Players     int
	Groups      int
	Sources     int
	LastRefresh time.Time

	PendingCommands    int
	CommandsSent       int64
	CommandTimeouts    int64
	DiscardedResponses int64
	StaleEventApplies  int64

	EventsPublished int64
	EventsDropped   int64
	Subscribers     int
}

// Status reports the current session state and counters.
func (c *Client) Status() SessionStatus {
	c.mu.RLock()
	status := SessionStatus{
		State:       c.state,
		Endpoint:    c.cfg.Endpoint,
		ConnectedAt: c.connectedAt,
		Account:     c.account,
		Reconnects:  c.reconnects,
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	c.mu.RUnlock()

	status.Players, status.Groups, status.Sources = c.registry.counts()
	status.LastRefresh = c.registry.lastRefreshAt()
	status.PendingCommands = c.correlator.outstanding()
	status.CommandsSent = atomic.LoadInt64(&c.commandsSent)
	status.CommandTimeouts = atomic.LoadInt64(&c.commandTimeouts)
	status.DiscardedResponses = c.correlator.discardedCount()
	status.StaleEventApplies = c.registry.staleApplyCount()
	status.EventsPublished, status.EventsDropped, status.Subscribers = c.dispatcher.stats()
	return status
}

// State returns the current session state.
func (c *Client) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) isStopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Client) currentCredentials() credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credentials
}

func (c *Client) setAccount(status AccountStatus) {
	c.mu.Lock()
	c.account = status
	c.mu.Unlock()
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// requestRefresh asks the session loop for a full refresh. Coalesces: one
// queued request is enough, extra asks are dropped.
func (c *Client) requestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

func (c *Client) requestSourcesRefresh() {
	select {
	case c.sourcesRefreshCh <- struct{}{}:
	default:
	}
}

func (c *Client) requestMediaFetch(pid PlayerID) {
	select {
	case c.mediaCh <- pid:
	default:
		// Fetch queue full; a full refresh picks the media up instead.
		c.requestRefresh()
	}
}
