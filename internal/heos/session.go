package heos

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// SessionState is the connection lifecycle state.
type SessionState string

const (
	StateDisconnected   SessionState = "disconnected"
	StateConnecting     SessionState = "connecting"
	StateAuthenticating SessionState = "authenticating"
	StateReady          SessionState = "ready"
	StateDegraded       SessionState = "degraded"
)

// heartbeatMissLimit forces a reconnect after this many consecutive
// heartbeat failures.
const heartbeatMissLimit = 2

// refreshRetryDelay spaces out retries after a failed registry refresh.
const refreshRetryDelay = 5 * time.Second

var errHeartbeatLost = errors.New("heos: heartbeat failures exceeded limit")

// Connect starts the session and blocks until the first attempt settles:
// nil once the session is ready, an AuthError when the device came up but
// rejected the credentials, or the context error when ctx expires first.
// Connection failures are not terminal; the reconnect loop keeps trying in
// the background until Shutdown either way.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("heos: client already started")
	}
	c.started = true
	c.mu.Unlock()

	go c.run()

	select {
	case err := <-c.firstReady:
		return err
	case <-c.stopCh:
		return ErrShutdown
	case <-ctx.Done():
		c.mu.RLock()
		lastErr := c.lastErr
		c.mu.RUnlock()
		if lastErr != nil {
			return fmt.Errorf("%w (last attempt: %w)", ctx.Err(), lastErr)
		}
		return ctx.Err()
	}
}

// Shutdown stops the session for good: the reconnect loop ends, in-flight
// commands resolve with ErrDisconnected, and every subscription is closed.
// Safe to call more than once.
func (c *Client) Shutdown() {
	c.stopOnce.Do(func() {
		close(c.stopCh)

		c.mu.Lock()
		t := c.transport
		started := c.started
		c.mu.Unlock()

		if t != nil {
			t.close()
		}
		if started {
			<-c.runDone
		}

		c.correlator.failAll(ErrDisconnected)
		c.setState(StateDisconnected, nil)
		c.dispatcher.closeAll()
		c.logger.Printf("HEOS: client shut down")
	})
}

// run is the supervisor goroutine: connect, hold the connection until it
// drops, reconnect with backoff, forever, until Shutdown.
func (c *Client) run() {
	defer close(c.runDone)

	backoff := time.Second
	for {
		if c.isStopped() {
			return
		}

		readerDone := make(chan error, 1)
		t, err := c.establish(readerDone)
		if err != nil {
			c.recordError(err)
			c.setState(StateDisconnected, err)
			c.logger.Printf("HEOS: connect to %s failed: %v (retrying in %s)", c.cfg.Endpoint, err, backoff)
			if !c.sleep(backoff) {
				return
			}
			backoff *= 2
			if backoff > c.cfg.ReconnectMaxDelay {
				backoff = c.cfg.ReconnectMaxDelay
			}
			continue
		}
		backoff = time.Second

		err = c.supervise(t, readerDone)
		c.teardown(t)

		if c.isStopped() {
			return
		}

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		c.recordError(err)
		c.setState(StateDegraded, err)
		c.logger.Printf("HEOS: connection to %s lost: %v (reconnecting)", c.cfg.Endpoint, err)
	}
}

// establish brings one connection all the way to ready: dial, start the read
// loop, register for change events, sign in when credentials are present,
// then prime the registry. Auth rejection does not fail the connection; the
// session stays up unauthenticated and the error is surfaced once.
func (c *Client) establish(readerDone chan error) (*transport, error) {
	c.setState(StateConnecting, nil)

	t, err := dialTransport(context.Background(), c.cfg.Endpoint, c.cfg.DialTimeout)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.transport = t
	c.mu.Unlock()

	go c.readLoop(t, readerDone)

	ctx := context.Background()
	if _, err := c.submit(ctx, cmdRegisterForEvents, url.Values{"enable": {"on"}}); err != nil {
		c.teardown(t)
		return nil, &ConnectError{Endpoint: t.remoteAddr(), Err: fmt.Errorf("register for change events: %w", err)}
	}

	c.setState(StateAuthenticating, nil)
	var authErr error
	creds := c.currentCredentials()
	if creds.username != "" {
		authErr = c.signIn(ctx, creds)
		if authErr != nil {
			var auth *AuthError
			if !errors.As(authErr, &auth) {
				// Transport-level failure during sign-in, not a rejection.
				c.teardown(t)
				return nil, &ConnectError{Endpoint: t.remoteAddr(), Err: authErr}
			}
			c.recordError(authErr)
			c.setAccount(AccountStatus{})
			c.dispatcher.publish(Event{Type: EventSystemError, Message: authErr.Error()})
			c.logger.Printf("HEOS: %v (continuing without account)", authErr)
		}
	} else {
		c.probeAccount(ctx)
	}

	c.mu.Lock()
	c.connectedAt = c.now()
	c.mu.Unlock()
	c.setState(StateReady, nil)
	c.logger.Printf("HEOS: connected to %s", t.remoteAddr())

	// Event-derived state from before a disconnect is not trusted; every
	// entry into ready starts from a full enumeration.
	if err := c.doRefresh(ctx); err != nil {
		c.logger.Printf("HEOS: initial refresh failed: %v", err)
		c.requestRefresh()
	}
	if err := c.doSourcesRefresh(ctx); err != nil {
		c.logger.Printf("HEOS: source refresh failed: %v", err)
	}

	c.reportFirstConnect(authErr)
	return t, nil
}

// reportFirstConnect resolves the Connect caller exactly once.
func (c *Client) reportFirstConnect(err error) {
	c.firstOnce.Do(func() {
		c.firstReady <- err
	})
}

// signIn authenticates the HEOS account on the current connection.
func (c *Client) signIn(ctx context.Context, creds credentials) error {
	attrs := url.Values{"un": {creds.username}, "pw": {creds.password}}
	if _, err := c.submit(ctx, cmdSignIn, attrs); err != nil {
		return err
	}
	c.setAccount(AccountStatus{SignedIn: true, Username: creds.username})
	c.logger.Printf("HEOS: signed in as %s", creds.username)
	return nil
}

// probeAccount asks the device which account it is attached to. Best effort;
// some setups run without one.
func (c *Client) probeAccount(ctx context.Context) {
	msg, err := c.submit(ctx, cmdCheckAccount, nil)
	if err != nil {
		return
	}
	if username := msg.Attr("un"); username != "" {
		c.setAccount(AccountStatus{SignedIn: true, Username: username})
	} else {
		c.setAccount(AccountStatus{})
	}
}

// supervise owns a ready connection: heartbeats, refresh requests and media
// fetches all run here, serialized, so the registry sees one writer besides
// the read loop. Returns when the connection drops or the client stops.
func (c *Client) supervise(t *transport, readerDone <-chan error) error {
	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := context.Background()
	misses := 0
	var retryRefresh <-chan time.Time

	for {
		select {
		case <-c.stopCh:
			return nil

		case err := <-readerDone:
			if err == nil {
				err = ErrDisconnected
			}
			return err

		case <-heartbeat.C:
			if _, err := c.submit(ctx, cmdHeartBeat, nil); err != nil {
				misses++
				c.logger.Printf("HEOS: heartbeat failed (%d/%d): %v", misses, heartbeatMissLimit, err)
				if misses >= heartbeatMissLimit {
					c.dispatcher.publish(Event{Type: EventSystemError, Message: errHeartbeatLost.Error()})
					return errHeartbeatLost
				}
			} else {
				misses = 0
			}

		case <-c.refreshCh:
			if err := c.doRefresh(ctx); err != nil {
				c.logger.Printf("HEOS: refresh failed: %v (retrying in %s)", err, refreshRetryDelay)
				retryRefresh = time.After(refreshRetryDelay)
			}

		case <-c.sourcesRefreshCh:
			if err := c.doSourcesRefresh(ctx); err != nil {
				c.logger.Printf("HEOS: source refresh failed: %v", err)
			}

		case pid := <-c.mediaCh:
			c.fetchNowPlaying(ctx, pid)

		case <-retryRefresh:
			retryRefresh = nil
			c.requestRefresh()
		}
	}
}

// readLoop drains the transport and routes every frame. It owns inbound
// traffic exclusively and must never block on a subscriber or a command
// round trip. Exits once the connection errors, reporting why.
func (c *Client) readLoop(t *transport, done chan<- error) {
	for {
		frame, err := t.readFrame()
		if err != nil {
			var protoErr *ProtocolError
			if errors.As(err, &protoErr) {
				c.logger.Printf("HEOS: dropping connection: %v", err)
				t.close()
			}
			done <- err
			return
		}
		if len(frame) == 0 {
			continue
		}

		msg, err := parseMessage(frame)
		if err != nil {
			c.logger.Printf("HEOS: dropping connection: %v", err)
			t.close()
			done <- err
			return
		}
		c.route(msg)
	}
}

// route hands a message to the correlator first; whatever does not belong to
// a pending command is either a typed event or noise.
func (c *Client) route(msg *Message) {
	if !msg.IsEvent() {
		if c.correlator.resolve(msg) {
			return
		}
		c.logger.Printf("HEOS: discarding unmatched response %s", msg.Command)
		return
	}

	ev, ok := decodeEvent(msg)
	if !ok {
		c.logger.Printf("HEOS: ignoring unknown event %s", msg.Command)
		return
	}

	if ev.Type == EventUserChanged {
		c.setAccount(AccountStatus{SignedIn: ev.SignedIn, Username: ev.Username})
	}

	// Registry first, then subscribers: anyone reacting to the event reads
	// a model that already reflects it.
	outcome := c.registry.apply(ev)
	c.dispatcher.publish(ev)

	if outcome.refreshAll {
		c.requestRefresh()
	}
	if outcome.refreshSources {
		c.requestSourcesRefresh()
	}
	if outcome.fetchMedia {
		c.requestMediaFetch(ev.PlayerID)
	}
}

// teardown closes a connection and resolves whatever was waiting on it.
func (c *Client) teardown(t *transport) {
	c.mu.Lock()
	if c.transport == t {
		c.transport = nil
		c.connectedAt = time.Time{}
	}
	c.mu.Unlock()

	t.close()
	c.correlator.failAll(ErrDisconnected)
}

// setState records a transition and announces it to subscribers.
func (c *Client) setState(state SessionState, cause error) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	if cause != nil {
		c.lastErr = cause
	}
	c.mu.Unlock()

	ev := Event{Type: EventSessionChanged, SessionState: state}
	if cause != nil {
		ev.Message = cause.Error()
	}
	c.dispatcher.publish(ev)
}

// sleep waits for d or for shutdown, reporting false when shutting down.
func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.stopCh:
		return false
	}
}
