package heos

import (
	"log"
	"sync"
	"time"
)

// pendingCommand is one command awaiting its response. resultCh is buffered
// so the read loop never blocks handing over an outcome, even when the caller
// already gave up.
type pendingCommand struct {
	path     string
	issuedAt time.Time
	resultCh chan commandOutcome
}

type commandOutcome struct {
	msg *Message
	err error
}

// correlator matches inbound responses to outstanding commands. The key is
// the command path the device echoes back; the protocol carries no request
// ids, so at most one command per path may be in flight and a second submit
// with the same path fails fast with ErrBusy.
type correlator struct {
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]*pendingCommand

	discarded int64
}

func newCorrelator(logger *log.Logger) *correlator {
	if logger == nil {
		logger = log.Default()
	}
	return &correlator{
		logger:  logger,
		pending: make(map[string]*pendingCommand),
	}
}

// add registers a pending command for path. Returns ErrBusy when one is
// already outstanding.
func (c *correlator) add(path string, now time.Time) (*pendingCommand, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[path]; exists {
		return nil, ErrBusy
	}

	pending := &pendingCommand{
		path:     path,
		issuedAt: now,
		resultCh: make(chan commandOutcome, 1),
	}
	c.pending[path] = pending
	return pending, nil
}

// remove drops a pending entry, but only if it is still the given one. The
// timeout path uses this so it cannot evict a successor that reused the key
// after the original already resolved.
func (c *correlator) remove(path string, pending *pendingCommand) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.pending[path]; ok && current == pending {
		delete(c.pending, path)
	}
}

// resolve offers a response message to the correlator. It reports true when
// the message was consumed by a pending command. Interim "command under
// process" acknowledgements are consumed but keep the entry alive; the real
// response follows under the same path. Responses matching nothing are left
// to the caller to log and drop.
func (c *correlator) resolve(msg *Message) bool {
	c.mu.Lock()
	pending, exists := c.pending[msg.Command]
	if exists && msg.UnderProcess() {
		c.mu.Unlock()
		return true
	}
	if exists {
		delete(c.pending, msg.Command)
	} else {
		c.discarded++
	}
	c.mu.Unlock()

	if !exists {
		return false
	}

	if msg.Succeeded() {
		pending.resultCh <- commandOutcome{msg: msg}
	} else {
		pending.resultCh <- commandOutcome{msg: msg, err: commandFailure(msg)}
	}
	return true
}

// fail resolves one pending command with an error, if it is still pending.
func (c *correlator) fail(path string, pending *pendingCommand, err error) {
	c.mu.Lock()
	current, ok := c.pending[path]
	if ok && current == pending {
		delete(c.pending, path)
	}
	c.mu.Unlock()

	if ok && current == pending {
		pending.resultCh <- commandOutcome{err: err}
	}
}

// failAll resolves every outstanding command with err. Called when the
// transport drops: in-flight callers all learn about the disconnect, not
// just the one whose response was due next.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	outstanding := c.pending
	c.pending = make(map[string]*pendingCommand)
	c.mu.Unlock()

	if len(outstanding) > 0 {
		c.logger.Printf("HEOS: resolving %d in-flight command(s): %v", len(outstanding), err)
	}
	for _, pending := range outstanding {
		pending.resultCh <- commandOutcome{err: err}
	}
}

// outstanding returns the number of commands awaiting responses.
func (c *correlator) outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// discardedCount returns how many responses matched nothing.
func (c *correlator) discardedCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discarded
}

// commandFailure classifies a result:"fail" response. Sign-in rejections
// become AuthError so the session manager knows not to retry them.
func commandFailure(msg *Message) error {
	cmdErr := msg.commandError()
	if msg.Command == cmdSignIn {
		return &AuthError{EID: cmdErr.EID, Text: cmdErr.Text}
	}
	return cmdErr
}
