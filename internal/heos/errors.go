package heos

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandTimeout is returned when no matching response arrives within
	// the command timeout. The command may still have taken effect on the
	// device; callers may retry.
	ErrCommandTimeout = errors.New("heos: command timed out")

	// ErrDisconnected resolves every in-flight command when the transport
	// drops, and is returned for submissions while no connection is up.
	ErrDisconnected = errors.New("heos: not connected")

	// ErrBusy is returned when a command with the same correlation key is
	// already outstanding. The protocol cannot tell two identical pending
	// commands apart, so the second submit fails fast instead of queueing.
	ErrBusy = errors.New("heos: identical command already in flight")

	// ErrShutdown is returned for operations on a client after Shutdown.
	ErrShutdown = errors.New("heos: client is shut down")
)

// ConnectError wraps a failed connection attempt. The session manager keeps
// retrying these with backoff; callers see one only from Connect itself.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("heos: connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError means the HEOS account credentials were rejected. It is surfaced
// once and never auto-retried; the session stays up unauthenticated until new
// credentials are supplied.
type AuthError struct {
	EID  int
	Text string
}

func (e *AuthError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("heos: sign-in rejected (eid %d)", e.EID)
	}
	return fmt.Sprintf("heos: sign-in rejected (eid %d): %s", e.EID, e.Text)
}

// ProtocolError means a frame violated the wire grammar: not JSON, missing
// the envelope, or longer than the frame limit. The connection is dropped and
// the session reconnects; the process never dies over one.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "heos: protocol error: " + e.Reason
	}
	return fmt.Sprintf("heos: protocol error: %s: %v", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// CommandError means the device rejected a command (result "fail"). Not
// retried; the eid and text come straight off the wire.
type CommandError struct {
	Command string
	EID     int
	Text    string
}

func (e *CommandError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("heos: %s failed (eid %d)", e.Command, e.EID)
	}
	return fmt.Sprintf("heos: %s failed (eid %d): %s", e.Command, e.EID, e.Text)
}

// RefreshError wraps a failed registry refresh. The registry keeps its
// last-known state and another refresh is scheduled.
type RefreshError struct {
	Stage string
	Err   error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("heos: refresh %s: %v", e.Stage, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// InvalidGroupError rejects a grouping request before it reaches the wire:
// an unknown player id, or a leader that is already a non-leader member of
// another group.
type InvalidGroupError struct {
	Reason string
}

func (e *InvalidGroupError) Error() string {
	return "heos: invalid group: " + e.Reason
}
