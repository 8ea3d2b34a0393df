// Package transport implements the Transport Gateway (spec §4.1): the only
// component that touches the chat transport, owning session lifecycle,
// inbound normalization, and outbound delivery policy.
package transport

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// ConnState is the connection lifecycle state (spec §4.1).
type ConnState string

const (
	StateDisconnected       ConnState = "disconnected"
	StateQRIssued           ConnState = "qr_issued"
	StateConnecting         ConnState = "connecting"
	StateConnected          ConnState = "connected"
	StateReconnectScheduled ConnState = "reconnect_scheduled"
	StateTerminated         ConnState = "terminated"
)

// CloseReason is the transport's disconnect-reason code (spec §4.1 reason table).
type CloseReason int

const (
	ReasonLoggedOut401        CloseReason = 401
	ReasonForbidden403        CloseReason = 403
	ReasonRestartRequired515  CloseReason = 515
	ReasonServiceUnavailable503 CloseReason = 503
	ReasonOther               CloseReason = 0
)

// ShouldRetry applies the reason table of spec §4.1 to decide whether a
// reconnect should be attempted after this close reason, given whether the
// connection has ever successfully authenticated before.
func ShouldRetry(reason CloseReason, hasEverConnected bool) bool {
	switch reason {
	case ReasonLoggedOut401:
		// Terminate only once we know pairing succeeded at least once;
		// otherwise this is initial-pairing flakiness worth retrying.
		return !hasEverConnected
	case ReasonForbidden403:
		return false
	case ReasonRestartRequired515:
		return true
	case ReasonServiceUnavailable503:
		return true
	default:
		return true
	}
}

const (
	maxReconnectAttempts = 10
	baseReconnectDelay   = time.Second
	capReconnectDelay    = 30 * time.Second
)

// ReconnectDelay returns the k-th reconnect delay with ±25% jitter, per
// invariant §8.8: delay ∈ [0.75·min(base·2^k, cap), 1.25·min(base·2^k, cap)].
// jitter must be in [-1, 1); callers pass a real random source in production
// and a fixed value in tests to assert the bound deterministically.
func ReconnectDelay(attempt int, jitter float64) time.Duration {
	base := baseReconnectDelay * time.Duration(1<<uint(attempt))
	if base > capReconnectDelay {
		base = capReconnectDelay
	}
	factor := 1.0 + 0.25*jitter
	return time.Duration(float64(base) * factor)
}

// Handle is the single live reference to the underlying transport connection.
// It is obtained through Connection.Handle(). This is the enforcement
// mechanism for spec §9's socket re-binding invariant: after the socket is
// replaced, the send path always asks for the current handle rather than
// caching one. The bridge's receive loop reads from the socket it dialed for
// the current connection and ends when that socket closes.
type Handle interface {
	Send(ctx context.Context, destination string, body []byte) error
	Close() error
}

// Connection owns the connection state machine and the single current Handle.
// Exactly one Connection exists per process (the transport session is
// single-holder, spec §5).
type Connection struct {
	mu               sync.RWMutex
	state            ConnState
	handle           Handle
	hasEverConnected bool
	attempts         int

	onStateChange func(ConnState)
}

func NewConnection(onStateChange func(ConnState)) *Connection {
	return &Connection{state: StateDisconnected, onStateChange: onStateChange}
}

func (c *Connection) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}

// Handle returns the current live connection handle. This is the ONLY
// accessor: send and receive code paths must call this fresh on every use
// rather than storing the return value across a reconnect boundary — that
// discipline is what makes the socket re-binding invariant hold.
func (c *Connection) Handle() (Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.handle == nil {
		return nil, false
	}
	return c.handle, true
}

// OnQR transitions disconnected -> qr_issued.
func (c *Connection) OnQR() {
	if c.State() == StateTerminated {
		return
	}
	c.setState(StateQRIssued)
}

// OnConnecting transitions qr_issued -> connecting.
func (c *Connection) OnConnecting() {
	if c.State() == StateTerminated {
		return
	}
	c.setState(StateConnecting)
}

// OnOpen rebinds the handle and transitions into connected. This is the
// single, synchronous re-bind point required by spec §9 — it runs before any
// queued outbound work resumes, because resumption is driven by the
// StateConnected notification this method emits via onStateChange.
func (c *Connection) OnOpen(h Handle) {
	c.mu.Lock()
	c.handle = h
	first := !c.hasEverConnected
	c.hasEverConnected = true
	c.attempts = 0
	c.state = StateConnected
	c.mu.Unlock()

	if first {
		slog.Info("transport: first successful authentication")
	}
	slog.Info("transport: connected, handle re-bound")
	if c.onStateChange != nil {
		c.onStateChange(StateConnected)
	}
}

// OnClose applies the reason table and either schedules a reconnect or
// terminates. Returns the delay to wait before the next reconnect attempt,
// and whether a reconnect should actually be attempted.
func (c *Connection) OnClose(reason CloseReason) (delay time.Duration, retry bool) {
	c.mu.Lock()
	hasEverConnected := c.hasEverConnected
	c.handle = nil
	c.mu.Unlock()

	if !ShouldRetry(reason, hasEverConnected) {
		c.setState(StateTerminated)
		slog.Error("transport: terminating reconnect loop", "reason", reason)
		return 0, false
	}

	c.mu.Lock()
	if c.attempts >= maxReconnectAttempts {
		c.mu.Unlock()
		c.setState(StateTerminated)
		slog.Error("transport: reconnect attempts exhausted")
		return 0, false
	}
	attempt := c.attempts
	c.attempts++
	c.mu.Unlock()

	c.setState(StateReconnectScheduled)
	d := ReconnectDelay(attempt, 2*rand.Float64()-1)
	return d, true
}

// Terminate forces the terminal state (e.g. on graceful shutdown).
func (c *Connection) Terminate() {
	c.mu.Lock()
	c.handle = nil
	c.mu.Unlock()
	c.setState(StateTerminated)
}

// HasEverConnected reports whether any prior authentication succeeded.
func (c *Connection) HasEverConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasEverConnected
}
