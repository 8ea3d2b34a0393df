package ticketing

import (
	"sync"
	"time"
)

// BreakerState is the closed/open/half_open vocabulary of spec §4.3.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker is a three-state circuit breaker guarding the helpdesk client.
// Grounded on itsneelabh-gomind's telemetry.TelemetryCircuitBreaker, narrowed
// to the single-probe half-open policy spec §4.3 specifies (the teacher
// allows up to HalfOpenMax concurrent probes; this system admits exactly one).
type Breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu              sync.Mutex
	state           BreakerState
	failures        int
	lastFailureTime time.Time
	probeInFlight   bool
}

func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       BreakerClosed,
	}
}

// Allow reports whether a call should proceed, transitioning open->half_open
// once the cooldown has elapsed. Only one caller is ever granted the
// half-open probe; concurrent callers are rejected until it resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		return false // a probe is already in flight
	case BreakerOpen:
		if time.Since(b.lastFailureTime) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker (from closed: resets the failure count;
// from half_open: the probe passed, so the breaker closes).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probeInFlight = false
	b.state = BreakerClosed
}

// RecordFailure counts a failure, opening the breaker once maxFailures is
// reached (or immediately, if the failure was the half-open probe itself).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = time.Now()

	if b.state == BreakerHalfOpen {
		b.probeInFlight = false
		b.state = BreakerOpen
		return
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.state = BreakerOpen
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
