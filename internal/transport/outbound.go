package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// destinationWindow / destinationLimit bound outbound sends per destination
// (spec §4.1.4: "no more than 20 outbound sends per destination within any
// 60s window").
const (
	destinationWindow = 60 * time.Second
	destinationLimit  = 20
)

const (
	outboundBaseBackoff = time.Second
	outboundCapBackoff  = 30 * time.Second
	outboundMaxRetries  = 3
	sweepInterval       = 5 * time.Second
)

// outboundQueueCap is the hard cap on pending outbound commands (spec §4.1.4:
// "the queue has a hard cap (e.g. 10,000); on overflow the oldest is dropped
// and a failure notification emitted").
const outboundQueueCap = 10000

// DestinationRateLimiter is a sliding-window limiter keyed per destination.
type DestinationRateLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
}

func NewDestinationRateLimiter() *DestinationRateLimiter {
	return &DestinationRateLimiter{history: make(map[string][]time.Time)}
}

func (r *DestinationRateLimiter) Allow(destination string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-destinationWindow)
	hist := r.history[destination]
	kept := hist[:0]
	for _, t := range hist {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	allowed := len(kept) < destinationLimit
	if allowed {
		kept = append(kept, now)
	}
	r.history[destination] = kept
	return allowed
}

// ApplyTemplate substitutes {{key}} placeholders in body with vars, leaving
// any placeholder with no matching var untouched (spec §4.1.4 template
// substitution).
func ApplyTemplate(body string, vars map[string]string) string {
	if len(vars) == 0 {
		return body
	}
	out := body
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// Sender delivers a rendered command's bytes to the live transport handle.
type Sender interface {
	// CurrentHandle returns the live Handle, or false if not connected.
	CurrentHandle() (Handle, bool)
}

type connSender struct{ conn *Connection }

func (s *connSender) CurrentHandle() (Handle, bool) { return s.conn.Handle() }

// NewConnSender adapts a Connection to the Sender interface used by the
// OutboundQueue.
func NewConnSender(conn *Connection) Sender { return &connSender{conn: conn} }

// queuedCommand wraps an OutboundCommand with queue bookkeeping.
type queuedCommand struct {
	cmd        model.OutboundCommand
	attempts   int
	nextAttempt time.Time
}

// OutboundQueue is the send-side pipeline of spec §4.1.4: priority queue
// (high at head, normal at tail, FIFO within class), per-destination sliding
// window, scheduled-send parking, template rendering, and retry with
// exponential backoff.
type OutboundQueue struct {
	sender  Sender
	limiter *DestinationRateLimiter
	onResult func(model.SendResult)
	cap      int

	mu      sync.Mutex
	pending []*queuedCommand

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewOutboundQueue(sender Sender, onResult func(model.SendResult)) *OutboundQueue {
	q := &OutboundQueue{
		sender:   sender,
		limiter:  NewDestinationRateLimiter(),
		onResult: onResult,
		cap:      outboundQueueCap,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue adds cmd to the queue, applying template substitution up front.
func (q *OutboundQueue) Enqueue(cmd model.OutboundCommand) {
	if len(cmd.TemplateVars) > 0 && !cmd.TemplateApplied && cmd.HasText() {
		cmd.Text = ApplyTemplate(cmd.Text, cmd.TemplateVars)
		cmd.TemplateApplied = true
	}

	qc := &queuedCommand{cmd: cmd}
	if cmd.ScheduledAt != nil {
		qc.nextAttempt = *cmd.ScheduledAt
	}

	q.mu.Lock()
	var dropped *queuedCommand
	if len(q.pending) >= q.cap {
		dropped = q.pending[0]
		q.pending = q.pending[1:]
	}
	if cmd.Priority == model.PriorityHigh {
		insertAt := 0
		for insertAt < len(q.pending) && q.pending[insertAt].cmd.Priority == model.PriorityHigh {
			insertAt++
		}
		q.pending = append(q.pending, nil)
		copy(q.pending[insertAt+1:], q.pending[insertAt:])
		q.pending[insertAt] = qc
	} else {
		q.pending = append(q.pending, qc)
	}
	q.mu.Unlock()

	if dropped != nil {
		slog.Warn("transport: outbound queue overflow, dropping oldest", "destination", dropped.cmd.Destination)
		q.report(dropped, model.NewClassifiedError(model.KindQueueOverflow, fmt.Errorf("outbound queue exceeded cap of %d", q.cap)))
	}

	q.wake()
}

func (q *OutboundQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *OutboundQueue) run() {
	defer q.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.done:
			q.sweep() // final pass over due items before exiting
			return
		case <-q.notify:
			q.sweep()
		case <-ticker.C:
			q.sweep()
		}
	}
}

// sweep walks the pending list once, attempting every item whose scheduled
// time has arrived and that isn't rate-limited, leaving the rest parked.
func (q *OutboundQueue) sweep() {
	now := time.Now()

	q.mu.Lock()
	remaining := q.pending[:0]
	ready := make([]*queuedCommand, 0, len(q.pending))
	for _, qc := range q.pending {
		if qc.nextAttempt.After(now) {
			remaining = append(remaining, qc)
			continue
		}
		ready = append(ready, qc)
	}
	q.pending = remaining
	q.mu.Unlock()

	for _, qc := range ready {
		q.attempt(qc)
	}
}

func (q *OutboundQueue) attempt(qc *queuedCommand) {
	now := time.Now()

	if !q.limiter.Allow(qc.cmd.Destination, now) {
		slog.Warn("transport: outbound send rejected, destination rate limit exceeded", "destination", qc.cmd.Destination)
		q.report(qc, model.NewClassifiedError(model.KindRateLimit, fmt.Errorf("destination %s exceeded %d sends per %s", qc.cmd.Destination, destinationLimit, destinationWindow)))
		return
	}

	handle, ok := q.sender.CurrentHandle()
	if !ok {
		q.retryOrFail(qc, model.NewClassifiedError(model.KindConnection, fmt.Errorf("transport not connected")))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err := handle.Send(ctx, qc.cmd.Destination, renderBody(qc.cmd))
	cancel()

	if err == nil {
		q.report(qc, nil)
		return
	}
	q.retryOrFail(qc, err)
}

// renderBody picks the text payload, or a JSON-encoded media descriptor when
// the command carries media instead (OutboundCommand.Valid enforces exactly
// one of the two).
func renderBody(cmd model.OutboundCommand) []byte {
	if cmd.HasText() {
		return []byte(cmd.Text)
	}
	data, err := json.Marshal(cmd.Media)
	if err != nil {
		return nil
	}
	return data
}

func (q *OutboundQueue) retryOrFail(qc *queuedCommand, err error) {
	kind := model.ErrorKindOf(err)

	if nonRetryableKind(kind) {
		slog.Error("transport: outbound send failed terminally", "destination", qc.cmd.Destination, "kind", kind, "error", err)
		q.report(qc, err)
		return
	}

	if qc.attempts+1 >= outboundMaxRetries {
		slog.Error("transport: outbound send exhausted retries", "destination", qc.cmd.Destination, "error", err)
		q.report(qc, err)
		return
	}
	qc.attempts++

	delay := outboundBaseBackoff * time.Duration(1<<uint(qc.attempts-1))
	if delay > outboundCapBackoff {
		delay = outboundCapBackoff
	}
	slog.Warn("transport: outbound send failed, will retry", "destination", qc.cmd.Destination, "attempt", qc.attempts, "delay", delay, "error", err)
	qc.nextAttempt = time.Now().Add(delay)
	q.requeue(qc)
}

func (q *OutboundQueue) requeue(qc *queuedCommand) {
	q.mu.Lock()
	q.pending = append(q.pending, qc)
	q.mu.Unlock()
}

func (q *OutboundQueue) report(qc *queuedCommand, err error) {
	if q.onResult == nil {
		return
	}
	res := model.SendResult{
		CommandID: qc.cmd.ID,
		Success:   err == nil,
		Attempts:  qc.attempts + 1,
		SentAt:    time.Now(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	q.onResult(res)
}

// nonRetryableKind mirrors ClassifiedError.Retryable's policy (spec §9
// REDESIGN FLAG 3: classify via the closed ErrorKind enum rather than
// string-matching the provider's error text).
func nonRetryableKind(kind model.ErrorKind) bool {
	switch kind {
	case model.KindValidation, model.KindRateLimit, model.KindQueueOverflow, model.KindAuthenticationPerm:
		return true
	default:
		return false
	}
}

// Close stops the sweep loop after one final sweep, which attempts every item
// whose scheduled time has arrived. Items still parked after that pass
// (future scheduled sends, retries waiting out their backoff) are left in
// memory and are not delivered.
func (q *OutboundQueue) Close() {
	close(q.done)
	q.wg.Wait()
}
