package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// fakeSender records every Send call and never reports a connected handle
// unless connected is true, for queue-level tests that don't need a real
// bridge connection.
type fakeSender struct {
	connected bool
}

func (s *fakeSender) CurrentHandle() (Handle, bool) {
	if !s.connected {
		return nil, false
	}
	return &noopHandle{}, true
}

type noopHandle struct{}

func (h *noopHandle) Send(_ context.Context, _ string, _ []byte) error { return nil }
func (h *noopHandle) Close() error                                    { return nil }

func TestApplyTemplate(t *testing.T) {
	body := "Hi {{name}}, your ticket {{ticket_id}} was created."
	vars := map[string]string{"name": "Ana", "ticket_id": "T-42"}

	got := ApplyTemplate(body, vars)
	want := "Hi Ana, your ticket T-42 was created."
	if got != want {
		t.Errorf("ApplyTemplate() = %q, want %q", got, want)
	}
}

func TestApplyTemplate_LeavesUnmatchedPlaceholder(t *testing.T) {
	got := ApplyTemplate("Hello {{missing}}", nil)
	if got != "Hello {{missing}}" {
		t.Errorf("ApplyTemplate with no vars should be a no-op, got %q", got)
	}
}

func TestDestinationRateLimiter_SlidingWindow(t *testing.T) {
	r := NewDestinationRateLimiter()
	base := time.Now()

	for i := 0; i < destinationLimit; i++ {
		if !r.Allow("dest-1", base.Add(time.Duration(i)*time.Millisecond)) {
			t.Fatalf("send %d should be within the per-destination budget", i)
		}
	}
	if r.Allow("dest-1", base.Add(time.Millisecond)) {
		t.Fatal("send beyond destinationLimit within the window should be rejected")
	}

	later := base.Add(destinationWindow + time.Second)
	if !r.Allow("dest-1", later) {
		t.Fatal("send after the window should be allowed once old entries age out")
	}
}

// newBareQueue builds an OutboundQueue without starting its background
// sweep loop, so Enqueue's ordering/cap logic can be asserted directly
// against q.pending without racing the worker goroutine.
func newBareQueue(cap int) *OutboundQueue {
	return &OutboundQueue{
		sender:  &fakeSender{},
		limiter: NewDestinationRateLimiter(),
		cap:     cap,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func TestOutboundQueue_HighPriorityPreservesFIFOWithinClass(t *testing.T) {
	q := newBareQueue(outboundQueueCap)

	q.Enqueue(model.OutboundCommand{ID: "normal-1", Destination: "d", Text: "n1", Priority: model.PriorityNormal})
	q.Enqueue(model.OutboundCommand{ID: "high-1", Destination: "d", Text: "h1", Priority: model.PriorityHigh})
	q.Enqueue(model.OutboundCommand{ID: "high-2", Destination: "d", Text: "h2", Priority: model.PriorityHigh})
	q.Enqueue(model.OutboundCommand{ID: "normal-2", Destination: "d", Text: "n2", Priority: model.PriorityNormal})

	want := []string{"high-1", "high-2", "normal-1", "normal-2"}
	if len(q.pending) != len(want) {
		t.Fatalf("expected %d pending, got %d", len(want), len(q.pending))
	}
	for i, id := range want {
		if q.pending[i].cmd.ID != id {
			t.Errorf("pending[%d].ID = %q, want %q", i, q.pending[i].cmd.ID, id)
		}
	}
}

func TestOutboundQueue_EnqueueOverflowDropsOldestAndNotifies(t *testing.T) {
	q := newBareQueue(2)
	var mu sync.Mutex
	var results []model.SendResult
	q.onResult = func(res model.SendResult) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}

	q.Enqueue(model.OutboundCommand{ID: "first", Destination: "d", Text: "1", Priority: model.PriorityNormal})
	q.Enqueue(model.OutboundCommand{ID: "second", Destination: "d", Text: "2", Priority: model.PriorityNormal})
	q.Enqueue(model.OutboundCommand{ID: "third", Destination: "d", Text: "3", Priority: model.PriorityNormal})

	if len(q.pending) != 2 {
		t.Fatalf("expected cap to hold pending at 2, got %d", len(q.pending))
	}
	if q.pending[0].cmd.ID != "second" || q.pending[1].cmd.ID != "third" {
		t.Fatalf("expected oldest ('first') dropped, got %v", []string{q.pending[0].cmd.ID, q.pending[1].cmd.ID})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("expected exactly one overflow notification, got %d", len(results))
	}
	if results[0].CommandID != "first" || results[0].Success {
		t.Errorf("overflow notification = %+v, want failure for dropped command 'first'", results[0])
	}
}

func TestOutboundQueue_AttemptOnRateLimitReportsFailureInsteadOfRequeue(t *testing.T) {
	q := newBareQueue(outboundQueueCap)
	q.sender = &fakeSender{connected: true}
	var results []model.SendResult
	q.onResult = func(res model.SendResult) { results = append(results, res) }

	now := time.Now()
	for i := 0; i < destinationLimit; i++ {
		q.limiter.Allow("dest-1", now.Add(time.Duration(i)*time.Millisecond))
	}

	qc := &queuedCommand{cmd: model.OutboundCommand{ID: "blocked", Destination: "dest-1", Text: "hi"}}
	q.attempt(qc)

	if len(q.pending) != 0 {
		t.Fatalf("rate-limited command should not be silently requeued, found %d pending", len(q.pending))
	}
	if len(results) != 1 {
		t.Fatalf("expected one failure notification, got %d", len(results))
	}
	if results[0].Success {
		t.Error("rate-limited send should be reported as a failure")
	}
}

func TestNonRetryableKind(t *testing.T) {
	retryable := []model.ErrorKind{model.KindConnection, model.KindTransient, model.KindAuthExpired}
	nonRetryable := []model.ErrorKind{model.KindValidation, model.KindRateLimit, model.KindQueueOverflow, model.KindAuthenticationPerm}

	for _, k := range retryable {
		if nonRetryableKind(k) {
			t.Errorf("kind %q should be retryable", k)
		}
	}
	for _, k := range nonRetryable {
		if !nonRetryableKind(k) {
			t.Errorf("kind %q should be non-retryable", k)
		}
	}
}
