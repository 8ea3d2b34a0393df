package ticketing

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/chatdesk/internal/kv"
	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// FallbackQueue is the persistent `tickets:pending` list (spec §4.3):
// entries survive a process restart and are drained in enqueue order by a
// background worker once the breaker allows calls through again.
type FallbackQueue struct {
	store *kv.Store
	key   string

	sweepInterval time.Duration
	maxRetries    int
	retryDelay    time.Duration

	create func(ctx context.Context, spec model.TicketSpec) (string, error)
	onDone func(model.TicketCreated)
}

func NewFallbackQueue(
	store *kv.Store,
	key string,
	sweepInterval time.Duration,
	maxRetries int,
	retryDelay time.Duration,
	create func(ctx context.Context, spec model.TicketSpec) (string, error),
	onDone func(model.TicketCreated),
) *FallbackQueue {
	return &FallbackQueue{
		store: store, key: key,
		sweepInterval: sweepInterval, maxRetries: maxRetries, retryDelay: retryDelay,
		create: create, onDone: onDone,
	}
}

// Enqueue appends a ticket creation job to the tail of the fallback queue.
func (q *FallbackQueue) Enqueue(ctx context.Context, spec model.TicketSpec) error {
	return q.store.ListPush(ctx, q.key, spec)
}

// Run starts the periodic sweep, blocking until ctx is cancelled.
func (q *FallbackQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweepOnce(ctx)
		}
	}
}

// sweepOnce walks every queued entry in enqueue order. Each entry is retried
// up to maxRetries times, retryDelay apart, within this single pass (spec
// §4.3). A successful entry is removed; an entry that exhausts its retries
// this sweep stays enqueued with its attempt counter and last error updated,
// to be picked up again at the next sweep.
func (q *FallbackQueue) sweepOnce(ctx context.Context) {
	raw, err := q.store.ListAll(ctx, q.key, func() interface{} { return &model.TicketSpec{} })
	if err != nil {
		slog.Error("ticketing: fallback queue sweep failed to list entries", "error", err)
		return
	}

	remaining := make([]interface{}, 0, len(raw))
	for _, r := range raw {
		spec, ok := r.(*model.TicketSpec)
		if !ok {
			continue
		}
		if updated, keep := q.drainEntry(ctx, *spec); keep {
			remaining = append(remaining, updated)
		}
		if ctx.Err() != nil {
			return
		}
	}

	if err := q.store.ListReplace(ctx, q.key, remaining); err != nil {
		slog.Error("ticketing: failed to persist fallback queue after sweep", "error", err)
	}
}

// drainEntry retries one entry up to maxRetries times, retryDelay apart.
// It returns the spec to persist (if any) and whether it should stay queued.
func (q *FallbackQueue) drainEntry(ctx context.Context, spec model.TicketSpec) (model.TicketSpec, bool) {
	for attempt := 1; attempt <= q.maxRetries; attempt++ {
		ticketID, err := q.create(ctx, spec)
		if err == nil {
			q.onDone(model.TicketCreated{
				TicketID: ticketID, Success: true,
				SourceConversationID: spec.SourceConversationID, SourceMessageID: spec.SourceMessageID,
				Category: spec.Category, Urgency: spec.Urgency,
			})
			return spec, false
		}

		spec.AttemptCount++
		spec.LastError = err.Error()

		if attempt == q.maxRetries {
			slog.Warn("ticketing: fallback entry failed this sweep, leaving enqueued",
				"id", spec.ID, "attempt_count", spec.AttemptCount, "error", err)
			q.onDone(model.TicketCreated{
				Success: false, Error: err.Error(),
				SourceConversationID: spec.SourceConversationID, SourceMessageID: spec.SourceMessageID,
				Category: spec.Category, Urgency: spec.Urgency,
			})
			return spec, true
		}

		select {
		case <-time.After(q.retryDelay):
		case <-ctx.Done():
			return spec, true
		}
	}
	return spec, true
}
