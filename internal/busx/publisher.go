package busx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Priority of a queued publish item. Reuses the same high/normal vocabulary
// the outbound send queue uses (spec §3 Priority).
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// item is one queued publish job — spec §4.1.2's {channel, payload, priority,
// retries, max_retries, metadata} shape.
type item struct {
	Topic      string
	Payload    []byte
	Priority   Priority
	Retries    int
	MaxRetries int
	Metadata   map[string]string
	result     chan error // non-nil only for PublishSync/batch callers
}

const (
	defaultQueueCap     = 1000
	defaultMaxRetries   = 3
	defaultBaseBackoff  = time.Second
	defaultCapBackoff   = 10 * time.Second
)

// Publisher is the intermediate queue in front of every bus Publish call
// (spec §4.1.2). High-priority items are inserted after the last queued
// high-priority item; normal priority is appended at the tail — FIFO within a
// class.
type Publisher struct {
	bus *Bus

	mu      sync.Mutex
	pending []*item
	notify  chan struct{}

	cap         int
	maxRetries  int
	baseBackoff time.Duration
	capBackoff  time.Duration

	wg   sync.WaitGroup
	done chan struct{}
}

// NewPublisher starts a publisher worker bound to bus. Call Close to drain
// and stop it (spec §5: "on process shutdown the publisher drains its queue
// before exiting").
func NewPublisher(bus *Bus) *Publisher {
	p := &Publisher{
		bus:         bus,
		notify:      make(chan struct{}, 1),
		cap:         defaultQueueCap,
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		capBackoff:  defaultCapBackoff,
		done:        make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Enqueue queues value for publication on topic at the given priority.
// Returns immediately; delivery happens asynchronously.
func (p *Publisher) Enqueue(topic string, value interface{}, priority Priority) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("busx: marshal for enqueue %s: %w", topic, err)
	}
	p.enqueueItem(&item{Topic: topic, Payload: data, Priority: priority, MaxRetries: p.maxRetries})
	return nil
}

// PublishBatch enqueues N items and returns their eventual per-item outcome
// (spec §4.1.2's batch API). It blocks until every item has either succeeded
// or exhausted its retries.
type BatchItem struct {
	Topic    string
	Value    interface{}
	Priority Priority
}

type BatchOutcome struct {
	Index int
	Err   error
}

func (p *Publisher) PublishBatch(items []BatchItem) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(items))
	var wg sync.WaitGroup
	for i, bi := range items {
		data, err := json.Marshal(bi.Value)
		if err != nil {
			outcomes[i] = BatchOutcome{Index: i, Err: err}
			continue
		}
		result := make(chan error, 1)
		wg.Add(1)
		idx := i
		go func() {
			defer wg.Done()
			outcomes[idx] = BatchOutcome{Index: idx, Err: <-result}
		}()
		p.enqueueItem(&item{
			Topic: bi.Topic, Payload: data, Priority: bi.Priority,
			MaxRetries: p.maxRetries, result: result,
		})
	}
	wg.Wait()
	return outcomes
}

func (p *Publisher) enqueueItem(it *item) {
	p.mu.Lock()
	if len(p.pending) >= p.cap {
		dropped := p.pending[0]
		p.pending = p.pending[1:]
		slog.Warn("busx publisher queue overflow, dropping oldest", "topic", dropped.Topic)
		if dropped.result != nil {
			dropped.result <- fmt.Errorf("busx: queue overflow, dropped")
		}
	}
	if it.Priority == PriorityHigh {
		insertAt := 0
		for insertAt < len(p.pending) && p.pending[insertAt].Priority == PriorityHigh {
			insertAt++
		}
		p.pending = append(p.pending, nil)
		copy(p.pending[insertAt+1:], p.pending[insertAt:])
		p.pending[insertAt] = it
	} else {
		p.pending = append(p.pending, it)
	}
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			p.drainOnce() // final drain before exiting
			return
		case <-p.notify:
			p.drainOnce()
		case <-ticker.C:
			p.drainOnce()
		}
	}
}

func (p *Publisher) drainOnce() {
	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.mu.Unlock()
			return
		}
		it := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()

		p.attempt(it)
	}
}

func (p *Publisher) attempt(it *item) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := p.bus.PublishRaw(ctx, it.Topic, it.Payload)
	cancel()

	if err == nil {
		if it.result != nil {
			it.result <- nil
		}
		return
	}

	it.Retries++
	if it.Retries >= it.MaxRetries {
		slog.Error("busx publisher exhausted retries", "topic", it.Topic, "retries", it.Retries, "error", err)
		if it.result != nil {
			it.result <- err
		}
		return
	}

	delay := p.baseBackoff * (1 << (it.Retries - 1))
	if delay > p.capBackoff {
		delay = p.capBackoff
	}
	slog.Warn("busx publish failed, will retry", "topic", it.Topic, "attempt", it.Retries, "delay", delay, "error", err)
	time.AfterFunc(delay, func() {
		p.mu.Lock()
		p.pending = append(p.pending, it)
		p.mu.Unlock()
		select {
		case p.notify <- struct{}{}:
		default:
		}
	})
}

// Close drains the queue and stops the worker.
func (p *Publisher) Close() {
	close(p.done)
	p.wg.Wait()
}
