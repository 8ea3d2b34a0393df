package busx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config configures the bus client. Grounded on itsneelabh-gomind's
// RedisTaskStoreConfig defaulting pattern.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Bus is a thin pub/sub wrapper over Redis. Two independent connections are
// used — one for Publish, one for Subscribe — so subscribe-side backpressure
// on a slow consumer can never stall publish-side work (spec §9, "cyclic
// dependencies").
type Bus struct {
	pub *redis.Client
	sub *redis.Client
}

func New(cfg Config) *Bus {
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	return &Bus{
		pub: redis.NewClient(opts),
		sub: redis.NewClient(opts),
	}
}

func (b *Bus) Ping(ctx context.Context) error {
	if err := b.pub.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("busx: ping: %w", err)
	}
	return nil
}

func (b *Bus) Close() error {
	err1 := b.pub.Close()
	err2 := b.sub.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// PublishRaw publishes a pre-serialized payload directly (no retry queue —
// callers that want retry/backoff/priority should go through Publisher).
func (b *Bus) PublishRaw(ctx context.Context, topic string, payload []byte) error {
	if err := b.pub.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("busx: publish %s: %w", topic, err)
	}
	return nil
}

// Publish marshals value to JSON and publishes it.
func (b *Bus) Publish(ctx context.Context, topic string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("busx: marshal for %s: %w", topic, err)
	}
	return b.PublishRaw(ctx, topic, data)
}

// Handler processes one raw message payload from a topic.
type Handler func(ctx context.Context, payload []byte) error

// Subscribe blocks, dispatching every message on topic to handler, until ctx
// is cancelled. A handler error is discarded without logging and does not
// stop the subscription.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	pubsub := b.sub.Subscribe(ctx, topic)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("busx: subscription to %s closed", topic)
			}
			// Each handler invocation gets its own bounded timeout so a single
			// slow handler cannot wedge the subscription loop indefinitely.
			hctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := handler(hctx, []byte(msg.Payload))
			cancel()
			if err != nil {
				// Not logged here; the loop moves on to the next message.
				continue
			}
		}
	}
}
