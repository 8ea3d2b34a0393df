// Package kv wraps the shared key/value store (external collaborator per
// spec §1/§6) over Redis. Grounded on itsneelabh-gomind's
// orchestration/redis_task_store.go: a thin *redis.Client wrapper with a
// config struct carrying defaults, JSON marshal/unmarshal at the boundary,
// and structured logging on failure.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config configures the store client.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store is the shared key/value store used for incident records, the ticket
// fallback queue, and OAuth state.
type Store struct {
	client *redis.Client
}

// New connects to Redis. The caller should Ping (or rely on the first call)
// to surface connectivity problems.
func New(cfg Config) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// Ping verifies connectivity, used by the /health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv: ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }

// Set marshals value to JSON and stores it with the given TTL (0 = no expiry).
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		slog.Error("kv set failed", "key", key, "error", err)
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

// Get unmarshals the value at key into dst. Returns (false, nil) when the key
// is absent.
func (s *Store) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("kv: unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv: del %s: %w", key, err)
	}
	return nil
}

// Expire resets a key's TTL. (The classifier's thread append re-sets the
// incident-record TTL through Set, not through this method.)
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("kv: expire %s: %w", key, err)
	}
	return nil
}

// ScanPrefix returns all keys matching prefix+"*" via SCAN (non-blocking,
// cursor-based — safe against large keyspaces unlike KEYS).
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	match := prefix + "*"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("kv: scan %s: %w", prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// GetAllPrefix scans a prefix and decodes every value found; entries that fail
// to decode are skipped (consistent with "last-writer-wins, lock-free" design
// in spec §5 — a torn read just means that entry is ignored this pass).
func (s *Store) GetAllPrefix(ctx context.Context, prefix string, newT func() interface{}) ([]interface{}, error) {
	keys, err := s.ScanPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		v := newT()
		ok, err := s.Get(ctx, k, v)
		if err != nil || !ok {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// ListPush appends a JSON-serialized item to the tail of a Redis list
// (used for `tickets:pending`, spec §4.3/§6).
func (s *Store) ListPush(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: marshal list item %s: %w", key, err)
	}
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("kv: rpush %s: %w", key, err)
	}
	return nil
}

// ListAll returns every item currently in the list, decoded via newT.
func (s *Store) ListAll(ctx context.Context, key string, newT func() interface{}) ([]interface{}, error) {
	raws, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("kv: lrange %s: %w", key, err)
	}
	out := make([]interface{}, 0, len(raws))
	for _, raw := range raws {
		v := newT()
		if err := json.Unmarshal([]byte(raw), v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// ListRemoveFirstMatch removes the first list entry whose JSON encoding
// matches the given value's re-encoding (LREM with count=1 removes the first
// occurrence). The fallback queue does not use it; its sweep rewrites the list
// with ListReplace.
func (s *Store) ListRemoveFirstMatch(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: marshal for remove %s: %w", key, err)
	}
	if err := s.client.LRem(ctx, key, 1, data).Err(); err != nil {
		return fmt.Errorf("kv: lrem %s: %w", key, err)
	}
	return nil
}

// ListReplace overwrites the list at key with items, used after updating an
// entry in place (e.g. bumping a TicketSpec's attempt counter).
func (s *Store) ListReplace(ctx context.Context, key string, items []interface{}) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("kv: marshal replace item %s: %w", key, err)
		}
		pipe.RPush(ctx, key, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kv: replace %s: %w", key, err)
	}
	return nil
}
