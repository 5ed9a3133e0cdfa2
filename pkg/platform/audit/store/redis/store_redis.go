// Package redis implements the audit store on Redis lists.
//
// Events live in a bounded recent-events list plus one bounded list per
// method, so both query shapes are a single LRANGE. Suitable where the
// trail is a rolling operational window rather than a permanent archive;
// pair with the Postgres store when long retention is required.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	audit "calibra/pkg/platform/audit"
)

const (
	defaultCapacity  = 4096
	defaultKeyPrefix = "calibra:audit"
)

// Store implements audit.Store using Redis lists.
type Store struct {
	client   *redis.Client
	capacity int64
	prefix   string
}

// Option configures the Store.
type Option func(*Store)

// WithCapacity bounds how many events each list retains.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = int64(n)
		}
	}
}

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New creates a Redis-backed audit store.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client:   client,
		capacity: defaultCapacity,
		prefix:   defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recentKey() string {
	return s.prefix + ":recent"
}

func (s *Store) methodKey(methodID string) string {
	return s.prefix + ":method:" + methodID
}

// Append pushes the event onto the recent list and the per-method list,
// trimming both to capacity.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.recentKey(), payload)
	pipe.LTrim(ctx, s.recentKey(), 0, s.capacity-1)
	if event.MethodID != "" {
		pipe.LPush(ctx, s.methodKey(event.MethodID), payload)
		pipe.LTrim(ctx, s.methodKey(event.MethodID), 0, s.capacity-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListByMethod returns events for a method, most recent first.
func (s *Store) ListByMethod(ctx context.Context, methodID string) ([]audit.Event, error) {
	return s.list(ctx, s.methodKey(methodID), s.capacity)
}

// ListRecent returns the N most recent events, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	n := int64(limit)
	if n <= 0 || n > s.capacity {
		n = s.capacity
	}
	return s.list(ctx, s.recentKey(), n)
}

func (s *Store) list(ctx context.Context, key string, n int64) ([]audit.Event, error) {
	raw, err := s.client.LRange(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("range audit events: %w", err)
	}

	events := make([]audit.Event, 0, len(raw))
	for _, item := range raw {
		var event audit.Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("unmarshal audit event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Health pings the backing Redis instance.
func (s *Store) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("audit redis ping: %w", err)
	}
	return nil
}
