package memory

import (
	"context"
	"sync"

	audit "calibra/pkg/platform/audit"
)

const defaultCapacity = 1024

// InMemoryStore keeps a bounded window of audit events in memory.
// Oldest events fall off once capacity is reached. Intended for tests and
// single-instance deployments without a persistence backend.
type InMemoryStore struct {
	mu       sync.RWMutex
	capacity int
	events   []audit.Event
}

// Option configures the InMemoryStore.
type Option func(*InMemoryStore)

// WithCapacity bounds how many events are retained.
func WithCapacity(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clear drops all retained events. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if overflow := len(s.events) - s.capacity; overflow > 0 {
		s.events = append([]audit.Event(nil), s.events[overflow:]...)
	}
	return nil
}

// ListByMethod returns events for a method, most recent first.
func (s *InMemoryStore) ListByMethod(_ context.Context, methodID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].MethodID == methodID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// ListRecent returns the N most recent events across all methods,
// most recent first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]audit.Event, 0, limit)
	for i := len(s.events) - 1; i >= len(s.events)-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// Len reports how many events are currently retained. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
