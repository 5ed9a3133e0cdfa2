// Package publisher provides the emit path in front of an audit store.
//
// Sync by default: Emit blocks until the store write finishes. With
// WithAsyncBuffer, events are queued and drained by a background worker;
// a full buffer drops the event rather than blocking the request path.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	audit "calibra/pkg/platform/audit"
	"calibra/pkg/platform/audit/worker"
	"calibra/pkg/platform/sentinel"
)

// Publisher fans audit events into a store and an optional broker sink.
type Publisher struct {
	store   audit.Store
	sink    audit.Sink
	sampler *audit.Sampler
	logger  *slog.Logger
	metrics *audit.Metrics

	// mu orders enqueues against Close. Enqueues are non-blocking, so the
	// read lock is never held across a wait.
	mu        sync.RWMutex
	inbox     chan audit.Event
	workerErr chan error
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets a logger for drop and failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *audit.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithSink adds a best-effort broker sink alongside the store.
func WithSink(sink audit.Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

// WithSampler enables sampling for operations-category events.
// Compliance and security events are never sampled.
func WithSampler(s *audit.Sampler) Option {
	return func(p *Publisher) {
		p.sampler = s
	}
}

// NewPublisher creates a publisher in front of the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}

	if p.inbox != nil {
		w := worker.NewWorker(store, p.inbox,
			worker.WithLogger(p.logger),
			worker.WithMetrics(p.metrics),
		)
		p.workerErr = make(chan error, 1)
		go func() {
			p.workerErr <- w.Run(context.Background())
		}()
	}
	return p
}

// Emit records one audit event. In async mode a full buffer drops the
// event and returns an error the caller may ignore; the request path is
// never blocked on audit persistence.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if p.closed.Load() {
		return fmt.Errorf("audit publisher %w", sentinel.ErrClosed)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.sampler != nil && event.Category == audit.CategoryOperations {
		if !p.sampler.ShouldKeep(event.Action) {
			p.metrics.IncSampled()
			return nil
		}
	}

	if p.sink != nil {
		p.sink.Publish(ctx, event)
	}

	p.metrics.IncEmitted(event.Category)

	if p.inbox == nil {
		if err := p.store.Append(ctx, event); err != nil {
			p.metrics.IncPersistFailures()
			return fmt.Errorf("append audit event: %w", err)
		}
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return fmt.Errorf("audit publisher %w", sentinel.ErrClosed)
	}

	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		p.metrics.IncDropped("context_cancelled")
		return ctx.Err()
	default:
		p.metrics.IncDropped("buffer_full")
		if p.logger != nil {
			p.logger.Warn("audit buffer full, dropping event",
				"action", event.Action,
				"method_id", event.MethodID,
			)
		}
		return fmt.Errorf("audit %w", sentinel.ErrBufferFull)
	}
}

// List returns events for a method, most recent first.
func (p *Publisher) List(ctx context.Context, methodID string) ([]audit.Event, error) {
	return p.store.ListByMethod(ctx, methodID)
}

// ListRecent returns the N most recent events, most recent first.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// Close stops accepting events, drains the async buffer into the store,
// and closes the sink.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed.Store(true)
		if p.inbox != nil {
			close(p.inbox)
		}
		p.mu.Unlock()

		if p.inbox != nil {
			<-p.workerErr
		}
		if p.sink != nil {
			p.sink.Close()
		}
	})
	return nil
}
