package worker

import (
	"context"
	"log/slog"

	audit "calibra/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. A store
// failure is logged and counted but does not stop the worker; one bad
// event must not poison the trail behind it.
type Worker struct {
	store   audit.Store
	inbox   <-chan audit.Event
	logger  *slog.Logger
	metrics *audit.Metrics
}

// Option configures the Worker.
type Option func(*Worker)

// WithLogger sets a logger for persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *audit.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the inbox until the context is cancelled or the channel is
// closed. On close, already-buffered events are persisted before returning
// so shutdown never loses accepted events.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.persist(ctx, event)
		}
	}
}

// drain persists whatever is still buffered without blocking for more.
func (w *Worker) drain() {
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.persist(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) persist(ctx context.Context, event audit.Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.metrics.IncPersistFailures()
		if w.logger != nil {
			w.logger.ErrorContext(ctx, "audit event persistence failed",
				"action", event.Action,
				"method_id", event.MethodID,
				"error", err,
			)
		}
	}
}
