package audit

import "context"

// Store persists audit events. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append persists one event.
	Append(ctx context.Context, event Event) error
	// ListByMethod returns events for a method, most recent first.
	ListByMethod(ctx context.Context, methodID string) ([]Event, error)
	// ListRecent returns the N most recent events across all methods.
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// HealthChecker is implemented by stores with a meaningful liveness probe.
// Readiness endpoints assert it via type assertion.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Sink receives events alongside the Store, for fan-out to external
// systems (brokers). Delivery is best-effort; a failing sink must not
// block or fail the emit path.
type Sink interface {
	Publish(ctx context.Context, event Event)
	Close()
}
