package adapters

import (
	"context"

	"calibra/internal/calibration/ports"
	"calibra/pkg/platform/audit"
	"calibra/pkg/platform/audit/publisher"
)

// AuditAdapter implements ports.AuditRecorder by delegating to the
// platform audit publisher. This keeps the engine decoupled from the
// publisher's buffering and sink concerns while staying in-process.
type AuditAdapter struct {
	publisher *publisher.Publisher
}

// NewAuditAdapter creates a new audit adapter.
func NewAuditAdapter(p *publisher.Publisher) ports.AuditRecorder {
	return &AuditAdapter{publisher: p}
}

// Emit forwards the event to the audit publisher.
func (a *AuditAdapter) Emit(ctx context.Context, event audit.Event) error {
	return a.publisher.Emit(ctx, event)
}
