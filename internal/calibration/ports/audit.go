// Package ports defines the interfaces the calibration service needs
// from its collaborators, keeping the engine free of infrastructure
// imports beyond the audit event type itself.
package ports

//go:generate mockgen -source=audit.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"calibra/pkg/platform/audit"
)

// AuditRecorder emits calibration audit events. Matches the audit
// publisher's Emit but is defined here to keep the dependency pointing
// outward.
type AuditRecorder interface {
	Emit(ctx context.Context, event audit.Event) error
}
