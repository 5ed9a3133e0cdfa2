package audit

import (
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance.
	// Every issued or refused calibration score belongs here; the trail
	// must be able to answer "why did this method get this score".
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to tamper detection.
	// Example: a presented certificate that fails re-verification.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted after engine calls to capture scoring outcomes. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category       EventCategory     `json:"category"`
	Timestamp      time.Time         `json:"timestamp"`
	Action         string            `json:"action"`
	MethodID       string            `json:"method_id"`
	Role           string            `json:"role,omitempty"`
	CertificateID  string            `json:"certificate_id,omitempty"`
	FormulaVersion string            `json:"formula_version,omitempty"`
	FinalScore     float64           `json:"final_score"`
	ActiveLayers   []string          `json:"active_layers,omitempty"`
	RequestID      string            `json:"request_id,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Detail         map[string]string `json:"detail,omitempty"`
}

type AuditEvent string

const (
	// Scoring events
	EventCalibrationComputed AuditEvent = "calibration_computed"
	EventCalibrationRejected AuditEvent = "calibration_rejected"

	// Certificate events
	EventCertificateVerified AuditEvent = "certificate_verified"
	EventCertificateMismatch AuditEvent = "certificate_mismatch"

	// Engine events
	EventBoundednessViolation AuditEvent = "boundedness_violation"
	EventArtifactsLoaded      AuditEvent = "artifacts_loaded"
)

// eventCategories maps each audit event to its category.
// Compliance: issued and refused scores, long retention required.
// Security: tamper signals, feed into alerting.
// Operations: routine activity, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	EventCalibrationComputed: CategoryCompliance,
	EventCalibrationRejected: CategoryCompliance,

	EventCertificateMismatch: CategorySecurity,

	EventCertificateVerified:  CategoryOperations,
	EventBoundednessViolation: CategoryOperations,
	EventArtifactsLoaded:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
