package handler

import (
	"strings"

	"github.com/asaskevich/govalidator"

	"calibra/internal/calibration/models"
	dErrors "calibra/pkg/domain-errors"
)

// methodIDPattern is the accepted identifier charset. Method identifiers
// come from pipeline contracts, not humans; anything outside this set is
// a caller bug.
const methodIDPattern = `^[A-Za-z0-9._:-]+$`

// EvaluateRequest is the HTTP request body for POST /v1/calibration/evaluate.
type EvaluateRequest struct {
	MethodID string            `json:"method_id"`
	Role     string            `json:"role,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
	Evidence *models.Evidence  `json:"evidence,omitempty"`
}

// Prepare validates and normalizes the request.
// An unknown role is not rejected here: the resolver falls back to
// inference, which is the documented behavior for unrecognized roles.
func (r *EvaluateRequest) Prepare() error {
	r.MethodID = strings.TrimSpace(r.MethodID)
	if !govalidator.StringLength(r.MethodID, "1", "255") {
		return dErrors.New(dErrors.CodeValidation, "method_id must be between 1 and 255 characters")
	}
	if !govalidator.Matches(r.MethodID, methodIDPattern) {
		return dErrors.New(dErrors.CodeValidation, "method_id may only contain letters, digits, '.', '_', ':' and '-'")
	}

	r.Role = strings.TrimSpace(r.Role)
	return nil
}

// Subject builds the engine subject from the validated request.
func (r *EvaluateRequest) Subject() models.Subject {
	return models.Subject{
		MethodID: r.MethodID,
		Role:     r.Role,
		Context:  r.Context,
	}
}

// EvidenceOrEmpty returns the supplied evidence, or an empty bag.
func (r *EvaluateRequest) EvidenceOrEmpty() models.Evidence {
	if r.Evidence == nil {
		return models.Evidence{}
	}
	return *r.Evidence
}

// VerifyRequest is the HTTP request body for POST /v1/calibration/verify:
// a previously returned calibration result to re-verify.
type VerifyRequest models.Result

// Prepare validates the result carries enough to re-verify.
func (r *VerifyRequest) Prepare() error {
	r.MethodID = strings.TrimSpace(r.MethodID)
	if !govalidator.StringLength(r.MethodID, "1", "255") {
		return dErrors.New(dErrors.CodeValidation, "method_id must be between 1 and 255 characters")
	}
	if r.Certificate.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "certificate.certificate_id is required")
	}
	if !govalidator.IsHexadecimal(r.Certificate.ID) || len(r.Certificate.ID) != 16 {
		return dErrors.New(dErrors.CodeValidation, "certificate.certificate_id must be 16 hex characters")
	}
	if len(r.LayerScores) == 0 {
		return dErrors.New(dErrors.CodeValidation, "layer_scores are required")
	}
	return nil
}

// Result returns the request as an engine result.
func (r *VerifyRequest) Result() models.Result {
	return models.Result(*r)
}
