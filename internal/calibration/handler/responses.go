package handler

import (
	"time"

	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
	"calibra/pkg/platform/audit"
)

// EvaluateResponse is the HTTP response for POST /v1/calibration/evaluate.
type EvaluateResponse struct {
	MethodID     string              `json:"method_id"`
	Role         string              `json:"role"`
	FinalScore   float64             `json:"final_score"`
	LayerScores  map[string]float64  `json:"layer_scores"`
	ActiveLayers []string            `json:"active_layers"`
	Fusion       FusionResponse      `json:"fusion_breakdown"`
	Certificate  CertificateResponse `json:"certificate"`
}

// FusionResponse is the fusion breakdown portion of the response.
type FusionResponse struct {
	LinearSum      float64 `json:"linear_sum"`
	InteractionSum float64 `json:"interaction_sum"`
}

// CertificateResponse is the certificate portion of the response.
type CertificateResponse struct {
	ID             string    `json:"certificate_id"`
	FormulaVersion string    `json:"formula_version"`
	Timestamp      time.Time `json:"timestamp"`
}

// FromResult converts an engine result to an HTTP response.
func FromResult(result *models.Result) *EvaluateResponse {
	layerScores := make(map[string]float64, len(result.LayerScores))
	for layerID, score := range result.LayerScores {
		layerScores[layerID.String()] = score
	}

	return &EvaluateResponse{
		MethodID:     result.MethodID,
		Role:         result.Role.String(),
		FinalScore:   result.FinalScore,
		LayerScores:  layerScores,
		ActiveLayers: result.ActiveLayers,
		Fusion: FusionResponse{
			LinearSum:      result.Fusion.LinearSum,
			InteractionSum: result.Fusion.InteractionSum,
		},
		Certificate: CertificateResponse{
			ID:             result.Certificate.ID,
			FormulaVersion: result.Certificate.FormulaVersion,
			Timestamp:      result.Certificate.Timestamp,
		},
	}
}

// VerifyResponse is the HTTP response for POST /v1/calibration/verify.
type VerifyResponse struct {
	Valid                 bool   `json:"valid"`
	ExpectedCertificateID string `json:"expected_certificate_id"`
}

// RolesResponse is the HTTP response for GET /v1/calibration/roles.
type RolesResponse struct {
	Roles map[string][]string `json:"roles"`
}

// FromRoleTable converts the role table to an HTTP response.
func FromRoleTable(table map[domain.Role][]domain.LayerID) *RolesResponse {
	roles := make(map[string][]string, len(table))
	for role, layerIDs := range table {
		names := make([]string, len(layerIDs))
		for i, layerID := range layerIDs {
			names[i] = layerID.String()
		}
		roles[role.String()] = names
	}
	return &RolesResponse{Roles: roles}
}

// WeightsResponse is the HTTP response for GET /v1/calibration/weights.
type WeightsResponse struct {
	FormulaVersion string             `json:"formula_version"`
	Linear         map[string]float64 `json:"linear"`
	Interaction    map[string]float64 `json:"interaction"`
	LinearSum      float64            `json:"linear_sum"`
	InteractionSum float64            `json:"interaction_sum"`
}

// FromWeights converts fusion weights to an HTTP response.
func FromWeights(weights artifacts.FusionWeights) *WeightsResponse {
	linear := make(map[string]float64, len(weights.Linear))
	for layerID, weight := range weights.Linear {
		linear[layerID.String()] = weight
	}
	interaction := make(map[string]float64, len(weights.Interaction))
	for pair, weight := range weights.Interaction {
		interaction[pair.String()] = weight
	}
	return &WeightsResponse{
		FormulaVersion: weights.Version,
		Linear:         linear,
		Interaction:    interaction,
		LinearSum:      weights.LinearSum(),
		InteractionSum: weights.InteractionSum(),
	}
}

// CertificatesResponse is the HTTP response for the certificate listing
// endpoints: the audit trail slice the caller asked for.
type CertificatesResponse struct {
	Events []audit.Event `json:"events"`
	Count  int           `json:"count"`
}

// FromEvents converts audit events to an HTTP response.
func FromEvents(events []audit.Event) *CertificatesResponse {
	if events == nil {
		events = []audit.Event{}
	}
	return &CertificatesResponse{Events: events, Count: len(events)}
}
