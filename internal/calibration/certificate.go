package calibration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
	"calibra/pkg/requestcontext"
)

const certificateIDLength = 16

// CertificateGenerator derives the deterministic certificate for a
// calibration result. Identical scoring fields always produce the same
// certificate_id; the timestamp is informational only.
type CertificateGenerator struct {
	formulaVersion string
}

func NewCertificateGenerator(formulaVersion string) *CertificateGenerator {
	return &CertificateGenerator{formulaVersion: formulaVersion}
}

// Generate stamps a certificate over the scoring fields. The timestamp
// comes from the request context when one was injected.
func (g *CertificateGenerator) Generate(ctx context.Context, methodID string, role domain.Role, finalScore float64, scores map[domain.LayerID]float64, breakdown models.FusionBreakdown) (models.Certificate, error) {
	id, err := certificateID(methodID, role, finalScore, scores, breakdown, g.formulaVersion)
	if err != nil {
		return models.Certificate{}, err
	}
	return models.Certificate{
		ID:             id,
		FormulaVersion: g.formulaVersion,
		Timestamp:      requestcontext.Now(ctx).UTC(),
	}, nil
}

// Verify recomputes the certificate from the result's own fields and
// reports whether it matches, along with the expected identifier. The
// result's formula version is used, not the generator's, so results
// produced under older formulas stay verifiable.
func (g *CertificateGenerator) Verify(result models.Result) (bool, string, error) {
	expected, err := certificateID(
		result.MethodID,
		result.Role,
		result.FinalScore,
		result.LayerScores,
		result.Fusion,
		result.Certificate.FormulaVersion,
	)
	if err != nil {
		return false, "", err
	}
	return expected == result.Certificate.ID, expected, nil
}

// certificateID hashes the canonical JSON form of the scoring fields.
// encoding/json emits map keys sorted, which fixes the byte layout.
func certificateID(methodID string, role domain.Role, finalScore float64, scores map[domain.LayerID]float64, breakdown models.FusionBreakdown, formulaVersion string) (string, error) {
	layerScores := make(map[string]float64, len(scores))
	for layerID, score := range scores {
		layerScores[layerID.String()] = score
	}

	payload := map[string]any{
		"final_score":     finalScore,
		"formula_version": formulaVersion,
		"fusion_breakdown": map[string]float64{
			"linear_sum":      breakdown.LinearSum,
			"interaction_sum": breakdown.InteractionSum,
		},
		"layer_scores": layerScores,
		"method_id":    methodID,
		"role":         role.String(),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal certificate payload: %w", err)
	}

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:certificateIDLength], nil
}
