package layers

import (
	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
)

// Intrinsic sub-score weights. Theory dominates because it transfers
// across deployments; operational maturity counts for less.
const (
	baseTheoryWeight         = 0.40
	baseImplementationWeight = 0.35
	baseDeploymentWeight     = 0.25
)

// Base scores a method's intrinsic soundness from its theory,
// implementation, and deployment sub-scores. Per-call evidence overrides
// the loaded intrinsic row; with neither, the method is unknown and
// scores neutral.
type Base struct {
	store *artifacts.Store
}

func NewBase(store *artifacts.Store) *Base {
	return &Base{store: store}
}

func (e *Base) LayerID() domain.LayerID {
	return domain.LayerBase
}

func (e *Base) Evaluate(subject models.Subject, evidence models.Evidence) float64 {
	if scores := evidence.IntrinsicScores; scores != nil {
		return blendIntrinsic(scores.Theory, scores.Implementation, scores.Deployment)
	}
	if row, ok := e.store.Intrinsic(subject.MethodID); ok {
		return blendIntrinsic(row.Theory, row.Implementation, row.Deployment)
	}
	return scoreNeutral
}

func blendIntrinsic(theory, implementation, deployment float64) float64 {
	return baseTheoryWeight*clamp01(theory) +
		baseImplementationWeight*clamp01(implementation) +
		baseDeploymentWeight*clamp01(deployment)
}
