package layers

import (
	"sync"

	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
)

type contextKind string

const (
	kindQuestion  contextKind = "question"
	kindDimension contextKind = "dimension"
	kindPolicy    contextKind = "policy"
)

// Contextual is the shared implementation behind the QUESTION, DIMENSION
// and POLICY layers: fitness of a method for a specific context
// identifier, looked up in per-call claims first, then the loaded
// compatibility registry, then inherited through the questionnaire
// structure with damping. A supplied identifier with no declaration on
// any path scores the penalty; no identifier at all scores neutral.
type Contextual struct {
	layerID domain.LayerID
	kind    contextKind
	store   *artifacts.Store
	cache   *contextCache
}

// NewQuestion builds the QUESTION evaluator.
func NewQuestion(store *artifacts.Store) *Contextual {
	return newContextual(domain.LayerQuestion, kindQuestion, store)
}

// NewDimension builds the DIMENSION evaluator.
func NewDimension(store *artifacts.Store) *Contextual {
	return newContextual(domain.LayerDimension, kindDimension, store)
}

// NewPolicy builds the POLICY evaluator.
func NewPolicy(store *artifacts.Store) *Contextual {
	return newContextual(domain.LayerPolicy, kindPolicy, store)
}

func newContextual(layerID domain.LayerID, kind contextKind, store *artifacts.Store) *Contextual {
	return &Contextual{
		layerID: layerID,
		kind:    kind,
		store:   store,
		cache:   newContextCache(),
	}
}

func (e *Contextual) LayerID() domain.LayerID {
	return e.layerID
}

func (e *Contextual) Evaluate(subject models.Subject, evidence models.Evidence) float64 {
	id := e.targetID(evidence)
	if id == "" {
		return scoreNeutral
	}

	// Per-call claims make the lookup call-dependent; only the pure
	// registry path may be memoized.
	if evidence.Compatibility != nil {
		return e.resolve(subject.MethodID, id, evidence.Compatibility)
	}

	key := contextKey{methodID: subject.MethodID, kind: e.kind, id: id}
	return e.cache.lookup(key, func() float64 {
		return e.resolve(subject.MethodID, id, nil)
	})
}

func (e *Contextual) targetID(evidence models.Evidence) string {
	switch e.kind {
	case kindQuestion:
		return evidence.QuestionID
	case kindDimension:
		return evidence.DimensionID
	default:
		return evidence.PolicyAreaID
	}
}

func (e *Contextual) resolve(methodID, id string, claims *models.CompatibilityClaims) float64 {
	if score, ok := e.declared(methodID, e.kind, id, claims); ok {
		return clamp01(score)
	}

	// Structural inheritance: an undeclared question may inherit its
	// parent dimension's declaration, an undeclared dimension its policy
	// area's. Damped so inherited fitness never beats a direct one.
	monolith := e.store.Monolith()
	switch e.kind {
	case kindQuestion:
		if info, ok := monolith.Questions[id]; ok && info.Dimension != "" {
			if score, ok := e.declared(methodID, kindDimension, info.Dimension, claims); ok {
				return clamp01(score) * dampingFactor
			}
		}
	case kindDimension:
		if info, ok := monolith.Dimensions[id]; ok && info.PolicyArea != "" {
			if score, ok := e.declared(methodID, kindPolicy, info.PolicyArea, claims); ok {
				return clamp01(score) * dampingFactor
			}
		}
	}

	return scorePenalty
}

// declared returns the declared score for (kind, id): claims win over
// the loaded registry row.
func (e *Contextual) declared(methodID string, kind contextKind, id string, claims *models.CompatibilityClaims) (float64, bool) {
	if claims != nil {
		if score, ok := claimScores(claims, kind)[id]; ok {
			return score, true
		}
	}
	if row, ok := e.store.Compatibility(methodID); ok {
		if score, ok := rowScores(row, kind)[id]; ok {
			return score, true
		}
	}
	return 0, false
}

func claimScores(claims *models.CompatibilityClaims, kind contextKind) map[string]float64 {
	switch kind {
	case kindQuestion:
		return claims.Questions
	case kindDimension:
		return claims.Dimensions
	default:
		return claims.Policies
	}
}

func rowScores(row artifacts.CompatibilityRow, kind contextKind) map[string]float64 {
	switch kind {
	case kindQuestion:
		return row.Questions
	case kindDimension:
		return row.Dimensions
	default:
		return row.Policies
	}
}

type contextKey struct {
	methodID string
	kind     contextKind
	id       string
}

// contextCache memoizes registry-derived contextual scores. It is the
// single mutable structure shared between calibration calls; entries
// derive only from frozen configuration, so they never invalidate.
type contextCache struct {
	mu     sync.RWMutex
	scores map[contextKey]float64
}

func newContextCache() *contextCache {
	return &contextCache{scores: make(map[contextKey]float64)}
}

func (c *contextCache) lookup(key contextKey, compute func() float64) float64 {
	c.mu.RLock()
	score, ok := c.scores[key]
	c.mu.RUnlock()
	if ok {
		return score
	}

	score = compute()

	c.mu.Lock()
	c.scores[key] = score
	c.mu.Unlock()
	return score
}
