// Package layers holds the eight layer evaluators. Each is a stateless
// function from (subject, evidence) to a score in [0,1] over the frozen
// artifact store; absence of optional evidence yields the evaluator's
// documented default, never an error.
package layers

import (
	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
)

const (
	// scoreNeutral is returned when the evidence an evaluator reads was
	// not supplied at all.
	scoreNeutral = 0.5

	// scorePenalty is returned when a context identifier was supplied
	// but the method declares no compatibility for it on any path.
	// Silence about a named target scores low, it does not default.
	scorePenalty = 0.1

	// dampingFactor discounts scores inherited through the questionnaire
	// structure, so an inherited declaration never beats a direct one.
	dampingFactor = 0.9
)

// Evaluator scores one layer.
type Evaluator interface {
	LayerID() domain.LayerID
	Evaluate(subject models.Subject, evidence models.Evidence) float64
}

// Registry maps each layer to its evaluator.
type Registry map[domain.LayerID]Evaluator

// NewRegistry builds the full evaluator set over one artifact store.
func NewRegistry(store *artifacts.Store) Registry {
	evaluators := []Evaluator{
		NewBase(store),
		NewChain(store),
		NewUnit(),
		NewQuestion(store),
		NewDimension(store),
		NewPolicy(store),
		NewCongruence(store),
		NewMeta(store),
	}

	registry := make(Registry, len(evaluators))
	for _, evaluator := range evaluators {
		registry[evaluator.LayerID()] = evaluator
	}
	return registry
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
