package calibration

import (
	"math"
	"sort"

	"calibra/internal/calibration/artifacts"
	"calibra/pkg/domain"
)

// FusionOutcome is one aggregation: the clamped final score, the raw
// value before clamping, and the additive breakdown. Raw differing from
// Final is a boundedness violation the caller must report.
type FusionOutcome struct {
	Final          float64
	Raw            float64
	LinearSum      float64
	InteractionSum float64
}

// Clamped reports whether the raw aggregate left [0,1].
func (o FusionOutcome) Clamped() bool {
	return o.Raw != o.Final
}

type linearTerm struct {
	layer  domain.LayerID
	weight float64
}

type interactionTerm struct {
	pair   domain.LayerPair
	weight float64
}

// ChoquetAggregator fuses per-layer scores: a weighted sum of the active
// layers plus pairwise interaction terms on min(x, y), so a correlated
// pair's bonus is capped by its weaker member. With validated weights
// and scores in [0,1] the result stays in [0,1] and is monotone in every
// score.
type ChoquetAggregator struct {
	linear      []linearTerm
	interaction []interactionTerm
}

// NewChoquetAggregator prepares an aggregator from validated weights.
// Terms are sorted once up front: float addition is not associative and
// certificates require bit-identical results across calls.
func NewChoquetAggregator(weights artifacts.FusionWeights) *ChoquetAggregator {
	linear := make([]linearTerm, 0, len(weights.Linear))
	for layerID, weight := range weights.Linear {
		linear = append(linear, linearTerm{layer: layerID, weight: weight})
	}
	sort.Slice(linear, func(i, j int) bool {
		return linear[i].layer.Before(linear[j].layer)
	})

	interaction := make([]interactionTerm, 0, len(weights.Interaction))
	for pair, weight := range weights.Interaction {
		interaction = append(interaction, interactionTerm{pair: pair, weight: weight})
	}
	sort.Slice(interaction, func(i, j int) bool {
		if interaction[i].pair.First != interaction[j].pair.First {
			return interaction[i].pair.First.Before(interaction[j].pair.First)
		}
		return interaction[i].pair.Second.Before(interaction[j].pair.Second)
	})

	return &ChoquetAggregator{linear: linear, interaction: interaction}
}

// Aggregate fuses the scores of the active layers. Weight entries whose
// layers are not all active contribute nothing.
func (a *ChoquetAggregator) Aggregate(active domain.LayerSet, scores map[domain.LayerID]float64) FusionOutcome {
	var linearSum float64
	for _, term := range a.linear {
		if !active.Contains(term.layer) {
			continue
		}
		score, ok := scores[term.layer]
		if !ok {
			continue
		}
		linearSum += term.weight * score
	}

	var interactionSum float64
	for _, term := range a.interaction {
		if !active.Contains(term.pair.First) || !active.Contains(term.pair.Second) {
			continue
		}
		first, firstOK := scores[term.pair.First]
		second, secondOK := scores[term.pair.Second]
		if !firstOK || !secondOK {
			continue
		}
		interactionSum += term.weight * math.Min(first, second)
	}

	raw := linearSum + interactionSum
	final := raw
	if final < 0 {
		final = 0
	}
	if final > 1 {
		final = 1
	}

	return FusionOutcome{
		Final:          final,
		Raw:            raw,
		LinearSum:      linearSum,
		InteractionSum: interactionSum,
	}
}
