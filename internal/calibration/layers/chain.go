package layers

import (
	"sort"

	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
)

// Without a neighbor row the chain score defaults into [0.6, 0.7],
// modulated by upstream document quality.
const (
	chainDefaultFloor = 0.6
	chainDefaultSpan  = 0.1
)

// Chain scores how well the method composes with its pipeline neighbors,
// from the precomputed neighbor-compatibility table.
type Chain struct {
	store *artifacts.Store
}

func NewChain(store *artifacts.Store) *Chain {
	return &Chain{store: store}
}

func (e *Chain) LayerID() domain.LayerID {
	return domain.LayerChain
}

func (e *Chain) Evaluate(subject models.Subject, evidence models.Evidence) float64 {
	if row := e.store.ChainRow(subject.MethodID); len(row) > 0 {
		// Summing in neighbor-id order keeps the float result identical
		// across calls; map iteration order would not.
		neighbors := make([]string, 0, len(row))
		for neighbor := range row {
			neighbors = append(neighbors, neighbor)
		}
		sort.Strings(neighbors)

		var sum float64
		for _, neighbor := range neighbors {
			sum += clamp01(row[neighbor])
		}
		return sum / float64(len(row))
	}
	return chainDefaultFloor + chainDefaultSpan*documentQuality(evidence)
}

// documentQuality averages the quality signals that were measured,
// neutral when none were.
func documentQuality(evidence models.Evidence) float64 {
	quality := evidence.DocumentQuality
	if quality == nil {
		return scoreNeutral
	}

	var sum float64
	measured := 0
	if quality.OCRConfidence != nil {
		sum += clamp01(*quality.OCRConfidence)
		measured++
	}
	if quality.ExtractionAccuracy != nil {
		sum += clamp01(*quality.ExtractionAccuracy)
		measured++
	}
	if measured == 0 {
		return scoreNeutral
	}
	return sum / float64(measured)
}
