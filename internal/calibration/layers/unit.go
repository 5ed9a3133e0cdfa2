package layers

import (
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
)

// Unit composite weights: completeness carries the most signal, size
// adequacy and sub-structure presence share the rest.
const (
	unitCompletenessWeight = 0.40
	unitSizeWeight         = 0.30
	unitStructureWeight    = 0.30
)

// Unit scores the structural quality of the processed document tree the
// method worked on. Pure function of the pdt_structure evidence; no
// structure supplied scores neutral.
type Unit struct{}

func NewUnit() *Unit {
	return &Unit{}
}

func (e *Unit) LayerID() domain.LayerID {
	return domain.LayerUnit
}

func (e *Unit) Evaluate(_ models.Subject, evidence models.Evidence) float64 {
	pdt := evidence.PDTStructure
	if pdt == nil {
		return scoreNeutral
	}

	var flags float64
	if pdt.HasHierarchy {
		flags += 0.5
	}
	if pdt.HasAnchors {
		flags += 0.5
	}
	structure := 0.5*flags + 0.5*clamp01(pdt.StructureQuality)

	return unitCompletenessWeight*clamp01(pdt.Completeness) +
		unitSizeWeight*sizeBucket(pdt.ChunkCount) +
		unitStructureWeight*structure
}

// sizeBucket maps chunk count onto a thresholded adequacy score. Very
// small trees cannot demonstrate structural quality regardless of what
// the other signals say.
func sizeBucket(chunkCount int) float64 {
	switch {
	case chunkCount >= 40:
		return 1.0
	case chunkCount >= 15:
		return 0.75
	case chunkCount >= 5:
		return 0.5
	case chunkCount >= 1:
		return 0.25
	}
	return 0.0
}
