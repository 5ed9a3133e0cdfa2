package layers

import (
	"regexp"

	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
)

// Well-formedness rules for governance artifacts.
var (
	governanceVersionPattern = regexp.MustCompile(`^v?\d+(\.\d+)*$`)
	governanceHashPattern    = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

const governanceMinSignatureLen = 32

// Meta scores governance completeness: a step function over how many of
// the method's governance artifacts are present and well-formed.
// Evidence overrides the loaded catalog row; a method with neither has
// zero governance and scores 0.
type Meta struct {
	store *artifacts.Store
}

func NewMeta(store *artifacts.Store) *Meta {
	return &Meta{store: store}
}

func (e *Meta) LayerID() domain.LayerID {
	return domain.LayerMeta
}

func (e *Meta) Evaluate(subject models.Subject, evidence models.Evidence) float64 {
	var row artifacts.GovernanceRow
	if gov := evidence.Governance; gov != nil {
		row = artifacts.GovernanceRow{
			Version:    gov.Version,
			ConfigHash: gov.ConfigHash,
			Signature:  gov.Signature,
		}
	} else if loaded, ok := e.store.Governance(subject.MethodID); ok {
		row = loaded
	}

	wellFormed := 0
	if governanceVersionPattern.MatchString(row.Version) {
		wellFormed++
	}
	if governanceHashPattern.MatchString(row.ConfigHash) {
		wellFormed++
	}
	if len(row.Signature) >= governanceMinSignatureLen {
		wellFormed++
	}

	switch wellFormed {
	case 3:
		return 1.0
	case 2:
		return 0.66
	case 1:
		return 0.33
	}
	return 0.0
}
