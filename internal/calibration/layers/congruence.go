package layers

import (
	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
)

// congruenceDefault applies when no role contract exists or the method
// declares no parameters: mild confidence, not a penalty, since most
// roles carry no contract at all.
const congruenceDefault = 0.8

// Congruence scores how well the method's declared parameters satisfy
// the contract of the role it runs under. The subject's role is the
// effective role the resolver settled on.
type Congruence struct {
	store *artifacts.Store
}

func NewCongruence(store *artifacts.Store) *Congruence {
	return &Congruence{store: store}
}

func (e *Congruence) LayerID() domain.LayerID {
	return domain.LayerCongruence
}

func (e *Congruence) Evaluate(subject models.Subject, _ models.Evidence) float64 {
	contract := e.store.Monolith().RoleContracts[subject.Role]
	if len(contract) == 0 {
		return congruenceDefault
	}

	row, ok := e.store.Intrinsic(subject.MethodID)
	if !ok || len(row.Parameters) == 0 {
		return congruenceDefault
	}

	matched := 0
	for param, expected := range contract {
		if row.Parameters[param] == expected {
			matched++
		}
	}
	return float64(matched) / float64(len(contract))
}
