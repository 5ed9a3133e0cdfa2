package calibration

import (
	"fmt"
	"strings"

	"calibra/pkg/domain"
)

// IncompletenessError reports required layers that have no computed
// score. It is a hard stop before fusion; a required layer is never
// substituted with a default.
type IncompletenessError struct {
	MethodID string
	Role     domain.Role
	Missing  []domain.LayerID
}

func (e *IncompletenessError) Error() string {
	names := make([]string, len(e.Missing))
	for i, layerID := range e.Missing {
		names[i] = layerID.String()
	}
	return fmt.Sprintf("calibration incomplete for method %q in role %s: missing layers %s",
		e.MethodID, e.Role, strings.Join(names, ", "))
}

// ValidateCompleteness asserts that every required layer has a score.
// Missing layers are reported in canonical order.
func ValidateCompleteness(methodID string, role domain.Role, required domain.LayerSet, scores map[domain.LayerID]float64) error {
	var missing []domain.LayerID
	for _, layerID := range required.Sorted() {
		if _, ok := scores[layerID]; !ok {
			missing = append(missing, layerID)
		}
	}
	if len(missing) > 0 {
		return &IncompletenessError{MethodID: methodID, Role: role, Missing: missing}
	}
	return nil
}
