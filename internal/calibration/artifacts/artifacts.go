// Package artifacts loads the five calibration configuration artifacts
// once at process start and freezes them. The resulting Store has no
// mutation API; accessors return loaded data that callers must treat as
// read-only. Malformed content is a fatal ConfigurationError naming the
// offending file.
package artifacts

import (
	"fmt"

	"calibra/pkg/domain"
)

// Artifact file names expected under the configured directory.
const (
	FileIntrinsic     = "intrinsic_calibration.json"
	FileCompatibility = "method_compatibility.json"
	FileWeights       = "fusion_weights.json"
	FileMonolith      = "questionnaire_monolith.json"
	FileGovernance    = "governance_catalog.json"
)

// DefaultFormulaVersion is assumed when the weights file carries no version.
const DefaultFormulaVersion = "choquet-v1"

// ConfigurationError reports an unusable artifact. It is fatal: the
// process must not start with a partial or invalid configuration.
type ConfigurationError struct {
	File   string
	Detail string
	cause  error
}

func (e *ConfigurationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("configuration artifact %s: %s: %v", e.File, e.Detail, e.cause)
	}
	return fmt.Sprintf("configuration artifact %s: %s", e.File, e.Detail)
}

func (e *ConfigurationError) Unwrap() error {
	return e.cause
}

func configErr(file, detail string) error {
	return &ConfigurationError{File: file, Detail: detail}
}

func configErrf(file, format string, args ...any) error {
	return &ConfigurationError{File: file, Detail: fmt.Sprintf(format, args...)}
}

func configWrap(file, detail string, cause error) error {
	return &ConfigurationError{File: file, Detail: detail, cause: cause}
}

// IntrinsicRow holds a method's intrinsic calibration sub-scores and its
// declared contract parameters.
type IntrinsicRow struct {
	Theory         float64           `json:"theory"`
	Implementation float64           `json:"implementation"`
	Deployment     float64           `json:"deployment"`
	Parameters     map[string]string `json:"parameters,omitempty"`
}

// CompatibilityRow holds a method's declared contextual compatibility
// scores keyed by question/dimension/policy-area identifier.
type CompatibilityRow struct {
	Questions  map[string]float64 `json:"questions,omitempty"`
	Dimensions map[string]float64 `json:"dimensions,omitempty"`
	Policies   map[string]float64 `json:"policies,omitempty"`
}

// FusionWeights is the validated aggregation formula: linear weights per
// layer plus pairwise interaction weights keyed by canonicalized pair.
type FusionWeights struct {
	Version     string
	Linear      map[domain.LayerID]float64
	Interaction map[domain.LayerPair]float64
}

// LinearSum totals the linear weights.
func (w FusionWeights) LinearSum() float64 {
	var sum float64
	for _, weight := range w.Linear {
		sum += weight
	}
	return sum
}

// InteractionSum totals the interaction weights.
func (w FusionWeights) InteractionSum() float64 {
	var sum float64
	for _, weight := range w.Interaction {
		sum += weight
	}
	return sum
}

// QuestionInfo is the monolith's structural metadata for one question.
type QuestionInfo struct {
	Dimension  string `json:"dimension"`
	PolicyArea string `json:"policy_area,omitempty"`
}

// DimensionInfo is the monolith's structural metadata for one dimension.
type DimensionInfo struct {
	PolicyArea string `json:"policy_area"`
}

// Monolith is the questionnaire structure: which dimension a question
// belongs to, which policy area a dimension belongs to, and the
// per-role contract parameters.
type Monolith struct {
	Questions     map[string]QuestionInfo      `json:"questions"`
	Dimensions    map[string]DimensionInfo     `json:"dimensions"`
	PolicyAreas   map[string]struct{}          `json:"policy_areas"`
	RoleContracts map[string]map[string]string `json:"role_contracts,omitempty"`
}

// GovernanceRow holds one method's governance artifacts.
type GovernanceRow struct {
	Version    string `json:"version"`
	ConfigHash string `json:"config_hash"`
	Signature  string `json:"signature"`
}

// Store is the frozen view of all five artifacts.
type Store struct {
	intrinsic      map[string]IntrinsicRow
	compatibility  map[string]CompatibilityRow
	chain          map[string]map[string]float64
	weights        FusionWeights
	monolith       Monolith
	governance     map[string]GovernanceRow
	catalogVersion string
}

// Intrinsic returns the intrinsic calibration row for a method.
func (s *Store) Intrinsic(methodID string) (IntrinsicRow, bool) {
	row, ok := s.intrinsic[methodID]
	return row, ok
}

// Compatibility returns the contextual compatibility row for a method.
func (s *Store) Compatibility(methodID string) (CompatibilityRow, bool) {
	row, ok := s.compatibility[methodID]
	return row, ok
}

// ChainRow returns the precomputed pipeline-neighbor compatibility row
// for a method, or nil when none was declared.
func (s *Store) ChainRow(methodID string) map[string]float64 {
	return s.chain[methodID]
}

// Weights returns the validated fusion weights.
func (s *Store) Weights() FusionWeights {
	return s.weights
}

// FormulaVersion returns the weights file's version tag.
func (s *Store) FormulaVersion() string {
	return s.weights.Version
}

// Monolith returns the questionnaire structure.
func (s *Store) Monolith() Monolith {
	return s.monolith
}

// Governance returns the governance catalog row for a method.
func (s *Store) Governance(methodID string) (GovernanceRow, bool) {
	row, ok := s.governance[methodID]
	return row, ok
}

// CatalogVersion returns the governance catalog's version tag.
func (s *Store) CatalogVersion() string {
	return s.catalogVersion
}

// MethodCount returns how many methods carry an intrinsic row. Used for
// the startup audit event.
func (s *Store) MethodCount() int {
	return len(s.intrinsic)
}
