package domain

import (
	"strings"

	dErrors "calibra/pkg/domain-errors"
)

// Role is the pipeline function a method performs in its execution context.
// Which scoring layers activate depends on the role, not the method.
//
// Usage: construct via ParseRole at trust boundaries; direct casting
// bypasses validation.
type Role string

// Supported roles. The three score_* roles are the full-scoring roles and
// activate every layer.
const (
	RoleIngest    Role = "ingest"
	RoleScoreQ    Role = "score_q"
	RoleScoreD    Role = "score_d"
	RoleScoreP    Role = "score_p"
	RoleAggregate Role = "aggregate"
	RoleReport    Role = "report"
	RoleTransform Role = "transform"
	RoleUtility   Role = "utility"
)

// validRoles is the single source of truth for valid roles.
var validRoles = map[Role]bool{
	RoleIngest:    true,
	RoleScoreQ:    true,
	RoleScoreD:    true,
	RoleScoreP:    true,
	RoleAggregate: true,
	RoleReport:    true,
	RoleTransform: true,
	RoleUtility:   true,
}

// roleSynonyms maps spellings seen in pipeline contracts onto canonical
// roles, so callers are not penalized for writing "ingestion" or "scoring".
var roleSynonyms = map[string]Role{
	"ingestion":      RoleIngest,
	"ingestor":       RoleIngest,
	"scoring":        RoleScoreQ,
	"score":          RoleScoreQ,
	"question":       RoleScoreQ,
	"dimension":      RoleScoreD,
	"policy":         RoleScoreP,
	"aggregation":    RoleAggregate,
	"aggregator":     RoleAggregate,
	"reporting":      RoleReport,
	"reporter":       RoleReport,
	"transformation": RoleTransform,
	"transformer":    RoleTransform,
	"util":           RoleUtility,
	"helper":         RoleUtility,
}

// ParseRole constructs a Role from external input, lower-casing and
// resolving known synonyms.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
// Callers that want inference-on-unknown handle the error themselves; an
// unknown role string is never silently accepted here.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	if r, ok := roleSynonyms[name]; ok {
		return r, nil
	}
	r := Role(name)
	if !r.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role: %s", s)
	}
	return r, nil
}

// AllRoles returns the supported roles in a stable order.
func AllRoles() []Role {
	return []Role{
		RoleIngest, RoleScoreQ, RoleScoreD, RoleScoreP,
		RoleAggregate, RoleReport, RoleTransform, RoleUtility,
	}
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsFullScoring reports whether the role activates all eight layers.
func (r Role) IsFullScoring() bool {
	return r == RoleScoreQ || r == RoleScoreD || r == RoleScoreP
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}
