// Package calibration computes bounded, auditable composite calibration
// scores. A role-dependent subset of eight scoring layers is evaluated
// against per-call evidence and fused through a discrete Choquet
// integral; every result carries a deterministic certificate that can be
// re-verified independently.
package calibration

import (
	"regexp"
	"strings"

	"calibra/pkg/domain"
)

// roleLayers is the canonical role-to-layer table. BASE and CHAIN belong
// to every role; the full-scoring roles activate all eight layers.
var roleLayers = map[domain.Role][]domain.LayerID{
	domain.RoleIngest: {
		domain.LayerBase, domain.LayerChain, domain.LayerUnit, domain.LayerMeta,
	},
	domain.RoleScoreQ: domain.AllLayers(),
	domain.RoleScoreD: domain.AllLayers(),
	domain.RoleScoreP: domain.AllLayers(),
	domain.RoleAggregate: {
		domain.LayerBase, domain.LayerChain, domain.LayerDimension,
		domain.LayerPolicy, domain.LayerCongruence, domain.LayerMeta,
	},
	domain.RoleReport: {
		domain.LayerBase, domain.LayerChain, domain.LayerPolicy,
		domain.LayerCongruence, domain.LayerMeta,
	},
	domain.RoleTransform: {
		domain.LayerBase, domain.LayerChain, domain.LayerMeta,
	},
	domain.RoleUtility: {
		domain.LayerBase, domain.LayerChain, domain.LayerMeta,
	},
}

// questionTagPattern matches identifiers carrying an explicit
// dimension/question tag like "D3Q12_scorer".
var questionTagPattern = regexp.MustCompile(`(?i)d\d+q\d+`)

// inferenceRules map identifier substrings onto roles, checked in order.
// Heuristic last resort: callers should declare the role explicitly.
var inferenceRules = []struct {
	keyword string
	role    domain.Role
}{
	{"ingest", domain.RoleIngest},
	{"chunk", domain.RoleIngest},
	{"parse", domain.RoleIngest},
	{"load", domain.RoleIngest},
	{"dimension", domain.RoleScoreD},
	{"policy", domain.RoleScoreP},
	{"aggregat", domain.RoleAggregate},
	{"merge", domain.RoleAggregate},
	{"fus", domain.RoleAggregate},
	{"report", domain.RoleReport},
	{"render", domain.RoleReport},
	{"export", domain.RoleReport},
	{"transform", domain.RoleTransform},
	{"convert", domain.RoleTransform},
	{"normal", domain.RoleTransform},
	{"map", domain.RoleTransform},
	{"util", domain.RoleUtility},
	{"helper", domain.RoleUtility},
}

// Resolver maps a subject onto its effective role and the layers that
// role requires. A declared valid role always wins; otherwise the role
// is inferred from the method identifier, falling back to score_q (all
// eight layers) when nothing matches. The set is never empty.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the effective role and its required layers.
func (r *Resolver) Resolve(methodID, declaredRole string) (domain.Role, domain.LayerSet) {
	if role, err := domain.ParseRole(declaredRole); err == nil {
		return role, r.Required(role)
	}
	return r.infer(methodID)
}

// Required returns the layer set a role activates.
func (r *Resolver) Required(role domain.Role) domain.LayerSet {
	return domain.NewLayerSet(roleLayers[role]...)
}

func (r *Resolver) infer(methodID string) (domain.Role, domain.LayerSet) {
	if questionTagPattern.MatchString(methodID) {
		return domain.RoleScoreQ, r.Required(domain.RoleScoreQ)
	}

	id := strings.ToLower(methodID)
	for _, rule := range inferenceRules {
		if strings.Contains(id, rule.keyword) {
			return rule.role, r.Required(rule.role)
		}
	}

	return domain.RoleScoreQ, r.Required(domain.RoleScoreQ)
}

// Table returns the full role-to-layer table, layers in canonical order.
func (r *Resolver) Table() map[domain.Role][]domain.LayerID {
	table := make(map[domain.Role][]domain.LayerID, len(roleLayers))
	for role := range roleLayers {
		table[role] = r.Required(role).Sorted()
	}
	return table
}
