package domain

import (
	"sort"
	"strings"

	dErrors "calibra/pkg/domain-errors"
)

// LayerID identifies one of the eight calibration scoring layers.
// This is a domain primitive that enforces validity at parse time.
type LayerID string

// The eight scoring layers, in canonical order.
const (
	LayerBase       LayerID = "BASE"
	LayerChain      LayerID = "CHAIN"
	LayerUnit       LayerID = "UNIT"
	LayerQuestion   LayerID = "QUESTION"
	LayerDimension  LayerID = "DIMENSION"
	LayerPolicy     LayerID = "POLICY"
	LayerCongruence LayerID = "CONGRUENCE"
	LayerMeta       LayerID = "META"
)

// layerOrder defines the canonical ordering used whenever layers are
// serialized or iterated. Certificates depend on this being stable.
var layerOrder = map[LayerID]int{
	LayerBase:       1,
	LayerChain:      2,
	LayerUnit:       3,
	LayerQuestion:   4,
	LayerDimension:  5,
	LayerPolicy:     6,
	LayerCongruence: 7,
	LayerMeta:       8,
}

// AllLayers returns the eight layers in canonical order.
func AllLayers() []LayerID {
	return []LayerID{
		LayerBase, LayerChain, LayerUnit, LayerQuestion,
		LayerDimension, LayerPolicy, LayerCongruence, LayerMeta,
	}
}

// ParseLayerID validates and returns a LayerID. Input is upper-cased and
// trimmed so artifact files may use any casing.
// Returns CodeInvalidInput for empty or unknown names.
func ParseLayerID(s string) (LayerID, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "layer name cannot be empty")
	}
	l := LayerID(name)
	if !l.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown layer: %s", s)
	}
	return l, nil
}

// IsValid reports whether the layer is one of the eight known layers.
func (l LayerID) IsValid() bool {
	_, ok := layerOrder[l]
	return ok
}

// String returns the string representation of the layer.
func (l LayerID) String() string {
	return string(l)
}

// Before reports whether l precedes other in canonical order.
// Unknown layers sort after all known ones.
func (l LayerID) Before(other LayerID) bool {
	lo, lok := layerOrder[l]
	oo, ook := layerOrder[other]
	if !lok {
		return false
	}
	if !ook {
		return true
	}
	return lo < oo
}

// LayerSet is an unordered collection of layers with deterministic
// canonical-order iteration via Sorted.
type LayerSet map[LayerID]struct{}

// NewLayerSet builds a set from the given layers.
func NewLayerSet(layers ...LayerID) LayerSet {
	s := make(LayerSet, len(layers))
	for _, l := range layers {
		s[l] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s LayerSet) Contains(l LayerID) bool {
	_, ok := s[l]
	return ok
}

// Sorted returns the members in canonical layer order.
func (s LayerSet) Sorted() []LayerID {
	out := make([]LayerID, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Strings returns the members in canonical order as plain strings.
func (s LayerSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, l := range sorted {
		out[i] = l.String()
	}
	return out
}

// LayerPair is an unordered pair of distinct layers, stored in canonical
// order so "BASE,CHAIN" and "CHAIN,BASE" are the same pair.
type LayerPair struct {
	First  LayerID
	Second LayerID
}

// NewLayerPair canonicalizes and validates a pair.
// Returns CodeInvalidInput for unknown layers or a self-pair.
func NewLayerPair(a, b LayerID) (LayerPair, error) {
	if !a.IsValid() {
		return LayerPair{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown layer: %s", a)
	}
	if !b.IsValid() {
		return LayerPair{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown layer: %s", b)
	}
	if a == b {
		return LayerPair{}, dErrors.Newf(dErrors.CodeInvalidInput, "interaction pair must name two distinct layers, got %s twice", a)
	}
	if b.Before(a) {
		a, b = b, a
	}
	return LayerPair{First: a, Second: b}, nil
}

// ParseLayerPair parses a "LAYER,LAYER" key as used in the fusion weights
// artifact. Order inside the key does not matter.
func ParseLayerPair(s string) (LayerPair, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return LayerPair{}, dErrors.Newf(dErrors.CodeInvalidInput, "interaction key must be two comma-separated layers, got %q", s)
	}
	a, err := ParseLayerID(parts[0])
	if err != nil {
		return LayerPair{}, err
	}
	b, err := ParseLayerID(parts[1])
	if err != nil {
		return LayerPair{}, err
	}
	return NewLayerPair(a, b)
}

// String returns the canonical "FIRST,SECOND" form.
func (p LayerPair) String() string {
	return p.First.String() + "," + p.Second.String()
}

// Touches reports whether the pair involves the given layer.
func (p LayerPair) Touches(l LayerID) bool {
	return p.First == l || p.Second == l
}
