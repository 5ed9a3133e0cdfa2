// Package models defines the calibration engine's input and output types.
// A Subject identifies what is being calibrated, Evidence carries the
// optional per-call observations, and Result is what the engine returns.
// None of these are persisted by the engine; callers own their lifecycle.
package models

import (
	"time"

	"calibra/pkg/domain"
)

// Subject identifies the method under calibration and the operational
// role it was invoked in. Role may be empty or unrecognized; the
// resolver then infers one from the method identifier.
type Subject struct {
	MethodID string            `json:"method_id"`
	Role     string            `json:"role,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
}

// Evidence is the per-call observation bag. Every field is optional;
// each layer evaluator documents its default when the evidence it reads
// is absent. Absence is never an error.
type Evidence struct {
	PDTStructure    *PDTStructure        `json:"pdt_structure,omitempty"`
	DocumentQuality *DocumentQuality     `json:"document_quality,omitempty"`
	QuestionID      string               `json:"question_id,omitempty"`
	DimensionID     string               `json:"dimension_id,omitempty"`
	PolicyAreaID    string               `json:"policy_area_id,omitempty"`
	IntrinsicScores *IntrinsicScores     `json:"intrinsic_scores,omitempty"`
	Compatibility   *CompatibilityClaims `json:"compatibility,omitempty"`
	Governance      *GovernanceArtifacts `json:"governance,omitempty"`
}

// PDTStructure describes the processed document tree a method worked on.
type PDTStructure struct {
	ChunkCount       int     `json:"chunk_count"`
	Completeness     float64 `json:"completeness"`
	StructureQuality float64 `json:"structure_quality"`
	HasHierarchy     bool    `json:"has_hierarchy"`
	HasAnchors       bool    `json:"has_anchors"`
}

// DocumentQuality carries upstream extraction quality signals. Pointer
// fields distinguish "not measured" from a measured zero.
type DocumentQuality struct {
	OCRConfidence      *float64 `json:"ocr_confidence,omitempty"`
	ExtractionAccuracy *float64 `json:"extraction_accuracy,omitempty"`
}

// IntrinsicScores overrides the loaded intrinsic calibration row for
// this call. When present all three sub-scores are taken from here.
type IntrinsicScores struct {
	Theory         float64 `json:"theory"`
	Implementation float64 `json:"implementation"`
	Deployment     float64 `json:"deployment"`
}

// CompatibilityClaims are per-call compatibility declarations. An entry
// here wins over the loaded registry row for the same identifier.
type CompatibilityClaims struct {
	Questions  map[string]float64 `json:"questions,omitempty"`
	Dimensions map[string]float64 `json:"dimensions,omitempty"`
	Policies   map[string]float64 `json:"policies,omitempty"`
}

// GovernanceArtifacts overrides the governance catalog row for this call.
type GovernanceArtifacts struct {
	Version    string `json:"version"`
	ConfigHash string `json:"config_hash"`
	Signature  string `json:"signature"`
}

// FusionBreakdown splits the final score into its additive parts.
type FusionBreakdown struct {
	LinearSum      float64 `json:"linear_sum"`
	InteractionSum float64 `json:"interaction_sum"`
}

// Certificate is the hash-addressed audit record for one calibration.
// The identifier is deterministic over the result fields; the timestamp
// is informational and excluded from the hash.
type Certificate struct {
	ID             string    `json:"certificate_id"`
	FormulaVersion string    `json:"formula_version"`
	Timestamp      time.Time `json:"timestamp"`
}

// Result is the outcome of one calibration call.
type Result struct {
	MethodID     string                     `json:"method_id"`
	Role         domain.Role                `json:"role"`
	FinalScore   float64                    `json:"final_score"`
	LayerScores  map[domain.LayerID]float64 `json:"layer_scores"`
	ActiveLayers []string                   `json:"active_layers"`
	Fusion       FusionBreakdown            `json:"fusion_breakdown"`
	Certificate  Certificate                `json:"certificate"`
}
