package layers

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
)

// =============================================================================
// Layer Evaluators Test Suite
// =============================================================================
// Justification for unit tests: each evaluator is a pure scoring function
// with exact expected values (blend weights, damping, penalties, step
// functions). Feature tests see only the fused score and cannot pin down
// which layer produced a wrong number.

type LayerEvaluatorsSuite struct {
	suite.Suite
	store *artifacts.Store
}

func TestLayerEvaluatorsSuite(t *testing.T) {
	suite.Run(t, new(LayerEvaluatorsSuite))
}

func (s *LayerEvaluatorsSuite) SetupSuite() {
	store, err := artifacts.Load("../../../testdata/artifacts")
	s.Require().NoError(err)
	s.store = store
}

func (s *LayerEvaluatorsSuite) subject(methodID string) models.Subject {
	return models.Subject{MethodID: methodID, Role: "score_q"}
}

func floatPtr(v float64) *float64 { return &v }

// =============================================================================
// Registry Tests
// =============================================================================

func (s *LayerEvaluatorsSuite) TestNewRegistry() {
	registry := NewRegistry(s.store)
	s.Len(registry, 8)

	for _, layerID := range domain.AllLayers() {
		evaluator, ok := registry[layerID]
		s.Require().True(ok, "no evaluator for layer %s", layerID)
		s.Equal(layerID, evaluator.LayerID())
	}
}

// =============================================================================
// BASE Layer Tests (intrinsic quality blend)
// =============================================================================

func (s *LayerEvaluatorsSuite) TestBase() {
	base := NewBase(s.store)

	s.Run("blends the registry row", func() {
		// 0.40*0.9 + 0.35*0.8 + 0.25*0.7
		got := base.Evaluate(s.subject("bm25_retrieval"), models.Evidence{})
		s.InDelta(0.815, got, 1e-9)
	})

	s.Run("unregistered method scores neutral", func() {
		got := base.Evaluate(s.subject("never_registered"), models.Evidence{})
		s.Equal(0.5, got)
	})

	s.Run("evidence overrides the registry row", func() {
		evidence := models.Evidence{IntrinsicScores: &models.IntrinsicScores{
			Theory: 0.2, Implementation: 0.2, Deployment: 0.2,
		}}
		got := base.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.InDelta(0.2, got, 1e-9)
	})

	s.Run("sub-scores are clamped before blending", func() {
		evidence := models.Evidence{IntrinsicScores: &models.IntrinsicScores{
			Theory: 1.5, Implementation: 0.5, Deployment: 0.5,
		}}
		got := base.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.InDelta(0.7, got, 1e-9)
	})
}

// =============================================================================
// CHAIN Layer Tests (pipeline neighbor compatibility)
// =============================================================================

func (s *LayerEvaluatorsSuite) TestChain() {
	chain := NewChain(s.store)

	s.Run("averages the neighbor row", func() {
		got := chain.Evaluate(s.subject("bm25_retrieval"), models.Evidence{})
		s.InDelta(0.7, got, 1e-9)
	})

	s.Run("single-neighbor row", func() {
		got := chain.Evaluate(s.subject("doc.Ingestor"), models.Evidence{})
		s.InDelta(0.9, got, 1e-9)
	})

	s.Run("no row and no quality signals lands mid-default", func() {
		got := chain.Evaluate(s.subject("never_registered"), models.Evidence{})
		s.InDelta(0.65, got, 1e-9)
	})

	s.Run("document quality modulates the default", func() {
		evidence := models.Evidence{DocumentQuality: &models.DocumentQuality{
			OCRConfidence:      floatPtr(0.9),
			ExtractionAccuracy: floatPtr(0.7),
		}}
		got := chain.Evaluate(s.subject("never_registered"), evidence)
		s.InDelta(0.68, got, 1e-9)
	})

	s.Run("unmeasured signals are skipped, not zeroed", func() {
		evidence := models.Evidence{DocumentQuality: &models.DocumentQuality{
			OCRConfidence: floatPtr(0.9),
		}}
		got := chain.Evaluate(s.subject("never_registered"), evidence)
		s.InDelta(0.69, got, 1e-9)
	})

	s.Run("registry row wins over document quality", func() {
		evidence := models.Evidence{DocumentQuality: &models.DocumentQuality{
			OCRConfidence: floatPtr(0.1),
		}}
		got := chain.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.InDelta(0.7, got, 1e-9)
	})
}

// =============================================================================
// UNIT Layer Tests (processed document tree structure)
// =============================================================================

func (s *LayerEvaluatorsSuite) TestUnit() {
	unit := NewUnit()

	s.Run("no structure scores neutral", func() {
		got := unit.Evaluate(s.subject("bm25_retrieval"), models.Evidence{})
		s.Equal(0.5, got)
	})

	s.Run("rich structure scores high", func() {
		evidence := models.Evidence{PDTStructure: &models.PDTStructure{
			ChunkCount:       40,
			Completeness:     0.9,
			StructureQuality: 0.8,
			HasHierarchy:     true,
			HasAnchors:       true,
		}}
		// 0.40*0.9 + 0.30*1.0 + 0.30*(0.5*1.0 + 0.5*0.8)
		got := unit.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.InDelta(0.93, got, 1e-9)
	})

	s.Run("tiny tree is capped by the size bucket", func() {
		evidence := models.Evidence{PDTStructure: &models.PDTStructure{
			ChunkCount:   3,
			Completeness: 1.0,
		}}
		// 0.40*1.0 + 0.30*0.25 + 0.30*0
		got := unit.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.InDelta(0.475, got, 1e-9)
	})

	s.Run("empty tree scores zero", func() {
		evidence := models.Evidence{PDTStructure: &models.PDTStructure{}}
		got := unit.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.Equal(0.0, got)
	})

	s.Run("size bucket thresholds", func() {
		for chunks, bucket := range map[int]float64{
			1: 0.25, 4: 0.25, 5: 0.5, 14: 0.5, 15: 0.75, 39: 0.75, 40: 1.0,
		} {
			evidence := models.Evidence{PDTStructure: &models.PDTStructure{ChunkCount: chunks}}
			got := unit.Evaluate(s.subject("bm25_retrieval"), evidence)
			s.InDelta(0.3*bucket, got, 1e-9, "chunk count %d", chunks)
		}
	})
}

// =============================================================================
// QUESTION Layer Tests (declared, inherited, penalized)
// =============================================================================

func (s *LayerEvaluatorsSuite) TestQuestion() {
	question := NewQuestion(s.store)

	s.Run("direct declaration", func() {
		got := question.Evaluate(s.subject("bm25_retrieval"), models.Evidence{QuestionID: "D1Q1"})
		s.InDelta(0.9, got, 1e-9)
	})

	s.Run("undeclared question inherits its dimension, damped", func() {
		// D1Q2 is undeclared; parent D1 declares 0.8, damped by 0.9.
		got := question.Evaluate(s.subject("bm25_retrieval"), models.Evidence{QuestionID: "D1Q2"})
		s.InDelta(0.72, got, 1e-9)
	})

	s.Run("inheritance stops after one step", func() {
		// D3Q1's dimension D3 is undeclared. D3's policy area P1 is
		// declared, but the question layer never reaches that far.
		got := question.Evaluate(s.subject("bm25_retrieval"), models.Evidence{QuestionID: "D3Q1"})
		s.Equal(0.1, got)
	})

	s.Run("unknown question id is penalized", func() {
		got := question.Evaluate(s.subject("bm25_retrieval"), models.Evidence{QuestionID: "D9Q9"})
		s.Equal(0.1, got)
	})

	s.Run("no question id scores neutral", func() {
		got := question.Evaluate(s.subject("bm25_retrieval"), models.Evidence{})
		s.Equal(0.5, got)
	})

	s.Run("per-call claims win over the registry", func() {
		evidence := models.Evidence{
			QuestionID:    "D1Q1",
			Compatibility: &models.CompatibilityClaims{Questions: map[string]float64{"D1Q1": 0.3}},
		}
		got := question.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.InDelta(0.3, got, 1e-9)
	})

	s.Run("claims cover methods the registry never saw", func() {
		evidence := models.Evidence{
			QuestionID:    "D1Q1",
			Compatibility: &models.CompatibilityClaims{Questions: map[string]float64{"D1Q1": 0.95}},
		}
		got := question.Evaluate(s.subject("novel_method"), evidence)
		s.InDelta(0.95, got, 1e-9)
	})

	s.Run("claims that skip the id fall through to the registry", func() {
		evidence := models.Evidence{
			QuestionID:    "D1Q1",
			Compatibility: &models.CompatibilityClaims{Dimensions: map[string]float64{"D1": 0.2}},
		}
		got := question.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.InDelta(0.9, got, 1e-9)
	})

	s.Run("claimed calls never poison the registry cache", func() {
		claimed := question.Evaluate(s.subject("bm25_retrieval"), models.Evidence{
			QuestionID:    "D1Q1",
			Compatibility: &models.CompatibilityClaims{Questions: map[string]float64{"D1Q1": 0.3}},
		})
		s.InDelta(0.3, claimed, 1e-9)

		pure := question.Evaluate(s.subject("bm25_retrieval"), models.Evidence{QuestionID: "D1Q1"})
		s.InDelta(0.9, pure, 1e-9)
	})

	s.Run("repeated lookups are stable", func() {
		first := question.Evaluate(s.subject("bm25_retrieval"), models.Evidence{QuestionID: "D1Q2"})
		second := question.Evaluate(s.subject("bm25_retrieval"), models.Evidence{QuestionID: "D1Q2"})
		s.Equal(first, second)
	})
}

// =============================================================================
// DIMENSION Layer Tests
// =============================================================================

func (s *LayerEvaluatorsSuite) TestDimension() {
	dimension := NewDimension(s.store)

	s.Run("direct declaration", func() {
		got := dimension.Evaluate(s.subject("bm25_retrieval"), models.Evidence{DimensionID: "D1"})
		s.InDelta(0.8, got, 1e-9)
	})

	s.Run("undeclared dimension inherits its policy area, damped", func() {
		// D3 is undeclared; its policy area P1 declares 0.7.
		got := dimension.Evaluate(s.subject("bm25_retrieval"), models.Evidence{DimensionID: "D3"})
		s.InDelta(0.63, got, 1e-9)
	})

	s.Run("undeclared dimension under an undeclared policy area is penalized", func() {
		got := dimension.Evaluate(s.subject("bm25_retrieval"), models.Evidence{DimensionID: "D2"})
		s.Equal(0.1, got)
	})

	s.Run("no dimension id scores neutral", func() {
		got := dimension.Evaluate(s.subject("bm25_retrieval"), models.Evidence{})
		s.Equal(0.5, got)
	})
}

// =============================================================================
// POLICY Layer Tests
// =============================================================================

func (s *LayerEvaluatorsSuite) TestPolicy() {
	policy := NewPolicy(s.store)

	s.Run("direct declaration", func() {
		got := policy.Evaluate(s.subject("bm25_retrieval"), models.Evidence{PolicyAreaID: "P1"})
		s.InDelta(0.7, got, 1e-9)
	})

	s.Run("undeclared policy area is penalized with no further fallback", func() {
		got := policy.Evaluate(s.subject("bm25_retrieval"), models.Evidence{PolicyAreaID: "P2"})
		s.Equal(0.1, got)
	})

	s.Run("no policy area id scores neutral", func() {
		got := policy.Evaluate(s.subject("bm25_retrieval"), models.Evidence{})
		s.Equal(0.5, got)
	})

	s.Run("per-call claims win", func() {
		evidence := models.Evidence{
			PolicyAreaID:  "P2",
			Compatibility: &models.CompatibilityClaims{Policies: map[string]float64{"P2": 0.6}},
		}
		got := policy.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.InDelta(0.6, got, 1e-9)
	})
}

// =============================================================================
// CONGRUENCE Layer Tests (role contract match)
// =============================================================================

func (s *LayerEvaluatorsSuite) TestCongruence() {
	congruence := NewCongruence(s.store)

	s.Run("partial contract match scores the matched fraction", func() {
		// score_q expects window, normalize and stemmer; bm25 satisfies two.
		got := congruence.Evaluate(models.Subject{MethodID: "bm25_retrieval", Role: "score_q"}, models.Evidence{})
		s.InDelta(2.0/3.0, got, 1e-9)
	})

	s.Run("full contract match scores one", func() {
		got := congruence.Evaluate(models.Subject{MethodID: "bm25_retrieval", Role: "ingest"}, models.Evidence{})
		s.InDelta(1.0, got, 1e-9)
	})

	s.Run("mismatched parameter value scores zero", func() {
		got := congruence.Evaluate(models.Subject{MethodID: "semantic_chunker", Role: "ingest"}, models.Evidence{})
		s.InDelta(0.0, got, 1e-9)
	})

	s.Run("role with no contract scores the default", func() {
		got := congruence.Evaluate(models.Subject{MethodID: "bm25_retrieval", Role: "report"}, models.Evidence{})
		s.Equal(0.8, got)
	})

	s.Run("method with no declared parameters scores the default", func() {
		got := congruence.Evaluate(models.Subject{MethodID: "doc.Ingestor", Role: "score_q"}, models.Evidence{})
		s.Equal(0.8, got)
	})

	s.Run("unregistered method scores the default", func() {
		got := congruence.Evaluate(models.Subject{MethodID: "never_registered", Role: "score_q"}, models.Evidence{})
		s.Equal(0.8, got)
	})
}

// =============================================================================
// META Layer Tests (governance completeness step function)
// =============================================================================

func (s *LayerEvaluatorsSuite) TestMeta() {
	meta := NewMeta(s.store)

	goodHash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	goodSignature := "sig-0123456789abcdef0123456789abcdef"

	s.Run("fully governed method scores one", func() {
		got := meta.Evaluate(s.subject("bm25_retrieval"), models.Evidence{})
		s.Equal(1.0, got)
	})

	s.Run("one well-formed artifact out of three", func() {
		// semantic_chunker has a valid version, a malformed hash and a
		// short signature.
		got := meta.Evaluate(s.subject("semantic_chunker"), models.Evidence{})
		s.Equal(0.33, got)
	})

	s.Run("ungoverned method scores zero", func() {
		got := meta.Evaluate(s.subject("never_registered"), models.Evidence{})
		s.Equal(0.0, got)
	})

	s.Run("evidence overrides the catalog row", func() {
		evidence := models.Evidence{Governance: &models.GovernanceArtifacts{
			Version:    "v2.0",
			ConfigHash: goodHash,
			Signature:  goodSignature,
		}}
		got := meta.Evaluate(s.subject("never_registered"), evidence)
		s.Equal(1.0, got)
	})

	s.Run("two well-formed artifacts", func() {
		evidence := models.Evidence{Governance: &models.GovernanceArtifacts{
			Version:    "not a version",
			ConfigHash: goodHash,
			Signature:  goodSignature,
		}}
		got := meta.Evaluate(s.subject("bm25_retrieval"), evidence)
		s.Equal(0.66, got)
	})

	s.Run("version formats", func() {
		for version, wellFormed := range map[string]bool{
			"v1.2.0": true, "1.0": true, "3": true,
			"2024-05": false, "v1.2.x": false, "": false,
		} {
			evidence := models.Evidence{Governance: &models.GovernanceArtifacts{Version: version}}
			got := meta.Evaluate(s.subject("never_registered"), evidence)
			if wellFormed {
				s.Equal(0.33, got, "version %q", version)
			} else {
				s.Equal(0.0, got, "version %q", version)
			}
		}
	})
}
