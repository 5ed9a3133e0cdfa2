package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/handler/mocks"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
	dErrors "calibra/pkg/domain-errors"
	"calibra/pkg/platform/audit"
)

// =============================================================================
// Calibration Handler Test Suite
// =============================================================================
// Justification for unit tests: the handler owns request validation and
// status mapping. Mocking the service isolates those concerns from the
// scoring arithmetic, which has its own coverage.

type CalibrationHandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockService *mocks.MockService
	mockTrail   *mocks.MockAuditReader
	router      *chi.Mux
}

func TestCalibrationHandlerSuite(t *testing.T) {
	suite.Run(t, new(CalibrationHandlerSuite))
}

func (s *CalibrationHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	s.mockTrail = mocks.NewMockAuditReader(s.ctrl)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.mockService, s.mockTrail, logger)

	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *CalibrationHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CalibrationHandlerSuite) postJSON(path string, payload any) *httptest.ResponseRecorder {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *CalibrationHandlerSuite) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *CalibrationHandlerSuite) decodeError(rec *httptest.ResponseRecorder) (string, string) {
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	return body.Error, body.ErrorDescription
}

func (s *CalibrationHandlerSuite) sampleResult() *models.Result {
	return &models.Result{
		MethodID:   "bm25_retrieval",
		Role:       domain.RoleScoreQ,
		FinalScore: 0.7914,
		LayerScores: map[domain.LayerID]float64{
			domain.LayerBase: 0.815, domain.LayerChain: 0.7,
			domain.LayerUnit: 0.93, domain.LayerQuestion: 0.9,
			domain.LayerDimension: 0.8, domain.LayerPolicy: 0.7,
			domain.LayerCongruence: 0.6667, domain.LayerMeta: 1.0,
		},
		ActiveLayers: []string{
			"BASE", "CHAIN", "UNIT", "QUESTION",
			"DIMENSION", "POLICY", "CONGRUENCE", "META",
		},
		Fusion: models.FusionBreakdown{LinearSum: 0.6458, InteractionSum: 0.1456},
		Certificate: models.Certificate{
			ID:             "a1b2c3d4e5f60718",
			FormulaVersion: "choquet-v1",
			Timestamp:      time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
		},
	}
}

// =============================================================================
// Evaluate Endpoint Tests
// =============================================================================

func (s *CalibrationHandlerSuite) TestHandleEvaluate() {
	s.Run("valid request calibrates and returns the result", func() {
		subject := models.Subject{MethodID: "bm25_retrieval", Role: "score_q"}
		s.mockService.EXPECT().
			Calibrate(gomock.Any(), subject, models.Evidence{}).
			Return(s.sampleResult(), nil)

		rec := s.postJSON("/v1/calibration/evaluate", map[string]any{
			"method_id": "bm25_retrieval",
			"role":      "score_q",
		})

		s.Require().Equal(http.StatusOK, rec.Code)
		var resp EvaluateResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal("bm25_retrieval", resp.MethodID)
		s.Equal("score_q", resp.Role)
		s.InDelta(0.7914, resp.FinalScore, 1e-9)
		s.Len(resp.LayerScores, 8)
		s.Equal("a1b2c3d4e5f60718", resp.Certificate.ID)
		s.Equal("choquet-v1", resp.Certificate.FormulaVersion)
	})

	s.Run("evidence is forwarded to the service", func() {
		evidence := models.Evidence{QuestionID: "D1Q1"}
		s.mockService.EXPECT().
			Calibrate(gomock.Any(), gomock.Any(), evidence).
			Return(s.sampleResult(), nil)

		rec := s.postJSON("/v1/calibration/evaluate", map[string]any{
			"method_id": "bm25_retrieval",
			"evidence":  map[string]any{"question_id": "D1Q1"},
		})
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("method identifier is trimmed before use", func() {
		subject := models.Subject{MethodID: "bm25_retrieval", Role: "score_q"}
		s.mockService.EXPECT().
			Calibrate(gomock.Any(), subject, models.Evidence{}).
			Return(s.sampleResult(), nil)

		rec := s.postJSON("/v1/calibration/evaluate", map[string]any{
			"method_id": "  bm25_retrieval  ",
			"role":      " score_q ",
		})
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("missing method identifier is rejected", func() {
		rec := s.postJSON("/v1/calibration/evaluate", map[string]any{"role": "score_q"})

		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		_, description := s.decodeError(rec)
		s.Contains(description, "method_id")
	})

	s.Run("method identifier outside the charset is rejected", func() {
		rec := s.postJSON("/v1/calibration/evaluate", map[string]any{
			"method_id": "bad method!",
		})

		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		_, description := s.decodeError(rec)
		s.Contains(description, "may only contain")
	})

	s.Run("oversized method identifier is rejected", func() {
		rec := s.postJSON("/v1/calibration/evaluate", map[string]any{
			"method_id": strings.Repeat("a", 256),
		})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("malformed body is a bad request", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/calibration/evaluate",
			strings.NewReader(`{"method_id": `))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("service validation failure maps to 422", func() {
		s.mockService.EXPECT().
			Calibrate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeValidation,
				`calibration incomplete for method "x" in role ingest: missing layers META`))

		rec := s.postJSON("/v1/calibration/evaluate", map[string]any{"method_id": "x"})

		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		_, description := s.decodeError(rec)
		s.Contains(description, "missing layers META")
	})

	s.Run("internal failure maps to 500 without detail", func() {
		s.mockService.EXPECT().
			Calibrate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInternal, "store exploded"))

		rec := s.postJSON("/v1/calibration/evaluate", map[string]any{"method_id": "x"})

		s.Equal(http.StatusInternalServerError, rec.Code)
		_, description := s.decodeError(rec)
		s.Empty(description)
	})
}

// =============================================================================
// Verify Endpoint Tests
// =============================================================================

func (s *CalibrationHandlerSuite) TestHandleVerify() {
	verifyPayload := func() map[string]any {
		raw, err := json.Marshal(s.sampleResult())
		s.Require().NoError(err)
		var payload map[string]any
		s.Require().NoError(json.Unmarshal(raw, &payload))
		return payload
	}

	s.Run("matching certificate returns valid", func() {
		s.mockService.EXPECT().
			VerifyResult(gomock.Any(), gomock.Any()).
			Return(true, "a1b2c3d4e5f60718", nil)

		rec := s.postJSON("/v1/calibration/verify", verifyPayload())

		s.Require().Equal(http.StatusOK, rec.Code)
		var resp VerifyResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.True(resp.Valid)
		s.Equal("a1b2c3d4e5f60718", resp.ExpectedCertificateID)
	})

	s.Run("mismatch returns the expected identifier", func() {
		s.mockService.EXPECT().
			VerifyResult(gomock.Any(), gomock.Any()).
			Return(false, "ffffffffffffffff", nil)

		rec := s.postJSON("/v1/calibration/verify", verifyPayload())

		s.Require().Equal(http.StatusOK, rec.Code)
		var resp VerifyResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.False(resp.Valid)
		s.Equal("ffffffffffffffff", resp.ExpectedCertificateID)
	})

	s.Run("missing certificate identifier is rejected", func() {
		payload := verifyPayload()
		payload["certificate"] = map[string]any{"certificate_id": ""}

		rec := s.postJSON("/v1/calibration/verify", payload)

		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		_, description := s.decodeError(rec)
		s.Contains(description, "certificate_id")
	})

	s.Run("malformed certificate identifier is rejected", func() {
		payload := verifyPayload()
		payload["certificate"] = map[string]any{"certificate_id": "not-hex!"}

		rec := s.postJSON("/v1/calibration/verify", payload)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("missing layer scores are rejected", func() {
		payload := verifyPayload()
		delete(payload, "layer_scores")

		rec := s.postJSON("/v1/calibration/verify", payload)

		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		_, description := s.decodeError(rec)
		s.Contains(description, "layer_scores")
	})
}

// =============================================================================
// Introspection Endpoint Tests
// =============================================================================

func (s *CalibrationHandlerSuite) TestHandleRoles() {
	s.mockService.EXPECT().RoleTable().Return(map[domain.Role][]domain.LayerID{
		domain.RoleIngest: {domain.LayerBase, domain.LayerChain, domain.LayerUnit, domain.LayerMeta},
		domain.RoleScoreQ: domain.AllLayers(),
	})

	rec := s.get("/v1/calibration/roles")

	s.Require().Equal(http.StatusOK, rec.Code)
	var resp RolesResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal([]string{"BASE", "CHAIN", "UNIT", "META"}, resp.Roles["ingest"])
	s.Len(resp.Roles["score_q"], 8)
}

func (s *CalibrationHandlerSuite) TestHandleWeights() {
	pair, err := domain.NewLayerPair(domain.LayerBase, domain.LayerChain)
	s.Require().NoError(err)

	s.mockService.EXPECT().Weights().Return(artifacts.FusionWeights{
		Version: "choquet-v1",
		Linear: map[domain.LayerID]float64{
			domain.LayerBase: 0.5, domain.LayerChain: 0.3,
		},
		Interaction: map[domain.LayerPair]float64{pair: 0.2},
	})

	rec := s.get("/v1/calibration/weights")

	s.Require().Equal(http.StatusOK, rec.Code)
	var resp WeightsResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("choquet-v1", resp.FormulaVersion)
	s.Equal(0.5, resp.Linear["BASE"])
	s.Equal(0.2, resp.Interaction["BASE,CHAIN"])
	s.InDelta(0.8, resp.LinearSum, 1e-9)
	s.InDelta(0.2, resp.InteractionSum, 1e-9)
}

// =============================================================================
// Certificate Listing Tests
// =============================================================================

func (s *CalibrationHandlerSuite) TestHandleRecentCertificates() {
	events := []audit.Event{
		{Action: string(audit.EventCalibrationComputed), MethodID: "bm25_retrieval"},
		{Action: string(audit.EventCalibrationComputed), MethodID: "semantic_chunker"},
	}

	s.Run("defaults the limit", func() {
		s.mockTrail.EXPECT().ListRecent(gomock.Any(), 50).Return(events, nil)

		rec := s.get("/v1/calibration/certificates")

		s.Require().Equal(http.StatusOK, rec.Code)
		var resp CertificatesResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal(2, resp.Count)
		s.Len(resp.Events, 2)
	})

	s.Run("honors an explicit limit", func() {
		s.mockTrail.EXPECT().ListRecent(gomock.Any(), 5).Return(events[:1], nil)

		rec := s.get("/v1/calibration/certificates?limit=5")

		s.Require().Equal(http.StatusOK, rec.Code)
		var resp CertificatesResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal(1, resp.Count)
	})

	s.Run("rejects a non-positive limit", func() {
		rec := s.get("/v1/calibration/certificates?limit=0")
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("rejects a non-numeric limit", func() {
		rec := s.get("/v1/calibration/certificates?limit=abc")
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("store failure maps to 500", func() {
		s.mockTrail.EXPECT().ListRecent(gomock.Any(), 50).
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "redis down"))

		rec := s.get("/v1/calibration/certificates")
		s.Equal(http.StatusInternalServerError, rec.Code)
	})

	s.Run("empty trail serializes as an empty list", func() {
		s.mockTrail.EXPECT().ListRecent(gomock.Any(), 50).Return(nil, nil)

		rec := s.get("/v1/calibration/certificates")

		s.Require().Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"events":[]`)
	})
}

func (s *CalibrationHandlerSuite) TestHandleMethodCertificates() {
	s.Run("lists events for the method", func() {
		events := []audit.Event{
			{Action: string(audit.EventCalibrationComputed), MethodID: "bm25_retrieval"},
		}
		s.mockTrail.EXPECT().ListByMethod(gomock.Any(), "bm25_retrieval").Return(events, nil)

		rec := s.get("/v1/calibration/certificates/bm25_retrieval")

		s.Require().Equal(http.StatusOK, rec.Code)
		var resp CertificatesResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal(1, resp.Count)
		s.Equal("bm25_retrieval", resp.Events[0].MethodID)
	})

	s.Run("store failure maps to 500", func() {
		s.mockTrail.EXPECT().ListByMethod(gomock.Any(), "bm25_retrieval").
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "postgres down"))

		rec := s.get("/v1/calibration/certificates/bm25_retrieval")
		s.Equal(http.StatusInternalServerError, rec.Code)
	})
}
