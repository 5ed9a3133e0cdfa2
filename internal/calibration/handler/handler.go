package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/models"
	"calibra/pkg/domain"
	dErrors "calibra/pkg/domain-errors"
	"calibra/pkg/platform/audit"
	"calibra/pkg/platform/httputil"
	"calibra/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// defaultCertificateLimit bounds the recent-certificates listing when the
// caller does not pass one.
const defaultCertificateLimit = 50

// Service defines the interface for calibration operations.
type Service interface {
	Calibrate(ctx context.Context, subject models.Subject, evidence models.Evidence) (*models.Result, error)
	VerifyResult(ctx context.Context, result models.Result) (bool, string, error)
	RoleTable() map[domain.Role][]domain.LayerID
	Weights() artifacts.FusionWeights
}

// AuditReader reads back the calibration audit trail.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
	ListByMethod(ctx context.Context, methodID string) ([]audit.Event, error)
}

// Handler wires calibration endpoints to the calibration service.
type Handler struct {
	service Service
	trail   AuditReader
	logger  *slog.Logger
}

// New constructs a calibration handler with its dependencies.
func New(service Service, trail AuditReader, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		trail:   trail,
		logger:  logger,
	}
}

// Register mounts calibration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/calibration", func(r chi.Router) {
		r.Post("/evaluate", h.HandleEvaluate)
		r.Post("/verify", h.HandleVerify)
		r.Get("/roles", h.HandleRoles)
		r.Get("/weights", h.HandleWeights)
		r.Get("/certificates", h.HandleRecentCertificates)
		r.Get("/certificates/{methodID}", h.HandleMethodCertificates)
	})
}

// HandleEvaluate handles POST /v1/calibration/evaluate requests.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if _, err := domain.ParseRole(req.Role); req.Role != "" && err != nil {
		h.logger.InfoContext(ctx, "declared role not recognized, inferring from method id",
			"request_id", requestID,
			"method_id", req.MethodID,
			"role", req.Role,
		)
	}

	result, err := h.service.Calibrate(ctx, req.Subject(), req.EvidenceOrEmpty())
	if err != nil {
		h.logger.ErrorContext(ctx, "calibration failed",
			"request_id", requestID,
			"method_id", req.MethodID,
			"role", req.Role,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "calibration evaluated",
		"request_id", requestID,
		"method_id", result.MethodID,
		"role", result.Role.String(),
		"final_score", result.FinalScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// HandleVerify handles POST /v1/calibration/verify requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	valid, expected, err := h.service.VerifyResult(ctx, req.Result())
	if err != nil {
		h.logger.ErrorContext(ctx, "certificate verification failed",
			"request_id", requestID,
			"method_id", req.MethodID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "certificate verified",
		"request_id", requestID,
		"method_id", req.MethodID,
		"certificate_id", req.Certificate.ID,
		"valid", valid,
	)

	httputil.WriteJSON(w, http.StatusOK, &VerifyResponse{
		Valid:                 valid,
		ExpectedCertificateID: expected,
	})
}

// HandleRoles handles GET /v1/calibration/roles requests.
func (h *Handler) HandleRoles(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, FromRoleTable(h.service.RoleTable()))
}

// HandleWeights handles GET /v1/calibration/weights requests.
func (h *Handler) HandleWeights(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, FromWeights(h.service.Weights()))
}

// HandleRecentCertificates handles GET /v1/calibration/certificates requests.
func (h *Handler) HandleRecentCertificates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	limit := defaultCertificateLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := h.trail.ListRecent(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromEvents(events))
}

// HandleMethodCertificates handles GET /v1/calibration/certificates/{methodID}.
func (h *Handler) HandleMethodCertificates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	methodID := chi.URLParam(r, "methodID")
	if methodID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "method_id is required"))
		return
	}

	events, err := h.trail.ListByMethod(ctx, methodID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestID,
			"method_id", methodID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromEvents(events))
}
