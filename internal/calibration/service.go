package calibration

import (
	"context"
	"log/slog"
	"time"

	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/layers"
	"calibra/internal/calibration/metrics"
	"calibra/internal/calibration/models"
	"calibra/internal/calibration/ports"
	"calibra/pkg/attrs"
	"calibra/pkg/domain"
	dErrors "calibra/pkg/domain-errors"
	"calibra/pkg/platform/audit"
	"calibra/pkg/requestcontext"
)

// Service is the calibration facade: resolve the role, evaluate the
// active layers, validate completeness, fuse, certify. The computation
// is pure and synchronous over the frozen artifact store and safe for
// unbounded concurrent use; metrics and audit emission are the only
// side effects and never fail a call.
type Service struct {
	store      *artifacts.Store
	resolver   *Resolver
	registry   layers.Registry
	aggregator *ChoquetAggregator
	certifier  *CertificateGenerator
	logger     *slog.Logger
	metrics    *metrics.Metrics
	audit      ports.AuditRecorder
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditRecorder(recorder ports.AuditRecorder) Option {
	return func(s *Service) {
		s.audit = recorder
	}
}

// New constructs a Service over a loaded artifact store.
func New(store *artifacts.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "calibration service requires a loaded artifact store")
	}

	s := &Service{
		store:      store,
		resolver:   NewResolver(),
		registry:   layers.NewRegistry(store),
		aggregator: NewChoquetAggregator(store.Weights()),
		certifier:  NewCertificateGenerator(store.FormulaVersion()),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Calibrate computes the composite calibration score for one subject.
func (s *Service) Calibrate(ctx context.Context, subject models.Subject, evidence models.Evidence) (*models.Result, error) {
	start := time.Now()

	role, active := s.resolver.Resolve(subject.MethodID, subject.Role)
	// Evaluators see the effective role, not whatever the caller wrote.
	subject.Role = role.String()

	scores := make(map[domain.LayerID]float64, len(active))
	for _, layerID := range active.Sorted() {
		evaluator, ok := s.registry[layerID]
		if !ok {
			// Completeness turns the gap into a hard error below.
			continue
		}
		score := evaluator.Evaluate(subject, evidence)
		scores[layerID] = score
		s.metrics.ObserveLayerScore(layerID.String(), score)
	}

	if err := ValidateCompleteness(subject.MethodID, role, active, scores); err != nil {
		s.logger.ErrorContext(ctx, "calibration rejected",
			"method_id", subject.MethodID,
			"role", role.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx))
		s.metrics.IncFailure("incomplete")
		s.emitRejected(ctx, subject.MethodID, role, err)
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	outcome := s.aggregator.Aggregate(active, scores)
	if outcome.Clamped() {
		s.reportBoundedness(ctx, subject.MethodID, role, outcome)
	}

	breakdown := models.FusionBreakdown{
		LinearSum:      outcome.LinearSum,
		InteractionSum: outcome.InteractionSum,
	}
	certificate, err := s.certifier.Generate(ctx, subject.MethodID, role, outcome.Final, scores, breakdown)
	if err != nil {
		s.metrics.IncFailure("internal")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate certificate")
	}

	result := &models.Result{
		MethodID:     subject.MethodID,
		Role:         role,
		FinalScore:   outcome.Final,
		LayerScores:  scores,
		ActiveLayers: active.Strings(),
		Fusion:       breakdown,
		Certificate:  certificate,
	}

	s.metrics.IncCalibration(role.String())
	s.metrics.ObserveFinalScore(role.String(), outcome.Final)
	s.metrics.ObserveEvaluateLatency(time.Since(start))
	s.logger.InfoContext(ctx, "calibration computed",
		"method_id", result.MethodID,
		"role", role.String(),
		"final_score", result.FinalScore,
		"certificate_id", certificate.ID,
		"active_layers", len(result.ActiveLayers),
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestcontext.RequestID(ctx))
	s.emitComputed(ctx, result)

	return result, nil
}

// VerifyResult recomputes a result's certificate from its own fields and
// reports whether it matches, along with the expected identifier.
func (s *Service) VerifyResult(ctx context.Context, result models.Result) (bool, string, error) {
	ok, expected, err := s.certifier.Verify(result)
	if err != nil {
		return false, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify certificate")
	}

	if ok {
		s.metrics.IncVerification("valid")
		s.emitVerification(ctx, result, audit.EventCertificateVerified, "")
		return true, expected, nil
	}

	s.metrics.IncVerification("mismatch")
	s.logger.WarnContext(ctx, "certificate mismatch",
		"method_id", result.MethodID,
		"certificate_id", result.Certificate.ID,
		"expected_certificate_id", expected,
		"request_id", requestcontext.RequestID(ctx))
	s.emitVerification(ctx, result, audit.EventCertificateMismatch, "recomputed certificate "+expected)
	return false, expected, nil
}

// RoleTable returns the canonical role-to-layer table.
func (s *Service) RoleTable() map[domain.Role][]domain.LayerID {
	return s.resolver.Table()
}

// Weights returns the loaded fusion weights.
func (s *Service) Weights() artifacts.FusionWeights {
	return s.store.Weights()
}

func (s *Service) emitComputed(ctx context.Context, result *models.Result) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		Category:       audit.CategoryCompliance,
		Timestamp:      result.Certificate.Timestamp,
		Action:         string(audit.EventCalibrationComputed),
		MethodID:       result.MethodID,
		Role:           result.Role.String(),
		CertificateID:  result.Certificate.ID,
		FormulaVersion: result.Certificate.FormulaVersion,
		FinalScore:     result.FinalScore,
		ActiveLayers:   result.ActiveLayers,
		RequestID:      requestcontext.RequestID(ctx),
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", audit.EventCalibrationComputed, "error", err)
	}
}

func (s *Service) emitRejected(ctx context.Context, methodID string, role domain.Role, cause error) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		Category:  audit.CategoryCompliance,
		Action:    string(audit.EventCalibrationRejected),
		MethodID:  methodID,
		Role:      role.String(),
		Reason:    cause.Error(),
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", audit.EventCalibrationRejected, "error", err)
	}
}

func (s *Service) reportBoundedness(ctx context.Context, methodID string, role domain.Role, outcome FusionOutcome) {
	s.logger.WarnContext(ctx, "boundedness violation",
		"method_id", methodID,
		"role", role.String(),
		"raw_score", outcome.Raw,
		"clamped_score", outcome.Final,
		"request_id", requestcontext.RequestID(ctx))
	s.metrics.IncBoundednessViolation()

	if s.audit == nil {
		return
	}
	event := audit.Event{
		Category:  audit.CategoryOperations,
		Action:    string(audit.EventBoundednessViolation),
		MethodID:  methodID,
		Role:      role.String(),
		Reason:    "aggregate outside [0,1] before clamping",
		Detail:    attrs.ToDetail([]any{"raw_score", outcome.Raw}),
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", audit.EventBoundednessViolation, "error", err)
	}
}

func (s *Service) emitVerification(ctx context.Context, result models.Result, action audit.AuditEvent, reason string) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		Action:         string(action),
		MethodID:       result.MethodID,
		Role:           result.Role.String(),
		CertificateID:  result.Certificate.ID,
		FormulaVersion: result.Certificate.FormulaVersion,
		FinalScore:     result.FinalScore,
		Reason:         reason,
		RequestID:      requestcontext.RequestID(ctx),
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", action, "error", err)
	}
}
