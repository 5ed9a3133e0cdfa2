package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the calibration module.
type Metrics struct {
	// Completed calibrations by effective role
	Calibrations *prometheus.CounterVec

	// Failed calibrations by reason
	Failures *prometheus.CounterVec

	// Final score distribution by effective role
	FinalScore *prometheus.HistogramVec

	// Per-layer score distribution
	LayerScore *prometheus.HistogramVec

	// Full calibration latency including evaluation and fusion
	EvaluateLatency prometheus.Histogram

	// Aggregates that left [0,1] before clamping
	BoundednessViolations prometheus.Counter

	// Certificate verifications by outcome
	Verifications *prometheus.CounterVec
}

// New creates a Metrics instance with all calibration metrics registered.
func New() *Metrics {
	scoreBuckets := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}

	return &Metrics{
		Calibrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calibra_calibrations_total",
			Help: "Completed calibrations by effective role",
		}, []string{"role"}),

		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calibra_calibration_failures_total",
			Help: "Failed calibrations by reason",
		}, []string{"reason"}), // reason: "incomplete", "internal"

		FinalScore: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calibra_final_score",
			Help:    "Distribution of final calibration scores by effective role",
			Buckets: scoreBuckets,
		}, []string{"role"}),

		LayerScore: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calibra_layer_score",
			Help:    "Distribution of per-layer scores",
			Buckets: scoreBuckets,
		}, []string{"layer"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "calibra_evaluate_duration_seconds",
			Help:    "Duration of a full calibration call",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),

		BoundednessViolations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "calibra_boundedness_violations_total",
			Help: "Aggregates that fell outside [0,1] before clamping",
		}),

		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calibra_certificate_verifications_total",
			Help: "Certificate verifications by outcome",
		}, []string{"outcome"}), // outcome: "valid", "mismatch"
	}
}

// IncCalibration records a completed calibration.
func (m *Metrics) IncCalibration(role string) {
	if m != nil {
		m.Calibrations.WithLabelValues(role).Inc()
	}
}

// IncFailure records a failed calibration.
func (m *Metrics) IncFailure(reason string) {
	if m != nil {
		m.Failures.WithLabelValues(reason).Inc()
	}
}

// ObserveFinalScore records a final score.
func (m *Metrics) ObserveFinalScore(role string, score float64) {
	if m != nil {
		m.FinalScore.WithLabelValues(role).Observe(score)
	}
}

// ObserveLayerScore records one layer's score.
func (m *Metrics) ObserveLayerScore(layer string, score float64) {
	if m != nil {
		m.LayerScore.WithLabelValues(layer).Observe(score)
	}
}

// ObserveEvaluateLatency records the duration of a calibration call.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncBoundednessViolation records a clamped aggregate.
func (m *Metrics) IncBoundednessViolation() {
	if m != nil {
		m.BoundednessViolations.Inc()
	}
}

// IncVerification records a certificate verification outcome.
func (m *Metrics) IncVerification(outcome string) {
	if m != nil {
		m.Verifications.WithLabelValues(outcome).Inc()
	}
}
