package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	Sampled         prometheus.Counter
	PersistFailures prometheus.Counter
	SinkState       prometheus.Gauge
}

// NewMetrics creates a Metrics instance with audit metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calibra_audit_events_emitted_total",
			Help: "Total number of audit events emitted, by category",
		}, []string{"category"}),
		Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calibra_audit_events_dropped_total",
			Help: "Total number of audit events dropped, by cause",
		}, []string{"cause"}),
		Sampled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "calibra_audit_events_sampled_out_total",
			Help: "Total number of operations events dropped by sampling",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "calibra_audit_persist_failures_total",
			Help: "Total number of audit event persistence failures",
		}),
		SinkState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "calibra_audit_sink_circuit_open",
			Help: "Broker sink circuit state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

// IncEmitted increments the emitted counter for a category.
func (m *Metrics) IncEmitted(category EventCategory) {
	if m != nil {
		m.Emitted.WithLabelValues(string(category)).Inc()
	}
}

// IncDropped increments the dropped counter for a cause.
func (m *Metrics) IncDropped(cause string) {
	if m != nil {
		m.Dropped.WithLabelValues(cause).Inc()
	}
}

// IncSampled increments the sampled-out counter.
func (m *Metrics) IncSampled() {
	if m != nil {
		m.Sampled.Inc()
	}
}

// IncPersistFailures increments the persist failures counter.
func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

// SetSinkOpen sets the sink circuit state gauge.
func (m *Metrics) SetSinkOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.SinkState.Set(1)
	} else {
		m.SinkState.Set(0)
	}
}
