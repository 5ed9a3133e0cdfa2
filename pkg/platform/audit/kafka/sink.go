// Package kafka provides a best-effort broker sink for audit events.
//
// Events are produced asynchronously to one topic per category so the
// compliance consumer and the ops pipeline can subscribe independently.
// Delivery is guarded by a circuit breaker: when the brokers are down the
// sink drops events instead of queueing unbounded, probing periodically
// until the cluster recovers. The store remains the durable copy; the
// sink only feeds downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "calibra/pkg/platform/audit"
	"calibra/pkg/platform/circuit"
	"calibra/pkg/platform/sentinel"
)

const (
	defaultTopicPrefix   = "calibra.audit"
	defaultProbeInterval = 30 * time.Second
)

// Sink publishes audit events to Kafka, one topic per category.
type Sink struct {
	client  *kgo.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *audit.Metrics

	topicPrefix   string
	probeInterval time.Duration

	mu        sync.Mutex
	lastProbe time.Time
}

// Option configures the Sink.
type Option func(*Sink)

// WithLogger sets a logger for delivery failures and circuit transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *audit.Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

// WithTopicPrefix overrides the topic namespace.
func WithTopicPrefix(prefix string) Option {
	return func(s *Sink) {
		if prefix != "" {
			s.topicPrefix = prefix
		}
	}
}

// WithProbeInterval sets how often an open circuit lets one event through
// to test broker recovery.
func WithProbeInterval(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.probeInterval = d
		}
	}
}

// New creates a Kafka sink producing to the given brokers.
func New(brokers []string, opts ...Option) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, sentinel.ErrUnavailable
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("calibra-audit"),
	)
	if err != nil {
		return nil, err
	}

	s := &Sink{
		client:        client,
		breaker:       circuit.New("audit-kafka", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		topicPrefix:   defaultTopicPrefix,
		probeInterval: defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Publish produces the event asynchronously. Failures trip the breaker;
// an open breaker drops events except for periodic probes.
func (s *Sink) Publish(ctx context.Context, event audit.Event) {
	if s.breaker.IsOpen() && !s.shouldProbe() {
		s.metrics.IncDropped("circuit_open")
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.metrics.IncDropped("marshal")
		return
	}

	record := &kgo.Record{
		Topic: s.topicPrefix + "." + string(event.Category),
		Key:   []byte(event.MethodID),
		Value: payload,
	}

	s.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			s.onFailure(r, err)
			return
		}
		s.onSuccess()
	})
}

// Close flushes buffered records and releases the client.
func (s *Sink) Close() {
	s.client.Close()
}

func (s *Sink) shouldProbe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastProbe) < s.probeInterval {
		return false
	}
	s.lastProbe = now
	return true
}

func (s *Sink) onFailure(r *kgo.Record, err error) {
	s.metrics.IncDropped("produce_failed")
	_, change := s.breaker.RecordFailure()
	if change.Opened {
		s.metrics.SetSinkOpen(true)
		if s.logger != nil {
			s.logger.Error("audit sink circuit opened",
				"topic", r.Topic,
				"error", err,
			)
		}
	}
}

func (s *Sink) onSuccess() {
	_, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.metrics.SetSinkOpen(false)
		if s.logger != nil {
			s.logger.Info("audit sink circuit closed")
		}
	}
}
