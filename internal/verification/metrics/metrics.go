package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Verification requests created
	RequestsCreated prometheus.Counter

	// Holder decisions by outcome (approved, rejected, expired)
	Decisions *prometheus.CounterVec

	// Consume attempts by outcome (consumed, replay_blocked, expired,
	// invalid_proof, identity_mismatch, invalid_state, not_found, error)
	ConsumeOutcomes *prometheus.CounterVec

	// Full consume latency including trust scoring and receipt write
	ConsumeLatency prometheus.Histogram
}

// New creates a new Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustlessid_verification_requests_total",
			Help: "Total verification requests created",
		}),

		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustlessid_verification_decisions_total",
			Help: "Total holder decisions by outcome",
		}, []string{"outcome"}),

		ConsumeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustlessid_verification_consume_total",
			Help: "Total proof consumption attempts by outcome",
		}, []string{"outcome"}),

		ConsumeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustlessid_verification_consume_duration_seconds",
			Help:    "Duration of proof consumption including scoring and receipt write",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementRequestsCreated records a newly created verification request.
func (m *Metrics) IncrementRequestsCreated() {
	if m != nil {
		m.RequestsCreated.Inc()
	}
}

// IncrementDecision records a holder decision outcome.
func (m *Metrics) IncrementDecision(outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome).Inc()
	}
}

// IncrementConsumeOutcome records a consume attempt outcome.
func (m *Metrics) IncrementConsumeOutcome(outcome string) {
	if m != nil {
		m.ConsumeOutcomes.WithLabelValues(outcome).Inc()
	}
}

// ObserveConsumeLatency records the total consume duration.
func (m *Metrics) ObserveConsumeLatency(d time.Duration) {
	if m != nil {
		m.ConsumeLatency.Observe(d.Seconds())
	}
}
