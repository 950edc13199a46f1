package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects engine counters. A nil *Metrics records nothing.
type Metrics struct {
	pollAttempts *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reportchain",
			Name:      "poll_attempts_total",
			Help:      "State checks made while waiting for a resource.",
		}, []string{"kind", "action"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reportchain",
			Name:      "resource_outcomes_total",
			Help:      "Per-resource outcomes of provisioning and teardown.",
		}, []string{"kind", "outcome"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reportchain",
			Name:      "operation_duration_seconds",
			Help:      "Duration of create and delete operations including waits.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"kind", "action"}),
	}
	if reg != nil {
		reg.MustRegister(m.pollAttempts, m.outcomes, m.opDuration)
	}
	return m
}

func (m *Metrics) pollAttempt(kind, action string) {
	if m == nil {
		return
	}
	m.pollAttempts.WithLabelValues(kind, action).Inc()
}

func (m *Metrics) outcome(kind string, outcome ResourceOutcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind, string(outcome)).Inc()
}

func (m *Metrics) observe(kind, action string, d time.Duration) {
	if m == nil {
		return
	}
	m.opDuration.WithLabelValues(kind, action).Observe(d.Seconds())
}
