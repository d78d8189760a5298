// Package metrics exposes Prometheus collectors for the authentication and
// rate-limiting path. Degraded-mode events (fail-open admissions, dropped
// usage writes) are the signals operators alert on.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the subsystem.
type Metrics struct {
	AuthOutcomes       *prometheus.CounterVec
	LimiterDecisions   *prometheus.CounterVec
	UsageWriteFailures prometheus.Counter
}

// New creates the collectors and registers them with reg. Tests pass their
// own registry so collectors never collide across instances.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_auth_outcomes_total",
				Help: "Authentication outcomes by result code",
			},
			[]string{"outcome"},
		),
		LimiterDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_limiter_decisions_total",
				Help: "Rate limiter decisions (admitted, denied, admitted_degraded)",
			},
			[]string{"outcome"},
		),
		UsageWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keygate_usage_write_failures_total",
				Help: "Usage records dropped because the store write failed",
			},
		),
	}
	reg.MustRegister(m.AuthOutcomes, m.LimiterDecisions, m.UsageWriteFailures)
	return m
}
