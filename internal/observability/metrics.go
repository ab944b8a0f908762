package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for session and gate decisions.
type Metrics struct {
	AuthOutcomes  *prometheus.CounterVec
	GateDecisions *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "confera",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session manager operations by operation and outcome code.",
		}, []string{"operation", "outcome"}),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "confera",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Request gate decisions by outcome code.",
		}, []string{"outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "confera",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method, route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.AuthOutcomes, m.GateDecisions, m.HTTPDuration)
	return m
}

// Auth counts one session operation outcome. outcome is "ok" or an error code.
// A nil *Metrics discards observations.
func (m *Metrics) Auth(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(operation, outcome).Inc()
}

// Gate counts one request gate decision.
func (m *Metrics) Gate(outcome string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(outcome).Inc()
}
