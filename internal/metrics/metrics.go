// Package metrics exposes Prometheus metrics for the verification engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	DecisionsTotal *prometheus.CounterVec
	TrustWeight    *prometheus.GaugeVec
	TrustTheta     *prometheus.GaugeVec
	VerifySeconds  prometheus.Histogram
}

// New creates the collectors and registers them on the given registerer.
// Pass prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lineaged_decisions_total",
			Help: "Verification decisions by identity and reason code",
		}, []string{"model_id", "reason"}),
		TrustWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lineaged_trust_weight",
			Help: "Current trust weight per identity",
		}, []string{"model_id"}),
		TrustTheta: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lineaged_trust_theta",
			Help: "Current strictness theta per identity",
		}, []string{"model_id"}),
		VerifySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineaged_verify_duration_seconds",
			Help:    "Wall time of a single proof verification",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
	reg.MustRegister(m.DecisionsTotal, m.TrustWeight, m.TrustTheta, m.VerifySeconds)
	return m
}

// ObserveDecision records one pipeline decision and the resulting trust
// state. Safe to call on a nil receiver so the engine can run unmetered.
func (m *Metrics) ObserveDecision(modelID, reason string, weight, theta, seconds float64) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(modelID, reason).Inc()
	m.TrustWeight.WithLabelValues(modelID).Set(weight)
	m.TrustTheta.WithLabelValues(modelID).Set(theta)
	m.VerifySeconds.Observe(seconds)
}
