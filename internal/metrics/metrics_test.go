package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDecision("model-a", "OK", 1.0, 0.5, 0.001)
	m.ObserveDecision("model-a", "REPLAY", 0.9, 0.8, 0.001)
	m.ObserveDecision("model-a", "OK", 0.93, 0.72, 0.001)

	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("model-a", "OK")); got != 2 {
		t.Errorf("OK decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("model-a", "REPLAY")); got != 1 {
		t.Errorf("REPLAY decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TrustWeight.WithLabelValues("model-a")); got != 0.93 {
		t.Errorf("trust weight gauge = %v, want 0.93", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	// Must not panic.
	m.ObserveDecision("model-a", "OK", 1.0, 0.5, 0)
}
