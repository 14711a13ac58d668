package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lineaged/internal/engine"
	"lineaged/internal/trust"
)

func decision(seq uint64, reason engine.Reason, w, theta float64) engine.Decision {
	return engine.Decision{
		Seq:      seq,
		ModelID:  "m",
		Reason:   reason,
		Accepted: reason == engine.ReasonOK,
		Trust:    trust.State{Weight: w, Theta: theta},
	}
}

func TestConsistency(t *testing.T) {
	decs := []engine.Decision{
		decision(0, engine.ReasonOK, 1, 0.5),
		decision(1, engine.ReasonOK, 1, 0.5),
		decision(2, engine.ReasonBadSignature, 0.9, 0.8),
		decision(3, engine.ReasonOK, 0.93, 0.72),
	}
	assert.InDelta(t, 0.75, Consistency(decs), 1e-9)
	assert.Equal(t, 1.0, Consistency(nil))
}

func TestStructuralConsistency(t *testing.T) {
	decs := []engine.Decision{
		decision(0, engine.ReasonOK, 1, 0.5),
		decision(1, engine.ReasonMalformed, 0.9, 0.8),
		decision(2, engine.ReasonBadSignature, 0.8, 1.1),
		decision(3, engine.ReasonOK, 0.83, 1.02),
	}
	// Only the MALFORMED decision fails the structural screen.
	assert.InDelta(t, 0.75, StructuralConsistency(decs), 1e-9)
}

func TestBatchStateSeparatesHonestFromNoisy(t *testing.T) {
	p := trust.DefaultParams()
	bp := trust.DefaultBatchParams()

	var honest, noisy []engine.Decision
	for i := 0; i < 100; i++ {
		honest = append(honest, decision(uint64(i), engine.ReasonOK, 1, 0.5))
		r := engine.ReasonOK
		if i%5 == 4 { // 20% forced-bad
			r = engine.ReasonBadSignature
		}
		noisy = append(noisy, decision(uint64(i), r, 1, 0.5))
	}

	hs := BatchState(honest, bp, p)
	ns := BatchState(noisy, bp, p)
	assert.Greater(t, hs.Weight, ns.Weight)

	// The ratio is over the full history, so the gap persists even after
	// the noisy identity stops cheating.
	for i := 100; i < 200; i++ {
		honest = append(honest, decision(uint64(i), engine.ReasonOK, 1, 0.5))
		noisy = append(noisy, decision(uint64(i), engine.ReasonOK, 1, 0.5))
	}
	hs = BatchState(honest, bp, p)
	ns = BatchState(noisy, bp, p)
	assert.Greater(t, hs.Weight, ns.Weight, "gap must not close without a decay mechanism")
}

func TestBatchStateBounds(t *testing.T) {
	p := trust.DefaultParams()
	bp := trust.DefaultBatchParams()

	var allBad []engine.Decision
	for i := 0; i < 200; i++ {
		allBad = append(allBad, decision(uint64(i), engine.ReasonBadSignature, 0, 5))
	}
	s := BatchState(allBad, bp, p)
	assert.GreaterOrEqual(t, s.Weight, 0.0)
	assert.LessOrEqual(t, s.Weight, 1.0)
	assert.GreaterOrEqual(t, s.Theta, p.ThetaMin)
	assert.LessOrEqual(t, s.Theta, p.ThetaMax)
}

func TestAnomalies(t *testing.T) {
	decs := []engine.Decision{
		decision(0, engine.ReasonOK, 1.00, 0.50),
		// Ordinary reward step: no flag.
		decision(1, engine.ReasonOK, 1.00, 0.50),
		// Standard penalty step: elevated on both axes.
		decision(2, engine.ReasonBadSignature, 0.90, 0.80),
		// Sharp jump: critical.
		decision(3, engine.ReasonBadSignature, 0.70, 1.30),
	}

	got := Anomalies(decs)
	if assert.Len(t, got, 2) {
		assert.Equal(t, SeverityElevated, got[0].Severity)
		assert.Equal(t, uint64(2), got[0].Seq)
		assert.Equal(t, SeverityCritical, got[1].Severity)
		assert.Equal(t, uint64(3), got[1].Seq)
	}
}

func TestAnomaliesEmptyAndSingle(t *testing.T) {
	assert.Empty(t, Anomalies(nil))
	assert.Empty(t, Anomalies([]engine.Decision{decision(0, engine.ReasonOK, 1, 0.5)}))
}
