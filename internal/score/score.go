// Package score provides read-side computations over an engine's decision
// history: consistency ratios for the batch controller form and anomaly
// flags over trust-state deltas. Nothing here mutates engine state, so
// every function may be recomputed at any time.
package score

import (
	"lineaged/internal/engine"
	"lineaged/internal/trust"
)

// Consistency returns the fraction of decisions that were accepted.
// Returns 1.0 for an empty history: an identity with no evidence has no
// observed inconsistency.
func Consistency(decisions []engine.Decision) float64 {
	if len(decisions) == 0 {
		return 1.0
	}
	valid := 0
	for _, d := range decisions {
		if d.Accepted {
			valid++
		}
	}
	return float64(valid) / float64(len(decisions))
}

// StructuralConsistency returns the fraction of decisions whose proofs
// passed the structural and anchor checks, i.e. everything that was not
// rejected as MALFORMED.
func StructuralConsistency(decisions []engine.Decision) float64 {
	if len(decisions) == 0 {
		return 1.0
	}
	sound := 0
	for _, d := range decisions {
		if d.Reason != engine.ReasonMalformed {
			sound++
		}
	}
	return float64(sound) / float64(len(decisions))
}

// BatchState folds an identity's full decision history through the batch
// controller form at snapshot cadence, starting from the initial trust
// state. It is the documented alternative to the incremental law; the
// two are comparable, not interchangeable, and this one never writes
// back.
func BatchState(decisions []engine.Decision, bp trust.BatchParams, p trust.Params) trust.State {
	s := trust.State{Weight: 1.0, Theta: p.ThetaMin}
	valid := 0
	for i, d := range decisions {
		if d.Accepted {
			valid++
		}
		ratio := float64(valid) / float64(i+1)
		s = trust.BatchUpdate(s, ratio, bp, p)
	}
	return s
}
