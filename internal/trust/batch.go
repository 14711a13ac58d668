package trust

// BatchParams configures the batch consistency form of the update law.
type BatchParams struct {
	Eta    float64 `toml:"eta" json:"eta" yaml:"eta"`
	Lambda float64 `toml:"lambda" json:"lambda" yaml:"lambda"`
}

// DefaultBatchParams returns the observed defaults for the batch form.
func DefaultBatchParams() BatchParams {
	return BatchParams{Eta: 0.1, Lambda: 0.9}
}

// BatchUpdate applies one consistency-ratio observation to a trust state
// using the exponential-moving-average form:
//
//	theta  += eta * ((1 - score) - 0.5)
//	weight  = lambda*weight + (1-lambda)*score
//
// It is a pure auxiliary computation over the same State shape as the
// incremental law and never mutates controller state. The incremental
// form is the engine's single source of truth; this one exists for
// snapshot-cadence reporting.
func BatchUpdate(s State, score float64, bp BatchParams, p Params) State {
	s.Theta += bp.Eta * ((1 - score) - 0.5)
	s.Theta = min(p.ThetaMax, max(p.ThetaMin, s.Theta))

	s.Weight = bp.Lambda*s.Weight + (1-bp.Lambda)*score
	s.Weight = min(1.0, max(0.0, s.Weight))
	return s
}
