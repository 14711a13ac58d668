package score

import "lineaged/internal/engine"

// Severity classifies a single-step trust movement.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityElevated
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityElevated:
		return "elevated"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// Jump thresholds on per-step trust deltas.
const (
	criticalThetaDelta  = 0.35
	criticalWeightDelta = 0.12
	elevatedThetaDelta  = 0.25
	elevatedWeightDelta = 0.08
)

// Anomaly marks a decision whose trust movement was abnormally sharp.
type Anomaly struct {
	Seq         uint64   `json:"seq"`
	ModelID     string   `json:"model_id"`
	DeltaTheta  float64  `json:"delta_theta"`
	DeltaWeight float64  `json:"delta_weight"`
	Severity    Severity `json:"severity"`
}

// classify grades a delta pair.
func classify(dTheta, dWeight float64) Severity {
	switch {
	case abs(dTheta) > criticalThetaDelta || abs(dWeight) > criticalWeightDelta:
		return SeverityCritical
	case abs(dTheta) > elevatedThetaDelta || abs(dWeight) > elevatedWeightDelta:
		return SeverityElevated
	default:
		return SeverityNone
	}
}

// Anomalies scans one identity's decisions in order and returns the steps
// whose theta or weight moved sharply enough to flag. The first decision
// has no predecessor and is never flagged.
func Anomalies(decisions []engine.Decision) []Anomaly {
	var out []Anomaly
	for i := 1; i < len(decisions); i++ {
		prev, cur := decisions[i-1], decisions[i]
		dTheta := cur.Trust.Theta - prev.Trust.Theta
		dWeight := cur.Trust.Weight - prev.Trust.Weight

		sev := classify(dTheta, dWeight)
		if sev == SeverityNone {
			continue
		}
		out = append(out, Anomaly{
			Seq:         cur.Seq,
			ModelID:     cur.ModelID,
			DeltaTheta:  dTheta,
			DeltaWeight: dWeight,
			Severity:    sev,
		})
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
