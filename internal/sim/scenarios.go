package sim

import (
	"fmt"
	"sort"
)

// Builtin scenarios, keyed by the name the scenario driver accepts.
// Each mirrors a study from the original proof-of-compute experiments:
// an honest baseline, a probabilistic impostor, patterned cheating,
// clock manipulation, replay, and history forking.
func builtinScenarios() map[string]Scenario {
	return map[string]Scenario{
		"honest": {
			Name:       "honest",
			Identities: []string{"honest-a", "honest-b"},
			Phases: []Phase{
				{Name: "baseline", Rounds: 40, Participants: []Participant{
					{ModelID: "honest-a", Strategy: &Honest{}},
					{ModelID: "honest-b", Strategy: &Honest{}},
				}},
			},
		},
		"shadow": {
			Name:       "shadow",
			Identities: []string{"honest", "shadow"},
			Phases: []Phase{
				{Name: "bootstrap", Rounds: 10, Participants: []Participant{
					{ModelID: "honest", Strategy: &Honest{}},
				}},
				{Name: "warmup", Rounds: 5, Participants: []Participant{
					{ModelID: "honest", Strategy: &Honest{}},
					{ModelID: "shadow", Strategy: &Shadow{CheatProb: 0}},
				}},
				{Name: "attack", Rounds: 20, Participants: []Participant{
					{ModelID: "honest", Strategy: &Honest{}},
					{ModelID: "shadow", Strategy: &Shadow{CheatProb: 0.5}},
				}},
			},
		},
		"patterned": {
			Name:       "patterned",
			Identities: []string{"adv"},
			Phases: []Phase{
				{Name: "periodic", Rounds: 20, Participants: []Participant{
					{ModelID: "adv", Strategy: &Patterned{Period: 5}},
				}},
				{Name: "bursts", Rounds: 30, Participants: []Participant{
					{ModelID: "adv", Strategy: &Patterned{Gap: 5, Burst: 10}},
				}},
				{Name: "oscillation", Rounds: 20, Participants: []Participant{
					{ModelID: "adv", Strategy: &Patterned{Gap: 1, Burst: 1}},
				}},
			},
		},
		"timing": {
			Name:       "timing",
			Identities: []string{"clockskew"},
			Phases: []Phase{
				{Name: "probe", Rounds: 24, Participants: []Participant{
					{ModelID: "clockskew", Strategy: &TimeAttacker{
						FutureSec:  1000,
						BackSec:    100,
						HonestRuns: 4,
					}},
				}},
			},
		},
		"drift": {
			Name:       "drift",
			Identities: []string{"drifter"},
			Phases: []Phase{
				{Name: "ramp", Rounds: 20, Participants: []Participant{
					{ModelID: "drifter", Strategy: &DriftRamp{StepSec: 5}},
				}},
			},
		},
		"replay": {
			Name:       "replay",
			Identities: []string{"replayer"},
			Phases: []Phase{
				{Name: "seed-chain", Rounds: 5, Participants: []Participant{
					{ModelID: "replayer", Strategy: &Honest{}},
				}},
				{Name: "replay", Rounds: 20, Participants: []Participant{
					{ModelID: "replayer", Strategy: &Replayer{}},
				}},
			},
		},
		"fork": {
			Name:       "fork",
			Identities: []string{"forker"},
			Phases: []Phase{
				{Name: "fork", Rounds: 30, Participants: []Participant{
					{ModelID: "forker", Strategy: &Forker{Every: 3}},
				}},
			},
		},
		"recovery": {
			Name:       "recovery",
			Identities: []string{"lapsed"},
			Phases: []Phase{
				{Name: "honest", Rounds: 10, Participants: []Participant{
					{ModelID: "lapsed", Strategy: &Honest{}},
				}},
				{Name: "cheating", Rounds: 10, Participants: []Participant{
					{ModelID: "lapsed", Strategy: &Shadow{CheatProb: 1}},
				}},
				{Name: "reformed", Rounds: 30, Participants: []Participant{
					{ModelID: "lapsed", Strategy: &Honest{}},
				}},
			},
		},
	}
}

// Lookup returns the named builtin scenario.
func Lookup(name string) (Scenario, error) {
	sc, ok := builtinScenarios()[name]
	if !ok {
		return Scenario{}, fmt.Errorf("sim: unknown scenario %q (have: %v)", name, Names())
	}
	return sc, nil
}

// Names lists the builtin scenarios in stable order.
func Names() []string {
	m := builtinScenarios()
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
