// Package sim drives engines through scripted adversarial scenarios.
//
// Everything here sits strictly outside the verification path: strategies
// build proofs, honest or corrupted, and hand them to the engine like any
// other caller would. Randomness comes from one explicit seeded source
// and time from a simulated clock, so a scenario run is reproducible
// from its seed alone.
package sim

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"

	"lineaged/internal/engine"
	"lineaged/internal/lineage"
	"lineaged/internal/signer"
	"lineaged/internal/trust"
)

// Clock is a manually advanced Unix-seconds clock. Its Now method is
// handed to the engine so simulated time is the only time the pipeline
// sees.
type Clock struct {
	now atomic.Int64
}

// NewClock starts a clock at the given Unix timestamp.
func NewClock(start int64) *Clock {
	c := &Clock{}
	c.now.Store(start)
	return c
}

// Now returns the current simulated time.
func (c *Clock) Now() int64 { return c.now.Load() }

// Advance moves the clock forward by sec seconds.
func (c *Clock) Advance(sec int64) { c.now.Add(sec) }

// Strategy produces the next proof for one identity. Implementations
// keep their own step counters and are not safe for concurrent use;
// give each identity its own instance.
type Strategy interface {
	Name() string
	Next(r *Runner, modelID string) (Move, error)
}

// Move is one strategy-produced submission, tagged with what the
// strategy believes the engine should say about it.
type Move struct {
	Proof lineage.Proof
	// WantAccept is the strategy's own expectation; scenarios use it to
	// report detection-rate stats.
	WantAccept bool
}

// Runner owns an engine, the simulated clock, the random source, and
// the signing keys the strategies corrupt.
type Runner struct {
	Engine *engine.Engine
	Clock  *Clock
	Rand   *rand.Rand

	log      *slog.Logger
	privKeys map[string]ed25519.PrivateKey
}

// NewRunner builds a runner around a fresh engine. The engine's clock
// is always replaced with the runner's simulated clock; everything else
// in cfg (trust parameters, metrics, decision sink) passes through.
func NewRunner(seed, start int64, cfg engine.Config) (*Runner, error) {
	clock := NewClock(start)
	cfg.Clock = clock.Now
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Engine:   eng,
		Clock:    clock,
		Rand:     rand.New(rand.NewSource(seed)),
		log:      logger.With("component", "sim"),
		privKeys: make(map[string]ed25519.PrivateKey),
	}, nil
}

// AddIdentity generates a keypair for the model and registers it with
// the engine. The runner keeps the private key so strategies can
// re-sign tampered events.
func (r *Runner) AddIdentity(modelID string) error {
	_, priv, err := signer.GenerateKey()
	if err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	if err := r.Engine.RegisterSigner(modelID, priv); err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	r.privKeys[modelID] = priv
	return nil
}

// PrivateKey returns the model's signing key.
func (r *Runner) PrivateKey(modelID string) (ed25519.PrivateKey, bool) {
	k, ok := r.privKeys[modelID]
	return k, ok
}

// StepResult is one scenario step: what was submitted and what the
// engine decided.
type StepResult struct {
	Phase    string        `json:"phase"`
	ModelID  string        `json:"model_id"`
	Strategy string        `json:"strategy"`
	Honest   bool          `json:"honest"`
	Outcome  engine.Outcome `json:"outcome"`
}

// Step runs one strategy move through the engine.
func (r *Runner) Step(phase, modelID string, s Strategy) (StepResult, error) {
	mv, err := s.Next(r, modelID)
	if err != nil {
		return StepResult{}, err
	}
	out := r.Engine.Verify(mv.Proof)
	return StepResult{
		Phase:    phase,
		ModelID:  modelID,
		Strategy: s.Name(),
		Honest:   mv.WantAccept,
		Outcome:  out,
	}, nil
}

// Report aggregates a scenario run.
type Report struct {
	Scenario string                `json:"scenario"`
	Seed     int64                 `json:"seed"`
	Steps    []StepResult          `json:"steps"`
	Final    []trust.IdentityState `json:"final_trust"`

	// Missed counts dishonest moves the engine accepted; FalseAlarms
	// counts honest moves it rejected.
	Missed      int `json:"missed"`
	FalseAlarms int `json:"false_alarms"`
}

// Participant binds an identity to the strategy driving it for a phase.
type Participant struct {
	ModelID  string
	Strategy Strategy
}

// Phase is a fixed number of rounds. Each round runs every participant
// once, then advances the clock one second.
type Phase struct {
	Name         string
	Rounds       int
	Participants []Participant
}

// Scenario is an ordered list of phases over a shared set of
// identities.
type Scenario struct {
	Name       string
	Identities []string
	Phases     []Phase
}

// Run executes the scenario and returns the full trace.
func (r *Runner) Run(sc Scenario) (*Report, error) {
	for _, id := range sc.Identities {
		if err := r.AddIdentity(id); err != nil {
			return nil, err
		}
	}

	rep := &Report{Scenario: sc.Name}
	for _, ph := range sc.Phases {
		r.log.Info("phase start", "scenario", sc.Name, "phase", ph.Name, "rounds", ph.Rounds)
		for round := 0; round < ph.Rounds; round++ {
			for _, p := range ph.Participants {
				res, err := r.Step(ph.Name, p.ModelID, p.Strategy)
				if err != nil {
					return nil, fmt.Errorf("sim: phase %q: %w", ph.Name, err)
				}
				if res.Honest && !res.Outcome.Accepted {
					rep.FalseAlarms++
				}
				if !res.Honest && res.Outcome.Accepted {
					rep.Missed++
				}
				rep.Steps = append(rep.Steps, res)
			}
			r.Clock.Advance(1)
		}
	}
	rep.Final = r.Engine.Summary()
	return rep, nil
}
