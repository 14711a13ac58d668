// Package trust implements the adaptive per-identity trust controller.
//
// The controller keeps two scalars per identity: a trust weight in [0,1]
// approximating accumulated reliability, and a strictness theta in
// [ThetaMin, ThetaMax] approximating how much scrutiny future proofs
// warrant. Penalty steps are larger than reward steps, so an identity
// cannot buy back trust at the rate it spends it. That asymmetry is the
// core defense against strategies that alternate good and bad behavior
// to hover above a trust floor.
package trust

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Errors
var (
	ErrWeightAsymmetry = errors.New("trust: penalty_weight must be at least 2x reward_weight")
	ErrThetaAsymmetry  = errors.New("trust: penalty_theta must be at least 3x reward_theta")
	ErrThetaBounds     = errors.New("trust: theta_min must be positive and below theta_max")
)

// State is the per-identity trust state exposed to callers.
type State struct {
	Weight float64 `json:"weight"`
	Theta  float64 `json:"theta"`
}

// Params configures the incremental update law.
type Params struct {
	RewardWeight  float64 `toml:"reward_weight" json:"reward_weight" yaml:"reward_weight"`
	PenaltyWeight float64 `toml:"penalty_weight" json:"penalty_weight" yaml:"penalty_weight"`
	RewardTheta   float64 `toml:"reward_theta" json:"reward_theta" yaml:"reward_theta"`
	PenaltyTheta  float64 `toml:"penalty_theta" json:"penalty_theta" yaml:"penalty_theta"`
	ThetaMin      float64 `toml:"theta_min" json:"theta_min" yaml:"theta_min"`
	ThetaMax      float64 `toml:"theta_max" json:"theta_max" yaml:"theta_max"`

	// Decay, when enabled, pulls weight and theta a fixed fraction toward
	// the configured baselines on each elapsed tick before the base law
	// applies. Off by default; reputation does not recover absent new
	// evidence unless this is switched on.
	Decay DecayParams `toml:"decay" json:"decay" yaml:"decay"`
}

// DecayParams configures the optional forgetting strategy.
type DecayParams struct {
	Enabled        bool    `toml:"enabled" json:"enabled" yaml:"enabled"`
	Rate           float64 `toml:"rate" json:"rate" yaml:"rate"`
	WeightBaseline float64 `toml:"weight_baseline" json:"weight_baseline" yaml:"weight_baseline"`
	ThetaBaseline  float64 `toml:"theta_baseline" json:"theta_baseline" yaml:"theta_baseline"`
}

// DefaultParams returns the most conservative observed parameterization.
func DefaultParams() Params {
	return Params{
		RewardWeight:  0.03,
		PenaltyWeight: 0.10,
		RewardTheta:   0.08,
		PenaltyTheta:  0.30,
		ThetaMin:      0.5,
		ThetaMax:      5.0,
		Decay: DecayParams{
			Enabled:        false,
			Rate:           0.01,
			WeightBaseline: 0.5,
			ThetaBaseline:  1.0,
		},
	}
}

// Validate checks bounds and the required punishment asymmetry.
func (p Params) Validate() error {
	if p.ThetaMin <= 0 || p.ThetaMin >= p.ThetaMax {
		return fmt.Errorf("%w: min=%v max=%v", ErrThetaBounds, p.ThetaMin, p.ThetaMax)
	}
	if p.PenaltyWeight < 2*p.RewardWeight {
		return fmt.Errorf("%w: penalty=%v reward=%v", ErrWeightAsymmetry, p.PenaltyWeight, p.RewardWeight)
	}
	if p.PenaltyTheta < 3*p.RewardTheta {
		return fmt.Errorf("%w: penalty=%v reward=%v", ErrThetaAsymmetry, p.PenaltyTheta, p.RewardTheta)
	}
	return nil
}

// Controller holds trust state for every identity an engine has seen.
// Safe for concurrent use.
type Controller struct {
	mu     sync.RWMutex
	params Params
	state  map[string]State
}

// NewController creates a controller with the given parameters.
func NewController(params Params) *Controller {
	return &Controller{
		params: params,
		state:  make(map[string]State),
	}
}

// initial is the state of a never-seen identity: full weight, minimum
// scrutiny.
func (c *Controller) initial() State {
	return State{Weight: 1.0, Theta: c.params.ThetaMin}
}

// Update applies one pipeline decision to the identity's trust state and
// returns the updated state. Weight and theta are clamped on every call.
func (c *Controller) Update(modelID string, valid bool) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.state[modelID]
	if !ok {
		s = c.initial()
	}

	if c.params.Decay.Enabled {
		s = c.decay(s)
	}

	if valid {
		s.Weight = min(1.0, s.Weight+c.params.RewardWeight)
		s.Theta = max(c.params.ThetaMin, s.Theta-c.params.RewardTheta)
	} else {
		s.Weight = max(0.0, s.Weight-c.params.PenaltyWeight)
		s.Theta = min(c.params.ThetaMax, s.Theta+c.params.PenaltyTheta)
	}

	c.state[modelID] = s
	return s
}

func (c *Controller) decay(s State) State {
	d := c.params.Decay
	s.Weight += d.Rate * (d.WeightBaseline - s.Weight)
	s.Theta += d.Rate * (d.ThetaBaseline - s.Theta)
	s.Weight = min(1.0, max(0.0, s.Weight))
	s.Theta = min(c.params.ThetaMax, max(c.params.ThetaMin, s.Theta))
	return s
}

// Get returns the identity's trust state, creating it lazily.
func (c *Controller) Get(modelID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.state[modelID]
	if !ok {
		s = c.initial()
		c.state[modelID] = s
	}
	return s
}

// Reset returns the identity to its initial state.
func (c *Controller) Reset(modelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.state, modelID)
}

// Summary returns every known identity's state, sorted by identity for
// deterministic iteration.
func (c *Controller) Summary() []IdentityState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]IdentityState, 0, len(c.state))
	for id, s := range c.state {
		out = append(out, IdentityState{ModelID: id, State: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// IdentityState pairs an identity with its trust state.
type IdentityState struct {
	ModelID string `json:"model_id"`
	State   State  `json:"state"`
}
