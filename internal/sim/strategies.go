package sim

import (
	"fmt"

	"lineaged/internal/lineage"
	"lineaged/internal/signer"
)

// DefaultAnchor is the anchor reference simulated proofs carry.
const DefaultAnchor = "sim-anchor"

// honestProof builds the identity's next well-formed proof at the
// current simulated time.
func honestProof(r *Runner, modelID string, payload []byte) (lineage.Proof, error) {
	return r.Engine.SubmitAt(modelID, payload, DefaultAnchor, r.Clock.Now())
}

// Honest always submits well-formed proofs.
type Honest struct {
	step int
}

func (h *Honest) Name() string { return "honest" }

func (h *Honest) Next(r *Runner, modelID string) (Move, error) {
	h.step++
	p, err := honestProof(r, modelID, []byte(fmt.Sprintf("step-%d", h.step)))
	if err != nil {
		return Move{}, err
	}
	return Move{Proof: p, WantAccept: true}, nil
}

// Shadow behaves honestly most of the time and corrupts its signature
// with probability CheatProb, like a model shadowed by a cheaper
// impostor that signs over tampered bytes.
type Shadow struct {
	CheatProb float64
	step      int
}

func (s *Shadow) Name() string { return "shadow" }

func (s *Shadow) Next(r *Runner, modelID string) (Move, error) {
	s.step++
	p, err := honestProof(r, modelID, []byte(fmt.Sprintf("step-%d", s.step)))
	if err != nil {
		return Move{}, err
	}
	if r.Rand.Float64() < s.CheatProb {
		return Move{Proof: corruptSignature(p), WantAccept: false}, nil
	}
	return Move{Proof: p, WantAccept: true}, nil
}

// Patterned cheats on a fixed schedule: every Period-th step when
// Burst is zero, otherwise alternating runs of Gap honest steps and
// Burst corrupted steps.
type Patterned struct {
	Period int
	Gap    int
	Burst  int
	step   int
}

func (p *Patterned) Name() string { return "patterned" }

func (p *Patterned) cheat() bool {
	if p.Burst > 0 {
		cycle := p.Gap + p.Burst
		return (p.step-1)%cycle >= p.Gap
	}
	if p.Period <= 0 {
		return false
	}
	return (p.step-1)%p.Period == 0
}

func (p *Patterned) Next(r *Runner, modelID string) (Move, error) {
	p.step++
	proof, err := honestProof(r, modelID, []byte(fmt.Sprintf("step-%d", p.step)))
	if err != nil {
		return Move{}, err
	}
	if p.cheat() {
		return Move{Proof: corruptSignature(proof), WantAccept: false}, nil
	}
	return Move{Proof: proof, WantAccept: true}, nil
}

// DriftRamp submits proofs whose timestamps run further ahead of the
// reference clock each step, by StepSec per step. Early proofs land
// inside the tolerated drift; the ramp eventually crosses it and every
// later proof is too far in the future.
type DriftRamp struct {
	StepSec int64
	step    int
}

func (d *DriftRamp) Name() string { return "drift" }

func (d *DriftRamp) Next(r *Runner, modelID string) (Move, error) {
	d.step++
	offset := d.StepSec * int64(d.step)
	p, err := r.Engine.SubmitAt(modelID, []byte(fmt.Sprintf("step-%d", d.step)), DefaultAnchor, r.Clock.Now()+offset)
	if err != nil {
		return Move{}, err
	}
	future, _ := r.Engine.DriftBounds()
	return Move{Proof: p, WantAccept: offset <= int64(future.Seconds())}, nil
}

// TimeAttacker submits one far-future and one far-backdated proof per
// cycle of honest steps, like a clock-manipulation probe.
type TimeAttacker struct {
	FutureSec  int64
	BackSec    int64
	HonestRuns int
	step       int
}

func (t *TimeAttacker) Name() string { return "time-attacker" }

func (t *TimeAttacker) Next(r *Runner, modelID string) (Move, error) {
	t.step++
	cycle := t.HonestRuns + 2
	pos := (t.step - 1) % cycle

	ts := r.Clock.Now()
	want := true
	switch pos {
	case t.HonestRuns:
		ts += t.FutureSec
		want = false
	case t.HonestRuns + 1:
		ts -= t.BackSec
		want = false
	}
	p, err := r.Engine.SubmitAt(modelID, []byte(fmt.Sprintf("step-%d", t.step)), DefaultAnchor, ts)
	if err != nil {
		return Move{}, err
	}
	return Move{Proof: p, WantAccept: want}, nil
}

// Replayer alternates honest proofs with resubmissions of its own
// earlier accepted proofs.
type Replayer struct {
	step int
}

func (rp *Replayer) Name() string { return "replayer" }

func (rp *Replayer) Next(r *Runner, modelID string) (Move, error) {
	rp.step++
	chain := r.Engine.ChainOf(modelID)
	if rp.step%2 == 0 && len(chain) > 0 {
		old := chain[r.Rand.Intn(len(chain))]
		return Move{Proof: old, WantAccept: false}, nil
	}
	p, err := honestProof(r, modelID, []byte(fmt.Sprintf("step-%d", rp.step)))
	if err != nil {
		return Move{}, err
	}
	return Move{Proof: p, WantAccept: true}, nil
}

// Forker periodically signs a fresh, well-formed event on top of a
// stale chain head, splitting its own history.
type Forker struct {
	Every int
	step  int
}

func (f *Forker) Name() string { return "forker" }

func (f *Forker) Next(r *Runner, modelID string) (Move, error) {
	f.step++
	every := f.Every
	if every <= 0 {
		every = 3
	}

	chain := r.Engine.ChainOf(modelID)
	if f.step%every == 0 && len(chain) >= 2 {
		priv, ok := r.PrivateKey(modelID)
		if !ok {
			return Move{}, fmt.Errorf("sim: no key for %q", modelID)
		}
		stale := chain[len(chain)-2]
		ev := lineage.Event{
			ModelID:   modelID,
			Index:     stale.Event.Index + 1,
			Timestamp: r.Clock.Now(),
			Payload:   []byte(fmt.Sprintf("fork-%d", f.step)),
			PrevHash:  stale.EventHash,
		}
		return Move{Proof: lineage.Proof{
			Event:     ev,
			EventHash: ev.Hash(),
			Signature: signer.Sign(priv, ev.Message()),
			AnchorRef: DefaultAnchor,
		}, WantAccept: false}, nil
	}

	p, err := honestProof(r, modelID, []byte(fmt.Sprintf("step-%d", f.step)))
	if err != nil {
		return Move{}, err
	}
	return Move{Proof: p, WantAccept: true}, nil
}

// corruptSignature flips bits in the first signature byte. The event
// itself stays intact, so only the signature check can catch it.
func corruptSignature(p lineage.Proof) lineage.Proof {
	sig := make([]byte, len(p.Signature))
	copy(sig, p.Signature)
	if len(sig) > 0 {
		sig[0] ^= 0xff
	}
	p.Signature = sig
	return p
}
