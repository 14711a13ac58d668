// Package export serializes a verification run to a portable JSON record
// and replays recorded runs through a fresh engine.
//
// A run record carries everything a verifier on another machine needs to
// reproduce the run bit for bit: the public keys, the trust and drift
// parameters, every submitted proof in order, and the reference clock
// reading each decision was made against. Replaying feeds the recorded
// clock readings back in, so time-bound rejections reproduce exactly
// regardless of when the replay happens.
package export

import (
	"crypto/ed25519"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"lineaged/internal/anchors"
	"lineaged/internal/engine"
	"lineaged/internal/lineage"
	"lineaged/internal/trust"
)

// FormatVersion identifies the run record layout. Bump on any change
// that would break an existing verifier.
const FormatVersion = 1

// Errors.
var (
	ErrSchema         = errors.New("export: run record failed schema validation")
	ErrLengthMismatch = errors.New("export: proof and decision counts differ")
	ErrBadPublicKey   = errors.New("export: recorded public key has wrong length")
)

//go:embed run_schema.json
var runSchemaJSON string

var runSchema = jsonschema.MustCompileString("run_record.schema.json", runSchemaJSON)

// Identity pairs a model id with its verification key.
type Identity struct {
	ModelID   string `json:"model_id"`
	PublicKey []byte `json:"public_key"`
}

// RunRecord is the portable form of one verification run.
type RunRecord struct {
	Version   int    `json:"version"`
	RunID     string `json:"run_id"`
	CreatedAt int64  `json:"created_at"`

	Trust               trust.Params `json:"trust_params"`
	MaxFutureDriftSec   int64        `json:"max_future_drift_sec"`
	MaxBackwardDriftSec int64        `json:"max_backward_drift_sec"`

	Identities []Identity            `json:"identities"`
	Proofs     []lineage.Proof       `json:"proofs"`
	Decisions  []engine.Decision     `json:"decisions"`
	FinalTrust []trust.IdentityState `json:"final_trust"`
}

// Capture snapshots the engine's full run history as a new record.
// Proofs[i] pairs with Decisions[i].
func Capture(e *engine.Engine) *RunRecord {
	future, backward := e.DriftBounds()

	keys := e.PublicKeys()
	ids := make([]Identity, 0, len(keys))
	for _, s := range e.Summary() {
		if k, ok := keys[s.ModelID]; ok {
			ids = append(ids, Identity{ModelID: s.ModelID, PublicKey: k})
		}
	}

	return &RunRecord{
		Version:             FormatVersion,
		RunID:               uuid.NewString(),
		CreatedAt:           time.Now().Unix(),
		Trust:               e.TrustParams(),
		MaxFutureDriftSec:   int64(future / time.Second),
		MaxBackwardDriftSec: int64(backward / time.Second),
		Identities:          ids,
		Proofs:              e.Submissions(),
		Decisions:           e.Decisions(),
		FinalTrust:          e.Summary(),
	}
}

// Marshal encodes the record as indented JSON after checking it against
// the embedded schema.
func (r *RunRecord) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal run record: %w", err)
	}
	if err := validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Parse decodes a run record, rejecting input that fails the schema
// before any field is interpreted.
func Parse(data []byte) (*RunRecord, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	var r RunRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("export: parse run record: %w", err)
	}
	if len(r.Proofs) != len(r.Decisions) {
		return nil, ErrLengthMismatch
	}
	return &r, nil
}

func validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("export: run record is not valid JSON: %w", err)
	}
	if err := runSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// Divergence is one replay decision that differed from the record.
type Divergence struct {
	Seq      uint64        `json:"seq"`
	Recorded engine.Reason `json:"recorded"`
	Replayed engine.Reason `json:"replayed"`
}

// Result reports how a replay compared against the record.
type Result struct {
	Match       bool                  `json:"match"`
	Divergences []Divergence          `json:"divergences,omitempty"`
	FinalTrust  []trust.IdentityState `json:"final_trust"`
}

// ReplayConfig adjusts replay construction. The zero value replays with
// the same defaults Capture ran under.
type ReplayConfig struct {
	// Anchors must match the checker the original run used, or anchor
	// failures will not reproduce. Defaults to anchors.NonEmpty.
	Anchors anchors.Checker
}

// Replay runs every recorded proof through a fresh engine built from the
// record's parameters, feeding back the recorded reference times, and
// compares the outcomes and final trust states against the record.
func Replay(r *RunRecord, cfg ReplayConfig) (*Result, error) {
	if len(r.Proofs) != len(r.Decisions) {
		return nil, ErrLengthMismatch
	}

	times := make([]int64, len(r.Decisions))
	for i, d := range r.Decisions {
		times[i] = d.RefTime
	}
	next := 0
	clock := func() int64 {
		if next < len(times) {
			t := times[next]
			next++
			return t
		}
		return time.Now().Unix()
	}

	eng, err := engine.New(engine.Config{
		Trust:            r.Trust,
		MaxFutureDrift:   time.Duration(r.MaxFutureDriftSec) * time.Second,
		MaxBackwardDrift: time.Duration(r.MaxBackwardDriftSec) * time.Second,
		Clock:            clock,
		Anchors:          cfg.Anchors,
	})
	if err != nil {
		return nil, fmt.Errorf("export: replay engine: %w", err)
	}
	for _, id := range r.Identities {
		if len(id.PublicKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: %q", ErrBadPublicKey, id.ModelID)
		}
		if err := eng.RegisterIdentity(id.ModelID, ed25519.PublicKey(id.PublicKey)); err != nil {
			return nil, fmt.Errorf("export: replay: %w", err)
		}
	}

	res := &Result{Match: true}
	for i, p := range r.Proofs {
		out := eng.Verify(p)
		if out.Reason != r.Decisions[i].Reason {
			res.Match = false
			res.Divergences = append(res.Divergences, Divergence{
				Seq:      r.Decisions[i].Seq,
				Recorded: r.Decisions[i].Reason,
				Replayed: out.Reason,
			})
		}
	}

	res.FinalTrust = eng.Summary()
	if !trustEqual(res.FinalTrust, r.FinalTrust) {
		res.Match = false
	}
	return res, nil
}

// trustEqual compares final states exactly. The update law is pure
// float64 arithmetic over an identical decision sequence, so replay
// reproduces states bit for bit when outcomes agree.
func trustEqual(a, b []trust.IdentityState) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
