// Package engine implements the proof verification pipeline and owns all
// per-identity state: lineage heads, replay bookkeeping, and trust.
//
// One Engine instance is self-contained. Nothing here reaches through
// globals, so independent engines can run side by side in one process.
// Mutation is serialized per identity; distinct identities verify
// concurrently.
package engine

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lineaged/internal/anchors"
	"lineaged/internal/lineage"
	"lineaged/internal/metrics"
	"lineaged/internal/trust"
)

// Errors. These are contract violations by the caller, not proof
// failures; proof failures are Outcome values.
var (
	ErrUnknownIdentity = errors.New("engine: identity has no registered public key")
	ErrUnknownSigner   = errors.New("engine: identity has no registered private key")
	ErrDuplicateKey    = errors.New("engine: identity already registered")
)

// Reason is a stable reason code, part of the external contract.
type Reason string

const (
	ReasonOK              Reason = "OK"
	ReasonMalformed       Reason = "MALFORMED"
	ReasonBadSignature    Reason = "BAD_SIGNATURE"
	ReasonReplay          Reason = "REPLAY"
	ReasonTimeFuture      Reason = "TIME_FUTURE"
	ReasonTimeBackdated   Reason = "TIME_BACKDATED"
	ReasonLineageMismatch Reason = "LINEAGE_MISMATCH"
)

// Outcome is the structured result of one verification call.
type Outcome struct {
	Accepted bool        `json:"accepted"`
	Reason   Reason      `json:"reason"`
	Trust    trust.State `json:"trust_snapshot"`
}

// Decision is one pipeline decision in submission order, kept for audit,
// scoring, and run export.
type Decision struct {
	Seq      uint64      `json:"seq"`
	ModelID  string      `json:"model_id"`
	Reason   Reason      `json:"reason"`
	Accepted bool        `json:"accepted"`
	Trust    trust.State `json:"trust_snapshot"`

	// RefTime is the reference clock reading the timestamp checks ran
	// against. Replaying a run feeds these back in so the same proofs
	// yield the same outcomes regardless of wall time.
	RefTime int64 `json:"ref_time"`
}

// DecisionSink receives every decision as it is made. Implementations
// must not block; the SQLite audit store is the shipped implementation.
type DecisionSink interface {
	RecordDecision(d Decision, p lineage.Proof) error
}

// Config holds engine construction parameters.
type Config struct {
	// Trust parameterizes the adaptive controller.
	Trust trust.Params

	// MaxFutureDrift bounds how far ahead of the reference clock a proof
	// timestamp may sit. MaxBackwardDrift bounds how far behind the last
	// accepted timestamp it may fall.
	MaxFutureDrift   time.Duration
	MaxBackwardDrift time.Duration

	// Clock supplies the reference time as a Unix timestamp. Defaults to
	// time.Now; tests fix it for determinism.
	Clock func() int64

	// Anchors validates anchor references. Defaults to anchors.NonEmpty.
	Anchors anchors.Checker

	// Logger receives decision logs at debug level. Defaults to
	// slog.Default.
	Logger *slog.Logger

	// Metrics, when set, receives decision observations.
	Metrics *metrics.Metrics

	// Sink, when set, receives every decision for persistence.
	Sink DecisionSink
}

// DefaultConfig returns an engine configuration with the default drift
// bounds and trust parameters.
func DefaultConfig() Config {
	return Config{
		Trust:            trust.DefaultParams(),
		MaxFutureDrift:   30 * time.Second,
		MaxBackwardDrift: 10 * time.Second,
	}
}

// identityRecord is the engine-owned mutable state for one identity.
type identityRecord struct {
	mu sync.Mutex

	lastAcceptedHash      string
	lastAcceptedTimestamp int64
	hasAcceptedTimestamp  bool

	// usedProofIDs grows on accept and never shrinks. Keyed by
	// event_hash + "|" + hex signature so a re-signed duplicate event is
	// caught by the lineage check instead.
	usedProofIDs map[string]struct{}
}

// Engine verifies proofs and maintains per-identity trust.
type Engine struct {
	cfg        Config
	store      *lineage.Store
	controller *trust.Controller
	log        *slog.Logger

	mu         sync.Mutex
	identities map[string]*identityRecord
	pubKeys    map[string]ed25519.PublicKey
	privKeys   map[string]ed25519.PrivateKey
	indexes    map[string]uint64

	decMu       sync.Mutex
	decisions   []Decision
	submissions []lineage.Proof
	seq         uint64
}

// New creates an engine. Invalid trust parameters are a construction
// error, not a runtime surprise.
func New(cfg Config) (*Engine, error) {
	if cfg.Trust == (trust.Params{}) {
		cfg.Trust = trust.DefaultParams()
	}
	if err := cfg.Trust.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if cfg.MaxFutureDrift == 0 {
		cfg.MaxFutureDrift = 30 * time.Second
	}
	if cfg.MaxBackwardDrift == 0 {
		cfg.MaxBackwardDrift = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = func() int64 { return time.Now().Unix() }
	}
	if cfg.Anchors == nil {
		cfg.Anchors = anchors.NonEmpty{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		cfg:        cfg,
		store:      lineage.NewStore(),
		controller: trust.NewController(cfg.Trust),
		log:        cfg.Logger.With("component", "engine"),
		identities: make(map[string]*identityRecord),
		pubKeys:    make(map[string]ed25519.PublicKey),
		privKeys:   make(map[string]ed25519.PrivateKey),
		indexes:    make(map[string]uint64),
	}, nil
}

// RegisterIdentity records the public key a model's proofs verify
// against. Registering the same identity twice is a caller defect.
func (e *Engine) RegisterIdentity(modelID string, pubKey ed25519.PublicKey) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("engine: register %q: public key must be %d bytes, got %d",
			modelID, ed25519.PublicKeySize, len(pubKey))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pubKeys[modelID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, modelID)
	}
	e.pubKeys[modelID] = pubKey
	return nil
}

// RegisterSigner registers an identity together with its private key so
// the engine-side Submit helper can build proofs for it.
func (e *Engine) RegisterSigner(modelID string, privKey ed25519.PrivateKey) error {
	if err := e.RegisterIdentity(modelID, privKey.Public().(ed25519.PublicKey)); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.privKeys[modelID] = privKey
	return nil
}

// record returns the identity record, creating it lazily on first
// reference.
func (e *Engine) record(modelID string) *identityRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.identities[modelID]
	if !ok {
		rec = &identityRecord{
			lastAcceptedHash: e.store.LastHash(modelID),
			usedProofIDs:     make(map[string]struct{}),
		}
		e.identities[modelID] = rec
	}
	return rec
}

// TrustParams returns the controller parameterization the engine was
// built with.
func (e *Engine) TrustParams() trust.Params {
	return e.cfg.Trust
}

// DriftBounds returns the configured timestamp drift bounds.
func (e *Engine) DriftBounds() (future, backward time.Duration) {
	return e.cfg.MaxFutureDrift, e.cfg.MaxBackwardDrift
}

// PublicKeys returns a copy of the registered verification keys.
func (e *Engine) PublicKeys() map[string]ed25519.PublicKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]ed25519.PublicKey, len(e.pubKeys))
	for id, k := range e.pubKeys {
		out[id] = k
	}
	return out
}

// TrustOf returns the identity's current trust state.
func (e *Engine) TrustOf(modelID string) trust.State {
	return e.controller.Get(modelID)
}

// ChainOf returns the identity's accepted proofs in order.
func (e *Engine) ChainOf(modelID string) []lineage.Proof {
	return e.store.Chain(modelID)
}

// Summary returns every known identity's trust state, sorted by identity.
func (e *Engine) Summary() []trust.IdentityState {
	return e.controller.Summary()
}

// Decisions returns a copy of all decisions in submission order.
func (e *Engine) Decisions() []Decision {
	e.decMu.Lock()
	defer e.decMu.Unlock()
	out := make([]Decision, len(e.decisions))
	copy(out, e.decisions)
	return out
}

// Submissions returns a copy of every submitted proof, accepted or not,
// in submission order. Index i pairs with Decisions()[i].
func (e *Engine) Submissions() []lineage.Proof {
	e.decMu.Lock()
	defer e.decMu.Unlock()
	out := make([]lineage.Proof, len(e.submissions))
	copy(out, e.submissions)
	return out
}

// DecisionsFor returns the identity's decisions in submission order.
func (e *Engine) DecisionsFor(modelID string) []Decision {
	e.decMu.Lock()
	defer e.decMu.Unlock()
	var out []Decision
	for _, d := range e.decisions {
		if d.ModelID == modelID {
			out = append(out, d)
		}
	}
	return out
}

// Reset discards all engine state for one identity: lineage, replay
// bookkeeping, submit index, and trust. Meant for an explicit
// "start new run" from the external collaborator.
func (e *Engine) Reset(modelID string) {
	rec := e.record(modelID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	e.store.Reset(modelID)
	e.controller.Reset(modelID)

	rec.lastAcceptedHash = e.store.LastHash(modelID)
	rec.hasAcceptedTimestamp = false
	rec.lastAcceptedTimestamp = 0
	rec.usedProofIDs = make(map[string]struct{})

	e.mu.Lock()
	e.indexes[modelID] = 0
	e.mu.Unlock()
}

func (e *Engine) recordDecision(modelID string, reason Reason, accepted bool, ts trust.State, refTime int64, p lineage.Proof) Decision {
	e.decMu.Lock()
	d := Decision{
		Seq:      e.seq,
		ModelID:  modelID,
		Reason:   reason,
		Accepted: accepted,
		Trust:    ts,
		RefTime:  refTime,
	}
	e.seq++
	e.decisions = append(e.decisions, d)
	e.submissions = append(e.submissions, p)
	e.decMu.Unlock()

	if e.cfg.Sink != nil {
		if err := e.cfg.Sink.RecordDecision(d, p); err != nil {
			e.log.Warn("decision sink failed", "model_id", modelID, "err", err)
		}
	}
	return d
}
