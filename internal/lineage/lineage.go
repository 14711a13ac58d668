// Package lineage defines the event and proof types and the per-identity
// append-only store of accepted proofs.
//
// A lineage is the hash-chained history of accepted events for one
// identity. The store never deletes; slots are write-once and only the
// verification pipeline appends.
package lineage

import (
	"sync"

	"lineaged/internal/canon"
)

// Event is a single compute lineage event as emitted by an identity.
type Event struct {
	ModelID   string `json:"model_id"`
	Index     uint64 `json:"index"`
	Timestamp int64  `json:"timestamp"`
	Payload   []byte `json:"payload"`
	PrevHash  string `json:"prev_hash"`
}

// Message returns the canonical byte encoding of the event, the exact
// bytes an honest identity signs.
func (e Event) Message() []byte {
	return canon.Message(e.ModelID, e.Index, e.PrevHash, e.Payload, e.Timestamp)
}

// Hash returns the event hash. It is a function of the event fields only,
// so a malicious submitter cannot alter the correct value, only what it
// chooses to sign.
func (e Event) Hash() string {
	return canon.Digest(e.ModelID, e.Index, e.PrevHash, e.Payload, e.Timestamp)
}

// Proof is a signed, hash-committed statement that an event occurred at a
// specific position in an identity's lineage.
type Proof struct {
	Event     Event  `json:"event"`
	EventHash string `json:"event_hash"`
	Signature []byte `json:"signature"`
	AnchorRef string `json:"anchor_ref"`
}

// Store holds the ordered sequences of accepted proofs, one per identity.
// Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	chains map[string][]Proof
}

// NewStore creates an empty lineage store.
func NewStore() *Store {
	return &Store{chains: make(map[string][]Proof)}
}

// Append adds an accepted proof to its identity's chain. Only the
// verification pipeline calls this, after acceptance.
func (s *Store) Append(p Proof) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[p.Event.ModelID] = append(s.chains[p.Event.ModelID], p)
}

// LastHash returns the event hash of the most recent accepted proof for
// the identity, or the genesis sentinel for an unseen identity.
func (s *Store) LastHash(modelID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[modelID]
	if len(chain) == 0 {
		return canon.GenesisHash
	}
	return chain[len(chain)-1].EventHash
}

// Chain returns a copy of the identity's accepted proofs in order.
func (s *Store) Chain(modelID string) []Proof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[modelID]
	out := make([]Proof, len(chain))
	copy(out, chain)
	return out
}

// Len returns the number of accepted proofs for the identity.
func (s *Store) Len(modelID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chains[modelID])
}

// Identities returns the identities with at least one accepted proof.
func (s *Store) Identities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	return ids
}

// Reset discards the identity's chain. Called only through an explicit
// engine reset, never by the pipeline.
func (s *Store) Reset(modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chains, modelID)
}
