package engine

import (
	"fmt"

	"lineaged/internal/lineage"
	"lineaged/internal/signer"
)

// Submit builds a proof for the identity's next event: it reads the
// current lineage head, assigns the next index, computes the canonical
// hash, and signs the canonical message. The proof is returned ready for
// Verify; submission and verification stay separate calls so a caller
// can interpose an anchoring step.
//
// The identity must have been registered with RegisterSigner; anything
// else is a caller defect and fails loudly.
func (e *Engine) Submit(modelID string, payload []byte, anchorRef string) (lineage.Proof, error) {
	return e.SubmitAt(modelID, payload, anchorRef, e.cfg.Clock())
}

// SubmitAt is Submit with an explicit event timestamp, for replay and
// deterministic tests.
func (e *Engine) SubmitAt(modelID string, payload []byte, anchorRef string, timestamp int64) (lineage.Proof, error) {
	e.mu.Lock()
	privKey, ok := e.privKeys[modelID]
	index := e.indexes[modelID]
	e.mu.Unlock()
	if !ok {
		return lineage.Proof{}, fmt.Errorf("%w: %q", ErrUnknownSigner, modelID)
	}

	ev := lineage.Event{
		ModelID:   modelID,
		Index:     index,
		Timestamp: timestamp,
		Payload:   payload,
		PrevHash:  e.store.LastHash(modelID),
	}

	p := lineage.Proof{
		Event:     ev,
		EventHash: ev.Hash(),
		Signature: signer.Sign(privKey, ev.Message()),
		AnchorRef: anchorRef,
	}

	e.mu.Lock()
	e.indexes[modelID] = index + 1
	e.mu.Unlock()

	return p, nil
}
