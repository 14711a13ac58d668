package engine

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"

	"lineaged/internal/canon"
	"lineaged/internal/lineage"
	"lineaged/internal/signer"
)

// Verify runs a candidate proof through the ordered checks and returns
// the decision. Checks short-circuit on first failure, cheapest first.
// Rejection mutates nothing but the trust controller; acceptance is the
// only path that advances lineage state. Malicious input never panics.
func (e *Engine) Verify(p lineage.Proof) Outcome {
	start := time.Now()
	modelID := p.Event.ModelID

	rec := e.record(modelID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	refTime := e.cfg.Clock()
	reason := e.check(rec, p, refTime)
	accepted := reason == ReasonOK

	if accepted {
		rec.usedProofIDs[proofID(p)] = struct{}{}
		rec.lastAcceptedHash = p.EventHash
		rec.lastAcceptedTimestamp = p.Event.Timestamp
		rec.hasAcceptedTimestamp = true
		e.store.Append(p)
	}

	ts := e.controller.Update(modelID, accepted)
	e.recordDecision(modelID, reason, accepted, ts, refTime, p)

	e.cfg.Metrics.ObserveDecision(modelID, string(reason), ts.Weight, ts.Theta,
		time.Since(start).Seconds())
	logAttrs := []any{
		"model_id", modelID,
		"index", p.Event.Index,
		"reason", reason,
		"weight", ts.Weight,
		"theta", ts.Theta,
	}
	if accepted {
		e.log.Debug("proof accepted", logAttrs...)
	} else {
		e.log.Warn("proof rejected", logAttrs...)
	}

	return Outcome{Accepted: accepted, Reason: reason, Trust: ts}
}

// check runs the ordered validations. The caller holds the identity lock.
func (e *Engine) check(rec *identityRecord, p lineage.Proof, now int64) Reason {
	// 1. Structural validity.
	if !canon.ValidDigest(p.EventHash) {
		return ReasonMalformed
	}
	if !e.cfg.Anchors.Check(p.AnchorRef) {
		return ReasonMalformed
	}

	// 2. Signature over the recomputed canonical message. An identity
	// without a registered key cannot produce a verifiable proof.
	pubKey, ok := e.publicKey(p.Event.ModelID)
	if !ok {
		return ReasonBadSignature
	}
	if !signer.Verify(pubKey, p.Event.Message(), p.Signature) {
		return ReasonBadSignature
	}

	// 3. Replay: the (event_hash, signature) pair must be fresh.
	if _, seen := rec.usedProofIDs[proofID(p)]; seen {
		return ReasonReplay
	}

	// 4. Timestamp bounds against the reference clock and the identity's
	// own last accepted timestamp.
	if p.Event.Timestamp > now+int64(e.cfg.MaxFutureDrift/time.Second) {
		return ReasonTimeFuture
	}
	if rec.hasAcceptedTimestamp &&
		p.Event.Timestamp+int64(e.cfg.MaxBackwardDrift/time.Second) < rec.lastAcceptedTimestamp {
		return ReasonTimeBackdated
	}

	// 5. Lineage continuity. Catches forks and out-of-order replays whose
	// fresh signature slipped past the replay check.
	if p.Event.PrevHash != rec.lastAcceptedHash {
		return ReasonLineageMismatch
	}

	// The submitted hash must also be the correct hash of the fields the
	// signature covered.
	if p.EventHash != p.Event.Hash() {
		return ReasonMalformed
	}

	return ReasonOK
}

func (e *Engine) publicKey(modelID string) (ed25519.PublicKey, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k, ok := e.pubKeys[modelID]
	return k, ok
}

// proofID keys the replay set.
func proofID(p lineage.Proof) string {
	return p.EventHash + "|" + hex.EncodeToString(p.Signature)
}
