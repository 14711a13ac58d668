// Package internal provides integration tests for the lineaged
// verification core.
//
// These tests exercise the complete flow across packages:
// 1. Submit hash-chained proofs through the engine pipeline
// 2. Persist every decision to the SQLite audit store
// 3. Export the run as a schema-checked record
// 4. Replay the record through a fresh engine and compare outcomes
package internal

import (
	"path/filepath"
	"testing"
	"time"

	"lineaged/internal/engine"
	"lineaged/internal/export"
	"lineaged/internal/lineage"
	"lineaged/internal/score"
	"lineaged/internal/signer"
	"lineaged/internal/store"
)

const anchor = "local://integration"

func TestFullVerificationPipeline(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	db, err := store.Open(dbPath, func() int64 { return time.Now().UnixNano() })
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	base := int64(1_700_000_000)
	now := base
	eng, err := engine.New(engine.Config{
		Clock: func() int64 { return now },
		Sink:  db,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, priv, err := signer.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := eng.RegisterSigner("prover", priv); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Honest chain with one replay and one tampered proof mixed in.
	var third lineage.Proof
	for i := 0; i < 8; i++ {
		p, err := eng.SubmitAt("prover", []byte{byte(i)}, anchor, now)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if out := eng.Verify(p); !out.Accepted {
			t.Fatalf("proof %d rejected: %s", i, out.Reason)
		}
		if i == 2 {
			third = p
		}
		now++
	}
	if out := eng.Verify(third); out.Reason != engine.ReasonReplay {
		t.Fatalf("replay: got %s", out.Reason)
	}
	tampered, err := eng.SubmitAt("prover", []byte("x"), anchor, now)
	if err != nil {
		t.Fatalf("submit tampered: %v", err)
	}
	tampered.Event.Payload = []byte("y")
	tampered.EventHash = tampered.Event.Hash()
	if out := eng.Verify(tampered); out.Reason != engine.ReasonBadSignature {
		t.Fatalf("tampered: got %s", out.Reason)
	}

	// The store saw exactly what the engine decided.
	stored, err := db.Decisions("prover")
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	live := eng.DecisionsFor("prover")
	if len(stored) != len(live) {
		t.Fatalf("store has %d decisions, engine %d", len(stored), len(live))
	}
	for i := range stored {
		if stored[i].Reason != live[i].Reason || stored[i].RefTime != live[i].RefTime {
			t.Fatalf("decision %d differs: stored %+v, live %+v", i, stored[i], live[i])
		}
	}
	chain, err := db.Chain("prover")
	if err != nil {
		t.Fatalf("read chain: %v", err)
	}
	if len(chain) != 8 {
		t.Fatalf("store chain length %d, want 8", len(chain))
	}
	for i, p := range chain {
		if p.Event.Hash() != p.EventHash {
			t.Fatalf("stored proof %d hash does not recompute", i)
		}
	}

	// Scores reflect the two rejections.
	cons := score.Consistency(live)
	if want := 8.0 / 10.0; cons != want {
		t.Fatalf("consistency: got %v, want %v", cons, want)
	}

	// Export, parse, replay: identical outcomes and trust.
	rec := export.Capture(eng)
	data, err := rec.Marshal()
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	parsed, err := export.Parse(data)
	if err != nil {
		t.Fatalf("parse record: %v", err)
	}
	res, err := export.Replay(parsed, export.ReplayConfig{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Match {
		t.Fatalf("replay diverged: %+v", res.Divergences)
	}
}
