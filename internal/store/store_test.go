package store

import (
	"path/filepath"
	"testing"

	"lineaged/internal/engine"
	"lineaged/internal/lineage"
	"lineaged/internal/signer"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	var ns int64
	s, err := Open(path, func() int64 { ns++; return ns })
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newSinkedEngine(t *testing.T, s *Store) *engine.Engine {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Clock = func() int64 { return 1000 }
	cfg.Sink = s
	e, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return e
}

func TestRecordAndQueryDecisions(t *testing.T) {
	s := openTestStore(t)
	e := newSinkedEngine(t, s)

	_, priv, _ := signer.GenerateKey()
	if err := e.RegisterSigner("model-a", priv); err != nil {
		t.Fatalf("register: %v", err)
	}

	good, err := e.SubmitAt("model-a", []byte("step"), "tx:1", 1000)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	e.Verify(good)
	e.Verify(good) // replay

	decs, err := s.Decisions("model-a")
	if err != nil {
		t.Fatalf("Decisions failed: %v", err)
	}
	if len(decs) != 2 {
		t.Fatalf("decision count = %d, want 2", len(decs))
	}
	if decs[0].Reason != engine.ReasonOK {
		t.Errorf("first reason = %s, want OK", decs[0].Reason)
	}
	if decs[1].Reason != engine.ReasonReplay {
		t.Errorf("second reason = %s, want REPLAY", decs[1].Reason)
	}
	if decs[0].Trust.Weight != 1.0 {
		t.Errorf("persisted weight = %v, want 1.0", decs[0].Trust.Weight)
	}
}

func TestChainPersistsAcceptedProofsOnly(t *testing.T) {
	s := openTestStore(t)
	e := newSinkedEngine(t, s)

	_, priv, _ := signer.GenerateKey()
	if err := e.RegisterSigner("model-a", priv); err != nil {
		t.Fatalf("register: %v", err)
	}

	p0, _ := e.SubmitAt("model-a", []byte("step-0"), "tx:1", 1000)
	e.Verify(p0)

	bad, _ := e.SubmitAt("model-a", []byte("step-1"), "tx:2", 1001)
	bad.Signature[0] ^= 0xff
	e.Verify(bad)

	chain, err := s.Chain("model-a")
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	if len(chain) != 1 {
		t.Fatalf("stored chain length = %d, want 1", len(chain))
	}
	if chain[0].EventHash != p0.EventHash {
		t.Errorf("stored hash = %q, want %q", chain[0].EventHash, p0.EventHash)
	}
	if string(chain[0].Event.Payload) != "step-0" {
		t.Errorf("stored payload = %q, want step-0", chain[0].Event.Payload)
	}
}

func TestCounts(t *testing.T) {
	s := openTestStore(t)
	d := engine.Decision{Seq: 0, ModelID: "m", Reason: engine.ReasonOK, Accepted: true}
	if err := s.RecordDecision(d, lineage.Proof{Event: lineage.Event{ModelID: "m"}}); err != nil {
		t.Fatalf("record: %v", err)
	}
	d = engine.Decision{Seq: 1, ModelID: "m", Reason: engine.ReasonReplay}
	if err := s.RecordDecision(d, lineage.Proof{}); err != nil {
		t.Fatalf("record: %v", err)
	}

	counts, err := s.Counts("m")
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[engine.ReasonOK] != 1 || counts[engine.ReasonReplay] != 1 {
		t.Errorf("counts = %v, want one OK and one REPLAY", counts)
	}
}

func TestDumpJSON(t *testing.T) {
	s := openTestStore(t)
	d := engine.Decision{Seq: 0, ModelID: "m", Reason: engine.ReasonOK, Accepted: true}
	if err := s.RecordDecision(d, lineage.Proof{Event: lineage.Event{ModelID: "m"}}); err != nil {
		t.Fatalf("record: %v", err)
	}

	data, err := s.DumpJSON("m")
	if err != nil {
		t.Fatalf("DumpJSON failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty JSON dump")
	}
}
