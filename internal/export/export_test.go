package export

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"lineaged/internal/engine"
	"lineaged/internal/lineage"
	"lineaged/internal/signer"
)

const testAnchor = "anchor-test"

// buildRun drives an engine through a mixed sequence: honest proofs for
// two identities, a replayed proof, a fork, and a future-dated proof.
func buildRun(t *testing.T) *engine.Engine {
	t.Helper()

	base := int64(1_700_000_000)
	eng, err := engine.New(engine.Config{
		Clock: func() int64 { return base },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, privA, err := signer.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	_, privB, err := signer.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := eng.RegisterSigner("model-a", privA); err != nil {
		t.Fatalf("RegisterSigner: %v", err)
	}
	if err := eng.RegisterSigner("model-b", privB); err != nil {
		t.Fatalf("RegisterSigner: %v", err)
	}

	var accepted []lineage.Proof
	for i := 0; i < 5; i++ {
		p, err := eng.SubmitAt("model-a", []byte{byte(i)}, testAnchor, base+int64(i))
		if err != nil {
			t.Fatalf("SubmitAt: %v", err)
		}
		if out := eng.Verify(p); !out.Accepted {
			t.Fatalf("honest proof %d rejected: %s", i, out.Reason)
		}
		accepted = append(accepted, p)
	}
	for i := 0; i < 3; i++ {
		p, err := eng.SubmitAt("model-b", []byte("b"), testAnchor, base+int64(i))
		if err != nil {
			t.Fatalf("SubmitAt: %v", err)
		}
		if out := eng.Verify(p); !out.Accepted {
			t.Fatalf("honest proof rejected: %s", out.Reason)
		}
	}

	// Replay of an already accepted proof.
	if out := eng.Verify(accepted[2]); out.Reason != engine.ReasonReplay {
		t.Fatalf("replayed proof: got %s, want %s", out.Reason, engine.ReasonReplay)
	}

	// Fork: well-formed and freshly signed, but stale prev_hash.
	forkEvent := lineage.Event{
		ModelID:   "model-a",
		Index:     accepted[2].Event.Index,
		Timestamp: base + 2,
		Payload:   []byte("forked"),
		PrevHash:  accepted[1].EventHash,
	}
	fork := lineage.Proof{
		Event:     forkEvent,
		EventHash: forkEvent.Hash(),
		Signature: signer.Sign(privA, forkEvent.Message()),
		AnchorRef: testAnchor,
	}
	if out := eng.Verify(fork); out.Reason != engine.ReasonLineageMismatch {
		t.Fatalf("forked proof: got %s, want %s", out.Reason, engine.ReasonLineageMismatch)
	}

	// Future-dated proof, beyond the drift bound.
	p, err := eng.SubmitAt("model-a", []byte("late"), testAnchor, base+3600)
	if err != nil {
		t.Fatalf("SubmitAt: %v", err)
	}
	if out := eng.Verify(p); out.Reason != engine.ReasonTimeFuture {
		t.Fatalf("future proof: got %s, want %s", out.Reason, engine.ReasonTimeFuture)
	}

	return eng
}

func TestCaptureReplayRoundTrip(t *testing.T) {
	eng := buildRun(t)
	rec := Capture(eng)

	if rec.Version != FormatVersion {
		t.Fatalf("version: got %d, want %d", rec.Version, FormatVersion)
	}
	if len(rec.Proofs) != len(rec.Decisions) {
		t.Fatalf("lengths: %d proofs, %d decisions", len(rec.Proofs), len(rec.Decisions))
	}

	data, err := rec.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	res, err := Replay(parsed, ReplayConfig{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !res.Match {
		t.Fatalf("replay diverged: %+v", res.Divergences)
	}
	if !trustEqual(res.FinalTrust, rec.FinalTrust) {
		t.Fatalf("final trust differs:\nreplay: %+v\nrecord: %+v", res.FinalTrust, rec.FinalTrust)
	}
}

// Replay must reproduce time-bound rejections long after the recorded
// reference times have passed, because the record carries them.
func TestReplayIsWallClockIndependent(t *testing.T) {
	eng := buildRun(t)
	rec := Capture(eng)

	var hadTimeFailure bool
	for _, d := range rec.Decisions {
		if d.Reason == engine.ReasonTimeFuture {
			hadTimeFailure = true
		}
		if d.RefTime == 0 {
			t.Fatalf("decision %d has no recorded reference time", d.Seq)
		}
	}
	if !hadTimeFailure {
		t.Fatal("run has no time failure to reproduce")
	}

	res, err := Replay(rec, ReplayConfig{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !res.Match {
		t.Fatalf("replay diverged: %+v", res.Divergences)
	}
}

func TestReplayFlagsTamperedRecord(t *testing.T) {
	eng := buildRun(t)
	rec := Capture(eng)

	// Flip one recorded outcome; the replay recomputes it and disagrees.
	for i, d := range rec.Decisions {
		if d.Reason == engine.ReasonOK {
			rec.Decisions[i].Reason = engine.ReasonReplay
			break
		}
	}

	res, err := Replay(rec, ReplayConfig{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Match {
		t.Fatal("tampered record replayed clean")
	}
	if len(res.Divergences) == 0 {
		t.Fatal("no divergence reported")
	}
	if res.Divergences[0].Replayed != engine.ReasonOK {
		t.Fatalf("divergence: got %s, want %s", res.Divergences[0].Replayed, engine.ReasonOK)
	}
}

func TestReplayFlagsTamperedProof(t *testing.T) {
	eng := buildRun(t)
	rec := Capture(eng)

	// Mutate an accepted proof's payload. The signature no longer covers
	// the bytes, so replay downgrades it and every later decision for
	// that identity shifts too.
	for i := range rec.Proofs {
		if rec.Decisions[i].Reason == engine.ReasonOK {
			rec.Proofs[i].Event.Payload = []byte("tampered")
			break
		}
	}

	res, err := Replay(rec, ReplayConfig{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Match {
		t.Fatal("tampered proof replayed clean")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Fatal("malformed JSON accepted")
	}

	// Valid JSON, wrong shape.
	if _, err := Parse([]byte(`{"version": 1}`)); !errors.Is(err, ErrSchema) {
		t.Fatalf("got %v, want ErrSchema", err)
	}
}

func TestParseRejectsLengthMismatch(t *testing.T) {
	eng := buildRun(t)
	rec := Capture(eng)
	rec.Proofs = rec.Proofs[:len(rec.Proofs)-1]

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Parse(data); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("got %v, want ErrLengthMismatch", err)
	}
}

func TestMarshalEnforcesSchema(t *testing.T) {
	eng := buildRun(t)
	rec := Capture(eng)
	rec.RunID = "not-a-uuid"

	if _, err := rec.Marshal(); !errors.Is(err, ErrSchema) {
		t.Fatalf("got %v, want ErrSchema", err)
	}
}

func TestReplayRejectsBadKey(t *testing.T) {
	eng := buildRun(t)
	rec := Capture(eng)
	rec.Identities[0].PublicKey = []byte("short")

	if _, err := Replay(rec, ReplayConfig{}); !errors.Is(err, ErrBadPublicKey) {
		t.Fatalf("got %v, want ErrBadPublicKey", err)
	}
}

func TestRunIDsAreUnique(t *testing.T) {
	eng := buildRun(t)
	a := Capture(eng)
	b := Capture(eng)
	if a.RunID == b.RunID {
		t.Fatalf("two captures share run id %s", a.RunID)
	}
	if a.CreatedAt == 0 || a.CreatedAt > time.Now().Unix() {
		t.Fatalf("implausible created_at %d", a.CreatedAt)
	}
}
