package lineage

import (
	"testing"

	"lineaged/internal/canon"
)

func testProof(modelID string, index uint64, prevHash string) Proof {
	ev := Event{
		ModelID:   modelID,
		Index:     index,
		Timestamp: 1000 + int64(index)*10,
		Payload:   []byte("step"),
		PrevHash:  prevHash,
	}
	return Proof{
		Event:     ev,
		EventHash: ev.Hash(),
		Signature: make([]byte, 64),
		AnchorRef: "anchor:test",
	}
}

func TestLastHashUnseenIdentity(t *testing.T) {
	s := NewStore()
	if got := s.LastHash("never-seen"); got != canon.GenesisHash {
		t.Errorf("expected %q for unseen identity, got %q", canon.GenesisHash, got)
	}
}

func TestAppendAdvancesLastHash(t *testing.T) {
	s := NewStore()

	p0 := testProof("model-a", 0, canon.GenesisHash)
	s.Append(p0)
	if got := s.LastHash("model-a"); got != p0.EventHash {
		t.Errorf("LastHash = %q, want %q", got, p0.EventHash)
	}

	p1 := testProof("model-a", 1, p0.EventHash)
	s.Append(p1)
	if got := s.LastHash("model-a"); got != p1.EventHash {
		t.Errorf("LastHash = %q, want %q", got, p1.EventHash)
	}
}

func TestChainsAreIndependent(t *testing.T) {
	s := NewStore()
	s.Append(testProof("model-a", 0, canon.GenesisHash))

	if got := s.LastHash("model-b"); got != canon.GenesisHash {
		t.Errorf("model-b should be unaffected by model-a, got %q", got)
	}
	if n := s.Len("model-b"); n != 0 {
		t.Errorf("model-b chain length = %d, want 0", n)
	}
}

func TestChainReturnsCopy(t *testing.T) {
	s := NewStore()
	p := testProof("model-a", 0, canon.GenesisHash)
	s.Append(p)

	chain := s.Chain("model-a")
	if len(chain) != 1 {
		t.Fatalf("chain length = %d, want 1", len(chain))
	}
	chain[0].EventHash = "tampered"

	if got := s.LastHash("model-a"); got != p.EventHash {
		t.Error("mutating the returned chain affected the store")
	}
}

func TestEventHashMatchesCanon(t *testing.T) {
	ev := Event{ModelID: "m", Index: 2, Timestamp: 50, Payload: []byte("p"), PrevHash: "prev"}
	want := canon.Digest("m", 2, "prev", []byte("p"), 50)
	if got := ev.Hash(); got != want {
		t.Errorf("Event.Hash = %q, want %q", got, want)
	}
}

func TestReset(t *testing.T) {
	s := NewStore()
	s.Append(testProof("model-a", 0, canon.GenesisHash))
	s.Reset("model-a")

	if got := s.LastHash("model-a"); got != canon.GenesisHash {
		t.Errorf("after reset LastHash = %q, want %q", got, canon.GenesisHash)
	}
}
