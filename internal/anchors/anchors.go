// Package anchors defines the boundary to the external anchoring
// collaborator. Anchoring a proof hash to a ledger happens strictly
// before a proof reaches the verification pipeline; the engine sees only
// the already-resolved anchor reference string and, optionally, a
// validity predicate supplied here.
package anchors

import "strings"

// Checker decides whether an anchor reference is acceptable. It must be
// a bounded, non-blocking computation; any ledger lookup belongs to the
// collaborator that produced the reference.
type Checker interface {
	// Check reports whether the anchor reference is valid. An empty
	// reference is always invalid.
	Check(anchorRef string) bool
}

// NonEmpty accepts any non-empty anchor reference. This is the engine
// default: anchor validity is the external collaborator's problem.
type NonEmpty struct{}

func (NonEmpty) Check(anchorRef string) bool { return anchorRef != "" }

// Prefix accepts references carrying one of the configured scheme
// prefixes, e.g. "tx:" or "ots:".
type Prefix struct {
	Prefixes []string
}

func (p Prefix) Check(anchorRef string) bool {
	if anchorRef == "" {
		return false
	}
	for _, pre := range p.Prefixes {
		if strings.HasPrefix(anchorRef, pre) {
			return true
		}
	}
	return false
}

// Static answers from a fixed allow set, for tests and replay.
type Static struct {
	Allowed map[string]bool
}

func (s Static) Check(anchorRef string) bool {
	return anchorRef != "" && s.Allowed[anchorRef]
}
