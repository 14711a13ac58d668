// Package canon builds the canonical byte encoding of a lineage event and
// hashes it. Signing and hashing operate over the same bytes, so a proof
// whose signature verifies is a proof over exactly the fields that produced
// its event hash.
package canon

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// GenesisHash is the sentinel previous-hash for the first event of an
// identity's lineage.
const GenesisHash = "GENESIS"

// DigestSize is the width of an event hash in bytes.
const DigestSize = blake2b.Size256

// domainPrefix separates lineage event hashes from any other use of the
// same hash function.
const domainPrefix = "lineaged-event-v1"

// Message serializes the canonical event fields into an unambiguous byte
// string. Variable-length fields are length-prefixed; integers are
// big-endian. Identical inputs produce identical output on any platform.
func Message(modelID string, index uint64, prevHash string, payload []byte, timestamp int64) []byte {
	size := len(domainPrefix) + 5*8 + len(modelID) + len(prevHash) + len(payload)
	msg := make([]byte, 0, size)

	msg = append(msg, domainPrefix...)
	msg = appendLenPrefixed(msg, []byte(modelID))
	msg = binary.BigEndian.AppendUint64(msg, index)
	msg = appendLenPrefixed(msg, []byte(prevHash))
	msg = appendLenPrefixed(msg, payload)
	msg = binary.BigEndian.AppendUint64(msg, uint64(timestamp))
	return msg
}

// Digest computes the hex-encoded BLAKE2b-256 event hash over the
// canonical message. Pure function, no side effects.
func Digest(modelID string, index uint64, prevHash string, payload []byte, timestamp int64) string {
	sum := blake2b.Sum256(Message(modelID, index, prevHash, payload, timestamp))
	return hex.EncodeToString(sum[:])
}

// ValidDigest reports whether s is a well-formed event hash: non-empty,
// correct width, and valid hex.
func ValidDigest(s string) bool {
	if len(s) != DigestSize*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func appendLenPrefixed(dst, b []byte) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(len(b)))
	return append(dst, b...)
}
