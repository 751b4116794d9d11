// Package addr derives demo sender addresses from human-readable labels,
// the way shared/hashutil derives beacon-chain hashes: Keccak-256 over the
// label, truncated to a 20-byte address. It exists only for the CLI's
// convenience when a caller wants a reproducible sender without having to
// hand-type 40 hex characters; the rollup's state model treats the
// sender as opaque 20 bytes regardless of how it was produced.
package addr

import "golang.org/x/crypto/sha3"

// Derive returns a deterministic 20-byte address for label.
func Derive(label string) [20]byte {
	var out [20]byte
	h := sha3.NewLegacyKeccak256()
	// #nosec G104
	h.Write([]byte(label))
	var full [32]byte
	h.Sum(full[:0])
	copy(out[:], full[:20])
	return out
}
