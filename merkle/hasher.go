package merkle

import "crypto/sha256"

// Node is a 32-byte tree value: either a SHA-256 hash (inner node) or
// right-padded raw bytes (a leaf).
type Node [32]byte

// Hash computes h(left, right) = SHA256(left || right), the one primitive
// the whole commitment scheme is built on. The hash algorithm is fixed so
// both sides of a dispute agree on it byte-for-byte, so this stays on the
// standard library rather than the ecosystem's hash packages (see
// DESIGN.md).
func Hash(left, right Node) Node {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out Node
	h.Sum(out[:0])
	return out
}

// maxZeroDepth bounds the precomputed zero-subtree table. The deepest
// gindex the state layout produces is well under this.
const maxZeroDepth = 64

var zeroHashes [maxZeroDepth + 1]Node

func init() {
	zeroHashes[0] = Node{}
	for d := 1; d <= maxZeroDepth; d++ {
		zeroHashes[d] = Hash(zeroHashes[d-1], zeroHashes[d-1])
	}
}

// ZeroHash returns Z[depth], the root of an all-zero subtree of the given
// depth (Z[0] is the 32 zero bytes leaf value).
func ZeroHash(depth uint) Node {
	if depth > maxZeroDepth {
		depth = maxZeroDepth
	}
	return zeroHashes[depth]
}

// NodeFromBytes right-pads b into a leaf Node, as raw (non-hash) leaf data.
func NodeFromBytes(b []byte) Node {
	var n Node
	copy(n[:], b)
	return n
}
