// Package bytesutil provides fixed-width little-endian byte packing
// helpers, in the spirit of shared/bytesutil's ToBytes/FromBytes family,
// scoped down to exactly what the list-packing layout needs.
package bytesutil

// ToBytes returns the little-endian encoding of a in n bytes. a must fit in
// n bytes; higher bytes are silently truncated, matching shared/bytesutil's
// documented behavior.
func ToBytes(a uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(a >> (8 * uint(i)))
	}
	return out
}

// FromBytes decodes a little-endian unsigned integer from b.
func FromBytes(b []byte) uint64 {
	var out uint64
	for i, v := range b {
		out |= uint64(v) << (8 * uint(i))
	}
	return out
}

// Bytes2 is ToBytes(a, 2).
func Bytes2(a uint64) []byte { return ToBytes(a, 2) }

// FromBytes2 decodes a 2-byte little-endian unsigned integer.
func FromBytes2(b []byte) uint16 { return uint16(FromBytes(b)) }
