// Package util collects the small, allocation-conscious primitives shared by
// the rest of the toolkit: a 32-bit xxHash implementation, open-addressing
// hash and string interning tables, hex/base64 helpers, a filename sanity
// checker, and a path canonicalizer.
//
// None of these have a suitable third-party home in the retrieved example
// corpus (the pack's only xxhash dependency, github.com/cespare/xxhash/v2,
// is the 64-bit variant and produces different digests), so they are
// hand-rolled here, matching the reference algorithm in xxHash's
// specification.
package util

const (
	prime32_1 uint32 = 2654435761
	prime32_2 uint32 = 2246822519
	prime32_3 uint32 = 3266489917
	prime32_4 uint32 = 668265263
	prime32_5 uint32 = 374761393
)

func rotl32(x uint32, r uint32) uint32 {
	return (x << r) | (x >> (32 - r))
}

// XXHash32 computes the 32-bit xxHash digest of data using the given seed.
func XXHash32(data []byte, seed uint32) uint32 {
	var h32 uint32
	n := len(data)

	if n >= 16 {
		v1 := seed + prime32_1 + prime32_2
		v2 := seed + prime32_2
		v3 := seed
		v4 := seed - prime32_1

		for len(data) >= 16 {
			v1 = rotl32(v1+le32(data[0:4])*prime32_2, 13) * prime32_1
			v2 = rotl32(v2+le32(data[4:8])*prime32_2, 13) * prime32_1
			v3 = rotl32(v3+le32(data[8:12])*prime32_2, 13) * prime32_1
			v4 = rotl32(v4+le32(data[12:16])*prime32_2, 13) * prime32_1
			data = data[16:]
		}

		h32 = rotl32(v1, 1) + rotl32(v2, 7) + rotl32(v3, 12) + rotl32(v4, 18)
	} else {
		h32 = seed + prime32_5
	}

	h32 += uint32(n)

	for len(data) >= 4 {
		h32 += le32(data[0:4]) * prime32_3
		h32 = rotl32(h32, 17) * prime32_4
		data = data[4:]
	}

	for len(data) > 0 {
		h32 += uint32(data[0]) * prime32_5
		h32 = rotl32(h32, 11) * prime32_1
		data = data[1:]
	}

	h32 ^= h32 >> 15
	h32 *= prime32_2
	h32 ^= h32 >> 13
	h32 *= prime32_3
	h32 ^= h32 >> 16

	return h32
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
