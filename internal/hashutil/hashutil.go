// Package hashutil holds the hash and fingerprint primitives shared by the
// reconciliation engines: element-to-field mapping, filter fingerprints, and
// the IBLT cell key schedule.
package hashutil

import (
	"encoding/binary"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cespare/xxhash/v2"
)

// ValueInField maps the canonical integer view of raw bytes into [0, p).
// For b-bit elements and p > 2^b this is the identity on values.
func ValueInField(raw []byte, p *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).SetBytes(raw), p)
}

// HashToField maps raw bytes through the uniform base hash into [0, p),
// truncated to bits before reduction so the image stays inside the element
// value range. Injective with overwhelming probability when p > 2^bits.
func HashToField(raw []byte, p *big.Int, bits uint) *big.Int {
	h := chainhash.HashB(raw)
	v := new(big.Int).SetBytes(h)
	if width := uint(len(h) * 8); bits < width {
		v.Rsh(v, width-bits)
	}
	return v.Mod(v, p)
}

// Hash64 is the uniform 64-bit hash used where a field element is not
// needed: fingerprints, cuckoo primary buckets, sketch inputs.
func Hash64(raw []byte) uint64 {
	h := chainhash.HashB(raw)
	return binary.BigEndian.Uint64(h[:8])
}

// SeededHash64 hashes raw prefixed by an 8-byte big-endian seed.
func SeededHash64(seed uint64, raw []byte) uint64 {
	var d xxhash.Digest
	d.Reset()
	var sb [8]byte
	binary.BigEndian.PutUint64(sb[:], seed)
	_, _ = d.Write(sb[:])
	_, _ = d.Write(raw)
	return d.Sum64()
}

// Fingerprint returns the ell least-significant bits of the uniform hash of
// raw. Zero is reserved as the empty-slot marker, so a zero output is
// remapped to 1.
func Fingerprint(raw []byte, ell uint) uint32 {
	f := uint32(Hash64(raw) & ((1 << ell) - 1))
	if f == 0 {
		f = 1
	}
	return f
}

// CellIndices computes the k distinct IBLT cell indices for key under the
// given base seed: h_i(x) = H(seed_i || x) mod cells. A collision among the
// k indices re-hashes with an incremented seed, bounded to k attempts; the
// second return is false when no collision-free schedule was found.
func CellIndices(key []byte, cells, k int, seed uint64) ([]int, bool) {
	for attempt := 0; attempt < k; attempt++ {
		base := seed + uint64(attempt)*uint64(k)
		idx := make([]int, 0, k)
		seen := make(map[int]bool, k)
		ok := true
		for i := 0; i < k; i++ {
			c := int(SeededHash64(base+uint64(i), key) % uint64(cells))
			if seen[c] {
				ok = false
				break
			}
			seen[c] = true
			idx = append(idx, c)
		}
		if ok {
			return idx, true
		}
	}
	return nil, false
}
