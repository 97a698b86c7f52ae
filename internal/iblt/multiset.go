package iblt

import (
	"fmt"
	"math/big"

	"github.com/nislab/gensync/internal/hashutil"
)

// Multiset is the count-multiplicity IBLT variant. Sums are additive
// integers rather than XOR accumulators, so a cell holding n copies of one
// key satisfies keySum = n*key and hashSum = n*H(key); that product form is
// the pure-cell predicate, and peeling removes all n copies at once.
type Multiset struct {
	counts   []int64
	keySums  []*big.Int
	hashSums []*big.Int
	k        int
	keySize  int
	seed     uint64
}

// NewMultiset builds an empty multiset table; cellCount is rounded up to a
// multiple of k like the set variant.
func NewMultiset(cellCount, k, keySize int, seed uint64) *Multiset {
	if k <= 0 {
		k = DefaultK
	}
	if cellCount < k {
		cellCount = k
	}
	if rem := cellCount % k; rem != 0 {
		cellCount += k - rem
	}
	m := &Multiset{
		counts:   make([]int64, cellCount),
		keySums:  make([]*big.Int, cellCount),
		hashSums: make([]*big.Int, cellCount),
		k:        k,
		keySize:  keySize,
		seed:     seed,
	}
	for i := 0; i < cellCount; i++ {
		m.keySums[i] = new(big.Int)
		m.hashSums[i] = new(big.Int)
	}
	return m
}

// NewMultisetForExpected sizes for an expected difference count.
func NewMultisetForExpected(expected, keySize int, seed uint64) *Multiset {
	c := (expected*loadNumerator + loadDenominator - 1) / loadDenominator
	return NewMultiset(c, DefaultK, keySize, seed)
}

// Cells returns the cell count.
func (m *Multiset) Cells() int { return len(m.counts) }

// K returns the per-key cell count.
func (m *Multiset) K() int { return m.k }

// KeySize returns the fixed key width.
func (m *Multiset) KeySize() int { return m.keySize }

// Seed returns the hash-schedule seed.
func (m *Multiset) Seed() uint64 { return m.seed }

func (m *Multiset) keyHash(key []byte) *big.Int {
	return new(big.Int).SetUint64(hashutil.SeededHash64(m.seed, key))
}

func (m *Multiset) apply(key []byte, delta int64) bool {
	key = pad(key, m.keySize)
	idx, ok := hashutil.CellIndices(key, len(m.counts), m.k, m.seed)
	if !ok {
		return false
	}
	kv := new(big.Int).SetBytes(key)
	hv := m.keyHash(key)
	d := big.NewInt(delta)
	for _, i := range idx {
		m.counts[i] += delta
		m.keySums[i].Add(m.keySums[i], new(big.Int).Mul(kv, d))
		m.hashSums[i].Add(m.hashSums[i], new(big.Int).Mul(hv, d))
	}
	return true
}

// Insert adds one occurrence of key.
func (m *Multiset) Insert(key []byte) bool {
	return m.apply(key, 1)
}

// Erase removes one occurrence of key.
func (m *Multiset) Erase(key []byte) bool {
	return m.apply(key, -1)
}

// Subtract returns self minus other cell-wise.
func (m *Multiset) Subtract(other *Multiset) (*Multiset, error) {
	if len(m.counts) != len(other.counts) || m.k != other.k ||
		m.seed != other.seed || m.keySize != other.keySize {
		return nil, fmt.Errorf("iblt: multiset subtract with mismatched parameters")
	}
	out := NewMultiset(len(m.counts), m.k, m.keySize, m.seed)
	for i := range m.counts {
		out.counts[i] = m.counts[i] - other.counts[i]
		out.keySums[i].Sub(m.keySums[i], other.keySums[i])
		out.hashSums[i].Sub(m.hashSums[i], other.hashSums[i])
	}
	return out, nil
}

// MultisetEntry is one decoded key with its signed multiplicity.
type MultisetEntry struct {
	Key   []byte
	Count int64
}

// pureKey reports whether cell i holds count copies of one key and returns
// the key bytes when it does.
func (m *Multiset) pureKey(i int) ([]byte, bool) {
	n := m.counts[i]
	if n == 0 {
		return nil, false
	}
	cnt := big.NewInt(n)
	q, r := new(big.Int).QuoRem(m.keySums[i], cnt, new(big.Int))
	if r.Sign() != 0 || q.Sign() < 0 {
		return nil, false
	}
	if q.BitLen() > m.keySize*8 {
		return nil, false
	}
	key := pad(q.Bytes(), m.keySize)
	expect := new(big.Int).Mul(m.keyHash(key), cnt)
	if expect.Cmp(m.hashSums[i]) != 0 {
		return nil, false
	}
	return key, true
}

// ListEntries peels the multiset table. Positive counts land in positives,
// negative in negatives; ok is true iff the table drains to zero.
func (m *Multiset) ListEntries() (positives, negatives []MultisetEntry, ok bool) {
	work := m.clone()
	for {
		found := false
		for i := range work.counts {
			key, pure := work.pureKey(i)
			if !pure {
				continue
			}
			n := work.counts[i]
			if n > 0 {
				positives = append(positives, MultisetEntry{Key: key, Count: n})
			} else {
				negatives = append(negatives, MultisetEntry{Key: key, Count: -n})
			}
			work.apply(key, -n)
			found = true
			break
		}
		if !found {
			break
		}
	}
	return positives, negatives, work.empty()
}

func (m *Multiset) empty() bool {
	for i := range m.counts {
		if m.counts[i] != 0 || m.keySums[i].Sign() != 0 || m.hashSums[i].Sign() != 0 {
			return false
		}
	}
	return true
}

func (m *Multiset) clone() *Multiset {
	out := NewMultiset(len(m.counts), m.k, m.keySize, m.seed)
	copy(out.counts, m.counts)
	for i := range m.counts {
		out.keySums[i].Set(m.keySums[i])
		out.hashSums[i].Set(m.hashSums[i])
	}
	return out
}

// Encode streams the multiset table through the caller's primitive
// writers: c, k, then per cell the signed count (as two's-complement
// uint32) and the sign-byte-prefixed key and hash sums.
func (m *Multiset) Encode(putU32 func(uint32) error, putBytes func([]byte) error) error {
	if err := putU32(uint32(len(m.counts))); err != nil {
		return err
	}
	if err := putU32(uint32(m.k)); err != nil {
		return err
	}
	for i := range m.counts {
		if err := putU32(uint32(int32(m.counts[i]))); err != nil {
			return err
		}
		if err := putBytes(signedBytes(m.keySums[i])); err != nil {
			return err
		}
		if err := putBytes(signedBytes(m.hashSums[i])); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMultiset reads a table shaped like local through the caller's
// primitive readers.
func DecodeMultiset(local *Multiset, getU32 func() (uint32, error), getBytes func() ([]byte, error)) (*Multiset, error) {
	cellCount, err := getU32()
	if err != nil {
		return nil, err
	}
	k, err := getU32()
	if err != nil {
		return nil, err
	}
	if int(cellCount) != len(local.counts) || int(k) != local.k {
		return nil, fmt.Errorf("iblt: multiset shape (%d cells, k=%d) vs local (%d cells, k=%d)",
			cellCount, k, len(local.counts), local.k)
	}
	out := NewMultiset(int(cellCount), int(k), local.keySize, local.seed)
	for i := 0; i < int(cellCount); i++ {
		cnt, err := getU32()
		if err != nil {
			return nil, err
		}
		out.counts[i] = int64(int32(cnt))
		kb, err := getBytes()
		if err != nil {
			return nil, err
		}
		out.keySums[i] = signedFromBytes(kb)
		hb, err := getBytes()
		if err != nil {
			return nil, err
		}
		out.hashSums[i] = signedFromBytes(hb)
	}
	return out, nil
}

// signedBytes prefixes the big-endian magnitude with one sign byte.
func signedBytes(v *big.Int) []byte {
	sign := byte(0)
	if v.Sign() < 0 {
		sign = 1
	}
	return append([]byte{sign}, v.Bytes()...)
}

func signedFromBytes(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	v := new(big.Int).SetBytes(b[1:])
	if b[0] == 1 {
		v.Neg(v)
	}
	return v
}

// Counts exposes the signed cell counts for the anti-commutativity checks
// in tests.
func (m *Multiset) Counts() []int64 {
	out := make([]int64, len(m.counts))
	copy(out, m.counts)
	return out
}
