// Package iblt implements the invertible Bloom lookup table used by the
// IBLT reconciliation family: insert, erase, cell-wise subtract, and the
// peeling decode, plus a count-multiplicity variant for multisets.
package iblt

import (
	"encoding/binary"
	"fmt"

	"github.com/nislab/gensync/internal/hashutil"
)

// DefaultK is the number of cells each key maps to.
const DefaultK = 4

// loadNumerator / loadDenominator give the cell headroom over the expected
// difference: c = ceil(expected * 3 / 2), rounded up to a multiple of k.
const (
	loadNumerator   = 3
	loadDenominator = 2
)

// Entry is one decoded key/value pair.
type Entry struct {
	Key   []byte
	Value []byte
}

type cell struct {
	count    int32
	keySum   []byte
	valueSum []byte
	hashSum  uint64
}

// Table is a standard (set-semantics) IBLT. Cell membership comes from k
// independent seeded hashes; sums are XOR accumulators. Two tables are
// subtractable only when (cells, k, seed) and the byte widths agree.
type Table struct {
	cells     []cell
	k         int
	keySize   int
	valueSize int
	seed      uint64
}

// New builds an empty table. cellCount is rounded up to a multiple of k.
func New(cellCount, k, keySize, valueSize int, seed uint64) *Table {
	if k <= 0 {
		k = DefaultK
	}
	if cellCount < k {
		cellCount = k
	}
	if rem := cellCount % k; rem != 0 {
		cellCount += k - rem
	}
	t := &Table{
		cells:     make([]cell, cellCount),
		k:         k,
		keySize:   keySize,
		valueSize: valueSize,
		seed:      seed,
	}
	for i := range t.cells {
		t.cells[i].keySum = make([]byte, keySize)
		t.cells[i].valueSum = make([]byte, valueSize)
	}
	return t
}

// NewForExpected sizes a table for an expected symmetric-difference count.
func NewForExpected(expected, keySize, valueSize int, seed uint64) *Table {
	c := (expected*loadNumerator + loadDenominator - 1) / loadDenominator
	return New(c, DefaultK, keySize, valueSize, seed)
}

// Cells returns the cell count.
func (t *Table) Cells() int { return len(t.cells) }

// K returns the per-key cell count.
func (t *Table) K() int { return t.k }

// KeySize returns the fixed key width in bytes.
func (t *Table) KeySize() int { return t.keySize }

// ValueSize returns the fixed value width in bytes.
func (t *Table) ValueSize() int { return t.valueSize }

// Seed returns the hash-schedule seed.
func (t *Table) Seed() uint64 { return t.seed }

func (t *Table) indices(key []byte) ([]int, bool) {
	return hashutil.CellIndices(key, len(t.cells), t.k, t.seed)
}

func xorInto(dst, src []byte) {
	for i := range src {
		dst[i] ^= src[i]
	}
}

func (t *Table) apply(key, value []byte, delta int32) bool {
	idx, ok := t.indices(key)
	if !ok {
		return false
	}
	h := hashutil.SeededHash64(t.seed, key)
	for _, i := range idx {
		c := &t.cells[i]
		c.count += delta
		xorInto(c.keySum, key)
		xorInto(c.valueSum, value)
		c.hashSum ^= h
	}
	return true
}

// Insert adds one key/value pair. It fails only when no collision-free cell
// schedule exists for the key.
func (t *Table) Insert(key, value []byte) bool {
	return t.apply(pad(key, t.keySize), pad(value, t.valueSize), 1)
}

// Erase removes one key/value pair; on an empty table this leaves negated
// entries, which is exactly what subtraction semantics require.
func (t *Table) Erase(key, value []byte) bool {
	return t.apply(pad(key, t.keySize), pad(value, t.valueSize), -1)
}

func pad(b []byte, size int) []byte {
	if len(b) == size {
		return b
	}
	out := make([]byte, size)
	if len(b) >= size {
		copy(out, b[len(b)-size:])
	} else {
		copy(out[size-len(b):], b)
	}
	return out
}

// Subtract returns self minus other, cell-wise: counts subtract, sums XOR.
func (t *Table) Subtract(other *Table) (*Table, error) {
	if len(t.cells) != len(other.cells) || t.k != other.k || t.seed != other.seed ||
		t.keySize != other.keySize || t.valueSize != other.valueSize {
		return nil, fmt.Errorf("iblt: subtract with mismatched parameters (%d/%d cells, k %d/%d, seed %d/%d)",
			len(t.cells), len(other.cells), t.k, other.k, t.seed, other.seed)
	}
	out := New(len(t.cells), t.k, t.keySize, t.valueSize, t.seed)
	for i := range t.cells {
		a, b := &t.cells[i], &other.cells[i]
		o := &out.cells[i]
		o.count = a.count - b.count
		copy(o.keySum, a.keySum)
		xorInto(o.keySum, b.keySum)
		copy(o.valueSum, a.valueSum)
		xorInto(o.valueSum, b.valueSum)
		o.hashSum = a.hashSum ^ b.hashSum
	}
	return out, nil
}

func (t *Table) isPure(i int) bool {
	c := &t.cells[i]
	if c.count != 1 && c.count != -1 {
		return false
	}
	return hashutil.SeededHash64(t.seed, c.keySum) == c.hashSum
}

// ListEntries runs the peeling decode. Entries with count +1 land in
// positives, -1 in negatives. ok is true iff the table is fully drained;
// otherwise the recovered prefix is still returned and the caller reports a
// partial decode.
func (t *Table) ListEntries() (positives, negatives []Entry, ok bool) {
	work := t.clone()
	for {
		found := false
		for i := range work.cells {
			if !work.isPure(i) {
				continue
			}
			c := &work.cells[i]
			key := append([]byte(nil), c.keySum...)
			value := append([]byte(nil), c.valueSum...)
			if c.count == 1 {
				positives = append(positives, Entry{Key: key, Value: value})
				work.apply(key, value, -1)
			} else {
				negatives = append(negatives, Entry{Key: key, Value: value})
				work.apply(key, value, 1)
			}
			found = true
			break
		}
		if !found {
			break
		}
	}
	return positives, negatives, work.empty()
}

func (t *Table) empty() bool {
	for i := range t.cells {
		c := &t.cells[i]
		if c.count != 0 || c.hashSum != 0 {
			return false
		}
		for _, b := range c.keySum {
			if b != 0 {
				return false
			}
		}
		for _, b := range c.valueSum {
			if b != 0 {
				return false
			}
		}
	}
	return true
}

func (t *Table) clone() *Table {
	out := New(len(t.cells), t.k, t.keySize, t.valueSize, t.seed)
	for i := range t.cells {
		out.cells[i].count = t.cells[i].count
		copy(out.cells[i].keySum, t.cells[i].keySum)
		copy(out.cells[i].valueSum, t.cells[i].valueSum)
		out.cells[i].hashSum = t.cells[i].hashSum
	}
	return out
}

// Counts exposes the signed cell counts; the subtraction tests assert
// anti-commutativity over them.
func (t *Table) Counts() []int32 {
	out := make([]int32, len(t.cells))
	for i := range t.cells {
		out[i] = t.cells[i].count
	}
	return out
}

// cellRecordSize is the wire width of one cell record.
func (t *Table) cellRecordSize() int {
	return 4 + t.keySize + t.valueSize + 8
}

// MarshalBinary encodes the table in the wire form: c:uint32, k:uint32,
// then c cell records of (count:int32, keySum, valueSum, hashSum), all
// big-endian.
func (t *Table) MarshalBinary() ([]byte, error) {
	out := make([]byte, 8+len(t.cells)*t.cellRecordSize())
	binary.BigEndian.PutUint32(out[0:4], uint32(len(t.cells)))
	binary.BigEndian.PutUint32(out[4:8], uint32(t.k))
	off := 8
	for i := range t.cells {
		c := &t.cells[i]
		binary.BigEndian.PutUint32(out[off:], uint32(c.count))
		off += 4
		copy(out[off:], c.keySum)
		off += t.keySize
		copy(out[off:], c.valueSum)
		off += t.valueSize
		binary.BigEndian.PutUint64(out[off:], c.hashSum)
		off += 8
	}
	return out, nil
}

// UnmarshalCells decodes cell records into a table shaped like the
// receiver's own configuration. The header (c, k) must already have been
// read and validated by the caller; data holds exactly c records.
func UnmarshalCells(cellCount, k, keySize, valueSize int, seed uint64, data []byte) (*Table, error) {
	t := New(cellCount, k, keySize, valueSize, seed)
	if len(t.cells) != cellCount {
		return nil, fmt.Errorf("iblt: cell count %d not a multiple of k %d", cellCount, k)
	}
	want := cellCount * t.cellRecordSize()
	if len(data) != want {
		return nil, fmt.Errorf("iblt: cell payload %d bytes, want %d", len(data), want)
	}
	off := 0
	for i := 0; i < cellCount; i++ {
		c := &t.cells[i]
		c.count = int32(binary.BigEndian.Uint32(data[off:]))
		off += 4
		copy(c.keySum, data[off:off+keySize])
		off += keySize
		copy(c.valueSum, data[off:off+valueSize])
		off += valueSize
		c.hashSum = binary.BigEndian.Uint64(data[off:])
		off += 8
	}
	return t, nil
}
