package models

import (
	"math/big"
	"testing"
)

func TestDataObjectViews(t *testing.T) {
	d := NewDataObject([]byte{0x01, 0x02})
	if d.ToInt().Int64() != 258 {
		t.Errorf("ToInt = %v, want 258", d.ToInt())
	}
	if got := d.PaddedBytes(4); len(got) != 4 || got[2] != 0x01 || got[3] != 0x02 {
		t.Errorf("PaddedBytes = %v", got)
	}
	round, err := DataObjectFromBase64(d.Base64())
	if err != nil {
		t.Fatalf("DataObjectFromBase64: %v", err)
	}
	if !round.Equal(d) {
		t.Error("Base64 round trip must preserve bytes")
	}
}

func TestDataObjectFromInt(t *testing.T) {
	v := new(big.Int).Lsh(big.NewInt(1), 70)
	d := NewDataObjectFromInt(v)
	if d.ToInt().Cmp(v) != 0 {
		t.Errorf("Integer view %v, want %v", d.ToInt(), v)
	}
}

func TestMultisetMultiplicity(t *testing.T) {
	m := NewMultiset()
	d := NewDataObjectFromUint64(7)
	if !m.Add(d) {
		t.Error("First add is new")
	}
	if m.Add(d) {
		t.Error("Second add is not new")
	}
	if m.Multiplicity(d) != 2 {
		t.Errorf("Multiplicity = %d, want 2", m.Multiplicity(d))
	}
	if m.Size() != 1 || m.TotalSize() != 2 {
		t.Errorf("Size = %d, TotalSize = %d; want 1, 2", m.Size(), m.TotalSize())
	}
	if !m.Remove(d) || m.Multiplicity(d) != 1 {
		t.Error("Remove should drop one occurrence")
	}
	if !m.Remove(d) || m.Contains(d) {
		t.Error("Removing the last occurrence empties the entry")
	}
	if m.Remove(d) {
		t.Error("Removing an absent element fails")
	}
}

func TestMultisetInsertionOrder(t *testing.T) {
	m := NewMultiset()
	vals := []uint64{9, 3, 7, 1}
	for _, v := range vals {
		m.Add(NewDataObjectFromUint64(v))
	}
	elems := m.Elements()
	for i, v := range vals {
		if elems[i].ToInt().Uint64() != v {
			t.Fatalf("Iteration order changed: position %d = %v, want %d", i, elems[i], v)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	err := NewSyncError(ErrOverflow, "degree %d", 5)
	if !IsKind(err, ErrOverflow) {
		t.Error("IsKind should match the carried kind")
	}
	wrapped := WrapSyncError(ErrSyncInsufficientBound, err, "outer")
	if !IsKind(wrapped, ErrSyncInsufficientBound) {
		t.Error("The outermost kind wins")
	}
	if k, ok := KindOf(wrapped); !ok || k != ErrSyncInsufficientBound {
		t.Errorf("KindOf = %v, %t", k, ok)
	}
}
