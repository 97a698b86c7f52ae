package iblt

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func key8(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func TestInsertEraseRestoresEmpty(t *testing.T) {
	tab := New(40, DefaultK, 8, 8, 7)
	before, _ := tab.MarshalBinary()

	for v := uint64(1); v <= 20; v++ {
		if !tab.Insert(key8(v), key8(v)) {
			t.Fatalf("Insert(%d) failed", v)
		}
	}
	for v := uint64(1); v <= 20; v++ {
		tab.Erase(key8(v), key8(v))
	}

	after, _ := tab.MarshalBinary()
	if !bytes.Equal(before, after) {
		t.Error("Insert-then-erase should restore the empty state bit-exactly")
	}
}

func TestSubtractAntiCommutative(t *testing.T) {
	a := New(40, DefaultK, 8, 8, 7)
	b := New(40, DefaultK, 8, 8, 7)
	for v := uint64(1); v <= 10; v++ {
		a.Insert(key8(v), key8(v))
	}
	for v := uint64(6); v <= 15; v++ {
		b.Insert(key8(v), key8(v))
	}

	ab, err := a.Subtract(b)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	ba, err := b.Subtract(a)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	abc, bac := ab.Counts(), ba.Counts()
	for i := range abc {
		if abc[i] != -bac[i] {
			t.Errorf("Cell %d: (A-B).count = %d, (B-A).count = %d; want negation", i, abc[i], bac[i])
		}
	}
}

func TestSubtractMismatchedParams(t *testing.T) {
	a := New(40, DefaultK, 8, 8, 7)
	b := New(44, DefaultK, 8, 8, 7)
	if _, err := a.Subtract(b); err == nil {
		t.Error("Expected an error subtracting tables of different shapes")
	}
}

func TestPeelDecode(t *testing.T) {
	a := New(24, DefaultK, 8, 8, 7)
	b := New(24, DefaultK, 8, 8, 7)
	// Common: 100..139; A-only: 1..6; B-only: 201..206.
	for v := uint64(100); v < 140; v++ {
		a.Insert(key8(v), key8(v))
		b.Insert(key8(v), key8(v))
	}
	for v := uint64(1); v <= 6; v++ {
		a.Insert(key8(v), key8(v))
	}
	for v := uint64(201); v <= 206; v++ {
		b.Insert(key8(v), key8(v))
	}

	diff, err := a.Subtract(b)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	pos, neg, ok := diff.ListEntries()
	if !ok {
		t.Fatal("Expected a complete decode at load 12/24")
	}
	if len(pos) != 6 || len(neg) != 6 {
		t.Fatalf("Got %d positives, %d negatives; want 6 and 6", len(pos), len(neg))
	}
	posSet := make(map[uint64]bool)
	for _, e := range pos {
		posSet[binary.BigEndian.Uint64(e.Key)] = true
	}
	for v := uint64(1); v <= 6; v++ {
		if !posSet[v] {
			t.Errorf("Missing A-only element %d in positives", v)
		}
	}
	negSet := make(map[uint64]bool)
	for _, e := range neg {
		negSet[binary.BigEndian.Uint64(e.Key)] = true
	}
	for v := uint64(201); v <= 206; v++ {
		if !negSet[v] {
			t.Errorf("Missing B-only element %d in negatives", v)
		}
	}
}

func TestPeelOverload(t *testing.T) {
	// 200 differences against a table sized for 16: the decode must
	// report failure rather than silently missing items.
	a := NewForExpected(16, 8, 8, 7)
	b := NewForExpected(16, 8, 8, 7)
	for v := uint64(1); v <= 200; v++ {
		a.Insert(key8(v), key8(v))
	}
	diff, err := a.Subtract(b)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	if _, _, ok := diff.ListEntries(); ok {
		t.Error("Expected ok=false at load far above the peeling threshold")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	tab := New(24, DefaultK, 8, 8, 7)
	for v := uint64(50); v < 60; v++ {
		tab.Insert(key8(v), key8(v))
	}
	data, err := tab.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	cells := int(binary.BigEndian.Uint32(data[0:4]))
	k := int(binary.BigEndian.Uint32(data[4:8]))
	back, err := UnmarshalCells(cells, k, 8, 8, 7, data[8:])
	if err != nil {
		t.Fatalf("UnmarshalCells: %v", err)
	}
	data2, _ := back.MarshalBinary()
	if !bytes.Equal(data, data2) {
		t.Error("Marshal-unmarshal-marshal should be identity")
	}
}

func TestMultisetPeel(t *testing.T) {
	a := NewMultiset(32, DefaultK, 8, 7)
	b := NewMultiset(32, DefaultK, 8, 7)

	// A holds 3 copies of 11, B holds 1; B holds 2 copies of 22, A none.
	for i := 0; i < 3; i++ {
		a.Insert(key8(11))
	}
	b.Insert(key8(11))
	b.Insert(key8(22))
	b.Insert(key8(22))
	// Shared bulk.
	for v := uint64(300); v < 320; v++ {
		a.Insert(key8(v))
		b.Insert(key8(v))
	}

	diff, err := a.Subtract(b)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	pos, neg, ok := diff.ListEntries()
	if !ok {
		t.Fatal("Expected a complete multiset decode")
	}
	if len(pos) != 1 || binary.BigEndian.Uint64(pos[0].Key) != 11 || pos[0].Count != 2 {
		t.Errorf("Expected positives = [{11, 2}], got %+v", pos)
	}
	if len(neg) != 1 || binary.BigEndian.Uint64(neg[0].Key) != 22 || neg[0].Count != 2 {
		t.Errorf("Expected negatives = [{22, 2}], got %+v", neg)
	}
}

func TestMultisetAntiCommutative(t *testing.T) {
	a := NewMultiset(16, DefaultK, 8, 7)
	b := NewMultiset(16, DefaultK, 8, 7)
	a.Insert(key8(1))
	a.Insert(key8(1))
	b.Insert(key8(2))

	ab, _ := a.Subtract(b)
	ba, _ := b.Subtract(a)
	abc, bac := ab.Counts(), ba.Counts()
	for i := range abc {
		if abc[i] != -bac[i] {
			t.Errorf("Cell %d: counts %d and %d are not negations", i, abc[i], bac[i])
		}
	}
}
