package cuckoo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"testing"
)

func elem(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func TestInsertLookupDelete(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	f := New(12, 4, 1024, 500)

	for v := uint64(1); v <= 400; v++ {
		if !f.Insert(elem(v), rng) {
			t.Fatalf("Insert(%d) failed with the filter far from full", v)
		}
	}
	for v := uint64(1); v <= 400; v++ {
		if !f.Lookup(elem(v)) {
			t.Errorf("Lookup(%d) = false after insert", v)
		}
	}

	for v := uint64(1); v <= 400; v++ {
		if !f.Delete(elem(v)) {
			t.Errorf("Delete(%d) failed", v)
		}
	}
	falsePositives := 0
	for v := uint64(1); v <= 400; v++ {
		if f.Lookup(elem(v)) {
			falsePositives++
		}
	}
	if falsePositives > 0 {
		t.Errorf("Expected an empty filter after deleting everything, %d lookups still true", falsePositives)
	}
}

func TestInsertFullDoesNotCorrupt(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	// Tiny filter: 2 buckets x 2 slots = 4 capacity.
	f := New(8, 2, 2, 16)

	inserted := []uint64{}
	v := uint64(1)
	for len(inserted) < 4 {
		if f.Insert(elem(v), rng) {
			inserted = append(inserted, v)
		}
		v++
	}

	before, _ := f.MarshalBinary()

	// Keep pushing until one genuinely fails.
	failed := false
	for w := uint64(1000); w < 1100; w++ {
		if !f.Insert(elem(w), rng) {
			failed = true
			after, _ := f.MarshalBinary()
			if !bytes.Equal(before, after) {
				t.Error("A failed insert must leave the filter bit-identical")
			}
			break
		}
		before, _ = f.MarshalBinary()
	}
	if !failed {
		t.Fatal("Expected an insert failure on a full 4-slot filter")
	}

	for _, u := range inserted {
		if !f.Lookup(elem(u)) {
			t.Errorf("Element %d lost after a failed insert", u)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	f := New(12, 4, 64, 100)
	for v := uint64(1); v <= 50; v++ {
		f.Insert(elem(v), rng)
	}
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	back := New(0, 0, 0, 100)
	if err := back.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	data2, _ := back.MarshalBinary()
	if !bytes.Equal(data, data2) {
		t.Error("Marshal-unmarshal-marshal should be identity")
	}
	for v := uint64(1); v <= 50; v++ {
		if !back.Lookup(elem(v)) {
			t.Errorf("Lookup(%d) lost across serialization", v)
		}
	}
}

func TestFalsePositiveRate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	f := New(12, 4, 1024, 500)
	for v := uint64(1); v <= 400; v++ {
		f.Insert(elem(v), rng)
	}

	probes := 20000
	falsePositives := 0
	for i := 0; i < probes; i++ {
		if f.Lookup([]byte(fmt.Sprintf("absent-%d", i))) {
			falsePositives++
		}
	}
	// Bound 2b/2^ell per probe with generous slack for a fixed seed.
	rate := float64(falsePositives) / float64(probes)
	if rate > 0.01 {
		t.Errorf("False positive rate %.4f too high for ell=12, b=4", rate)
	}
}
