package models

import (
	"bytes"
	"encoding/base64"
	"math/big"
	"sort"
)

// DataObject is the opaque unit of reconciliation. It is an immutable byte
// string with two derived views: a canonical non-negative integer (big-endian
// interpretation of the bytes) and, on demand, a fixed-width fingerprint
// computed by the protocol that owns it. Equality is byte-wise.
type DataObject struct {
	buf []byte
}

// NewDataObject copies b into a fresh DataObject.
func NewDataObject(b []byte) *DataObject {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &DataObject{buf: cp}
}

// NewDataObjectFromInt builds a DataObject whose bytes are the canonical
// big-endian magnitude of v. v must be non-negative.
func NewDataObjectFromInt(v *big.Int) *DataObject {
	return &DataObject{buf: v.Bytes()}
}

// NewDataObjectFromUint64 is a convenience wrapper for small test elements.
func NewDataObjectFromUint64(v uint64) *DataObject {
	return NewDataObjectFromInt(new(big.Int).SetUint64(v))
}

// Bytes returns the raw byte view. Callers must not mutate the result.
func (d *DataObject) Bytes() []byte {
	return d.buf
}

// ToInt returns the canonical integer view: the big-endian interpretation of
// the raw bytes. The zero-length object maps to 0.
func (d *DataObject) ToInt() *big.Int {
	return new(big.Int).SetBytes(d.buf)
}

// PaddedBytes returns the big-endian magnitude left-padded to size bytes.
// Objects wider than size are truncated to their low-order size bytes.
func (d *DataObject) PaddedBytes(size int) []byte {
	raw := d.ToInt().Bytes()
	out := make([]byte, size)
	if len(raw) >= size {
		copy(out, raw[len(raw)-size:])
	} else {
		copy(out[size-len(raw):], raw)
	}
	return out
}

// Equal reports byte-wise equality.
func (d *DataObject) Equal(other *DataObject) bool {
	if d == nil || other == nil {
		return d == other
	}
	return bytes.Equal(d.buf, other.buf)
}

// Key returns the byte string as a map key.
func (d *DataObject) Key() string {
	return string(d.buf)
}

// Base64 renders the raw bytes in standard base64, the on-disk element form.
func (d *DataObject) Base64() string {
	return base64.StdEncoding.EncodeToString(d.buf)
}

// DataObjectFromBase64 decodes one on-disk element line.
func DataObjectFromBase64(s string) (*DataObject, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return &DataObject{buf: b}, nil
}

func (d *DataObject) String() string {
	return d.ToInt().String()
}

// SortDataObjects orders a slice by canonical integer view, in place.
// Iteration order of a set is insertion order; sorting is for deterministic
// comparison in callers and tests.
func SortDataObjects(objs []*DataObject) {
	sort.Slice(objs, func(i, j int) bool {
		return objs[i].ToInt().Cmp(objs[j].ToInt()) < 0
	})
}
