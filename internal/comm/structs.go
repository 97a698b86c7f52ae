package comm

import (
	"github.com/nislab/gensync/internal/cuckoo"
	"github.com/nislab/gensync/internal/iblt"
	"github.com/nislab/gensync/pkg/models"
)

// SendIBLT writes a set IBLT in its self-delimiting wire form (no outer
// length prefix; the header carries the cell count).
func (c *Communicant) SendIBLT(t *iblt.Table) error {
	data, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	return c.write(data)
}

// RecvIBLT reads a set IBLT shaped like the receiver's local table. The
// widths and seed come from local configuration; a header disagreeing with
// it is a parameter mismatch.
func (c *Communicant) RecvIBLT(local *iblt.Table) (*iblt.Table, error) {
	cellCount, err := c.RecvUint32()
	if err != nil {
		return nil, err
	}
	k, err := c.RecvUint32()
	if err != nil {
		return nil, err
	}
	if int(cellCount) != local.Cells() || int(k) != local.K() {
		return nil, models.NewSyncError(models.ErrParameterMismatch,
			"IBLT shape (%d cells, k=%d) vs local (%d cells, k=%d)",
			cellCount, k, local.Cells(), local.K())
	}
	recordSize := 4 + local.KeySize() + local.ValueSize() + 8
	payload := make([]byte, int(cellCount)*recordSize)
	if err := c.readFull(payload); err != nil {
		return nil, err
	}
	return iblt.UnmarshalCells(int(cellCount), int(k), local.KeySize(),
		local.ValueSize(), local.Seed(), payload)
}

// SendMultisetIBLT writes the multiset variant: c:uint32, k:uint32, then
// per cell a count:uint32 (two's complement of the signed count) and the
// key/hash sums as sign-byte-prefixed big integers.
func (c *Communicant) SendMultisetIBLT(m *iblt.Multiset) error {
	return m.Encode(func(v uint32) error { return c.SendUint32(v) },
		func(b []byte) error { return c.SendBytes(b) })
}

// RecvMultisetIBLT reads the multiset variant against the receiver's local
// configuration.
func (c *Communicant) RecvMultisetIBLT(local *iblt.Multiset) (*iblt.Multiset, error) {
	return iblt.DecodeMultiset(local,
		func() (uint32, error) { return c.RecvUint32() },
		func() ([]byte, error) { return c.RecvBytesMsg() })
}

// SendCuckoo writes a cuckoo filter in its self-delimiting wire form.
func (c *Communicant) SendCuckoo(f *cuckoo.Filter) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return c.SendBytes(data)
}

// RecvCuckoo reads a cuckoo filter. maxKicks is local policy and not on
// the wire; the caller passes it for the reconstructed filter.
func (c *Communicant) RecvCuckoo(maxKicks int) (*cuckoo.Filter, error) {
	data, err := c.RecvBytesMsg()
	if err != nil {
		return nil, err
	}
	f := cuckoo.New(0, 0, 0, maxKicks)
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, models.WrapSyncError(models.ErrParameterMismatch, err, "cuckoo decode")
	}
	return f, nil
}
