package syncs

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/hashutil"
	"github.com/nislab/gensync/internal/iblt"
	"github.com/nislab/gensync/pkg/models"
)

// IBLTSetOfSets reconciles a collection whose elements are themselves
// small sets. Each child set (a serialized element block) is encoded into
// an inner IBLT of fixed shape; the outer IBLT carries the inner tables
// keyed by their digest. Peeling the outer layer recovers which child
// sets differ; inner subtraction and peeling recovers the element-level
// differences for children present on both sides in different versions.
type IBLTSetOfSets struct {
	baseMethod

	expected     int // expected differing child sets
	eltSize      int // child element width in bytes
	numElemChild int // child set capacity

	innerShape *iblt.Table // template for inner tables
	outer      *iblt.Table
	children   map[uint64]*models.DataObject // inner digest -> original child object
}

// NewIBLTSetOfSets builds the two-level engine.
func NewIBLTSetOfSets(expected, eltSize, numElemChild int) *IBLTSetOfSets {
	inner := iblt.NewForExpected(numElemChild, eltSize, eltSize, ibltSeed)
	innerBytes, _ := inner.MarshalBinary()
	s := &IBLTSetOfSets{
		baseMethod:   newBaseMethod(false),
		expected:     expected,
		eltSize:      eltSize,
		numElemChild: numElemChild,
		innerShape:   inner,
		outer:        iblt.NewForExpected(expected, 8, len(innerBytes), ibltSeed+1),
		children:     make(map[uint64]*models.DataObject),
	}
	return s
}

func (s *IBLTSetOfSets) Name() string { return "IBLTSetOfSets" }

func (s *IBLTSetOfSets) Describe() Params {
	return IBLTParams{Expected: s.expected, EltSize: s.eltSize, NumElemChild: s.numElemChild}
}

func (s *IBLTSetOfSets) paramString() string {
	return fmt.Sprintf("iblt-sos/%d/%d/%d", s.expected, s.eltSize, s.numElemChild)
}

// EncodeChildSet packs child elements into the on-wire child block:
// count:uint32 then count fixed-width elements. This is the DataObject
// payload users add to a set-of-sets session.
func EncodeChildSet(eltSize int, elems []*models.DataObject) *models.DataObject {
	buf := make([]byte, 4, 4+len(elems)*eltSize)
	binary.BigEndian.PutUint32(buf, uint32(len(elems)))
	for _, e := range elems {
		buf = append(buf, e.PaddedBytes(eltSize)...)
	}
	return models.NewDataObject(buf)
}

// DecodeChildSet unpacks a child block.
func DecodeChildSet(eltSize int, d *models.DataObject) ([]*models.DataObject, error) {
	raw := d.Bytes()
	if len(raw) < 4 {
		return nil, fmt.Errorf("child set block truncated")
	}
	n := int(binary.BigEndian.Uint32(raw))
	if len(raw) != 4+n*eltSize {
		return nil, fmt.Errorf("child set block %d bytes, want %d", len(raw), 4+n*eltSize)
	}
	out := make([]*models.DataObject, 0, n)
	for i := 0; i < n; i++ {
		chunk := raw[4+i*eltSize : 4+(i+1)*eltSize]
		out = append(out, models.NewDataObjectFromInt(new(big.Int).SetBytes(chunk)))
	}
	return out, nil
}

// childTable builds the inner IBLT for one child block.
func (s *IBLTSetOfSets) childTable(d *models.DataObject) (*iblt.Table, []byte, error) {
	elems, err := DecodeChildSet(s.eltSize, d)
	if err != nil {
		return nil, nil, err
	}
	t := iblt.NewForExpected(s.numElemChild, s.eltSize, s.eltSize, ibltSeed)
	for _, e := range elems {
		key := e.PaddedBytes(s.eltSize)
		t.Insert(key, key)
	}
	ser, err := t.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return t, ser, nil
}

func (s *IBLTSetOfSets) AddElem(d *models.DataObject) bool {
	if !s.addElem(d) {
		return false
	}
	_, ser, err := s.childTable(d)
	if err != nil {
		// A malformed child block still joins the element set but cannot
		// be reconciled structurally.
		return true
	}
	digest := hashutil.SeededHash64(ibltSeed+2, ser)
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], digest)
	s.outer.Insert(key[:], ser)
	s.children[digest] = d
	return true
}

func (s *IBLTSetOfSets) DelElem(d *models.DataObject) (bool, error) {
	if !s.delElem(d) {
		return false, nil
	}
	_, ser, err := s.childTable(d)
	if err != nil {
		return true, nil
	}
	digest := hashutil.SeededHash64(ibltSeed+2, ser)
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], digest)
	s.outer.Erase(key[:], ser)
	delete(s.children, digest)
	return true, nil
}

// innerFromBytes reconstructs an inner table from an outer-cell value.
func (s *IBLTSetOfSets) innerFromBytes(value []byte) (*iblt.Table, error) {
	if len(value) < 8 {
		return nil, fmt.Errorf("inner table payload truncated")
	}
	cells := int(binary.BigEndian.Uint32(value[0:4]))
	k := int(binary.BigEndian.Uint32(value[4:8]))
	if cells != s.innerShape.Cells() || k != s.innerShape.K() {
		return nil, fmt.Errorf("inner table shape (%d, %d) vs local (%d, %d)",
			cells, k, s.innerShape.Cells(), s.innerShape.K())
	}
	return iblt.UnmarshalCells(cells, k, s.eltSize, s.eltSize, ibltSeed, value[8:])
}

// innerElements peels a standalone inner table; a child holding at most
// numElemChild elements decodes in full with overwhelming probability.
func (s *IBLTSetOfSets) innerElements(t *iblt.Table) ([]*models.DataObject, bool) {
	pos, _, ok := t.ListEntries()
	out := make([]*models.DataObject, 0, len(pos))
	for _, e := range pos {
		out = append(out, models.NewDataObjectFromInt(new(big.Int).SetBytes(e.Key)))
	}
	return out, ok
}

// reconcileChildren pairs decoded child differences: a positive (ours) and
// a negative (theirs) whose inner subtraction peels cleanly are two
// versions of the same child; the remainder are whole-child differences.
func (s *IBLTSetOfSets) reconcileChildren(pos, neg []iblt.Entry) (selfOnly, otherOnly []*models.DataObject, ok bool) {
	ok = true

	type decoded struct {
		table *iblt.Table
		used  bool
		entry iblt.Entry
	}
	mine := make([]*decoded, 0, len(pos))
	for _, e := range pos {
		t, err := s.innerFromBytes(e.Value)
		if err != nil {
			ok = false
			continue
		}
		mine = append(mine, &decoded{table: t, entry: e})
	}
	theirs := make([]*decoded, 0, len(neg))
	for _, e := range neg {
		t, err := s.innerFromBytes(e.Value)
		if err != nil {
			ok = false
			continue
		}
		theirs = append(theirs, &decoded{table: t, entry: e})
	}

	// Pair each local child version with the remote version it matches:
	// the pair whose subtraction peels to a small clean difference.
	for _, m := range mine {
		digest := binary.BigEndian.Uint64(m.entry.Key)
		orig, known := s.children[digest]
		for _, th := range theirs {
			if th.used {
				continue
			}
			diff, err := m.table.Subtract(th.table)
			if err != nil {
				continue
			}
			dPos, dNeg, clean := diff.ListEntries()
			if !clean || len(dPos)+len(dNeg) == 0 || len(dPos)+len(dNeg) > s.numElemChild {
				continue
			}
			th.used = true
			m.used = true
			// Two versions of one child: report both serializations.
			if known {
				selfOnly = append(selfOnly, orig)
			}
			if remoteElems, full := s.innerElements(th.table); full {
				otherOnly = append(otherOnly, EncodeChildSet(s.eltSize, remoteElems))
			} else {
				ok = false
			}
			break
		}
	}

	// Unpaired children are present on exactly one side.
	for _, m := range mine {
		if m.used {
			continue
		}
		digest := binary.BigEndian.Uint64(m.entry.Key)
		if orig, known := s.children[digest]; known {
			selfOnly = append(selfOnly, orig)
		} else {
			ok = false
		}
	}
	for _, th := range theirs {
		if th.used {
			continue
		}
		if remoteElems, full := s.innerElements(th.table); full {
			otherOnly = append(otherOnly, EncodeChildSet(s.eltSize, remoteElems))
		} else {
			ok = false
		}
	}
	return selfOnly, otherOnly, ok
}

func (s *IBLTSetOfSets) SyncClient(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.clientSetup(c, paramModulus(s.paramString()), false); err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	theirOuter, err := c.RecvIBLT(s.outer)
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	s.stats.TimerStart(CompTime)
	diff, err := s.outer.Subtract(theirOuter)
	var res *SyncResult
	if err == nil {
		pos, neg, outerOK := diff.ListEntries()
		selfOnly, otherOnly, pairOK := s.reconcileChildren(pos, neg)
		res = &SyncResult{
			SelfMinusOther: selfOnly,
			OtherMinusSelf: otherOnly,
			Success:        outerOK && pairOK,
		}
	}
	s.stats.TimerEnd(CompTime)
	if err != nil {
		return nil, models.WrapSyncError(models.ErrParameterMismatch, err, "outer subtract")
	}

	s.stats.TimerStart(CommTime)
	okFlag := flagFail
	if res.Success {
		okFlag = flagSyncOK
	}
	err = c.SendByte(okFlag)
	if err == nil {
		err = c.SendDataObjectList(res.SelfMinusOther)
	}
	if err == nil {
		err = c.SendDataObjectList(res.OtherMinusSelf)
	}
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return res, models.NewSyncError(models.ErrPartialDecode,
			"set-of-sets decode incomplete")
	}
	return res, nil
}

func (s *IBLTSetOfSets) SyncServer(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.serverSetup(c, paramModulus(s.paramString()), false); err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	err := c.SendIBLT(s.outer)
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	s.stats.TimerStart(IdleTime)
	okFlag, err := c.RecvByte()
	s.stats.TimerEnd(IdleTime)
	if err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	clientOnly, err := c.RecvDataObjectList()
	var serverOnly []*models.DataObject
	if err == nil {
		serverOnly, err = c.RecvDataObjectList()
	}
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{
		SelfMinusOther: serverOnly,
		OtherMinusSelf: clientOnly,
		Success:        okFlag == flagSyncOK,
	}
	if !res.Success {
		return res, models.NewSyncError(models.ErrPartialDecode,
			"peer reported an incomplete set-of-sets decode")
	}
	return res, nil
}
