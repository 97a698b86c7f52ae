package syncs

import (
	"fmt"
	"math/big"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/iblt"
	"github.com/nislab/gensync/pkg/models"
)

// IBLTMultisetSync is IBLTSync with count-multiplicity semantics: the
// tables accumulate additive sums, and the decoded entries carry how many
// copies each side is short.
type IBLTMultisetSync struct {
	baseMethod

	expected int
	eltSize  int

	table *iblt.Multiset
}

func NewIBLTMultisetSync(expected, eltSize int) *IBLTMultisetSync {
	return &IBLTMultisetSync{
		baseMethod: newBaseMethod(true),
		expected:   expected,
		eltSize:    eltSize,
		table:      iblt.NewMultisetForExpected(expected, eltSize, ibltSeed),
	}
}

func (s *IBLTMultisetSync) Name() string { return "IBLTSync_Multiset" }

func (s *IBLTMultisetSync) Describe() Params {
	return IBLTParams{Expected: s.expected, EltSize: s.eltSize}
}

func (s *IBLTMultisetSync) paramString() string {
	return fmt.Sprintf("iblt-multiset/%d/%d/%d/%d", s.expected, s.eltSize, s.table.Cells(), s.table.K())
}

// AddElem accepts every occurrence; multiplicity is the point.
func (s *IBLTMultisetSync) AddElem(d *models.DataObject) bool {
	s.addElem(d)
	s.table.Insert(d.PaddedBytes(s.eltSize))
	return true
}

func (s *IBLTMultisetSync) DelElem(d *models.DataObject) (bool, error) {
	if !s.delElem(d) {
		return false, nil
	}
	s.table.Erase(d.PaddedBytes(s.eltSize))
	return true, nil
}

// expandEntries repeats each decoded key to its multiplicity.
func expandEntries(entries []iblt.MultisetEntry) []*models.DataObject {
	var out []*models.DataObject
	for _, e := range entries {
		d := models.NewDataObjectFromInt(new(big.Int).SetBytes(e.Key))
		for i := int64(0); i < e.Count; i++ {
			out = append(out, d)
		}
	}
	return out
}

func (s *IBLTMultisetSync) SyncClient(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.clientSetup(c, paramModulus(s.paramString()), false); err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	theirs, err := c.RecvMultisetIBLT(s.table)
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	s.stats.TimerStart(CompTime)
	diff, err := s.table.Subtract(theirs)
	var res *SyncResult
	if err == nil {
		pos, neg, ok := diff.ListEntries()
		res = &SyncResult{
			SelfMinusOther: expandEntries(pos),
			OtherMinusSelf: expandEntries(neg),
			Success:        ok,
		}
	}
	s.stats.TimerEnd(CompTime)
	if err != nil {
		return nil, models.WrapSyncError(models.ErrParameterMismatch, err, "multiset subtract")
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
			"multiset IBLT peel stopped with undecoded cells")
	}
	return res, nil
}

func (s *IBLTMultisetSync) SyncServer(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.serverSetup(c, paramModulus(s.paramString()), false); err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	err := c.SendMultisetIBLT(s.table)
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
			"peer reported a partial multiset decode")
	}
	return res, nil
}
