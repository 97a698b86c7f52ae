package syncs

import (
	"fmt"
	"math/big"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/iblt"
	"github.com/nislab/gensync/pkg/models"
)

// ibltSeed is the protocol-wide hash-schedule seed; both peers must build
// their tables over the same schedule for subtraction to make sense.
const ibltSeed uint64 = 0x67656e73796e63

// IBLTSync reconciles by exchanging invertible Bloom lookup tables sized
// for an expected difference and peeling their cell-wise subtraction.
type IBLTSync struct {
	baseMethod

	expected int
	eltSize  int // key width in bytes
	oneWay   bool

	table *iblt.Table
}

// NewIBLTSync builds the two-way engine. eltSize is the fixed element
// width in bytes.
func NewIBLTSync(expected, eltSize int) *IBLTSync {
	return &IBLTSync{
		baseMethod: newBaseMethod(false),
		expected:   expected,
		eltSize:    eltSize,
		table:      iblt.NewForExpected(expected, eltSize, eltSize, ibltSeed),
	}
}

// NewIBLTSyncHalfRound builds the one-message variant: the server ships
// its table and the client concludes locally.
func NewIBLTSyncHalfRound(expected, eltSize int) *IBLTSync {
	s := NewIBLTSync(expected, eltSize)
	s.oneWay = true
	return s
}

func (s *IBLTSync) Name() string {
	if s.oneWay {
		return "IBLTSync_HalfRound"
	}
	return "IBLTSync"
}

func (s *IBLTSync) Describe() Params {
	return IBLTParams{Expected: s.expected, EltSize: s.eltSize}
}

func (s *IBLTSync) paramString() string {
	return fmt.Sprintf("iblt/%d/%d/%d/%d", s.expected, s.eltSize, s.table.Cells(), s.table.K())
}

func (s *IBLTSync) AddElem(d *models.DataObject) bool {
	if !s.addElem(d) {
		return false
	}
	key := d.PaddedBytes(s.eltSize)
	s.table.Insert(key, key)
	return true
}

func (s *IBLTSync) DelElem(d *models.DataObject) (bool, error) {
	if !s.delElem(d) {
		return false, nil
	}
	key := d.PaddedBytes(s.eltSize)
	s.table.Erase(key, key)
	return true, nil
}

// decodeAgainst subtracts the peer's table from ours and peels; positives
// are ours alone, negatives theirs alone.
func (s *IBLTSync) decodeAgainst(theirs *iblt.Table) (selfOnly, otherOnly []*models.DataObject, ok bool, err error) {
	diff, err := s.table.Subtract(theirs)
	if err != nil {
		return nil, nil, false, models.WrapSyncError(models.ErrParameterMismatch, err, "IBLT subtract")
	}
	pos, neg, ok := diff.ListEntries()
	for _, e := range pos {
		selfOnly = append(selfOnly, models.NewDataObjectFromInt(new(big.Int).SetBytes(e.Key)))
	}
	for _, e := range neg {
		otherOnly = append(otherOnly, models.NewDataObjectFromInt(new(big.Int).SetBytes(e.Key)))
	}
	return selfOnly, otherOnly, ok, nil
}

// SyncClient receives the server's table, peels the difference, and (in
// the two-way protocol) replies with both resolved lists.
func (s *IBLTSync) SyncClient(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.clientSetup(c, paramModulus(s.paramString()), s.oneWay); err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	theirs, err := c.RecvIBLT(s.table)
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	s.stats.TimerStart(CompTime)
	selfOnly, otherOnly, ok, err := s.decodeAgainst(theirs)
	s.stats.TimerEnd(CompTime)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{SelfMinusOther: selfOnly, OtherMinusSelf: otherOnly, Success: ok}

	if s.oneWay {
		if !ok {
			return res, models.NewSyncError(models.ErrPartialDecode,
				"IBLT peel stopped with undecoded cells")
		}
		return res, nil
	}

	s.stats.TimerStart(CommTime)
	okFlag := flagFail
	if ok {
		okFlag = flagSyncOK
	}
	err = c.SendByte(okFlag)
	if err == nil {
		err = c.SendDataObjectList(selfOnly)
	}
	if err == nil {
		err = c.SendDataObjectList(otherOnly)
	}
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}
	if !ok {
		return res, models.NewSyncError(models.ErrPartialDecode,
			"IBLT peel stopped with undecoded cells")
	}
	return res, nil
}

// SyncServer ships its table and (two-way) receives the resolved lists.
func (s *IBLTSync) SyncServer(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.serverSetup(c, paramModulus(s.paramString()), s.oneWay); err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	err := c.SendIBLT(s.table)
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	if s.oneWay {
		return &SyncResult{Success: true}, nil
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
			"peer reported a partial IBLT decode")
	}
	return res, nil
}
