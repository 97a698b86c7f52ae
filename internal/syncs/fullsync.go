package syncs

import (
	"math/big"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/pkg/models"
)

// FullSync is the baseline: the client ships its whole set and the server
// answers with the two exact difference lists. Communication is linear in
// the set size, the reference point every other engine beats.
type FullSync struct {
	baseMethod
}

func NewFullSync() *FullSync {
	return &FullSync{baseMethod: newBaseMethod(true)}
}

func (s *FullSync) Name() string { return "FullSync" }

func (s *FullSync) Describe() Params { return FullSyncParams{} }

// fullSyncModulus keeps the handshake contract without a field: a fixed
// prime both roles agree on.
var fullSyncModulus = new(big.Int).SetUint64(4294967311) // least prime above 2^32

func (s *FullSync) AddElem(d *models.DataObject) bool {
	s.addElem(d)
	return true
}

func (s *FullSync) DelElem(d *models.DataObject) (bool, error) {
	return s.delElem(d), nil
}

func (s *FullSync) SyncClient(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.clientSetup(c, fullSyncModulus, false); err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	err := c.SendDataObjectList(s.set.Elements())
	var selfOnly, otherOnly []*models.DataObject
	if err == nil {
		selfOnly, err = c.RecvDataObjectList()
	}
	if err == nil {
		otherOnly, err = c.RecvDataObjectList()
	}
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}
	return &SyncResult{
		SelfMinusOther: selfOnly,
		OtherMinusSelf: otherOnly,
		Success:        true,
	}, nil
}

func (s *FullSync) SyncServer(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.serverSetup(c, fullSyncModulus, false); err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	clientElems, err := c.RecvDataObjectList()
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	s.stats.TimerStart(CompTime)
	clientHas := make(map[string]bool, len(clientElems))
	for _, d := range clientElems {
		clientHas[d.Key()] = true
	}
	var serverOnly []*models.DataObject
	for _, d := range s.set.Elements() {
		if !clientHas[d.Key()] {
			serverOnly = append(serverOnly, d)
		}
	}
	var clientOnly []*models.DataObject
	for _, d := range clientElems {
		if !s.set.Contains(d) {
			clientOnly = append(clientOnly, d)
		}
	}
	s.stats.TimerEnd(CompTime)

	s.stats.TimerStart(CommTime)
	// The client's self-minus-other first, then what it is missing.
	err = c.SendDataObjectList(clientOnly)
	if err == nil {
		err = c.SendDataObjectList(serverOnly)
	}
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	return &SyncResult{
		SelfMinusOther: serverOnly,
		OtherMinusSelf: clientOnly,
		Success:        true,
	}, nil
}
