package syncs

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/cuckoo"
	"github.com/nislab/gensync/pkg/models"
)

// CuckooSync approximates reconciliation by exchanging cuckoo filters:
// each peer reports as local the elements absent from the other's filter.
// Filter false positives make the result approximate, bounded by
// 2b/2^ell per element.
type CuckooSync struct {
	baseMethod

	filter *cuckoo.Filter
	rng    *rand.Rand
}

// NewCuckooSync builds the engine. The RNG drives eviction choices and is
// supplied by the caller; engines never seed global randomness.
func NewCuckooSync(fngprtSize, bucketSize, filterSize, maxKicks int, rng *rand.Rand) *CuckooSync {
	return &CuckooSync{
		baseMethod: newBaseMethod(false),
		filter:     cuckoo.New(uint(fngprtSize), bucketSize, filterSize, maxKicks),
		rng:        rng,
	}
}

func (s *CuckooSync) Name() string { return "CuckooSync" }

func (s *CuckooSync) Describe() Params {
	return CuckooParams{
		FngprtSize: int(s.filter.FngprtSize()),
		BucketSize: s.filter.BucketSize(),
		FilterSize: s.filter.FilterSize(),
		MaxKicks:   s.filter.MaxKicks(),
	}
}

func (s *CuckooSync) paramString() string {
	return fmt.Sprintf("cuckoo/%d/%d/%d", s.filter.FngprtSize(), s.filter.BucketSize(), s.filter.FilterSize())
}

func (s *CuckooSync) AddElem(d *models.DataObject) bool {
	if !s.addElem(d) {
		return false
	}
	if !s.filter.Insert(d.Bytes(), s.rng) {
		log.Printf("Warning: cuckoo insert failed, filter full")
	}
	return true
}

// DelElem is not offered: a fingerprint relocated by an eviction chain is
// not reliably removable once the filter has been exchanged.
func (s *CuckooSync) DelElem(d *models.DataObject) (bool, error) {
	return false, models.NewSyncError(models.ErrUnsupportedOp, "CuckooSync does not support delElem")
}

// localOnly collects elements the peer's filter does not contain.
func (s *CuckooSync) localOnly(theirs *cuckoo.Filter) []*models.DataObject {
	var out []*models.DataObject
	for _, d := range s.set.Elements() {
		if !theirs.Lookup(d.Bytes()) {
			out = append(out, d)
		}
	}
	return out
}

func (s *CuckooSync) SyncClient(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.clientSetup(c, paramModulus(s.paramString()), false); err != nil {
		return nil, err
	}

	// Exchange filters: ours out first, theirs back.
	s.stats.TimerStart(CommTime)
	err := c.SendCuckoo(s.filter)
	var theirs *cuckoo.Filter
	if err == nil {
		theirs, err = c.RecvCuckoo(s.filter.MaxKicks())
	}
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	s.stats.TimerStart(CompTime)
	selfOnly := s.localOnly(theirs)
	s.stats.TimerEnd(CompTime)

	s.stats.TimerStart(CommTime)
	err = c.SendDataObjectList(selfOnly)
	var otherOnly []*models.DataObject
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

func (s *CuckooSync) SyncServer(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.serverSetup(c, paramModulus(s.paramString()), false); err != nil {
		return nil, err
	}

	s.stats.TimerStart(CommTime)
	theirs, err := c.RecvCuckoo(s.filter.MaxKicks())
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return nil, err
	}

	s.stats.TimerStart(CompTime)
	selfOnly := s.localOnly(theirs)
	s.stats.TimerEnd(CompTime)

	s.stats.TimerStart(CommTime)
	err = c.SendCuckoo(s.filter)
	var otherOnly []*models.DataObject
	if err == nil {
		otherOnly, err = c.RecvDataObjectList()
	}
	if err == nil {
		err = c.SendDataObjectList(selfOnly)
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
