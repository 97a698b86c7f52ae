// Package syncs holds the reconciliation engines and the shared
// orchestration contract they all satisfy: element ingestion, the
// client/server protocol entry points, and statistics accounting.
package syncs

import (
	"log"
	"math/big"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/field"
	"github.com/nislab/gensync/internal/hashutil"
	"github.com/nislab/gensync/internal/sketches"
	"github.com/nislab/gensync/pkg/models"
)

// SyncResult carries the resolved difference lists and the decoder's belief
// that they are complete. Callers must consult both the lists and Success:
// a partial decode still returns the recovered prefix.
type SyncResult struct {
	SelfMinusOther []*models.DataObject
	OtherMinusSelf []*models.DataObject
	Success        bool
}

// SyncMethod is the contract every engine satisfies.
type SyncMethod interface {
	// AddElem ingests one element, updating the engine structure and the
	// attached sketches. It returns whether the element was newly
	// accepted (multiset engines accept duplicates).
	AddElem(d *models.DataObject) bool

	// DelElem removes one element where the engine supports deletion;
	// engines that do not return an unsupported-op error.
	DelElem(d *models.DataObject) (bool, error)

	// Elements iterates the set in insertion order.
	Elements() []*models.DataObject

	// SyncClient and SyncServer drive the protocol to completion over the
	// communicant. On fatal errors the communicant is closed and stats
	// finalized before the error propagates.
	SyncClient(c *comm.Communicant) (*SyncResult, error)
	SyncServer(c *comm.Communicant) (*SyncResult, error)

	Name() string
	Stats() *SyncStats
	Sketch() *sketches.Sketches

	// Describe returns the engine's own parameter variant; no runtime
	// type inspection needed anywhere.
	Describe() Params
}

// baseMethod carries the state common to every engine: the element
// multiset, the sketches bundle, and the stats block.
type baseMethod struct {
	set       *models.Multiset
	sk        *sketches.Sketches
	stats     *SyncStats
	allowDups bool
}

func newBaseMethod(allowDups bool) baseMethod {
	return baseMethod{
		set:       models.NewMultiset(),
		sk:        sketches.NewAll(),
		stats:     NewSyncStats(),
		allowDups: allowDups,
	}
}

// addElem performs the shared ingestion bookkeeping and reports whether the
// element is a new distinct member.
func (b *baseMethod) addElem(d *models.DataObject) bool {
	isNew := b.set.Add(d)
	if err := b.sk.Inc(d); err != nil {
		// Sketch failures are surfaced but never abort ingestion.
		log.Printf("Warning: sketches update failed: %v", err)
	}
	return isNew
}

func (b *baseMethod) delElem(d *models.DataObject) bool {
	if b.set.Remove(d) {
		b.sk.Dec()
		return true
	}
	return false
}

func (b *baseMethod) Elements() []*models.DataObject {
	return b.set.Elements()
}

func (b *baseMethod) Stats() *SyncStats {
	return b.stats
}

func (b *baseMethod) Sketch() *sketches.Sketches {
	return b.sk
}

// clientSetup runs the shared client preamble: connect (idle time), then
// the modulus handshake, which is always the first exchange after connect.
func (b *baseMethod) clientSetup(c *comm.Communicant, mod *big.Int, oneWay bool) error {
	b.stats.TimerStart(IdleTime)
	err := c.Connect()
	b.stats.TimerEnd(IdleTime)
	if err != nil {
		return err
	}
	b.stats.TimerStart(CommTime)
	err = c.EstablishModSend(mod, oneWay)
	b.stats.TimerEnd(CommTime)
	if err != nil {
		return err
	}
	return nil
}

// serverSetup mirrors clientSetup for the listening role.
func (b *baseMethod) serverSetup(c *comm.Communicant, mod *big.Int, oneWay bool) error {
	b.stats.TimerStart(IdleTime)
	err := c.Listen()
	b.stats.TimerEnd(IdleTime)
	if err != nil {
		return err
	}
	b.stats.TimerStart(CommTime)
	err = c.EstablishModRecv(mod, oneWay)
	b.stats.TimerEnd(CommTime)
	if err != nil {
		return err
	}
	return nil
}

// finish finalizes statistics and closes the communicant; every protocol
// path, success or failure, funnels through it.
func (b *baseMethod) finish(c *comm.Communicant) {
	b.stats.TimerAbort()
	b.stats.RecordComm(c)
	if err := c.Close(); err != nil {
		log.Printf("Warning: closing communicant: %v", err)
	}
}

// paramModulus derives the handshake modulus for engines that do not run
// over a prime field: the least prime above a 64-bit digest of the
// canonical parameter string. Equal configurations agree on it; any
// parameter disagreement fails the handshake before elements move.
func paramModulus(canonical string) *big.Int {
	h := hashutil.Hash64([]byte(canonical))
	return field.NextPrime(new(big.Int).SetUint64(h))
}

// Protocol control bytes.
const (
	flagSyncOK    byte = 0x01
	flagOverflow  byte = 0x02
	flagSubdivide byte = 0x03
	flagLeafSync  byte = 0x04
	flagDone      byte = 0x05
	flagFail      byte = 0x06
)
