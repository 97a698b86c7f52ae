package gensync

import (
	"fmt"
	"math/rand"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/syncs"
	"github.com/nislab/gensync/pkg/models"
)

// SyncComm selects the transport family for a session.
type SyncComm int

const (
	SocketComm SyncComm = iota
	WebSocketComm
	// PipeComm requires an explicit communicant pair from NewPipePair;
	// used by both-mode runs and tests.
	PipeComm
)

// Builder is a pure configuration object. Setters record fields; Build
// validates the combination for the chosen protocol and assembles a ready
// session. The setter surface implements the Params application contract,
// so a parameter-file variant can configure a builder directly.
type Builder struct {
	protocol    SyncProtocol
	protocolSet bool

	commType SyncComm
	host     string
	port     int
	comms    []*comm.Communicant

	mBar       int
	bits       int
	epsilon    int
	partitions int
	pFactor    int
	redundant  int
	hashes     bool

	expNumElems     int
	expNumElemChild int

	fngprtSize int
	bucketSize int
	filterSize int
	maxKicks   int

	rng *rand.Rand
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetProtocol selects the reconciliation family.
func (b *Builder) SetProtocol(p SyncProtocol) { b.protocol = p; b.protocolSet = true }

// SetComm selects the transport family.
func (b *Builder) SetComm(c SyncComm) { b.commType = c }

// SetCommunicant installs a pre-established channel (pipe pairs, tests).
func (b *Builder) SetCommunicant(c *comm.Communicant) { b.comms = append(b.comms, c) }

// SetHost names the peer for the client role.
func (b *Builder) SetHost(host string) { b.host = host }

// SetPort overrides the well-known port.
func (b *Builder) SetPort(port int) { b.port = port }

// SetMbar declares the symmetric-difference upper bound.
func (b *Builder) SetMbar(mBar int) { b.mBar = mBar }

// SetBits declares the element bit-width.
func (b *Builder) SetBits(bits int) { b.bits = bits }

// SetErr sets the probability-of-error exponent.
func (b *Builder) SetErr(epsilon int) { b.epsilon = epsilon }

// SetNumPartitions records the partition count for the simple variants,
// which carry it in their parameters but do not split the hash space by it.
// Never aliased with the InterCPISync branching factor.
func (b *Builder) SetNumPartitions(partitions int) { b.partitions = partitions }

// SetPFactor sets the InterCPISync tree branching factor.
func (b *Builder) SetPFactor(pFactor int) { b.pFactor = pFactor }

// SetRedundant adds extra sample points beyond 2*m_bar.
func (b *Builder) SetRedundant(redundant int) { b.redundant = redundant }

// SetHashes prehashes elements into the field.
func (b *Builder) SetHashes(hashes bool) { b.hashes = hashes }

// SetExpNumElems declares the expected difference size for IBLT engines.
func (b *Builder) SetExpNumElems(expected int) { b.expNumElems = expected }

// SetExpNumElemChild caps child-set size for the set-of-sets engine.
func (b *Builder) SetExpNumElemChild(numElemChild int) { b.expNumElemChild = numElemChild }

// SetFngprtSize sets the cuckoo fingerprint width in bits.
func (b *Builder) SetFngprtSize(bits int) { b.fngprtSize = bits }

// SetBucketSize sets slots per cuckoo bucket.
func (b *Builder) SetBucketSize(slots int) { b.bucketSize = slots }

// SetFilterSize sets the cuckoo bucket count.
func (b *Builder) SetFilterSize(buckets int) { b.filterSize = buckets }

// SetMaxKicks caps cuckoo eviction chains.
func (b *Builder) SetMaxKicks(kicks int) { b.maxKicks = kicks }

// SetRng hands the engines their randomness source. Seeding is the
// caller's responsibility, once per process.
func (b *Builder) SetRng(rng *rand.Rand) { b.rng = rng }

// eltSizeBytes derives the IBLT key width from the bit width.
func (b *Builder) eltSizeBytes() int {
	return (b.bits + 7) / 8
}

func (b *Builder) validate() error {
	if !b.protocolSet {
		return models.NewSyncError(models.ErrParameterParse, "protocol not set")
	}
	p := b.protocol
	switch {
	case p.IsCPIFamily():
		if b.mBar <= 0 {
			return models.NewSyncError(models.ErrParameterParse, "%s requires m_bar > 0", p)
		}
		if b.bits <= 0 {
			return models.NewSyncError(models.ErrParameterParse, "%s requires bits > 0", p)
		}
		if p == InteractiveCPISync && b.pFactor < 2 {
			return models.NewSyncError(models.ErrParameterParse, "%s requires pFactor >= 2", p)
		}
		if b.hashes && (p == CPISync_OneLessRound || p == CPISync_HalfRound || p == OneWayCPISync) {
			return models.NewSyncError(models.ErrParameterParse,
				"%s cannot invert hashed elements without the translation round", p)
		}
	case p.IsIBLTFamily():
		if b.expNumElems <= 0 {
			return models.NewSyncError(models.ErrParameterParse, "%s requires expected > 0", p)
		}
		if b.bits <= 0 {
			return models.NewSyncError(models.ErrParameterParse, "%s requires eltSize > 0", p)
		}
		if p == IBLTSetOfSets && b.expNumElemChild <= 0 {
			return models.NewSyncError(models.ErrParameterParse, "%s requires numElemChild > 0", p)
		}
	case p == CuckooSync:
		if b.fngprtSize <= 0 || b.bucketSize <= 0 || b.filterSize <= 0 || b.maxKicks <= 0 {
			return models.NewSyncError(models.ErrParameterParse,
				"CuckooSync requires fngprtSize, bucketSize, filterSize, maxKicks > 0")
		}
	case p == FullSync:
		// nothing required
	default:
		return models.NewSyncError(models.ErrParameterParse, "unknown protocol %d", int(p))
	}
	if b.commType == PipeComm && len(b.comms) == 0 {
		return models.NewSyncError(models.ErrParameterParse, "pipe comm requires an explicit communicant")
	}
	return nil
}

func (b *Builder) buildMethod() (syncs.SyncMethod, error) {
	switch b.protocol {
	case CPISync:
		return syncs.NewInteractiveCPISync(b.mBar, b.bits, b.epsilon, b.partitions, b.redundant, b.hashes), nil
	case CPISync_OneLessRound:
		return syncs.NewCPISyncOneLessRound(b.mBar, b.bits, b.epsilon, b.partitions, b.redundant), nil
	case CPISync_HalfRound:
		return syncs.NewCPISyncHalfRound(b.mBar, b.bits, b.epsilon), nil
	case ProbCPISync:
		return syncs.NewProbCPISync(b.mBar, b.bits, b.epsilon, b.hashes), nil
	case InteractiveCPISync:
		return syncs.NewInterCPISync(b.mBar, b.bits, b.epsilon, b.pFactor, b.hashes), nil
	case OneWayCPISync:
		return syncs.NewOneWayCPISync(b.mBar, b.bits, b.epsilon), nil
	case FullSync:
		return syncs.NewFullSync(), nil
	case IBLTSync:
		return syncs.NewIBLTSync(b.expNumElems, b.eltSizeBytes()), nil
	case OneWayIBLTSync:
		return syncs.NewIBLTSyncHalfRound(b.expNumElems, b.eltSizeBytes()), nil
	case IBLTSetOfSets:
		return syncs.NewIBLTSetOfSets(b.expNumElems, b.eltSizeBytes(), b.expNumElemChild), nil
	case IBLTSync_Multiset:
		return syncs.NewIBLTMultisetSync(b.expNumElems, b.eltSizeBytes()), nil
	case CuckooSync:
		rng := b.rng
		if rng == nil {
			// A fixed-seed local source; never the global generator.
			rng = rand.New(rand.NewSource(1))
		}
		return syncs.NewCuckooSync(b.fngprtSize, b.bucketSize, b.filterSize, b.maxKicks, rng), nil
	}
	return nil, fmt.Errorf("unknown protocol %d", int(b.protocol))
}

func (b *Builder) buildComm() *comm.Communicant {
	switch b.commType {
	case WebSocketComm:
		return comm.New(comm.NewWebSocket(b.host, b.port))
	default:
		return comm.New(comm.NewSocket(b.host, b.port))
	}
}

// Build validates the configuration and assembles the session.
func (b *Builder) Build() (*GenSync, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	method, err := b.buildMethod()
	if err != nil {
		return nil, err
	}
	comms := b.comms
	if len(comms) == 0 {
		comms = []*comm.Communicant{b.buildComm()}
	}
	return newGenSync([]syncs.SyncMethod{method}, comms), nil
}
