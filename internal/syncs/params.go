package syncs

import "fmt"

// BuilderSetter is the surface a Params variant configures. The session
// builder implements it; keeping the interface here lets engines describe
// themselves without depending on the façade package.
type BuilderSetter interface {
	SetMbar(mBar int)
	SetBits(bits int)
	SetErr(epsilon int)
	SetNumPartitions(partitions int)
	SetPFactor(pFactor int)
	SetRedundant(redundant int)
	SetHashes(hashes bool)
	SetExpNumElems(expected int)
	SetExpNumElemChild(numElemChild int)
	SetFngprtSize(bits int)
	SetBucketSize(slots int)
	SetFilterSize(buckets int)
	SetMaxKicks(kicks int)
}

// Params is the per-protocol parameter sum type. Each variant applies
// itself onto a builder; engines hand their variant back via Describe.
type Params interface {
	Apply(b BuilderSetter)
	String() string
}

// CPISyncParams parameterizes the characteristic-polynomial family.
// Partitions and PFactor are distinct fields and must never be aliased:
// PFactor is the InterCPISync tree branching factor; Partitions is passed to
// the simple variants and reported back by Describe, but no engine splits
// the hash space by it.
type CPISyncParams struct {
	MBar       int
	Bits       int
	Epsilon    int
	Partitions int
	PFactor    int
	Redundant  int
	Hashes     bool
}

func (p CPISyncParams) Apply(b BuilderSetter) {
	b.SetMbar(p.MBar)
	b.SetBits(p.Bits)
	b.SetErr(p.Epsilon)
	b.SetNumPartitions(p.Partitions)
	b.SetPFactor(p.PFactor)
	b.SetRedundant(p.Redundant)
	b.SetHashes(p.Hashes)
}

func (p CPISyncParams) String() string {
	return fmt.Sprintf("m_bar: %d, bits: %d, epsilon: %d, partitions: %d, pFactor: %d, redundant: %d, hashes: %t",
		p.MBar, p.Bits, p.Epsilon, p.Partitions, p.PFactor, p.Redundant, p.Hashes)
}

// IBLTParams parameterizes the IBLT family.
type IBLTParams struct {
	Expected     int
	EltSize      int
	NumElemChild int
}

func (p IBLTParams) Apply(b BuilderSetter) {
	b.SetExpNumElems(p.Expected)
	b.SetBits(p.EltSize)
	b.SetExpNumElemChild(p.NumElemChild)
}

func (p IBLTParams) String() string {
	return fmt.Sprintf("expected: %d, eltSize: %d, numElemChild: %d",
		p.Expected, p.EltSize, p.NumElemChild)
}

// CuckooParams parameterizes CuckooSync.
type CuckooParams struct {
	FngprtSize int
	BucketSize int
	FilterSize int
	MaxKicks   int
}

func (p CuckooParams) Apply(b BuilderSetter) {
	b.SetFngprtSize(p.FngprtSize)
	b.SetBucketSize(p.BucketSize)
	b.SetFilterSize(p.FilterSize)
	b.SetMaxKicks(p.MaxKicks)
}

func (p CuckooParams) String() string {
	return fmt.Sprintf("fngprtSize: %d, bucketSize: %d, filterSize: %d, maxKicks: %d",
		p.FngprtSize, p.BucketSize, p.FilterSize, p.MaxKicks)
}

// FullSyncParams carries nothing; FullSync needs no configuration.
type FullSyncParams struct{}

func (p FullSyncParams) Apply(b BuilderSetter) {}

func (p FullSyncParams) String() string { return "FullSync" }
