package syncs

import (
	"math/big"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/field"
	"github.com/nislab/gensync/internal/hashutil"
	"github.com/nislab/gensync/pkg/models"
)

// maxTreeDepth caps the partition recursion; descending past it means the
// hash space is no longer separating the peers' differences.
const maxTreeDepth = 64

// pNode is one partition-tree node in the arena. Parent is an index, -1
// for the root; children are indices into the same arena.
type pNode struct {
	lo, hi   *big.Int
	parent   int
	children []int
	depth    int
}

// InterCPISync reconciles large or unknown differences by recursively
// partitioning the hash space into pFactor subranges, running a bounded
// CPISync at every node small enough for it. Both peers descend in
// lock-step: the server decides leaf-or-subdivide per node and the client
// follows the same bitstream.
type InterCPISync struct {
	baseMethod

	mBar    int
	bits    int
	epsilon int
	pFactor int
	hashes  bool

	fld     *field.Field
	elemMax *big.Int
	inverse map[string]*models.DataObject
	values  []*big.Int // element field positions, insertion order

	arena []pNode
}

// NewInterCPISync builds the recursive engine. pFactor must be at least 2.
func NewInterCPISync(mBar, bits, epsilon, pFactor int, hashes bool) *InterCPISync {
	if pFactor < 2 {
		pFactor = 2
	}
	return &InterCPISync{
		baseMethod: newBaseMethod(false),
		mBar:       mBar,
		bits:       bits,
		epsilon:    epsilon,
		pFactor:    pFactor,
		hashes:     hashes,
		fld:        field.FieldForBits(uint(bits)+1, 0),
		elemMax:    new(big.Int).Lsh(big.NewInt(1), uint(bits)),
		inverse:    make(map[string]*models.DataObject),
	}
}

func (s *InterCPISync) Name() string { return "InteractiveCPISync" }

func (s *InterCPISync) Describe() Params {
	return CPISyncParams{
		MBar:    s.mBar,
		Bits:    s.bits,
		Epsilon: s.epsilon,
		PFactor: s.pFactor,
		Hashes:  s.hashes,
	}
}

// position maps an element to its hash-space coordinate in [0, 2^bits).
func (s *InterCPISync) position(d *models.DataObject) *big.Int {
	if s.hashes {
		return hashutil.HashToField(d.Bytes(), s.fld.P, uint(s.bits))
	}
	return hashutil.ValueInField(d.Bytes(), s.fld.P)
}

func (s *InterCPISync) AddElem(d *models.DataObject) bool {
	if !s.addElem(d) {
		return false
	}
	v := s.position(d)
	s.inverse[v.String()] = d
	s.values = append(s.values, v)
	return true
}

func (s *InterCPISync) DelElem(d *models.DataObject) (bool, error) {
	if !s.delElem(d) {
		return false, nil
	}
	v := s.position(d)
	delete(s.inverse, v.String())
	for i, ev := range s.values {
		if ev.Cmp(v) == 0 {
			s.values = append(s.values[:i], s.values[i+1:]...)
			break
		}
	}
	return true, nil
}

// inRange collects the field positions falling inside [lo, hi).
func (s *InterCPISync) inRange(lo, hi *big.Int) []*big.Int {
	var out []*big.Int
	for _, v := range s.values {
		if v.Cmp(lo) >= 0 && v.Cmp(hi) < 0 {
			out = append(out, v)
		}
	}
	return out
}

// newNode appends an arena node and returns its index.
func (s *InterCPISync) newNode(lo, hi *big.Int, parent, depth int) int {
	s.arena = append(s.arena, pNode{lo: lo, hi: hi, parent: parent, depth: depth})
	return len(s.arena) - 1
}

// subranges splits [lo, hi) into pFactor equal parts, the last absorbing
// the remainder.
func (s *InterCPISync) subranges(lo, hi *big.Int) [][2]*big.Int {
	width := new(big.Int).Sub(hi, lo)
	step := new(big.Int).Div(width, big.NewInt(int64(s.pFactor)))
	if step.Sign() == 0 {
		step = big.NewInt(1)
	}
	out := make([][2]*big.Int, 0, s.pFactor)
	cur := new(big.Int).Set(lo)
	for i := 0; i < s.pFactor; i++ {
		next := new(big.Int).Add(cur, step)
		if i == s.pFactor-1 || next.Cmp(hi) > 0 {
			next = new(big.Int).Set(hi)
		}
		out = append(out, [2]*big.Int{cur, next})
		cur = next
		if cur.Cmp(hi) >= 0 {
			break
		}
	}
	return out
}

// nodeSampleCount is the evaluation count for a per-node CPISync.
const nodeRedundant = 2

func (s *InterCPISync) nodeSampleCount() int {
	return 2*s.mBar + nodeRedundant
}

func (s *InterCPISync) samplePoint(i int) *big.Int {
	return new(big.Int).Sub(s.fld.P, big.NewInt(int64(i)+1))
}

// nodeEvals evaluates the characteristic polynomial of the node's elements
// at the per-node sample points.
func (s *InterCPISync) nodeEvals(vals []*big.Int) []*big.Int {
	n := s.nodeSampleCount()
	out := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		prod := big.NewInt(1)
		pt := s.samplePoint(i)
		for _, v := range vals {
			prod = s.fld.Mul(prod, s.fld.Sub(pt, v))
		}
		out[i] = prod
	}
	return out
}

// interpolateNode recovers the node's difference roots from the peer's
// node evaluations, overflow-kinded on failure.
func (s *InterCPISync) interpolateNode(vals []*big.Int, theirSize int, theirEvals []*big.Int) (mine, theirs []*big.Int, err error) {
	d := len(vals) - theirSize
	if d > s.mBar || -d > s.mBar {
		return nil, nil, models.NewSyncError(models.ErrOverflow, "node size gap %d exceeds bound %d", d, s.mBar)
	}
	degNum := (s.mBar + d) / 2
	degDen := degNum - d

	n := len(theirEvals)
	points := make([]*big.Int, n)
	ratios := make([]*big.Int, n)
	ours := s.nodeEvals(vals)
	for i := 0; i < n; i++ {
		points[i] = s.samplePoint(i)
		r, derr := s.fld.Div(ours[i], theirEvals[i])
		if derr != nil {
			return nil, nil, models.WrapSyncError(models.ErrOverflow, derr, "zero evaluation")
		}
		ratios[i] = r
	}
	res, ierr := field.InterpolateRational(s.fld, points, ratios, degNum, degDen)
	if ierr != nil {
		switch ierr.(type) {
		case field.ErrInconsistent, field.ErrNeedMorePoints:
			return nil, nil, models.WrapSyncError(models.ErrOverflow, ierr, "node interpolation")
		}
		return nil, nil, ierr
	}
	mine, rerr := field.Roots(s.fld, res.Num)
	if rerr != nil {
		return nil, nil, models.WrapSyncError(models.ErrOverflow, rerr, "node numerator roots")
	}
	theirs, rerr = field.Roots(s.fld, res.Den)
	if rerr != nil {
		return nil, nil, models.WrapSyncError(models.ErrOverflow, rerr, "node denominator roots")
	}
	for _, r := range mine {
		if r.Cmp(s.elemMax) >= 0 {
			return nil, nil, models.NewSyncError(models.ErrOverflow, "node root outside element range")
		}
		if _, ok := s.inverse[r.String()]; !ok {
			return nil, nil, models.NewSyncError(models.ErrOverflow, "node root not an owned element")
		}
	}
	for _, r := range theirs {
		if r.Cmp(s.elemMax) >= 0 {
			return nil, nil, models.NewSyncError(models.ErrOverflow, "node root outside element range")
		}
	}
	return mine, theirs, nil
}

// SyncClient descends the partition tree following the server's decisions.
func (s *InterCPISync) SyncClient(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.clientSetup(c, s.fld.P, false); err != nil {
		return nil, err
	}

	res := &SyncResult{Success: true}
	s.arena = s.arena[:0]
	root := s.newNode(new(big.Int), new(big.Int).Set(s.elemMax), -1, 0)
	if err := s.clientNode(c, root, res); err != nil {
		if models.IsKind(err, models.ErrTreeTooDeep) {
			res.Success = false
			return res, err
		}
		return nil, err
	}
	s.recordTreeStats()
	return res, nil
}

func (s *InterCPISync) clientNode(c *comm.Communicant, node int, res *SyncResult) error {
	lo, hi := s.arena[node].lo, s.arena[node].hi
	vals := s.inRange(lo, hi)

	s.stats.TimerStart(CommTime)
	err := c.SendUint64(uint64(len(vals)))
	var flag byte
	if err == nil {
		flag, err = c.RecvByte()
	}
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return err
	}

	switch flag {
	case flagSubdivide:
		return s.clientSubdivide(c, node, res)

	case flagLeafSync:
		s.stats.TimerStart(CommTime)
		theirSize, err := c.RecvUint64()
		var theirEvals []*big.Int
		if err == nil {
			theirEvals, err = c.RecvZZList()
		}
		s.stats.TimerEnd(CommTime)
		if err != nil {
			return err
		}

		s.stats.TimerStart(CompTime)
		mine, theirs, ierr := s.interpolateNode(vals, int(theirSize), theirEvals)
		s.stats.TimerEnd(CompTime)

		if ierr != nil {
			if !models.IsKind(ierr, models.ErrOverflow) {
				return ierr
			}
			// The node would not interpolate: signal and subdivide in
			// lock-step with the server.
			s.stats.TimerStart(CommTime)
			serr := c.SendByte(flagOverflow)
			s.stats.TimerEnd(CommTime)
			if serr != nil {
				return serr
			}
			return s.clientSubdivide(c, node, res)
		}

		s.stats.TimerStart(CommTime)
		err = c.SendByte(flagSyncOK)
		if err == nil {
			err = c.SendDataObjectList(s.resolveOwn(mine))
		}
		if err == nil {
			err = c.SendZZList(theirs)
		}
		var otherElems []*models.DataObject
		if err == nil {
			otherElems, err = c.RecvDataObjectList()
		}
		s.stats.TimerEnd(CommTime)
		if err != nil {
			return err
		}
		res.SelfMinusOther = append(res.SelfMinusOther, s.resolveOwn(mine)...)
		res.OtherMinusSelf = append(res.OtherMinusSelf, otherElems...)
		return nil

	default:
		return models.NewSyncError(models.ErrSyncSetup, "unexpected tree flag %#x", flag)
	}
}

func (s *InterCPISync) clientSubdivide(c *comm.Communicant, node int, res *SyncResult) error {
	if s.arena[node].depth+1 > maxTreeDepth {
		return models.NewSyncError(models.ErrTreeTooDeep, "partition depth %d", s.arena[node].depth+1)
	}
	for _, r := range s.subranges(s.arena[node].lo, s.arena[node].hi) {
		child := s.newNode(r[0], r[1], node, s.arena[node].depth+1)
		s.arena[node].children = append(s.arena[node].children, child)
		if err := s.clientNode(c, child, res); err != nil {
			return err
		}
	}
	return nil
}

// SyncServer decides leaf-or-subdivide per node and streams those
// decisions to the client.
func (s *InterCPISync) SyncServer(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)
	if err := s.serverSetup(c, s.fld.P, false); err != nil {
		return nil, err
	}

	res := &SyncResult{Success: true}
	s.arena = s.arena[:0]
	root := s.newNode(new(big.Int), new(big.Int).Set(s.elemMax), -1, 0)
	if err := s.serverNode(c, root, res); err != nil {
		if models.IsKind(err, models.ErrTreeTooDeep) {
			res.Success = false
			return res, err
		}
		return nil, err
	}
	s.recordTreeStats()
	return res, nil
}

func (s *InterCPISync) serverNode(c *comm.Communicant, node int, res *SyncResult) error {
	lo, hi := s.arena[node].lo, s.arena[node].hi
	vals := s.inRange(lo, hi)

	s.stats.TimerStart(CommTime)
	clientCount, err := c.RecvUint64()
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return err
	}

	// Leaf when either peer's partition fits the per-node bound.
	leaf := len(vals) <= s.mBar || int(clientCount) <= s.mBar

	if !leaf {
		s.stats.TimerStart(CommTime)
		err = c.SendByte(flagSubdivide)
		s.stats.TimerEnd(CommTime)
		if err != nil {
			return err
		}
		return s.serverSubdivide(c, node, res)
	}

	s.stats.TimerStart(CommTime)
	err = c.SendByte(flagLeafSync)
	if err == nil {
		err = c.SendUint64(uint64(len(vals)))
	}
	if err == nil {
		s.stats.TimerEnd(CommTime)
		s.stats.TimerStart(CompTime)
		evals := s.nodeEvals(vals)
		s.stats.TimerEnd(CompTime)
		s.stats.TimerStart(CommTime)
		err = c.SendZZList(evals)
	}
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return err
	}

	s.stats.TimerStart(IdleTime)
	flag, err := c.RecvByte()
	s.stats.TimerEnd(IdleTime)
	if err != nil {
		return err
	}

	switch flag {
	case flagOverflow:
		return s.serverSubdivide(c, node, res)
	case flagSyncOK:
	default:
		return models.NewSyncError(models.ErrSyncSetup, "unexpected leaf flag %#x", flag)
	}

	s.stats.TimerStart(CommTime)
	clientOnly, err := c.RecvDataObjectList()
	var ourRoots []*big.Int
	if err == nil {
		ourRoots, err = c.RecvZZList()
	}
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return err
	}

	s.stats.TimerStart(CompTime)
	selfOnly := make([]*models.DataObject, 0, len(ourRoots))
	for _, r := range ourRoots {
		if d, ok := s.inverse[r.String()]; ok {
			selfOnly = append(selfOnly, d)
		} else {
			selfOnly = append(selfOnly, models.NewDataObjectFromInt(r))
		}
	}
	s.stats.TimerEnd(CompTime)

	s.stats.TimerStart(CommTime)
	err = c.SendDataObjectList(selfOnly)
	s.stats.TimerEnd(CommTime)
	if err != nil {
		return err
	}

	res.SelfMinusOther = append(res.SelfMinusOther, selfOnly...)
	res.OtherMinusSelf = append(res.OtherMinusSelf, clientOnly...)
	return nil
}

func (s *InterCPISync) serverSubdivide(c *comm.Communicant, node int, res *SyncResult) error {
	if s.arena[node].depth+1 > maxTreeDepth {
		return models.NewSyncError(models.ErrTreeTooDeep, "partition depth %d", s.arena[node].depth+1)
	}
	for _, r := range s.subranges(s.arena[node].lo, s.arena[node].hi) {
		child := s.newNode(r[0], r[1], node, s.arena[node].depth+1)
		s.arena[node].children = append(s.arena[node].children, child)
		if err := s.serverNode(c, child, res); err != nil {
			return err
		}
	}
	return nil
}

// resolveOwn maps numerator roots back to owned elements.
func (s *InterCPISync) resolveOwn(roots []*big.Int) []*models.DataObject {
	out := make([]*models.DataObject, 0, len(roots))
	for _, r := range roots {
		out = append(out, s.inverse[r.String()])
	}
	return out
}

// recordTreeStats writes the arena shape into the stats counters.
func (s *InterCPISync) recordTreeStats() {
	maxDepth := 0
	for i := range s.arena {
		if s.arena[i].depth > maxDepth {
			maxDepth = s.arena[i].depth
		}
	}
	s.stats.SetCounter(CounterTreeDepth, uint64(maxDepth))
	s.stats.SetCounter(CounterTreeNodes, uint64(len(s.arena)))
}
