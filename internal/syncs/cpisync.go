package syncs

import (
	"math"
	"math/big"

	"github.com/nislab/gensync/internal/comm"
	"github.com/nislab/gensync/internal/field"
	"github.com/nislab/gensync/internal/hashutil"
	"github.com/nislab/gensync/pkg/models"
)

// cpiVariant selects the round structure of the characteristic-polynomial
// protocol.
type cpiVariant int

const (
	// cpiInteractive is the base three-round protocol with overflow
	// signalling.
	cpiInteractive cpiVariant = iota
	// cpiOneLessRound drops the final translation round; the client's
	// recovered field values are reported as elements directly.
	cpiOneLessRound
	// cpiHalfRound is one message each way: evaluations down, resolved
	// lists back.
	cpiHalfRound
	// cpiOneWay sends evaluations only; the server learns nothing.
	cpiOneWay
)

// CPISync reconciles by interpolating the ratio of the two sets'
// characteristic polynomials evaluated at predetermined points. The
// evaluation vector is the only state that leaves the host.
type CPISync struct {
	baseMethod

	mBar       int
	bits       int
	epsilon    int
	partitions int
	redundant  int
	hashes     bool
	variant    cpiVariant

	// probabilistic mode starts from a difference bound of one and
	// doubles on overflow.
	probabilistic bool

	fld      *field.Field
	elemMax  *big.Int              // 2^bits, first value outside element range
	evals    []*big.Int            // running characteristic evaluations
	inverse  map[string]*models.DataObject // field value -> owned element
	elemVals []*big.Int            // field values in insertion order
}

// NewCPISync builds the base engine. The field is sized one bit above the
// element width so sample points never collide with element values no
// matter how far a probabilistic run doubles.
func NewCPISync(mBar, bits, epsilon, partitions, redundant int, hashes bool, variant cpiVariant, probabilistic bool) *CPISync {
	s := &CPISync{
		baseMethod:    newBaseMethod(false),
		mBar:          mBar,
		bits:          bits,
		epsilon:       epsilon,
		partitions:    partitions,
		redundant:     redundant,
		hashes:        hashes,
		variant:       variant,
		probabilistic: probabilistic,
		fld:           field.FieldForBits(uint(bits)+1, 0),
		inverse:       make(map[string]*models.DataObject),
	}
	s.elemMax = new(big.Int).Lsh(big.NewInt(1), uint(bits))
	s.evals = make([]*big.Int, s.sampleCount(s.startBound()))
	for i := range s.evals {
		s.evals[i] = big.NewInt(1)
	}
	return s
}

// NewInteractiveCPISync is the standard three-round engine.
func NewInteractiveCPISync(mBar, bits, epsilon, partitions, redundant int, hashes bool) *CPISync {
	return NewCPISync(mBar, bits, epsilon, partitions, redundant, hashes, cpiInteractive, false)
}

// NewProbCPISync starts from a bound of one and doubles on overflow, with
// the sample count padded by ceil(log2 bits) so the cumulative error stays
// within the configured epsilon.
func NewProbCPISync(mBar, bits, epsilon int, hashes bool) *CPISync {
	return NewCPISync(mBar, bits, epsilon, 0, 0, hashes, cpiInteractive, true)
}

// NewCPISyncOneLessRound drops the final translation round. It requires
// unhashed elements, which the builder enforces.
func NewCPISyncOneLessRound(mBar, bits, epsilon, partitions, redundant int) *CPISync {
	return NewCPISync(mBar, bits, epsilon, partitions, redundant, false, cpiOneLessRound, false)
}

// NewCPISyncHalfRound exchanges one message each way.
func NewCPISyncHalfRound(mBar, bits, epsilon int) *CPISync {
	return NewCPISync(mBar, bits, epsilon, 0, 0, false, cpiHalfRound, false)
}

// NewOneWayCPISync sends a single message; only the client learns.
func NewOneWayCPISync(mBar, bits, epsilon int) *CPISync {
	return NewCPISync(mBar, bits, epsilon, 0, 0, false, cpiOneWay, false)
}

func (s *CPISync) Name() string {
	switch {
	case s.probabilistic:
		return "ProbCPISync"
	case s.variant == cpiOneLessRound:
		return "CPISync_OneLessRound"
	case s.variant == cpiHalfRound:
		return "CPISync_HalfRound"
	case s.variant == cpiOneWay:
		return "OneWayCPISync"
	}
	return "CPISync"
}

func (s *CPISync) Describe() Params {
	return CPISyncParams{
		MBar:       s.mBar,
		Bits:       s.bits,
		Epsilon:    s.epsilon,
		Partitions: s.partitions,
		Redundant:  s.redundant,
		Hashes:     s.hashes,
	}
}

// startBound is the difference bound of the first protocol attempt.
func (s *CPISync) startBound() int {
	if s.probabilistic {
		return 1
	}
	return s.mBar
}

// samplePad is the extra probe count absorbing the doubling schedule in
// probabilistic mode.
func (s *CPISync) samplePad() int {
	if !s.probabilistic {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(s.bits))))
}

// sampleCount is the number of evaluation points exchanged at a given
// difference bound.
func (s *CPISync) sampleCount(bound int) int {
	return 2*bound + s.redundant + s.samplePad()
}

// samplePoint returns the i-th predetermined point: descending from p-1,
// always nonzero and above the element value range.
func (s *CPISync) samplePoint(i int) *big.Int {
	return new(big.Int).Sub(s.fld.P, big.NewInt(int64(i)+1))
}

// fieldValue maps an element into the field: its canonical integer when
// hashes is off, the truncated uniform hash otherwise.
func (s *CPISync) fieldValue(d *models.DataObject) *big.Int {
	if s.hashes {
		return hashutil.HashToField(d.Bytes(), s.fld.P, uint(s.bits))
	}
	return hashutil.ValueInField(d.Bytes(), s.fld.P)
}

// AddElem folds the element into every maintained evaluation.
func (s *CPISync) AddElem(d *models.DataObject) bool {
	if !s.addElem(d) {
		return false
	}
	v := s.fieldValue(d)
	s.inverse[v.String()] = d
	s.elemVals = append(s.elemVals, v)
	for i := range s.evals {
		s.evals[i] = s.fld.Mul(s.evals[i], s.fld.Sub(s.samplePoint(i), v))
	}
	return true
}

// DelElem divides the element back out of every maintained evaluation.
func (s *CPISync) DelElem(d *models.DataObject) (bool, error) {
	if !s.delElem(d) {
		return false, nil
	}
	v := s.fieldValue(d)
	delete(s.inverse, v.String())
	for i, ev := range s.elemVals {
		if ev.Cmp(v) == 0 {
			s.elemVals = append(s.elemVals[:i], s.elemVals[i+1:]...)
			break
		}
	}
	for i := range s.evals {
		inv, err := s.fld.Inv(s.fld.Sub(s.samplePoint(i), v))
		if err != nil {
			return false, err
		}
		s.evals[i] = s.fld.Mul(s.evals[i], inv)
	}
	return true, nil
}

// evaluations returns the first n characteristic evaluations, extending the
// maintained vector by direct products when a doubled bound needs points it
// was not sized for.
func (s *CPISync) evaluations(n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		if i < len(s.evals) {
			out[i] = s.evals[i]
			continue
		}
		prod := big.NewInt(1)
		pt := s.samplePoint(i)
		for _, v := range s.elemVals {
			prod = s.fld.Mul(prod, s.fld.Sub(pt, v))
		}
		out[i] = prod
	}
	return out
}

// maxDoublings caps the probabilistic schedule; with the sample pad of
// ceil(log2 bits) the union bound over this many attempts stays within
// 2^-epsilon.
func (s *CPISync) maxDoublings() int {
	return s.bits
}

// interpolateDiff recovers the two difference root sets from the peer's
// evaluations at the given bound. It reports overflow through an
// ErrOverflow-kinded error; the caller owns retry policy.
func (s *CPISync) interpolateDiff(bound int, theirSize int, theirEvals []*big.Int) (mine, theirs []*big.Int, err error) {
	d := s.set.Size() - theirSize
	if d > bound || -d > bound {
		return nil, nil, models.NewSyncError(models.ErrOverflow,
			"set size gap %d exceeds bound %d", d, bound)
	}
	degNum := (bound + d) / 2
	degDen := degNum - d

	n := len(theirEvals)
	points := make([]*big.Int, n)
	ratios := make([]*big.Int, n)
	ours := s.evaluations(n)
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
			return nil, nil, models.WrapSyncError(models.ErrOverflow, ierr, "interpolation")
		}
		return nil, nil, ierr
	}

	mine, rerr := field.Roots(s.fld, res.Num)
	if rerr != nil {
		return nil, nil, models.WrapSyncError(models.ErrOverflow, rerr, "numerator roots")
	}
	theirs, rerr = field.Roots(s.fld, res.Den)
	if rerr != nil {
		return nil, nil, models.WrapSyncError(models.ErrOverflow, rerr, "denominator roots")
	}

	// Roots must lie inside the element value range and our own roots must
	// map back to owned elements; anything else is an undetected overflow
	// or a hash collision, handled the same way.
	for _, r := range mine {
		if r.Cmp(s.elemMax) >= 0 {
			return nil, nil, models.NewSyncError(models.ErrOverflow, "root outside element range")
		}
		if _, ok := s.inverse[r.String()]; !ok {
			return nil, nil, models.NewSyncError(models.ErrOverflow, "recovered root not an owned element")
		}
	}
	for _, r := range theirs {
		if r.Cmp(s.elemMax) >= 0 {
			return nil, nil, models.NewSyncError(models.ErrOverflow, "root outside element range")
		}
	}
	return mine, theirs, nil
}

// resolveOwn maps recovered numerator roots back to owned elements.
func (s *CPISync) resolveOwn(roots []*big.Int) []*models.DataObject {
	out := make([]*models.DataObject, 0, len(roots))
	for _, r := range roots {
		out = append(out, s.inverse[r.String()])
	}
	return out
}

// SyncClient drives the client role of the selected variant.
func (s *CPISync) SyncClient(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)

	oneWayHandshake := s.variant == cpiOneWay
	if err := s.clientSetup(c, s.fld.P, oneWayHandshake); err != nil {
		return nil, err
	}

	// Setup round: the server declares m_bar, bits, hashes; disagreement
	// is a setup failure before any element-bearing message.
	if s.variant == cpiInteractive {
		s.stats.TimerStart(CommTime)
		srvMBar, err := c.RecvUint32()
		if err == nil {
			var srvBits uint32
			srvBits, err = c.RecvUint32()
			if err == nil {
				var srvHashes byte
				srvHashes, err = c.RecvByte()
				if err == nil {
					if int(srvBits) != s.bits || (srvHashes == 1) != s.hashes || int(srvMBar) != s.mBar {
						err = models.NewSyncError(models.ErrSyncSetup,
							"parameter disagreement: server (m_bar=%d, bits=%d, hashes=%t)",
							srvMBar, srvBits, srvHashes == 1)
					}
				}
			}
		}
		s.stats.TimerEnd(CommTime)
		if err != nil {
			return nil, err
		}
	}

	bound := s.startBound()
	attempts := 0
	for {
		s.stats.TimerStart(CommTime)
		n, err := c.RecvUint32()
		var theirSize uint64
		if err == nil {
			theirSize, err = c.RecvUint64()
		}
		var theirEvals []*big.Int
		if err == nil {
			theirEvals, err = c.RecvZZList()
		}
		s.stats.TimerEnd(CommTime)
		if err != nil {
			return nil, err
		}
		if int(n) != len(theirEvals) || int(n) != s.sampleCount(bound) {
			return nil, models.NewSyncError(models.ErrSyncSetup,
				"evaluation count %d, want %d", len(theirEvals), s.sampleCount(bound))
		}

		s.stats.TimerStart(CompTime)
		mine, theirs, ierr := s.interpolateDiff(bound, int(theirSize), theirEvals)
		s.stats.TimerEnd(CompTime)

		if ierr != nil {
			if !models.IsKind(ierr, models.ErrOverflow) {
				return nil, ierr
			}
			// Overflow: interactive probabilistic runs double and retry;
			// everything else reports an insufficient bound.
			retriable := s.probabilistic && s.variant == cpiInteractive && attempts < s.maxDoublings()
			if s.variant != cpiOneWay {
				s.stats.TimerStart(CommTime)
				flag := flagFail
				if retriable {
					flag = flagOverflow
				}
				serr := c.SendByte(flag)
				s.stats.TimerEnd(CommTime)
				if serr != nil {
					return nil, serr
				}
			}
			if retriable {
				bound *= 2
				attempts++
				s.stats.IncCounter(CounterDoublings)
				continue
			}
			return &SyncResult{}, models.WrapSyncError(models.ErrSyncInsufficientBound, ierr,
				"difference exceeds declared bound")
		}

		selfOnly := s.resolveOwn(mine)

		switch s.variant {
		case cpiOneWay:
			// No reply at all; only this side learns.
			return &SyncResult{
				SelfMinusOther: selfOnly,
				OtherMinusSelf: rootsToObjects(theirs),
				Success:        true,
			}, nil

		case cpiHalfRound, cpiOneLessRound:
			// Reply carries the resolved lists; no translation round.
			s.stats.TimerStart(CommTime)
			err = c.SendByte(flagSyncOK)
			if err == nil {
				err = c.SendDataObjectList(selfOnly)
			}
			if err == nil {
				err = c.SendZZList(theirs)
			}
			s.stats.TimerEnd(CommTime)
			if err != nil {
				return nil, err
			}
			return &SyncResult{
				SelfMinusOther: selfOnly,
				OtherMinusSelf: rootsToObjects(theirs),
				Success:        true,
			}, nil
		}

		// Interactive recovery round: send our resolved lists, get the
		// peer's elements for the denominator roots back.
		s.stats.TimerStart(CommTime)
		err = c.SendByte(flagSyncOK)
		if err == nil {
			err = c.SendDataObjectList(selfOnly)
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
			return nil, err
		}
		return &SyncResult{
			SelfMinusOther: selfOnly,
			OtherMinusSelf: otherElems,
			Success:        true,
		}, nil
	}
}

// SyncServer drives the server role.
func (s *CPISync) SyncServer(c *comm.Communicant) (*SyncResult, error) {
	defer s.finish(c)

	oneWayHandshake := s.variant == cpiOneWay
	if err := s.serverSetup(c, s.fld.P, oneWayHandshake); err != nil {
		return nil, err
	}

	if s.variant == cpiInteractive {
		s.stats.TimerStart(CommTime)
		err := c.SendUint32(uint32(s.mBar))
		if err == nil {
			err = c.SendUint32(uint32(s.bits))
		}
		if err == nil {
			h := byte(0)
			if s.hashes {
				h = 1
			}
			err = c.SendByte(h)
		}
		s.stats.TimerEnd(CommTime)
		if err != nil {
			return nil, err
		}
	}

	bound := s.startBound()
	for {
		n := s.sampleCount(bound)
		s.stats.TimerStart(CompTime)
		evals := s.evaluations(n)
		s.stats.TimerEnd(CompTime)

		s.stats.TimerStart(CommTime)
		err := c.SendUint32(uint32(n))
		if err == nil {
			err = c.SendUint64(uint64(s.set.Size()))
		}
		if err == nil {
			err = c.SendZZList(evals)
		}
		s.stats.TimerEnd(CommTime)
		if err != nil {
			return nil, err
		}

		if s.variant == cpiOneWay {
			// Nothing comes back; this side learns nothing by design.
			return &SyncResult{Success: true}, nil
		}

		s.stats.TimerStart(IdleTime)
		flag, err := c.RecvByte()
		s.stats.TimerEnd(IdleTime)
		if err != nil {
			return nil, err
		}

		switch flag {
		case flagOverflow:
			bound *= 2
			s.stats.IncCounter(CounterDoublings)
			continue
		case flagFail:
			return &SyncResult{}, models.NewSyncError(models.ErrSyncInsufficientBound,
				"peer reported difference exceeding declared bound")
		case flagSyncOK:
		default:
			return nil, models.NewSyncError(models.ErrSyncSetup, "unexpected protocol flag %#x", flag)
		}

		s.stats.TimerStart(CommTime)
		clientOnly, err := c.RecvDataObjectList()
		var ourRoots []*big.Int
		if err == nil {
			ourRoots, err = c.RecvZZList()
		}
		s.stats.TimerEnd(CommTime)
		if err != nil {
			return nil, err
		}

		s.stats.TimerStart(CompTime)
		selfOnly := make([]*models.DataObject, 0, len(ourRoots))
		for _, r := range ourRoots {
			if d, ok := s.inverse[r.String()]; ok {
				selfOnly = append(selfOnly, d)
			} else {
				// The peer believes we own this value; reconstruct from
				// the root so the report stays complete.
				selfOnly = append(selfOnly, models.NewDataObjectFromInt(r))
			}
		}
		s.stats.TimerEnd(CompTime)

		if s.variant == cpiInteractive {
			s.stats.TimerStart(CommTime)
			err = c.SendDataObjectList(selfOnly)
			s.stats.TimerEnd(CommTime)
			if err != nil {
				return nil, err
			}
		}

		return &SyncResult{
			SelfMinusOther: selfOnly,
			OtherMinusSelf: clientOnly,
			Success:        true,
		}, nil
	}
}

// rootsToObjects converts recovered field values to elements; valid only
// when elements are unhashed (the value is the element).
func rootsToObjects(roots []*big.Int) []*models.DataObject {
	out := make([]*models.DataObject, 0, len(roots))
	for _, r := range roots {
		out = append(out, models.NewDataObjectFromInt(r))
	}
	return out
}
