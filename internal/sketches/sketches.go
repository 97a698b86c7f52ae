// Package sketches bundles the streaming estimators attached to every
// reconciliation session: an exact cardinality counter, a HyperLogLog
// unique-count estimator, and a space-saving frequent-items sketch. Any
// subset may be enabled at construction; all enabled sketches consume the
// same element stream. Concurrent Inc and Get is not supported.
package sketches

import (
	"fmt"
	"strings"

	"github.com/nislab/gensync/internal/hashutil"
	"github.com/nislab/gensync/pkg/models"
)

// PrintKey labels the sketches line in parameter files and stats blocks.
const PrintKey = "Sketches"

// HLLLogK is the default log2 of the HyperLogLog register count.
const HLLLogK = 14

// FILogMaxSize is the default log2 of the frequent-items capacity.
const FILogMaxSize = 10

// Type selects an estimator to enable.
type Type int

const (
	Cardinality Type = iota
	UniqueElem
	HeavyHitters
)

// Values is a snapshot of every enabled estimator.
type Values struct {
	Cardinality  int
	UniqueElem   float64
	HeavyHitters int
}

// Sketches owns the enabled estimators.
type Sketches struct {
	cardEnabled bool
	card        int

	hll *hyperLogLog

	fi *spaceSaving
}

// New constructs the bundle with the listed sketches enabled, using the
// default sizes.
func New(types ...Type) *Sketches {
	s := &Sketches{}
	for _, t := range types {
		switch t {
		case Cardinality:
			s.cardEnabled = true
		case UniqueElem:
			s.hll = newHyperLogLog(HLLLogK)
		case HeavyHitters:
			s.fi = newSpaceSaving(1 << FILogMaxSize)
		}
	}
	return s
}

// NewAll enables every estimator, the default for a session.
func NewAll() *Sketches {
	return New(Cardinality, UniqueElem, HeavyHitters)
}

// Inc feeds one element into every enabled estimator.
func (s *Sketches) Inc(d *models.DataObject) error {
	if s == nil {
		return nil
	}
	if s.cardEnabled {
		s.card++
	}
	h := hashutil.Hash64(d.Bytes())
	if s.hll != nil {
		s.hll.add(h)
	}
	if s.fi != nil {
		s.fi.update(h)
	}
	return nil
}

// Dec reverses one cardinality count for engines that support delElem. The
// probabilistic estimators are insert-only.
func (s *Sketches) Dec() {
	if s != nil && s.cardEnabled && s.card > 0 {
		s.card--
	}
}

// Get returns a snapshot of the enabled estimators.
func (s *Sketches) Get() Values {
	var v Values
	if s == nil {
		return v
	}
	if s.cardEnabled {
		v.Cardinality = s.card
	}
	if s.hll != nil {
		v.UniqueElem = s.hll.estimate()
	}
	if s.fi != nil {
		v.HeavyHitters = s.fi.countAboveThreshold()
	}
	return v
}

// String renders the sketches in the parameter-file line form:
// Sketches: {cardinality: N, unique(HyperLogLog): F, heavyHitters: N}
func (s *Sketches) String() string {
	var parts []string
	v := s.Get()
	if s != nil && s.cardEnabled {
		parts = append(parts, fmt.Sprintf("cardinality: %d", v.Cardinality))
	}
	if s != nil && s.hll != nil {
		parts = append(parts, fmt.Sprintf("unique(HyperLogLog): %g", v.UniqueElem))
	}
	if s != nil && s.fi != nil {
		parts = append(parts, fmt.Sprintf("heavyHitters: %d", v.HeavyHitters))
	}
	return fmt.Sprintf("%s: {%s}", PrintKey, strings.Join(parts, ", "))
}
