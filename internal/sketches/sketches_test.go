package sketches

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/nislab/gensync/pkg/models"
)

func obj(s string) *models.DataObject {
	return models.NewDataObject([]byte(s))
}

func TestCardinalityExact(t *testing.T) {
	s := New(Cardinality)
	for i := 0; i < 137; i++ {
		if err := s.Inc(obj(fmt.Sprintf("e%d", i))); err != nil {
			t.Fatalf("Inc: %v", err)
		}
	}
	if got := s.Get().Cardinality; got != 137 {
		t.Errorf("Cardinality = %d, want 137", got)
	}
	s.Dec()
	if got := s.Get().Cardinality; got != 136 {
		t.Errorf("Cardinality after Dec = %d, want 136", got)
	}
}

func TestHyperLogLogEstimate(t *testing.T) {
	s := New(UniqueElem)
	n := 50000
	for i := 0; i < n; i++ {
		_ = s.Inc(obj(fmt.Sprintf("unique-%d", i)))
	}
	est := s.Get().UniqueElem
	// Standard error at 2^14 registers is under 1%; allow 5%.
	if math.Abs(est-float64(n)) > 0.05*float64(n) {
		t.Errorf("HLL estimate %.0f outside 5%% of %d", est, n)
	}
}

func TestHyperLogLogDuplicatesIgnored(t *testing.T) {
	s := New(UniqueElem)
	for i := 0; i < 10000; i++ {
		_ = s.Inc(obj("always-the-same"))
	}
	if est := s.Get().UniqueElem; est > 2 {
		t.Errorf("HLL estimate %.1f for a single distinct element", est)
	}
}

func TestHeavyHitters(t *testing.T) {
	s := New(HeavyHitters)
	// One very frequent item in a sea of singletons small enough to fit
	// the monitored set, so its guaranteed count is exact.
	for i := 0; i < 500; i++ {
		_ = s.Inc(obj("hot"))
	}
	for i := 0; i < 200; i++ {
		_ = s.Inc(obj(fmt.Sprintf("cold-%d", i)))
	}
	if got := s.Get().HeavyHitters; got < 1 {
		t.Errorf("Expected the hot item reported, got %d", got)
	}
}

func TestDisabledSketchesStayZero(t *testing.T) {
	s := New(Cardinality)
	_ = s.Inc(obj("a"))
	v := s.Get()
	if v.UniqueElem != 0 || v.HeavyHitters != 0 {
		t.Errorf("Disabled estimators should snapshot zero, got %+v", v)
	}
}

func TestStringForm(t *testing.T) {
	s := NewAll()
	_ = s.Inc(obj("x"))
	out := s.String()
	if !strings.HasPrefix(out, PrintKey+": {") {
		t.Errorf("Sketches line %q missing the print key prefix", out)
	}
	if !strings.Contains(out, "cardinality: 1") {
		t.Errorf("Sketches line %q missing cardinality", out)
	}
}
