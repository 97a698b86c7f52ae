package metrics

import (
	"testing"

	"github.com/nislab/gensync/pkg/models"
)

func objs(vals ...uint64) []*models.DataObject {
	out := make([]*models.DataObject, 0, len(vals))
	for _, v := range vals {
		out = append(out, models.NewDataObjectFromUint64(v))
	}
	return out
}

func TestEvaluateExact(t *testing.T) {
	acc := Evaluate(objs(1, 2, 3), objs(1, 2, 3))
	if !acc.Exact() {
		t.Errorf("Expected an exact reconciliation, got %+v", acc)
	}
	if acc.Precision() != 1.0 || acc.Recall() != 1.0 {
		t.Errorf("Expected precision and recall 1.0, got %.2f / %.2f", acc.Precision(), acc.Recall())
	}
}

func TestEvaluateMissedAndFabricated(t *testing.T) {
	// Reported {1,2,9}; truth {1,2,3}: one fabrication, one miss.
	acc := Evaluate(objs(1, 2, 9), objs(1, 2, 3))
	if acc.TruePositives != 2 || acc.FalsePositives != 1 || acc.FalseNegatives != 1 {
		t.Fatalf("Tallies = %+v, want TP=2 FP=1 FN=1", acc)
	}
	if p := acc.Precision(); p < 0.66 || p > 0.67 {
		t.Errorf("Precision = %.3f, want 2/3", p)
	}
	if r := acc.Recall(); r < 0.66 || r > 0.67 {
		t.Errorf("Recall = %.3f, want 2/3", r)
	}
	if acc.Exact() {
		t.Error("Imperfect reconciliation must not report Exact")
	}
}

func TestEvaluateDuplicatesCountOnce(t *testing.T) {
	acc := Evaluate(objs(5, 5, 5), objs(5))
	if acc.TruePositives != 1 || acc.FalsePositives != 0 {
		t.Errorf("Duplicate reports must count once, got %+v", acc)
	}
}

func TestEvaluateEmpty(t *testing.T) {
	acc := Evaluate(nil, nil)
	if !acc.Exact() || acc.F1() != 1.0 {
		t.Errorf("Two empty lists agree perfectly, got %+v F1=%.2f", acc, acc.F1())
	}
}
