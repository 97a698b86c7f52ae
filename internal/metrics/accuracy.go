// Package metrics evaluates reconciliation outcomes against ground truth.
// The approximate engines (cuckoo filters, overloaded IBLTs) can miss or
// fabricate elements; these metrics quantify how much.
package metrics

import "github.com/nislab/gensync/pkg/models"

// DiffAccuracy compares a reported difference list against the true one.
type DiffAccuracy struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

// Evaluate tallies a reported element list against the ground-truth list.
// Both are treated as sets keyed by byte content.
func Evaluate(reported, truth []*models.DataObject) DiffAccuracy {
	truthSet := make(map[string]bool, len(truth))
	for _, d := range truth {
		truthSet[d.Key()] = true
	}
	seen := make(map[string]bool, len(reported))

	var acc DiffAccuracy
	for _, d := range reported {
		k := d.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		if truthSet[k] {
			acc.TruePositives++
		} else {
			acc.FalsePositives++
		}
	}
	for k := range truthSet {
		if !seen[k] {
			acc.FalseNegatives++
		}
	}
	return acc
}

// Precision is the fraction of reported elements that are real.
func (a DiffAccuracy) Precision() float64 {
	denom := a.TruePositives + a.FalsePositives
	if denom == 0 {
		return 1.0
	}
	return float64(a.TruePositives) / float64(denom)
}

// Recall is the fraction of real differences that were reported.
func (a DiffAccuracy) Recall() float64 {
	denom := a.TruePositives + a.FalseNegatives
	if denom == 0 {
		return 1.0
	}
	return float64(a.TruePositives) / float64(denom)
}

// F1 is the harmonic mean of precision and recall.
func (a DiffAccuracy) F1() float64 {
	p, r := a.Precision(), a.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Exact reports a perfect reconciliation.
func (a DiffAccuracy) Exact() bool {
	return a.FalsePositives == 0 && a.FalseNegatives == 0
}
