package bench

import (
	"math"
	"math/rand"

	"github.com/nislab/gensync/pkg/models"
)

// Synthetic-set shape constants for generated benchmarks.
const (
	// MaxCard is the maximum cardinality of a generated set.
	MaxCard = 1 << 10
	// RepRatio caps repetitions: one item repeats at most
	// MaxCard/RepRatio times.
	RepRatio = 1 << 7
	// MaxElem is the exclusive upper bound on generated element values.
	MaxElem = 1 << 31
	// ZipfAlpha is the default Zipfian shape parameter.
	ZipfAlpha = 1.0
)

// RandGen produces uniformly random elements in [0, max) from a
// caller-seeded source. Seeding is a process-wide, init-once action owned
// by the benchmark runner, never by a generator or an engine.
type RandGen struct {
	rng *rand.Rand
	max int64
}

func NewRandGen(rng *rand.Rand, max int64) *RandGen {
	if max <= 0 {
		max = MaxElem
	}
	return &RandGen{rng: rng, max: max}
}

// Produce never exhausts; callers bound the draw count.
func (g *RandGen) Produce() (*models.DataObject, bool) {
	return models.NewDataObjectFromUint64(uint64(g.rng.Int63n(g.max))), true
}

// Zipf samples from a Zipfian distribution over {1..n}. The normalization
// constant is computed once per n and cached, so every call with the same
// n draws from the same distribution.
type Zipf struct {
	rng   *rand.Rand
	alpha float64
	cs    map[int]float64
}

func NewZipf(rng *rand.Rand, alpha float64) *Zipf {
	if alpha <= 0 {
		alpha = ZipfAlpha
	}
	return &Zipf{rng: rng, alpha: alpha, cs: make(map[int]float64)}
}

// Draw returns a value in [1, n].
func (z *Zipf) Draw(n int) int {
	c, ok := z.cs[n]
	if !ok {
		for i := 1; i <= n; i++ {
			c += 1.0 / math.Pow(float64(i), z.alpha)
		}
		c = 1.0 / c
		z.cs[n] = c
	}

	var u float64
	for u == 0 || u == 1 {
		u = z.rng.Float64()
	}

	sum := 0.0
	for i := 1; i <= n; i++ {
		sum += c / math.Pow(float64(i), z.alpha)
		if sum >= u {
			return i
		}
	}
	return n
}
