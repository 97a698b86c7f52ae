package field

import (
	"math/big"
	"testing"
)

func TestNextPrime(t *testing.T) {
	cases := []struct {
		after int64
		want  int64
	}{
		{1, 2},
		{2, 3},
		{10, 11},
		{13, 17},
		{100, 101},
		{4294967296, 4294967311}, // 2^32
	}
	for _, c := range cases {
		got := NextPrime(big.NewInt(c.after))
		if got.Int64() != c.want {
			t.Errorf("NextPrime(%d) = %v, want %d", c.after, got, c.want)
		}
	}
}

func TestFieldInverse(t *testing.T) {
	f := NewField(big.NewInt(101))
	for a := int64(1); a < 101; a++ {
		inv, err := f.Inv(big.NewInt(a))
		if err != nil {
			t.Fatalf("Inv(%d): %v", a, err)
		}
		if f.Mul(big.NewInt(a), inv).Int64() != 1 {
			t.Errorf("%d * %d != 1 mod 101", a, inv)
		}
	}
	if _, err := f.Inv(big.NewInt(0)); err == nil {
		t.Error("Expected an error inverting zero")
	}
}

func TestPolyDivMod(t *testing.T) {
	f := NewField(big.NewInt(101))
	// p = (x - 3)(x - 7) = x^2 - 10x + 21
	p := MonomialRoot(f, big.NewInt(3)).Mul(MonomialRoot(f, big.NewInt(7)))
	d := MonomialRoot(f, big.NewInt(3))
	quo, rem, err := p.DivMod(d)
	if err != nil {
		t.Fatalf("DivMod: %v", err)
	}
	if !rem.IsZero() {
		t.Errorf("Expected zero remainder, got degree %d", rem.Degree())
	}
	if quo.Degree() != 1 || quo.Eval(big.NewInt(7)).Sign() != 0 {
		t.Errorf("Quotient should be (x - 7), got eval at 7 = %v", quo.Eval(big.NewInt(7)))
	}
}

func TestPolyGCD(t *testing.T) {
	f := NewField(big.NewInt(101))
	shared := MonomialRoot(f, big.NewInt(5))
	a := shared.Mul(MonomialRoot(f, big.NewInt(2)))
	b := shared.Mul(MonomialRoot(f, big.NewInt(9)))
	g, err := a.GCD(b)
	if err != nil {
		t.Fatalf("GCD: %v", err)
	}
	if g.Degree() != 1 {
		t.Fatalf("Expected gcd degree 1, got %d", g.Degree())
	}
	if g.Eval(big.NewInt(5)).Sign() != 0 {
		t.Errorf("gcd should vanish at the shared root 5")
	}
}

// charPoly builds prod (x - v) for the given values.
func charPoly(f *Field, vals []int64) *Poly {
	p := NewConstPoly(f, big.NewInt(1))
	for _, v := range vals {
		p = p.Mul(MonomialRoot(f, big.NewInt(v)))
	}
	return p
}

func TestInterpolateRationalExact(t *testing.T) {
	f := NewField(NextPrime(big.NewInt(1 << 20)))
	// Client-only {10, 20}; server-only {33, 44}.
	num := charPoly(f, []int64{10, 20})
	den := charPoly(f, []int64{33, 44})

	n := 8
	points := make([]*big.Int, n)
	ratios := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		points[i] = new(big.Int).Sub(f.P, big.NewInt(int64(i)+1))
		r, err := f.Div(num.Eval(points[i]), den.Eval(points[i]))
		if err != nil {
			t.Fatalf("ratio at point %d: %v", i, err)
		}
		ratios[i] = r
	}

	res, err := InterpolateRational(f, points, ratios, 2, 2)
	if err != nil {
		t.Fatalf("InterpolateRational: %v", err)
	}
	for _, want := range []int64{10, 20} {
		if res.Num.Eval(big.NewInt(want)).Sign() != 0 {
			t.Errorf("Numerator should vanish at %d", want)
		}
	}
	for _, want := range []int64{33, 44} {
		if res.Den.Eval(big.NewInt(want)).Sign() != 0 {
			t.Errorf("Denominator should vanish at %d", want)
		}
	}
}

func TestInterpolateRationalUnderdetermined(t *testing.T) {
	// Declared degrees larger than the true difference: free variables
	// zeroed, then the shared factor reduced away.
	f := NewField(NextPrime(big.NewInt(1 << 20)))
	num := charPoly(f, []int64{77})
	den := NewConstPoly(f, big.NewInt(1))

	n := 10
	points := make([]*big.Int, n)
	ratios := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		points[i] = new(big.Int).Sub(f.P, big.NewInt(int64(i)+1))
		r, err := f.Div(num.Eval(points[i]), den.Eval(points[i]))
		if err != nil {
			t.Fatalf("ratio: %v", err)
		}
		ratios[i] = r
	}

	res, err := InterpolateRational(f, points, ratios, 3, 2)
	if err != nil {
		t.Fatalf("InterpolateRational: %v", err)
	}
	if res.Num.Degree() != 1 || res.Den.Degree() != 0 {
		t.Fatalf("Expected reduced degrees (1, 0), got (%d, %d)", res.Num.Degree(), res.Den.Degree())
	}
	if res.Num.Eval(big.NewInt(77)).Sign() != 0 {
		t.Errorf("Numerator should vanish at 77")
	}
}

func TestInterpolateRationalInconsistent(t *testing.T) {
	// Four differences under a bound of one: the verification rows
	// cannot hold.
	f := NewField(NextPrime(big.NewInt(1 << 20)))
	num := charPoly(f, []int64{5, 6})
	den := charPoly(f, []int64{7, 8})

	n := 6
	points := make([]*big.Int, n)
	ratios := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		points[i] = new(big.Int).Sub(f.P, big.NewInt(int64(i)+1))
		r, _ := f.Div(num.Eval(points[i]), den.Eval(points[i]))
		ratios[i] = r
	}

	_, err := InterpolateRational(f, points, ratios, 1, 1)
	if err == nil {
		t.Fatal("Expected inconsistency for an exceeded degree bound")
	}
	if _, ok := err.(ErrInconsistent); !ok {
		t.Errorf("Expected ErrInconsistent, got %T: %v", err, err)
	}
}

func TestRoots(t *testing.T) {
	f := NewField(NextPrime(big.NewInt(1 << 22)))
	want := []int64{3, 17, 101, 999, 40000}
	p := charPoly(f, want)

	roots, err := Roots(f, p)
	if err != nil {
		t.Fatalf("Roots: %v", err)
	}
	if len(roots) != len(want) {
		t.Fatalf("Got %d roots, want %d", len(roots), len(want))
	}
	for i, w := range want {
		if roots[i].Int64() != w {
			t.Errorf("Root %d = %v, want %d (sorted)", i, roots[i], w)
		}
	}
}

func TestRootsRepeated(t *testing.T) {
	f := NewField(NextPrime(big.NewInt(1 << 20)))
	p := MonomialRoot(f, big.NewInt(9)).Mul(MonomialRoot(f, big.NewInt(9)))
	if _, err := Roots(f, p); err == nil {
		t.Error("Expected a failure for a repeated root")
	}
}
