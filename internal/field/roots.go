package field

import (
	"math/big"
	"sort"
)

// ErrRepeatedRoots is reported when a characteristic polynomial does not
// split into distinct linear factors over the field; for the reconciliation
// engines that always means the declared bound was exceeded or a hash
// collision occurred, and the caller treats it as overflow.
type ErrRepeatedRoots struct{}

func (ErrRepeatedRoots) Error() string { return "roots: polynomial does not split into distinct roots" }

// maxSplitAttempts bounds the deterministic retry of the equal-degree
// splitting shifts.
const maxSplitAttempts = 128

// Roots enumerates all roots of p over the field, requiring p to split into
// distinct linear factors. The result is sorted ascending.
//
// Degree one is solved directly; larger degrees go through gcd(p, z^q - z)
// to certify squarefree splitting, then equal-degree splitting with
// deterministically retried shifts, with quadratic factors solved directly.
func Roots(f *Field, p *Poly) ([]*big.Int, error) {
	p, err := p.Monic()
	if err != nil {
		return nil, err
	}
	switch p.Degree() {
	case -1, 0:
		return nil, nil
	case 1:
		return []*big.Int{f.Neg(p.Coeff(0))}, nil
	}

	// z^q mod p certifies the linear-factor product: p splits into
	// distinct roots iff gcd(p, z^q - z) == p.
	z := NewPoly(f, new(big.Int), big.NewInt(1))
	zq, err := PowMod(z, f.P, p)
	if err != nil {
		return nil, err
	}
	lin, err := p.GCD(zq.Sub(z))
	if err != nil {
		return nil, err
	}
	if lin.Degree() != p.Degree() {
		return nil, ErrRepeatedRoots{}
	}

	roots := make([]*big.Int, 0, p.Degree())
	if err := splitRoots(f, p, 0, &roots); err != nil {
		return nil, err
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Cmp(roots[j]) < 0 })
	return roots, nil
}

// splitRoots recursively splits a product of distinct linear factors using
// (z + a)^((q-1)/2) - 1 with incrementing shift a. The shift sequence is
// deterministic so two runs over the same polynomial agree.
func splitRoots(f *Field, p *Poly, shift int64, out *[]*big.Int) error {
	switch p.Degree() {
	case -1, 0:
		return nil
	case 1:
		*out = append(*out, f.Neg(p.Coeff(0)))
		return nil
	case 2:
		return quadraticRoots(f, p, out)
	}

	half := new(big.Int).Rsh(new(big.Int).Sub(f.P, one), 1)
	for a := shift; a < shift+maxSplitAttempts; a++ {
		base := NewPoly(f, big.NewInt(a), big.NewInt(1)) // z + a
		w, err := PowMod(base, half, p)
		if err != nil {
			return err
		}
		w = w.Sub(NewConstPoly(f, one))
		g, err := p.GCD(w)
		if err != nil {
			return err
		}
		if g.Degree() > 0 && g.Degree() < p.Degree() {
			rest, _, err := p.DivMod(g)
			if err != nil {
				return err
			}
			if err := splitRoots(f, g, a+1, out); err != nil {
				return err
			}
			return splitRoots(f, rest, a+1, out)
		}
	}
	return ErrRepeatedRoots{}
}

// quadraticRoots solves z^2 + bz + c directly via the Tonelli-Shanks square
// root of the discriminant.
func quadraticRoots(f *Field, p *Poly, out *[]*big.Int) error {
	b := p.Coeff(1)
	c := p.Coeff(0)
	// disc = b^2 - 4c
	disc := f.Sub(f.Mul(b, b), f.Mul(big.NewInt(4), c))
	s := new(big.Int).ModSqrt(disc, f.P)
	if s == nil {
		return ErrRepeatedRoots{}
	}
	invTwo, err := f.Inv(two)
	if err != nil {
		return err
	}
	r1 := f.Mul(f.Sub(s, b), invTwo)
	r2 := f.Mul(f.Sub(f.Neg(s), b), invTwo)
	if r1.Cmp(r2) == 0 {
		return ErrRepeatedRoots{}
	}
	*out = append(*out, r1, r2)
	return nil
}
