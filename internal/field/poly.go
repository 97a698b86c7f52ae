package field

import (
	"math/big"
)

// Poly is a dense polynomial over a Field. Coefficient i multiplies x^i.
// The zero polynomial has no coefficients.
type Poly struct {
	f *Field
	c []*big.Int
}

// NewPoly builds a polynomial from low-to-high coefficients, reducing each
// into the field and trimming leading zeros.
func NewPoly(f *Field, coeffs ...*big.Int) *Poly {
	p := &Poly{f: f, c: make([]*big.Int, len(coeffs))}
	for i, v := range coeffs {
		p.c[i] = f.Reduce(v)
	}
	p.trim()
	return p
}

// NewConstPoly builds the constant polynomial v.
func NewConstPoly(f *Field, v *big.Int) *Poly {
	return NewPoly(f, v)
}

// MonomialRoot builds (x - r).
func MonomialRoot(f *Field, r *big.Int) *Poly {
	return NewPoly(f, f.Neg(r), big.NewInt(1))
}

func (p *Poly) trim() {
	for len(p.c) > 0 && p.c[len(p.c)-1].Sign() == 0 {
		p.c = p.c[:len(p.c)-1]
	}
}

// Degree returns the degree, or -1 for the zero polynomial.
func (p *Poly) Degree() int {
	return len(p.c) - 1
}

// IsZero reports whether p is the zero polynomial.
func (p *Poly) IsZero() bool {
	return len(p.c) == 0
}

// Coeff returns coefficient i (zero beyond the degree).
func (p *Poly) Coeff(i int) *big.Int {
	if i < 0 || i >= len(p.c) {
		return new(big.Int)
	}
	return p.c[i]
}

// Lead returns the leading coefficient, or zero for the zero polynomial.
func (p *Poly) Lead() *big.Int {
	return p.Coeff(p.Degree())
}

func (p *Poly) clone() *Poly {
	q := &Poly{f: p.f, c: make([]*big.Int, len(p.c))}
	for i, v := range p.c {
		q.c[i] = new(big.Int).Set(v)
	}
	return q
}

// Add returns p + q.
func (p *Poly) Add(q *Poly) *Poly {
	n := len(p.c)
	if len(q.c) > n {
		n = len(q.c)
	}
	out := &Poly{f: p.f, c: make([]*big.Int, n)}
	for i := 0; i < n; i++ {
		out.c[i] = p.f.Add(p.Coeff(i), q.Coeff(i))
	}
	out.trim()
	return out
}

// Sub returns p - q.
func (p *Poly) Sub(q *Poly) *Poly {
	n := len(p.c)
	if len(q.c) > n {
		n = len(q.c)
	}
	out := &Poly{f: p.f, c: make([]*big.Int, n)}
	for i := 0; i < n; i++ {
		out.c[i] = p.f.Sub(p.Coeff(i), q.Coeff(i))
	}
	out.trim()
	return out
}

// Mul returns p * q by schoolbook multiplication; the degrees involved here
// are bounded by the difference bound, never by the set size.
func (p *Poly) Mul(q *Poly) *Poly {
	if p.IsZero() || q.IsZero() {
		return &Poly{f: p.f}
	}
	out := &Poly{f: p.f, c: make([]*big.Int, len(p.c)+len(q.c)-1)}
	for i := range out.c {
		out.c[i] = new(big.Int)
	}
	for i, a := range p.c {
		if a.Sign() == 0 {
			continue
		}
		for j, b := range q.c {
			t := new(big.Int).Mul(a, b)
			out.c[i+j] = p.f.Reduce(out.c[i+j].Add(out.c[i+j], t))
		}
	}
	out.trim()
	return out
}

// ScalarMul returns s * p.
func (p *Poly) ScalarMul(s *big.Int) *Poly {
	out := &Poly{f: p.f, c: make([]*big.Int, len(p.c))}
	for i, v := range p.c {
		out.c[i] = p.f.Mul(v, s)
	}
	out.trim()
	return out
}

// Eval evaluates p at x by Horner's rule.
func (p *Poly) Eval(x *big.Int) *big.Int {
	acc := new(big.Int)
	for i := len(p.c) - 1; i >= 0; i-- {
		acc.Mul(acc, x)
		acc.Add(acc, p.c[i])
		acc = p.f.Reduce(acc)
	}
	return acc
}

// Monic returns p scaled to leading coefficient 1. The zero polynomial is
// returned unchanged.
func (p *Poly) Monic() (*Poly, error) {
	if p.IsZero() {
		return p, nil
	}
	inv, err := p.f.Inv(p.Lead())
	if err != nil {
		return nil, err
	}
	return p.ScalarMul(inv), nil
}

// DivMod returns quotient and remainder of p / d.
func (p *Poly) DivMod(d *Poly) (quo, rem *Poly, err error) {
	if d.IsZero() {
		return nil, nil, errDivZeroPoly
	}
	rem = p.clone()
	quo = &Poly{f: p.f}
	if rem.Degree() < d.Degree() {
		return quo, rem, nil
	}
	quo.c = make([]*big.Int, rem.Degree()-d.Degree()+1)
	for i := range quo.c {
		quo.c[i] = new(big.Int)
	}
	leadInv, err := p.f.Inv(d.Lead())
	if err != nil {
		return nil, nil, err
	}
	for rem.Degree() >= d.Degree() && !rem.IsZero() {
		shift := rem.Degree() - d.Degree()
		factor := p.f.Mul(rem.Lead(), leadInv)
		quo.c[shift] = factor
		// rem -= factor * x^shift * d
		for i := 0; i <= d.Degree(); i++ {
			t := p.f.Mul(factor, d.Coeff(i))
			rem.c[i+shift] = p.f.Sub(rem.c[i+shift], t)
		}
		rem.trim()
	}
	quo.trim()
	return quo, rem, nil
}

// Mod returns p mod d.
func (p *Poly) Mod(d *Poly) (*Poly, error) {
	_, rem, err := p.DivMod(d)
	return rem, err
}

// GCD returns the monic greatest common divisor of p and q.
func (p *Poly) GCD(q *Poly) (*Poly, error) {
	a, b := p.clone(), q.clone()
	for !b.IsZero() {
		r, err := a.Mod(b)
		if err != nil {
			return nil, err
		}
		a, b = b, r
	}
	return a.Monic()
}

// PowMod returns base^e mod m by square-and-multiply over the bits of e.
func PowMod(base *Poly, e *big.Int, m *Poly) (*Poly, error) {
	result := NewConstPoly(base.f, big.NewInt(1))
	cur, err := base.Mod(m)
	if err != nil {
		return nil, err
	}
	for i := 0; i < e.BitLen(); i++ {
		if e.Bit(i) == 1 {
			result, err = result.Mul(cur).Mod(m)
			if err != nil {
				return nil, err
			}
		}
		cur, err = cur.Mul(cur).Mod(m)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

var errDivZeroPoly = polyError("division by zero polynomial")

type polyError string

func (e polyError) Error() string { return string(e) }
