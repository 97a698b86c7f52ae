// Package field implements arithmetic over a prime field whose modulus is
// chosen at session setup, plus the polynomial machinery the
// characteristic-polynomial engines need: rational-function interpolation
// from evaluation pairs and root enumeration.
package field

import (
	"fmt"
	"math/big"
)

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
	two  = big.NewInt(2)
)

// Field is a prime field F_p. The modulus is fixed for the lifetime of the
// value and shared by every element produced through it.
type Field struct {
	P *big.Int
}

// NewField wraps an existing prime modulus. The primality of p is the
// caller's responsibility.
func NewField(p *big.Int) *Field {
	return &Field{P: new(big.Int).Set(p)}
}

// FieldForBits returns the field used for b-bit elements with headroom for
// extra sample points: the least prime strictly greater than 2^b + extra + 2.
// Both peers derive the same prime from the same (b, extra) pair; the
// modulus handshake guards against disagreement.
func FieldForBits(bits uint, extra int) *Field {
	min := new(big.Int).Lsh(one, bits)
	min.Add(min, big.NewInt(int64(extra)+2))
	return &Field{P: NextPrime(min)}
}

// NextPrime returns the least prime strictly greater than n. The scan is
// deterministic, so independent peers agree on the result.
func NextPrime(n *big.Int) *big.Int {
	c := new(big.Int).Add(n, one)
	if c.Bit(0) == 0 {
		if c.Cmp(two) == 0 {
			return c
		}
		c.Add(c, one)
	}
	for !c.ProbablyPrime(20) {
		c.Add(c, two)
	}
	return c
}

// Reduce maps an arbitrary integer into [0, p).
func (f *Field) Reduce(x *big.Int) *big.Int {
	r := new(big.Int).Mod(x, f.P)
	if r.Sign() < 0 {
		r.Add(r, f.P)
	}
	return r
}

func (f *Field) Add(a, b *big.Int) *big.Int {
	return f.Reduce(new(big.Int).Add(a, b))
}

func (f *Field) Sub(a, b *big.Int) *big.Int {
	return f.Reduce(new(big.Int).Sub(a, b))
}

func (f *Field) Mul(a, b *big.Int) *big.Int {
	return f.Reduce(new(big.Int).Mul(a, b))
}

func (f *Field) Neg(a *big.Int) *big.Int {
	return f.Reduce(new(big.Int).Neg(a))
}

// Inv returns a^-1 mod p via the extended Euclidean algorithm. Inverting
// zero is a programming error.
func (f *Field) Inv(a *big.Int) (*big.Int, error) {
	r := f.Reduce(a)
	if r.Sign() == 0 {
		return nil, fmt.Errorf("field: inverse of zero mod %v", f.P)
	}
	inv := new(big.Int).ModInverse(r, f.P)
	if inv == nil {
		return nil, fmt.Errorf("field: %v not invertible mod %v", a, f.P)
	}
	return inv, nil
}

// Div returns a/b mod p.
func (f *Field) Div(a, b *big.Int) (*big.Int, error) {
	inv, err := f.Inv(b)
	if err != nil {
		return nil, err
	}
	return f.Mul(a, inv), nil
}

// Exp returns a^e mod p for a non-negative exponent.
func (f *Field) Exp(a, e *big.Int) *big.Int {
	return new(big.Int).Exp(f.Reduce(a), e, f.P)
}
