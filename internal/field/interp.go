package field

import (
	"math/big"
)

// InterpResult carries the reduced rational function recovered from the
// ratio samples: Num/Den with gcd(Num, Den) = 1, both monic.
type InterpResult struct {
	Num *Poly
	Den *Poly
}

// ErrNeedMorePoints is reported when fewer sample points are supplied than
// the degNum+degDen unknowns of the system.
type ErrNeedMorePoints struct{}

func (ErrNeedMorePoints) Error() string { return "interpolation: need more points" }

// ErrInconsistent is reported when the redundant evaluation equations cannot
// be satisfied: the declared degree bound is too small for the actual
// difference.
type ErrInconsistent struct{}

func (ErrInconsistent) Error() string { return "interpolation: degree bound exceeded" }

// InterpolateRational recovers monic f (degree degNum) and g (degree degDen)
// with f(x_i) = r_i * g(x_i) for every sample pair, by solving the linear
// system over the field. Rows beyond the first degNum+degDen unknowns are
// consistency checks; any violation means the declared bound was too small.
//
// When the true difference is smaller than the declared degrees the system
// is underdetermined: free variables are zeroed, which yields a valid
// solution pair sharing a common factor, and the pair is reduced by its gcd
// before being returned.
func InterpolateRational(f *Field, points, ratios []*big.Int, degNum, degDen int) (*InterpResult, error) {
	if len(points) != len(ratios) {
		return nil, polyError("interpolation: points/ratios length mismatch")
	}
	unknowns := degNum + degDen
	if len(points) < unknowns {
		return nil, ErrNeedMorePoints{}
	}

	// Row i: sum_{j<degNum} fj*x^j - r_i * sum_{j<degDen} gj*x^j
	//        = r_i*x^degDen - x^degNum
	rows := len(points)
	mat := make([][]*big.Int, rows)
	rhs := make([]*big.Int, rows)
	for i := 0; i < rows; i++ {
		x := f.Reduce(points[i])
		r := f.Reduce(ratios[i])
		row := make([]*big.Int, unknowns)
		xp := big.NewInt(1)
		for j := 0; j < degNum; j++ {
			row[j] = new(big.Int).Set(xp)
			xp = f.Mul(xp, x)
		}
		xNum := xp // x^degNum
		xp = big.NewInt(1)
		for j := 0; j < degDen; j++ {
			row[degNum+j] = f.Neg(f.Mul(r, xp))
			xp = f.Mul(xp, x)
		}
		xDen := xp // x^degDen
		mat[i] = row
		rhs[i] = f.Sub(f.Mul(r, xDen), xNum)
	}

	sol, err := solveMod(f, mat, rhs, unknowns)
	if err != nil {
		return nil, err
	}

	numCoeffs := make([]*big.Int, degNum+1)
	for j := 0; j < degNum; j++ {
		numCoeffs[j] = sol[j]
	}
	numCoeffs[degNum] = big.NewInt(1)
	denCoeffs := make([]*big.Int, degDen+1)
	for j := 0; j < degDen; j++ {
		denCoeffs[j] = sol[degNum+j]
	}
	denCoeffs[degDen] = big.NewInt(1)

	num := NewPoly(f, numCoeffs...)
	den := NewPoly(f, denCoeffs...)

	// Reduce by the shared factor introduced by zeroed free variables.
	g, err := num.GCD(den)
	if err != nil {
		return nil, err
	}
	if g.Degree() > 0 {
		num, _, err = num.DivMod(g)
		if err != nil {
			return nil, err
		}
		den, _, err = den.DivMod(g)
		if err != nil {
			return nil, err
		}
	}

	// Verify every sample, the redundant ones included, against the
	// reduced pair.
	for i := 0; i < rows; i++ {
		x := f.Reduce(points[i])
		lhs := num.Eval(x)
		rhsv := f.Mul(f.Reduce(ratios[i]), den.Eval(x))
		if lhs.Cmp(rhsv) != 0 {
			return nil, ErrInconsistent{}
		}
	}

	return &InterpResult{Num: num, Den: den}, nil
}

// solveMod runs Gaussian elimination with partial pivoting over F_p on an
// (possibly overdetermined) system. Free variables are set to zero;
// inconsistent rows surface as ErrInconsistent.
func solveMod(f *Field, mat [][]*big.Int, rhs []*big.Int, unknowns int) ([]*big.Int, error) {
	rows := len(mat)
	pivotCol := make([]int, 0, unknowns) // column of each pivot row, in order
	r := 0
	for col := 0; col < unknowns && r < rows; col++ {
		// find pivot
		pivot := -1
		for i := r; i < rows; i++ {
			if mat[i][col].Sign() != 0 {
				pivot = i
				break
			}
		}
		if pivot < 0 {
			continue
		}
		mat[r], mat[pivot] = mat[pivot], mat[r]
		rhs[r], rhs[pivot] = rhs[pivot], rhs[r]

		inv, err := f.Inv(mat[r][col])
		if err != nil {
			return nil, err
		}
		for j := col; j < unknowns; j++ {
			mat[r][j] = f.Mul(mat[r][j], inv)
		}
		rhs[r] = f.Mul(rhs[r], inv)

		for i := 0; i < rows; i++ {
			if i == r || mat[i][col].Sign() == 0 {
				continue
			}
			factor := new(big.Int).Set(mat[i][col])
			for j := col; j < unknowns; j++ {
				mat[i][j] = f.Sub(mat[i][j], f.Mul(factor, mat[r][j]))
			}
			rhs[i] = f.Sub(rhs[i], f.Mul(factor, rhs[r]))
		}
		pivotCol = append(pivotCol, col)
		r++
	}

	// Rows below the rank must have zero RHS or the system has no solution.
	for i := r; i < rows; i++ {
		if rhs[i].Sign() != 0 {
			return nil, ErrInconsistent{}
		}
	}

	sol := make([]*big.Int, unknowns)
	for j := range sol {
		sol[j] = new(big.Int)
	}
	for i, col := range pivotCol {
		sol[col] = rhs[i]
	}
	return sol, nil
}
