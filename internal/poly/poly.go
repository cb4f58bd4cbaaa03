// Package poly provides real polynomial evaluation, least-squares fitting via
// normal equations and bracketed root finding shared by the calibration code.
//
// Coefficients are always in ascending power order:
// c[0] + c[1]*x + c[2]*x^2 + ...
package poly

import (
	"errors"
	"math"
)

// ErrSingular is returned when the normal-equations matrix has no unique
// solution (for example when all abscissae coincide).
var ErrSingular = errors.New("poly: singular system")

// pivotEpsilon is the smallest relative pivot accepted during elimination.
const pivotEpsilon = 1e-12

// Eval evaluates the polynomial at x by Horner's method.
func Eval(coeff []float64, x float64) float64 {
	v := 0.0
	for i := len(coeff) - 1; i >= 0; i-- {
		v = v*x + coeff[i]
	}

	return v
}

// SolveGaussJordan reduces the augmented matrix m (n rows, n+1 columns) to
// reduced row echelon form in place and returns the solution column.
// Partial pivoting is used; a pivot smaller than pivotEpsilon relative to the
// largest matrix entry is reported as ErrSingular.
func SolveGaussJordan(m [][]float64) ([]float64, error) {
	n := len(m)
	if n == 0 {
		return nil, ErrSingular
	}

	scale := 0.0
	for _, row := range m {
		if len(row) != n+1 {
			return nil, ErrSingular
		}

		for _, v := range row[:n] {
			scale = math.Max(scale, math.Abs(v))
		}
	}

	if scale == 0 {
		return nil, ErrSingular
	}

	for col := range n {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}

		if math.Abs(m[pivot][col]) <= pivotEpsilon*scale {
			return nil, ErrSingular
		}

		m[col], m[pivot] = m[pivot], m[col]

		div := m[col][col]
		for j := col; j <= n; j++ {
			m[col][j] /= div
		}

		for r := range n {
			if r == col || m[r][col] == 0 {
				continue
			}

			f := m[r][col]
			for j := col; j <= n; j++ {
				m[r][j] -= f * m[col][j]
			}
		}
	}

	out := make([]float64, n)
	for i := range n {
		out[i] = m[i][n]
	}

	return out, nil
}

// Fit returns least-squares coefficients of the given degree for the samples
// (x[i], y[i]). The normal equations are assembled from power sums of a
// centred and scaled copy of x and solved by Gauss-Jordan elimination; the
// result is expanded back into the original x basis.
func Fit(x, y []float64, degree int) ([]float64, error) {
	if degree < 0 || len(x) != len(y) || len(x) <= degree {
		return nil, ErrSingular
	}

	center, spread := affine(x)
	terms := degree + 1

	// sums[k] = Σ u^k, rhs[k] = Σ u^k * y
	sums := make([]float64, 2*terms-1)
	rhs := make([]float64, terms)

	for i := range x {
		u := (x[i] - center) / spread
		p := 1.0

		for k := range sums {
			sums[k] += p
			if k < terms {
				rhs[k] += p * y[i]
			}

			p *= u
		}
	}

	m := make([][]float64, terms)
	for r := range terms {
		m[r] = make([]float64, terms+1)
		for c := range terms {
			m[r][c] = sums[r+c]
		}

		m[r][terms] = rhs[r]
	}

	a, err := SolveGaussJordan(m)
	if err != nil {
		return nil, err
	}

	return expand(a, center, spread), nil
}

// affine returns the centre and half-range used to normalise x.
func affine(x []float64) (float64, float64) {
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	spread := (hi - lo) / 2
	if spread == 0 {
		spread = 1
	}

	return (hi + lo) / 2, spread
}

// expand converts coefficients of p(u), u = (x-c)/s, into coefficients of x.
func expand(a []float64, c, s float64) []float64 {
	out := make([]float64, len(a))

	for k, ak := range a {
		coef := ak / math.Pow(s, float64(k))
		for j := 0; j <= k; j++ {
			out[j] += coef * binomial(k, j) * math.Pow(-c, float64(k-j))
		}
	}

	return out
}

func binomial(n, k int) float64 {
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}

	return r
}

// Bisect finds a root of f in [lo, hi] by bisection. It requires f(lo) and
// f(hi) to differ in sign (or one of them to be zero) and stops once
// |f(mid)| < tol or the bracket half-width drops below tol, or after maxIter
// halvings. The second return value is false when no sign change exists.
func Bisect(f func(float64) float64, lo, hi, tol float64, maxIter int) (float64, bool) {
	if lo > hi {
		lo, hi = hi, lo
	}

	flo := f(lo)
	fhi := f(hi)

	switch {
	case math.IsNaN(flo) || math.IsNaN(fhi):
		return 0, false
	case flo == 0:
		return lo, true
	case fhi == 0:
		return hi, true
	case math.Signbit(flo) == math.Signbit(fhi):
		return 0, false
	}

	mid := lo + (hi-lo)/2
	for range maxIter {
		mid = lo + (hi-lo)/2
		fm := f(mid)

		if math.Abs(fm) < tol || (hi-lo)/2 < tol {
			return mid, true
		}

		if math.Signbit(fm) == math.Signbit(flo) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}

	return mid, true
}
