package glm

import "math"

// cholesky returns the lower triangular factor L of a symmetric positive
// definite matrix a (a = L Lᵗ). ok is false when a is not positive
// definite to within a small pivot tolerance.
func cholesky(a [][]float64) (l [][]float64, ok bool) {
	p := len(a)
	l = make([][]float64, p)
	for i := range l {
		l[i] = make([]float64, p)
	}

	const pivotTol = 1e-10

	for j := 0; j < p; j++ {
		d := a[j][j]
		for k := 0; k < j; k++ {
			d -= l[j][k] * l[j][k]
		}
		if d < pivotTol {
			return nil, false
		}
		l[j][j] = math.Sqrt(d)
		for i := j + 1; i < p; i++ {
			s := a[i][j]
			for k := 0; k < j; k++ {
				s -= l[i][k] * l[j][k]
			}
			l[i][j] = s / l[j][j]
		}
	}
	return l, true
}

// cholSolve solves (L Lᵗ) x = b given the Cholesky factor L.
func cholSolve(l [][]float64, b []float64) []float64 {
	p := len(b)

	// forward: L y = b
	y := make([]float64, p)
	for i := 0; i < p; i++ {
		s := b[i]
		for k := 0; k < i; k++ {
			s -= l[i][k] * y[k]
		}
		y[i] = s / l[i][i]
	}

	// backward: Lᵗ x = y
	x := make([]float64, p)
	for i := p - 1; i >= 0; i-- {
		s := y[i]
		for k := i + 1; k < p; k++ {
			s -= l[k][i] * x[k]
		}
		x[i] = s / l[i][i]
	}
	return x
}

// cholInverse returns the inverse of the matrix whose Cholesky factor is
// L, by solving against unit vectors.
func cholInverse(l [][]float64) [][]float64 {
	p := len(l)
	inv := make([][]float64, p)
	e := make([]float64, p)
	cols := make([][]float64, p)
	for j := 0; j < p; j++ {
		for i := range e {
			e[i] = 0
		}
		e[j] = 1
		cols[j] = cholSolve(l, e)
	}
	for i := 0; i < p; i++ {
		inv[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			inv[i][j] = cols[j][i]
		}
	}
	return inv
}
