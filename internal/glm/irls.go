package glm

import (
	"math"
)

// FitOptions bound the per-gene iterative fit.
type FitOptions struct {
	// MaxIter caps IRLS iterations per gene.
	MaxIter int
	// Tol is the relative coefficient-change convergence tolerance.
	Tol float64
	// Ridge is the penalty added to the normal equations when a gene's
	// weighted design is effectively singular.
	Ridge float64
	// MinDisp and MaxDisp clamp dispersion estimates.
	MinDisp float64
	MaxDisp float64
}

// DefaultFitOptions are the fitting parameters used by the pipeline.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		MaxIter: 50,
		Tol:     1e-6,
		Ridge:   1e-4,
		MinDisp: 1e-8,
		MaxDisp: 10,
	}
}

// GLMFit is the per-gene result: coefficient vector, covariance matrix
// and fit diagnostics. Coefficients are on the natural log scale.
type GLMFit struct {
	Coef []float64
	Cov  [][]float64

	// Converged is false when the iteration cap was reached first.
	Converged bool
	// LowConfidence marks fits that needed ridge regularization because
	// the gene's weighted design was effectively rank deficient.
	LowConfidence bool
	// AllZero marks genes with no nonzero count in any sample.
	AllZero bool

	// BaseMean is the mean of size-factor-normalized counts.
	BaseMean float64
	// DispRaw is the per-gene estimate before shrinkage; Dispersion is
	// the final (shrunk) value used for the covariance.
	DispRaw     float64
	Dispersion  float64
	DispOutlier bool
}

// momDispersion is a marginal method-of-moments dispersion estimate on
// size-factor-normalized counts: excess of variance over mean, relative
// to the squared mean. It absorbs condition effects into the variance,
// so it only seeds the initial coefficient fit; the reported per-gene
// estimate comes from residualDispersion.
func momDispersion(norm []float64, opts FitOptions) float64 {
	m := 0.0
	for _, q := range norm {
		m += q
	}
	m /= float64(len(norm))
	if m <= 0 {
		return opts.MinDisp
	}
	v := 0.0
	for _, q := range norm {
		d := q - m
		v += d * d
	}
	v /= float64(len(norm) - 1)

	alpha := (v - m) / (m * m)
	return clamp(alpha, opts.MinDisp, opts.MaxDisp)
}

// residualDispersion estimates the dispersion from squared residuals
// around the fitted means, so variation explained by the design is not
// counted as noise. The residual sum is inflated by n/(n-p) to offset
// the shrinkage from fitting p coefficients.
func residualDispersion(y, mu []float64, p int, opts FitOptions) float64 {
	n := len(y)
	rss, muSum, muSq := 0.0, 0.0, 0.0
	for j := range y {
		d := y[j] - mu[j]
		rss += d * d
		muSum += mu[j]
		muSq += mu[j] * mu[j]
	}
	if muSq <= 0 {
		return opts.MinDisp
	}
	if n > p {
		rss *= float64(n) / float64(n-p)
	}
	return clamp((rss-muSum)/muSq, opts.MinDisp, opts.MaxDisp)
}

// fittedMeans evaluates mu = exp(offset + X b) for one gene.
func fittedMeans(d *DesignMatrix, coef, offset []float64) []float64 {
	mu := make([]float64, len(d.X))
	for j := range d.X {
		eta := offset[j]
		for k, b := range coef {
			eta += d.X[j][k] * b
		}
		mu[j] = math.Exp(clamp(eta, -30, 30))
	}
	return mu
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// fitCoefficients runs IRLS for one gene's negative binomial GLM with a
// log link and log size factor offset. A Poisson-weighted solve seeds the
// coefficients, then negative binomial working weights take over.
// Returns the coefficients, the coefficient covariance, and flags for
// convergence and ridge fallback.
func fitCoefficients(y []float64, d *DesignMatrix, offset []float64, alpha float64, opts FitOptions) (coef []float64, cov [][]float64, converged, lowConf bool) {
	n := len(y)
	p := d.NCols()

	mu := make([]float64, n)
	eta := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, n)

	// Seed from the data itself under Poisson weights.
	for j := 0; j < n; j++ {
		mu[j] = math.Max(y[j]+0.5, 1e-8)
		eta[j] = math.Log(mu[j])
		w[j] = mu[j]
		z[j] = eta[j] - offset[j]
	}
	coef, _, ok := solveWeighted(d, w, z, 0)
	if !ok {
		coef, _, ok = solveWeighted(d, w, z, opts.Ridge)
		lowConf = true
	}
	if !ok {
		// not even the ridge system factorizes; report a null fit
		return make([]float64, p), infCov(p), false, true
	}

	for iter := 0; iter < opts.MaxIter; iter++ {
		for j := 0; j < n; j++ {
			eta[j] = offset[j]
			for k := 0; k < p; k++ {
				eta[j] += d.X[j][k] * coef[k]
			}
			// guard the exponential against runaway steps
			eta[j] = clamp(eta[j], -30, 30)
			mu[j] = math.Exp(eta[j])
			w[j] = mu[j] / (1 + alpha*mu[j])
			z[j] = (eta[j] - offset[j]) + (y[j]-mu[j])/mu[j]
		}

		next, l, ok := solveWeighted(d, w, z, 0)
		if !ok {
			next, l, ok = solveWeighted(d, w, z, opts.Ridge)
			lowConf = true
		}
		if !ok {
			break
		}

		delta := 0.0
		for k := 0; k < p; k++ {
			change := math.Abs(next[k]-coef[k]) / (math.Abs(coef[k]) + 1e-4)
			if change > delta {
				delta = change
			}
		}
		coef = next
		cov = cholInverse(l)

		if delta < opts.Tol {
			converged = true
			break
		}
	}

	if cov == nil {
		// no iteration produced a factor; callers always get a matrix
		cov = infCov(p)
	}
	return coef, cov, converged, lowConf
}

func infCov(p int) [][]float64 {
	cov := make([][]float64, p)
	for i := range cov {
		cov[i] = make([]float64, p)
		cov[i][i] = math.Inf(1)
	}
	return cov
}

// solveWeighted solves the weighted normal equations
// (Xᵗ W X + ridge·I) b = Xᵗ W z and returns the solution together with
// the Cholesky factor of the system matrix.
func solveWeighted(d *DesignMatrix, w, z []float64, ridge float64) (b []float64, l [][]float64, ok bool) {
	p := d.NCols()
	xtwx := make([][]float64, p)
	xtwz := make([]float64, p)
	for a := 0; a < p; a++ {
		xtwx[a] = make([]float64, p)
	}

	for j := range d.X {
		for a := 0; a < p; a++ {
			wa := w[j] * d.X[j][a]
			xtwz[a] += wa * z[j]
			for c := a; c < p; c++ {
				xtwx[a][c] += wa * d.X[j][c]
			}
		}
	}
	for a := 0; a < p; a++ {
		for c := 0; c < a; c++ {
			xtwx[a][c] = xtwx[c][a]
		}
		xtwx[a][a] += ridge
	}

	l, ok = cholesky(xtwx)
	if !ok {
		return nil, nil, false
	}
	return cholSolve(l, xtwz), l, true
}
