package glm

import (
	"math"

	"github.com/refstab/destat/internal/stat"
)

// TrendParams parameterize the dispersion-vs-mean trend
// alpha(mu) = A0 + A1/mu. A flat trend has A1 == 0.
type TrendParams struct {
	A0 float64
	A1 float64
	// PriorVar is the spread of log dispersions around the trend after
	// removing sampling noise; it sets the shrinkage strength.
	PriorVar float64
	// SamplingVar approximates the variance of a single gene's log
	// dispersion estimate.
	SamplingVar float64
}

// At evaluates the trend at a mean normalized count.
func (t TrendParams) At(mu float64) float64 {
	if mu <= 0 {
		return t.A0
	}
	return t.A0 + t.A1/mu
}

// fitTrend fits alpha = a0 + a1/mu by least squares over genes that
// converged in phase 1, then refits once with gross outliers (ratio to
// the trend above 10 or below 1e-4) removed. means and disps are
// parallel slices. n and p are the sample count and coefficient count,
// used to approximate the per-gene sampling variance.
func fitTrend(means, disps []float64, n, p int, opts FitOptions) TrendParams {
	df := float64(n - p)
	if df < 1 {
		df = 1
	}
	samplingVar := 2 / df

	a0, a1 := trendLS(means, disps, nil)

	// one robustness pass: drop points far off the first fit
	keep := make([]bool, len(means))
	kept := 0
	for i := range means {
		tr := math.Max(a0+a1/math.Max(means[i], 1e-8), opts.MinDisp)
		ratio := disps[i] / tr
		keep[i] = ratio < 10 && ratio > 1e-4
		if keep[i] {
			kept++
		}
	}
	if kept >= 3 && kept < len(means) {
		a0, a1 = trendLS(means, disps, keep)
	}

	if a0 < opts.MinDisp {
		a0 = opts.MinDisp
	}
	if a1 < 0 {
		a1 = 0
	}

	// spread of log residuals around the trend, minus sampling noise
	var resid []float64
	for i := range means {
		tr := math.Max(a0+a1/math.Max(means[i], 1e-8), opts.MinDisp)
		resid = append(resid, math.Log(math.Max(disps[i], opts.MinDisp))-math.Log(tr))
	}
	priorVar := stat.Variance(resid) - samplingVar
	if math.IsNaN(priorVar) || priorVar < 0.25 {
		priorVar = 0.25
	}

	return TrendParams{A0: a0, A1: a1, PriorVar: priorVar, SamplingVar: samplingVar}
}

// trendLS is ordinary least squares of disp on 1/mean, optionally
// restricted to keep[i] points. Falls back to a flat median trend when
// too few usable points remain.
func trendLS(means, disps []float64, keep []bool) (a0, a1 float64) {
	var su, suu, sy, suy float64
	m := 0
	var used []float64
	for i := range means {
		if keep != nil && !keep[i] {
			continue
		}
		if means[i] <= 0 {
			continue
		}
		u := 1 / means[i]
		su += u
		suu += u * u
		sy += disps[i]
		suy += u * disps[i]
		used = append(used, disps[i])
		m++
	}
	if m < 3 {
		if m == 0 {
			return 0.1, 0
		}
		return stat.Median(used), 0
	}

	fm := float64(m)
	det := fm*suu - su*su
	if det <= 1e-12 {
		return stat.Median(used), 0
	}
	a1 = (fm*suy - su*sy) / det
	a0 = (sy - a1*su) / fm
	return a0, a1
}

// shrinkDispersion pulls a raw per-gene estimate toward the trend with a
// precision-weighted geometric mean. The result always lies between the
// raw value and the trend value, except for outliers far above the
// trend, which keep their raw estimate.
func shrinkDispersion(raw, mu float64, t TrendParams, opts FitOptions) (shrunk float64, outlier bool) {
	trend := clamp(t.At(mu), opts.MinDisp, opts.MaxDisp)
	raw = clamp(raw, opts.MinDisp, opts.MaxDisp)

	logRaw := math.Log(raw)
	logTrend := math.Log(trend)

	// dispersion outliers stay at their raw estimate rather than being
	// shrunk through real biological signal
	if logRaw-logTrend > 2*math.Sqrt(t.PriorVar+t.SamplingVar) {
		return raw, true
	}

	w := t.SamplingVar / (t.SamplingVar + t.PriorVar)
	shrunk = math.Exp((1-w)*logRaw + w*logTrend)
	return clamp(shrunk, opts.MinDisp, opts.MaxDisp), false
}
