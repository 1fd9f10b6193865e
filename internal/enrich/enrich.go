// Package enrich tests whether gene sets are shifted toward one end of a
// ranked statistic list, inflating the null variance for intra-set
// correlation so co-regulated sets are not overstated.
package enrich

import (
	"fmt"
	"math"

	"github.com/refstab/destat/internal/stat"
)

// Direction of a gene set's shift relative to the background ranking.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Options controls enrichment testing.
type Options struct {
	// UseRanks selects rank-based scoring; false compares the raw
	// statistic values instead.
	UseRanks bool
	// InterGeneCor is the assumed average pairwise correlation among
	// set members. Ignored when EstimateCor is set.
	InterGeneCor float64
	// EstimateCor estimates the inter-gene correlation from the
	// statistic vector itself instead of using InterGeneCor.
	EstimateCor bool
}

// DefaultOptions are the enrichment parameters used by the pipeline.
func DefaultOptions() Options {
	return Options{UseRanks: true, InterGeneCor: 0.01}
}

// Result is one gene set's enrichment outcome.
type Result struct {
	Name      string
	Stat      float64
	PValue    float64
	Direction string
}

// Test scores one gene set, given the full-length statistic vector and
// the set's member positions within it.
func Test(name string, stats []float64, set []int, opts Options) (Result, error) {
	n := len(stats)
	m := len(set)
	if m == 0 {
		return Result{}, fmt.Errorf("gene set %q is empty", name)
	}
	if m >= n {
		return Result{}, fmt.Errorf("gene set %q covers all %d genes", name, n)
	}
	member := make([]bool, n)
	for _, i := range set {
		if i < 0 || i >= n {
			return Result{}, fmt.Errorf("gene set %q: index %d out of range [0,%d)", name, i, n)
		}
		if member[i] {
			return Result{}, fmt.Errorf("gene set %q: duplicate index %d", name, i)
		}
		member[i] = true
	}

	values := stats
	if opts.UseRanks {
		values = stat.Ranks(stats)
	}

	var setSum float64
	for _, i := range set {
		setSum += values[i]
	}
	setMean := setSum / float64(m)

	total := 0.0
	for _, v := range values {
		total += v
	}
	compMean := (total - setSum) / float64(n-m)

	// null variance of the set mean, inflated by the variance inflation
	// factor 1 + (m-1)·rho for correlated members
	rho := opts.InterGeneCor
	if opts.EstimateCor {
		rho = estimateCor(values, set)
	}
	vif := 1 + float64(m-1)*rho
	if vif < 1 {
		vif = 1
	}

	popVar := populationVariance(values)
	// variance of (set mean - complement mean) under random membership
	varDiff := popVar * vif * (1/float64(m) + 1/float64(n-m))
	if varDiff <= 0 {
		return Result{}, fmt.Errorf("gene set %q: degenerate statistic vector", name)
	}

	z := (setMean - compMean) / math.Sqrt(varDiff)
	dir := DirectionUp
	if z < 0 {
		dir = DirectionDown
	}

	return Result{
		Name:      name,
		Stat:      z,
		PValue:    stat.PValueTwoSided(z),
		Direction: dir,
	}, nil
}

// TestAll scores every gene set against the same statistic vector.
// Per-set failures (empty or unresolvable sets) are returned as errors
// alongside the successful results.
func TestAll(stats []float64, sets map[string][]int, opts Options) ([]Result, []error) {
	var results []Result
	var errs []error
	for name, set := range sets {
		r, err := Test(name, stats, set, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, r)
	}
	return results, errs
}

// populationVariance is the variance with denominator n, matching the
// sampling-without-replacement null the rank-sum statistic assumes.
func populationVariance(xs []float64) float64 {
	m := stat.Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs))
}

// estimateCor produces a moment estimate of the average pairwise
// correlation among set members from the single observed statistic
// vector: excess variance of the standardized set mean beyond the
// independent-sampling null is attributed to correlation. The estimate
// is clamped to [0, 0.2] so a strong mean shift cannot masquerade as
// extreme correlation.
func estimateCor(values []float64, set []int) float64 {
	m := len(set)
	if m < 2 {
		return 0
	}

	mu := stat.Mean(values)
	sd := math.Sqrt(populationVariance(values))
	if sd == 0 {
		return 0
	}

	var zbar float64
	for _, i := range set {
		zbar += (values[i] - mu) / sd
	}
	zbar /= float64(m)

	rho := (float64(m)*zbar*zbar - 1) / float64(m-1)
	if rho < 0 {
		return 0
	}
	if rho > 0.2 {
		return 0.2
	}
	return rho
}
