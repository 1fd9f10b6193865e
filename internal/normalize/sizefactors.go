// Package normalize computes per-sample size factors from a reference
// gene set using the median-of-ratios method.
package normalize

import (
	"fmt"
	"math"

	"github.com/refstab/destat/internal/exprmat"
	"github.com/refstab/destat/internal/stat"
)

// MinViableRefGenes is the smallest reference set size size factor
// estimation will accept. Medians over fewer genes are too unstable to
// normalize against.
const MinViableRefGenes = 10

// DegenerateReferenceSetError reports that too few reference genes
// survived filtering for size factor estimation to proceed.
type DegenerateReferenceSetError struct {
	Eligible int
	Floor    int
}

func (e *DegenerateReferenceSetError) Error() string {
	return fmt.Sprintf("only %d eligible reference genes after filtering, need at least %d", e.Eligible, e.Floor)
}

// Options controls size factor estimation.
type Options struct {
	// MinTotalCount drops reference genes whose counts sum below it
	// across all samples.
	MinTotalCount float64
	// MinRefGenes is the viable floor; zero means MinViableRefGenes.
	MinRefGenes int
}

// DefaultOptions are the estimation parameters used by the pipeline.
func DefaultOptions() Options {
	return Options{MinTotalCount: 3}
}

// SizeFactors holds one positive factor per sample, normalized so their
// geometric mean is 1.
type SizeFactors struct {
	Factors []float64
	// RefGenesUsed is the number of reference genes the medians were
	// computed over.
	RefGenesUsed int
}

// EstimateSizeFactors computes per-sample size factors restricted to the
// reference genes marked in mask. Each eligible gene's geometric mean is
// taken over its nonzero counts; a sample's raw factor is the median over
// eligible genes of count/geomean. Factors are rescaled so their own
// geometric mean is 1.
func EstimateSizeFactors(m *exprmat.CountMatrix, mask []bool, opts Options) (*SizeFactors, error) {
	if len(mask) != m.NGenes() {
		return nil, fmt.Errorf("mask length %d does not match %d genes", len(mask), m.NGenes())
	}
	floor := opts.MinRefGenes
	if floor <= 0 {
		floor = MinViableRefGenes
	}

	type refGene struct {
		row     int
		geomean float64
	}
	var eligible []refGene

	for i := 0; i < m.NGenes(); i++ {
		if !mask[i] {
			continue
		}
		row := m.Row(i)
		total := 0.0
		for _, c := range row {
			total += c
		}
		if total < opts.MinTotalCount {
			continue
		}

		// Geometric mean over nonzero counts only.
		logSum, nz := 0.0, 0
		for _, c := range row {
			if c > 0 {
				logSum += math.Log(c)
				nz++
			}
		}
		if nz == 0 {
			continue
		}
		eligible = append(eligible, refGene{row: i, geomean: math.Exp(logSum / float64(nz))})
	}

	if len(eligible) < floor {
		return nil, &DegenerateReferenceSetError{Eligible: len(eligible), Floor: floor}
	}

	n := m.NSamples()
	factors := make([]float64, n)
	ratios := make([]float64, 0, len(eligible))
	for j := 0; j < n; j++ {
		ratios = ratios[:0]
		for _, g := range eligible {
			ratios = append(ratios, m.Row(g.row)[j]/g.geomean)
		}
		factors[j] = stat.Median(ratios)
		if factors[j] <= 0 || math.IsNaN(factors[j]) {
			return nil, fmt.Errorf("sample %q: non-positive size factor %v", m.Samples()[j], factors[j])
		}
	}

	// Rescale so the factors' own geometric mean is 1.
	gm := stat.GeometricMean(factors)
	for j := range factors {
		factors[j] /= gm
	}

	return &SizeFactors{Factors: factors, RefGenesUsed: len(eligible)}, nil
}

// NormalizedCounts returns counts for row i divided by the size factors.
func (sf *SizeFactors) NormalizedCounts(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, c := range row {
		out[j] = c / sf.Factors[j]
	}
	return out
}
