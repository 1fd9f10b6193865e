package contrast

import (
	"go.uber.org/zap"

	"github.com/refstab/destat/internal/stat"
)

// filterDecision records the independent filtering outcome applied to a
// result table.
type filterDecision struct {
	applied   bool
	quantile  float64
	threshold float64
}

// candidateQuantiles are the base-mean quantile cutoffs considered by
// independent filtering.
func candidateQuantiles() []float64 {
	qs := make([]float64, 0, 20)
	for q := 0.0; q < 0.951; q += 0.05 {
		qs = append(qs, q)
	}
	return qs
}

// applyFiltering chooses a base-mean cutoff that maximizes BH rejections
// at alpha, preferring the lowest cutoff whose rejection count is within
// one standard deviation of the maximum. Genes below the cutoff lose
// their p-value (not tested); the BH adjustment then runs across exactly
// the surviving set. When no cutoff improves on testing everything, all
// testable genes are adjusted unfiltered.
func (e *Engine) applyFiltering(results []DEResult) filterDecision {
	// base means of genes that are testable at all
	var baseMeans []float64
	for i := range results {
		if results[i].PValue != nil {
			baseMeans = append(baseMeans, results[i].BaseMean)
		}
	}
	if len(baseMeans) == 0 {
		return filterDecision{}
	}

	qs := candidateQuantiles()
	if e.opts.DisableFiltering {
		qs = qs[:1]
	}

	rejections := make([]float64, len(qs))
	thresholds := make([]float64, len(qs))
	for qi, q := range qs {
		thresholds[qi] = stat.Quantile(baseMeans, q)
		ps := collectPValues(results, thresholds[qi])
		rejections[qi] = float64(countRejections(ps, e.opts.Alpha))
	}

	best := 0
	for qi := range rejections {
		if rejections[qi] > rejections[best] {
			best = qi
		}
	}

	chosen := 0
	if best > 0 && rejections[best] > rejections[0] {
		sd := stat.StdDev(rejections)
		target := rejections[best] - sd
		for qi := range rejections {
			if rejections[qi] >= target {
				chosen = qi
				break
			}
		}
	} else if best == 0 || rejections[best] <= rejections[0] {
		// no cutoff beats the unfiltered baseline; test everything
		e.logger.Debug("independent filtering: no improving cutoff, testing all genes",
			zap.Float64("baseline_rejections", rejections[0]))
	}

	threshold := thresholds[chosen]

	// null out genes below the cutoff, then adjust the survivors
	for i := range results {
		if results[i].PValue != nil && results[i].BaseMean < threshold {
			results[i].PValue = nil
		}
	}
	adjustResults(results)

	return filterDecision{
		applied:   chosen > 0,
		quantile:  qs[chosen],
		threshold: threshold,
	}
}

// collectPValues gathers raw p-values of testable genes at or above the
// base-mean threshold.
func collectPValues(results []DEResult, threshold float64) []float64 {
	var ps []float64
	for i := range results {
		if results[i].PValue != nil && results[i].BaseMean >= threshold {
			ps = append(ps, *results[i].PValue)
		}
	}
	return ps
}

// countRejections counts BH rejections at level alpha.
func countRejections(ps []float64, alpha float64) int {
	adj := AdjustBH(ps)
	n := 0
	for _, p := range adj {
		if p <= alpha {
			n++
		}
	}
	return n
}

// adjustResults BH-adjusts the p-values of all rows that still carry one
// and writes the adjusted values back.
func adjustResults(results []DEResult) {
	var idx []int
	var ps []float64
	for i := range results {
		if results[i].PValue != nil {
			idx = append(idx, i)
			ps = append(ps, *results[i].PValue)
		}
	}
	adj := AdjustBH(ps)
	for k, i := range idx {
		v := adj[k]
		results[i].PAdj = &v
	}
}
