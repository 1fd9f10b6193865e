// Package refgenes selects expression-stable reference genes from an
// independent two-condition dataset. The selected set restricts size
// factor estimation downstream.
package refgenes

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/refstab/destat/internal/exprmat"
	"github.com/refstab/destat/internal/stat"
)

// Measurement is one gene's paired expression under the two reference
// conditions.
type Measurement struct {
	ID string
	A  float64
	B  float64
}

// Options controls reference gene selection.
type Options struct {
	// MinTotalExpr discards genes whose summed expression across the two
	// conditions falls below it.
	MinTotalExpr float64
	// ExcludePattern removes technical controls (e.g. spike-ins) by id.
	// Empty means no exclusion.
	ExcludePattern string
	// Quantile keeps the most stable fraction of eligible genes, e.g.
	// 0.02 for the lowest 2% by coefficient of variation.
	Quantile float64
}

// DefaultOptions are the selection parameters used by the pipeline.
func DefaultOptions() Options {
	return Options{
		MinTotalExpr:   10,
		ExcludePattern: `^ERCC-`,
		Quantile:       0.02,
	}
}

// RefGene is a selected reference gene with its stability score.
type RefGene struct {
	ID string
	// CV is the coefficient of variation across the two conditions,
	// in percent. Lower is more stable.
	CV float64
}

// ReferenceGeneSet is the ordered output of selection: genes sorted by
// ascending CV. It is read-only once produced.
type ReferenceGeneSet struct {
	Genes []RefGene
}

// IDs returns the gene identifiers in selection order.
func (s *ReferenceGeneSet) IDs() []string {
	ids := make([]string, len(s.Genes))
	for i, g := range s.Genes {
		ids[i] = g.ID
	}
	return ids
}

// Mask returns a per-row membership mask for the given count matrix.
func (s *ReferenceGeneSet) Mask(m *exprmat.CountMatrix) []bool {
	mask := make([]bool, m.NGenes())
	for _, g := range s.Genes {
		if i := m.GeneIndex(g.ID); i >= 0 {
			mask[i] = true
		}
	}
	return mask
}

// Select ranks genes by expression stability and keeps the most stable
// quantile. Genes below the joint-expression threshold, genes with mean
// zero, and identifiers matching the exclusion pattern are dropped first;
// duplicate identifiers resolve to their lowest-CV occurrence.
func Select(measurements []Measurement, opts Options) (*ReferenceGeneSet, error) {
	if opts.Quantile <= 0 || opts.Quantile > 1 {
		return nil, fmt.Errorf("retention quantile %v out of (0, 1]", opts.Quantile)
	}

	var exclude *regexp.Regexp
	if opts.ExcludePattern != "" {
		var err error
		exclude, err = regexp.Compile(opts.ExcludePattern)
		if err != nil {
			return nil, fmt.Errorf("exclusion pattern: %w", err)
		}
	}

	// Lowest CV per identifier among genes passing the expression filter.
	best := make(map[string]float64)
	for _, m := range measurements {
		if m.A+m.B < opts.MinTotalExpr {
			continue
		}
		mean := (m.A + m.B) / 2
		if mean == 0 {
			// CV undefined
			continue
		}
		if exclude != nil && exclude.MatchString(m.ID) {
			continue
		}
		cv := stat.StdDev([]float64{m.A, m.B}) / mean * 100
		if prev, seen := best[m.ID]; !seen || cv < prev {
			best[m.ID] = cv
		}
	}

	if len(best) == 0 {
		return &ReferenceGeneSet{}, nil
	}

	genes := make([]RefGene, 0, len(best))
	for id, cv := range best {
		genes = append(genes, RefGene{ID: id, CV: cv})
	}
	sort.Slice(genes, func(a, b int) bool {
		if genes[a].CV != genes[b].CV {
			return genes[a].CV < genes[b].CV
		}
		return genes[a].ID < genes[b].ID
	})

	cvs := make([]float64, len(genes))
	for i, g := range genes {
		cvs[i] = g.CV
	}
	cut := stat.Quantile(cvs, opts.Quantile)

	// Keep genes up to and including the cut value itself; ties above
	// the cut are dropped.
	kept := genes[:0]
	for _, g := range genes {
		if g.CV <= cut {
			kept = append(kept, g)
		}
	}

	return &ReferenceGeneSet{Genes: kept}, nil
}
