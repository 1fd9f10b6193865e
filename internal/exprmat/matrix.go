// Package exprmat provides the expression count matrix and sample design
// inputs consumed by the differential expression pipeline.
package exprmat

import (
	"fmt"
)

// CountMatrix holds raw read counts for genes (rows) by samples (columns).
// It is immutable once constructed; all accessors return copies or
// read-only views.
type CountMatrix struct {
	genes   []string
	samples []string
	counts  [][]float64
	geneIdx map[string]int
}

// NewCountMatrix constructs a count matrix from gene identifiers, sample
// identifiers and a row-major count table. Counts must be non-negative
// integers; gene and sample identifiers must be unique.
func NewCountMatrix(genes, samples []string, counts [][]float64) (*CountMatrix, error) {
	if len(counts) != len(genes) {
		return nil, fmt.Errorf("count matrix has %d rows but %d gene ids", len(counts), len(genes))
	}

	geneIdx := make(map[string]int, len(genes))
	for i, g := range genes {
		if _, dup := geneIdx[g]; dup {
			return nil, fmt.Errorf("duplicate gene id %q", g)
		}
		geneIdx[g] = i
	}

	seen := make(map[string]bool, len(samples))
	for _, s := range samples {
		if seen[s] {
			return nil, fmt.Errorf("duplicate sample id %q", s)
		}
		seen[s] = true
	}

	for i, row := range counts {
		if len(row) != len(samples) {
			return nil, fmt.Errorf("gene %q: %d counts for %d samples", genes[i], len(row), len(samples))
		}
		for j, c := range row {
			if c < 0 || c != float64(int64(c)) {
				return nil, fmt.Errorf("gene %q sample %q: count %v is not a non-negative integer", genes[i], samples[j], c)
			}
		}
	}

	return &CountMatrix{
		genes:   genes,
		samples: samples,
		counts:  counts,
		geneIdx: geneIdx,
	}, nil
}

// NGenes returns the number of genes (rows).
func (m *CountMatrix) NGenes() int { return len(m.genes) }

// NSamples returns the number of samples (columns).
func (m *CountMatrix) NSamples() int { return len(m.samples) }

// Genes returns the gene identifiers in row order.
func (m *CountMatrix) Genes() []string { return m.genes }

// Samples returns the sample identifiers in column order.
func (m *CountMatrix) Samples() []string { return m.samples }

// Row returns the counts for the gene at row i. The returned slice is
// shared; callers must not modify it.
func (m *CountMatrix) Row(i int) []float64 { return m.counts[i] }

// GeneIndex returns the row index of a gene id, or -1 if absent.
func (m *CountMatrix) GeneIndex(id string) int {
	i, ok := m.geneIdx[id]
	if !ok {
		return -1
	}
	return i
}

// GeneSet is a named collection of gene identifiers used for enrichment
// testing.
type GeneSet struct {
	Name  string
	Genes []string
}

// Resolve maps the set's gene identifiers to row indices of the matrix.
// Unresolvable identifiers are skipped; the number skipped is returned.
func (s *GeneSet) Resolve(m *CountMatrix) (idx []int, missing int) {
	for _, g := range s.Genes {
		i := m.GeneIndex(g)
		if i < 0 {
			missing++
			continue
		}
		idx = append(idx, i)
	}
	return idx, missing
}
