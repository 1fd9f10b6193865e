// Package contrast extracts Wald tests for named coefficients or linear
// contrasts from fitted GLMs, with independent filtering and multiple
// testing correction.
package contrast

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/refstab/destat/internal/glm"
	"github.com/refstab/destat/internal/stat"
)

// Contrast is a named linear combination over the design matrix columns.
type Contrast struct {
	Name   string
	Coeffs []float64
}

// ByName builds a unit contrast extracting a single named coefficient.
func ByName(d *glm.DesignMatrix, column string) (Contrast, error) {
	i := d.ColumnIndex(column)
	if i < 0 {
		return Contrast{}, fmt.Errorf("no coefficient %q in design (have %v)", column, d.Columns)
	}
	coeffs := make([]float64, d.NCols())
	coeffs[i] = 1
	return Contrast{Name: column, Coeffs: coeffs}, nil
}

// Options controls testing and filtering.
type Options struct {
	// Alpha is the significance level the filter optimizes rejections at.
	Alpha float64
	// DisableFiltering turns adaptive independent filtering off.
	DisableFiltering bool
}

// DefaultOptions are the testing parameters used by the pipeline.
func DefaultOptions() Options {
	return Options{Alpha: 0.05}
}

// DEResult is one gene's differential expression test outcome. PValue
// and PAdj are nil for genes that were filtered out or whose fit did not
// converge.
type DEResult struct {
	GeneID         string
	BaseMean       float64
	Log2FoldChange float64
	StdErr         float64
	Stat           float64
	PValue         *float64
	PAdj           *float64
	Converged      bool
	LowConfidence  bool
}

// Table is the full-length result table: one row per input gene plus the
// filtering decision that produced it.
type Table struct {
	Contrast string
	Results  []DEResult
	// Filtered reports whether independent filtering removed any genes;
	// FilterQuantile and FilterThreshold describe the chosen cutoff.
	Filtered        bool
	FilterQuantile  float64
	FilterThreshold float64
}

// Engine runs contrasts against a fitted gene set.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// NewEngine creates a contrast engine.
func NewEngine(opts Options) *Engine {
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		opts.Alpha = 0.05
	}
	return &Engine{opts: opts, logger: zap.NewNop()}
}

// SetLogger sets the logger for filtering diagnostics.
func (e *Engine) SetLogger(l *zap.Logger) { e.logger = l }

// Run computes Wald statistics for the contrast over every gene, applies
// adaptive independent filtering, and BH-adjusts p-values across exactly
// the tested set. The result always has one row per gene; untestable
// rows carry nil p-values.
func (e *Engine) Run(fs *glm.FitSet, genes []string, c Contrast) (*Table, error) {
	if len(genes) != len(fs.Fits) {
		return nil, fmt.Errorf("%d gene ids for %d fits", len(genes), len(fs.Fits))
	}
	if len(c.Coeffs) != fs.Design.NCols() {
		return nil, fmt.Errorf("contrast %q has %d coefficients, design has %d columns",
			c.Name, len(c.Coeffs), fs.Design.NCols())
	}

	ln2 := math.Ln2
	results := make([]DEResult, len(genes))

	for i, fit := range fs.Fits {
		r := DEResult{
			GeneID:        genes[i],
			BaseMean:      fit.BaseMean,
			Converged:     fit.Converged,
			LowConfidence: fit.LowConfidence,
		}

		if !fit.AllZero {
			est := 0.0
			for k, ck := range c.Coeffs {
				est += ck * fit.Coef[k]
			}
			variance := quadForm(c.Coeffs, fit.Cov)
			se := math.Sqrt(variance)

			r.Log2FoldChange = est / ln2
			r.StdErr = se / ln2

			if se > 0 && !math.IsInf(se, 1) && !math.IsNaN(se) {
				r.Stat = est / se
				if fit.Converged {
					p := stat.PValueTwoSided(r.Stat)
					r.PValue = &p
				}
			}
		}

		results[i] = r
	}

	dec := e.applyFiltering(results)

	tested := 0
	for i := range results {
		if results[i].PValue != nil {
			tested++
		}
	}

	table := &Table{
		Contrast:        c.Name,
		Results:         results,
		Filtered:        dec.applied,
		FilterQuantile:  dec.quantile,
		FilterThreshold: dec.threshold,
	}

	e.logger.Info("contrast tested",
		zap.String("contrast", c.Name),
		zap.Int("genes", len(genes)),
		zap.Int("tested", tested),
		zap.Bool("filtered", table.Filtered),
		zap.Float64("filter_threshold", table.FilterThreshold))

	return table, nil
}

// quadForm computes cᵗ M c.
func quadForm(c []float64, m [][]float64) float64 {
	s := 0.0
	for a := range c {
		if c[a] == 0 {
			continue
		}
		for b := range c {
			if c[b] == 0 {
				continue
			}
			s += c[a] * m[a][b] * c[b]
		}
	}
	return s
}
