// Package pipeline chains the differential expression stages: size
// factor estimation from a reference gene set, negative binomial GLM
// fitting, and contrast extraction. Each stage consumes the previous
// stage's output and returns a new immutable structure.
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/refstab/destat/internal/contrast"
	"github.com/refstab/destat/internal/exprmat"
	"github.com/refstab/destat/internal/glm"
	"github.com/refstab/destat/internal/normalize"
	"github.com/refstab/destat/internal/refgenes"
)

// Options aggregates per-stage parameters.
type Options struct {
	SizeFactors normalize.Options
	Fit         glm.FitOptions
	Test        contrast.Options
	Workers     int
}

// DefaultOptions are the stage defaults.
func DefaultOptions() Options {
	return Options{
		SizeFactors: normalize.DefaultOptions(),
		Fit:         glm.DefaultFitOptions(),
		Test:        contrast.DefaultOptions(),
	}
}

// Run is the output of a completed pipeline run.
type Run struct {
	SizeFactors *normalize.SizeFactors
	Fits        *glm.FitSet
	Table       *contrast.Table
}

// Pipeline runs the full differential expression workflow.
type Pipeline struct {
	opts   Options
	logger *zap.Logger
}

// New creates a pipeline with the given options.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts, logger: zap.NewNop()}
}

// SetLogger sets the logger propagated to every stage.
func (p *Pipeline) SetLogger(l *zap.Logger) { p.logger = l }

// Execute runs size factor estimation, model fitting and contrast
// testing. contrastName must name a design matrix column (a main effect
// or interaction coefficient). Fatal errors (misaligned design, a
// degenerate reference set, a rank-deficient design) abort before any
// output is produced; per-gene failures are flagged in the table.
func (p *Pipeline) Execute(m *exprmat.CountMatrix, sd *exprmat.SampleDesign, refSet *refgenes.ReferenceGeneSet, contrastName string) (*Run, error) {
	if err := sd.AlignWith(m); err != nil {
		return nil, err
	}

	sf, err := normalize.EstimateSizeFactors(m, refSet.Mask(m), p.opts.SizeFactors)
	if err != nil {
		return nil, fmt.Errorf("estimate size factors: %w", err)
	}
	p.logger.Info("size factors estimated",
		zap.Int("ref_genes_used", sf.RefGenesUsed),
		zap.Float64s("factors", sf.Factors))

	fitter := glm.NewFitter(p.opts.Fit, p.opts.Workers)
	fitter.SetLogger(p.logger)
	fits, err := fitter.Fit(m, sd, sf)
	if err != nil {
		return nil, fmt.Errorf("fit models: %w", err)
	}

	c, err := contrast.ByName(fits.Design, contrastName)
	if err != nil {
		return nil, err
	}

	engine := contrast.NewEngine(p.opts.Test)
	engine.SetLogger(p.logger)
	table, err := engine.Run(fits, m.Genes(), c)
	if err != nil {
		return nil, fmt.Errorf("run contrast: %w", err)
	}

	return &Run{SizeFactors: sf, Fits: fits, Table: table}, nil
}

// Stats extracts the full-length Wald statistic vector from a result
// table, in gene order, for enrichment testing. Untested genes
// contribute their best-effort statistic (zero for all-zero genes).
func Stats(t *contrast.Table) []float64 {
	stats := make([]float64, len(t.Results))
	for i := range t.Results {
		stats[i] = t.Results[i].Stat
	}
	return stats
}
