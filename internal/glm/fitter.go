package glm

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/refstab/destat/internal/exprmat"
	"github.com/refstab/destat/internal/normalize"
)

// Fitter fits per-gene negative binomial GLMs in two phases: an initial
// per-gene pass, a cross-gene dispersion trend fit, and a refit with
// shrunk dispersions.
type Fitter struct {
	opts    FitOptions
	workers int
	logger  *zap.Logger
}

// NewFitter creates a fitter with the given options. workers 0 means one
// worker per CPU.
func NewFitter(opts FitOptions, workers int) *Fitter {
	return &Fitter{
		opts:    opts,
		workers: workers,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for progress and warning messages.
func (f *Fitter) SetLogger(l *zap.Logger) {
	f.logger = l
}

// FitSet is the output of fitting: one GLMFit per gene in matrix row
// order, the shared design matrix, and the dispersion trend parameters.
type FitSet struct {
	Design *DesignMatrix
	Fits   []*GLMFit
	Trend  TrendParams
}

// Fit validates alignment, builds the design matrix and runs the
// two-phase fit over every gene of the count matrix. A gene that fails
// to converge or has a degenerate design is flagged, never fatal: the
// returned FitSet always has one entry per input gene.
func (f *Fitter) Fit(m *exprmat.CountMatrix, sd *exprmat.SampleDesign, sf *normalize.SizeFactors) (*FitSet, error) {
	if err := sd.AlignWith(m); err != nil {
		return nil, err
	}
	if len(sf.Factors) != m.NSamples() {
		return nil, fmt.Errorf("%d size factors for %d samples", len(sf.Factors), m.NSamples())
	}

	design, err := BuildDesign(sd, true)
	if err != nil {
		return nil, fmt.Errorf("build design: %w", err)
	}

	offset := make([]float64, m.NSamples())
	for j, s := range sf.Factors {
		offset[j] = math.Log(s)
	}

	// Phase 1: initial coefficients and design-aware residual dispersion.
	fits := parallelFit(m.NGenes(), f.workers, func(gene int) *GLMFit {
		return f.fitGene(m.Row(gene), design, offset, sf, 0, TrendParams{}, false)
	})

	// Barrier: the trend needs every phase-1 outcome before it can fit.
	var means, disps []float64
	nonConverged := 0
	for _, fit := range fits {
		if fit.AllZero {
			continue
		}
		if !fit.Converged {
			nonConverged++
			continue
		}
		means = append(means, fit.BaseMean)
		disps = append(disps, fit.DispRaw)
	}
	if len(means) == 0 {
		return nil, fmt.Errorf("no gene converged in the initial fit pass")
	}
	trend := fitTrend(means, disps, m.NSamples(), design.NCols(), f.opts)

	f.logger.Info("dispersion trend fitted",
		zap.Float64("a0", trend.A0),
		zap.Float64("a1", trend.A1),
		zap.Int("genes_used", len(means)),
		zap.Int("non_converged", nonConverged))

	// Phase 2: shrink dispersions toward the trend and refit.
	fits = parallelFit(m.NGenes(), f.workers, func(gene int) *GLMFit {
		return f.fitGene(m.Row(gene), design, offset, sf, fits[gene].DispRaw, trend, true)
	})

	return &FitSet{Design: design, Fits: fits, Trend: trend}, nil
}

// fitGene fits a single gene. In phase 1 (shrink false) the dispersion
// comes from residual moments around a seed fit; in phase 2 the raw
// estimate is shrunk toward the trend before the refit.
func (f *Fitter) fitGene(y []float64, design *DesignMatrix, offset []float64, sf *normalize.SizeFactors, rawDisp float64, trend TrendParams, shrink bool) *GLMFit {
	norm := sf.NormalizedCounts(y)
	baseMean := 0.0
	for _, q := range norm {
		baseMean += q
	}
	baseMean /= float64(len(norm))

	fit := &GLMFit{BaseMean: baseMean}

	if baseMean == 0 {
		fit.AllZero = true
		fit.Coef = make([]float64, design.NCols())
		fit.Cov = make([][]float64, design.NCols())
		for i := range fit.Cov {
			fit.Cov[i] = make([]float64, design.NCols())
		}
		fit.Dispersion = f.opts.MinDisp
		fit.DispRaw = f.opts.MinDisp
		return fit
	}

	if !shrink {
		// The marginal moment estimate only seeds the coefficient fit;
		// the dispersion kept for the trend is re-estimated around the
		// fitted means so design effects never inflate it.
		seed := momDispersion(norm, f.opts)
		coef, _, _, _ := fitCoefficients(y, design, offset, seed, f.opts)
		mu := fittedMeans(design, coef, offset)
		rawDisp = residualDispersion(y, mu, design.NCols(), f.opts)
	}
	fit.DispRaw = rawDisp

	alpha := rawDisp
	if shrink {
		alpha, fit.DispOutlier = shrinkDispersion(rawDisp, baseMean, trend, f.opts)
	}
	fit.Dispersion = alpha

	fit.Coef, fit.Cov, fit.Converged, fit.LowConfidence = fitCoefficients(y, design, offset, alpha, f.opts)
	return fit
}
