package glm

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refstab/destat/internal/exprmat"
	"github.com/refstab/destat/internal/normalize"
)

// cellCounts builds a count row matching twoByTwoDesign's sample order:
// reps repeats of each cell mean, in Low/Vehicle, Low/Inhibitor,
// High/Vehicle, High/Inhibitor order.
func cellCounts(reps int, lv, li, hv, hi float64) []float64 {
	var row []float64
	for _, mu := range []float64{lv, li, hv, hi} {
		for r := 0; r < reps; r++ {
			row = append(row, mu)
		}
	}
	return row
}

// exactMatrix builds genes whose counts equal their cell means exactly,
// all sharing condition fold 2, treatment fold 1.5 and interaction
// fold 2 on top of a per-gene baseline.
func exactMatrix(t *testing.T, nGenes, reps int) *exprmat.CountMatrix {
	t.Helper()

	genes := make([]string, nGenes)
	counts := make([][]float64, nGenes)
	for i := range genes {
		genes[i] = fmt.Sprintf("g%d", i)
		base := float64(20 * (i + 1))
		counts[i] = cellCounts(reps, base, base*1.5, base*2, base*6)
	}

	samples := make([]string, 4*reps)
	for j := range samples {
		samples[j] = fmt.Sprintf("s%d", j)
	}
	m, err := exprmat.NewCountMatrix(genes, samples, counts)
	require.NoError(t, err)
	return m
}

func unitSizeFactors(n int) *normalize.SizeFactors {
	f := make([]float64, n)
	for i := range f {
		f[i] = 1
	}
	return &normalize.SizeFactors{Factors: f, RefGenesUsed: 10}
}

func TestFit_RecoversCoefficients(t *testing.T) {
	reps := 4
	m := exactMatrix(t, 10, reps)
	sd := twoByTwoDesign(t, reps)

	fitter := NewFitter(DefaultFitOptions(), 2)
	fs, err := fitter.Fit(m, sd, unitSizeFactors(m.NSamples()))
	require.NoError(t, err)
	require.Len(t, fs.Fits, 10)

	for i, fit := range fs.Fits {
		require.True(t, fit.Converged, "gene %d", i)
		assert.False(t, fit.AllZero)

		base := float64(20 * (i + 1))
		// saturated 2x2 fit reproduces the cell means exactly
		assert.InDelta(t, math.Log(base), fit.Coef[0], 1e-4, "gene %d intercept", i)
		assert.InDelta(t, math.Log(2), fit.Coef[1], 1e-4, "gene %d condition", i)
		assert.InDelta(t, math.Log(1.5), fit.Coef[2], 1e-4, "gene %d treatment", i)
		assert.InDelta(t, math.Log(2), fit.Coef[3], 1e-4, "gene %d interaction", i)

		// shrunk dispersion honors the raw/trend interval unless the
		// gene is a flagged outlier
		if !fit.DispOutlier {
			lo := math.Min(fit.DispRaw, fs.Trend.At(fit.BaseMean))
			hi := math.Max(fit.DispRaw, fs.Trend.At(fit.BaseMean))
			assert.GreaterOrEqual(t, fit.Dispersion, lo-1e-9)
			assert.LessOrEqual(t, fit.Dispersion, hi+1e-9)
		}
	}
}

func TestFit_DispersionExcludesDesignEffects(t *testing.T) {
	reps := 4
	m := exactMatrix(t, 6, reps)
	sd := twoByTwoDesign(t, reps)

	fitter := NewFitter(DefaultFitOptions(), 2)
	fs, err := fitter.Fit(m, sd, unitSizeFactors(m.NSamples()))
	require.NoError(t, err)

	sf := unitSizeFactors(m.NSamples())
	for i, fit := range fs.Fits {
		// the six-fold spread across cells dominates the marginal
		// moment estimate, yet it is model signal, not noise
		marginal := momDispersion(sf.NormalizedCounts(m.Row(i)), DefaultFitOptions())
		assert.Greater(t, marginal, 0.1, "gene %d marginal", i)
		assert.Less(t, fit.DispRaw, 1e-6, "gene %d residual", i)
	}
}

func TestFitCoefficients_SingularDesignWithoutRidge(t *testing.T) {
	// duplicate columns and Ridge 0 defeat both factorization attempts
	d := &DesignMatrix{
		Columns: []string{"intercept", "dup"},
		X:       [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}},
	}
	opts := DefaultFitOptions()
	opts.Ridge = 0

	y := []float64{5, 7, 6, 8}
	coef, cov, converged, lowConf := fitCoefficients(y, d, make([]float64, 4), 0.1, opts)
	assert.False(t, converged)
	assert.True(t, lowConf)
	require.Len(t, coef, 2)
	require.Len(t, cov, 2)
	assert.True(t, math.IsInf(cov[0][0], 1))
}

func TestFit_ReferenceLevelFlipNegatesMainEffect(t *testing.T) {
	reps := 4
	m := exactMatrix(t, 6, reps)
	sd := twoByTwoDesign(t, reps)

	fitter := NewFitter(DefaultFitOptions(), 0)
	fs, err := fitter.Fit(m, sd, unitSizeFactors(m.NSamples()))
	require.NoError(t, err)

	flippedSD, err := sd.WithReference("condition", "High")
	require.NoError(t, err)
	flipped, err := fitter.Fit(m, flippedSD, unitSizeFactors(m.NSamples()))
	require.NoError(t, err)

	ci := fs.Design.ColumnIndex("condition_High_vs_Low")
	fi := flipped.Design.ColumnIndex("condition_Low_vs_High")
	require.GreaterOrEqual(t, ci, 0)
	require.GreaterOrEqual(t, fi, 0)

	ii := fs.Design.ColumnIndex("condition_High_vs_Low.treatment_Inhibitor_vs_Vehicle")
	fii := flipped.Design.ColumnIndex("condition_Low_vs_High.treatment_Inhibitor_vs_Vehicle")
	require.GreaterOrEqual(t, ii, 0)
	require.GreaterOrEqual(t, fii, 0)

	for g := range fs.Fits {
		assert.InDelta(t, -fs.Fits[g].Coef[ci], flipped.Fits[g].Coef[fi], 1e-3, "gene %d", g)
		// interaction magnitude is preserved under the flip
		assert.InDelta(t, math.Abs(fs.Fits[g].Coef[ii]), math.Abs(flipped.Fits[g].Coef[fii]), 1e-3, "gene %d", g)
	}
}

func TestFit_AllZeroGene(t *testing.T) {
	reps := 2
	m := exactMatrix(t, 5, reps)
	sd := twoByTwoDesign(t, reps)

	genes := append(append([]string{}, m.Genes()...), "dead")
	counts := make([][]float64, 0, 6)
	for i := 0; i < 5; i++ {
		counts = append(counts, m.Row(i))
	}
	counts = append(counts, make([]float64, m.NSamples()))
	m2, err := exprmat.NewCountMatrix(genes, m.Samples(), counts)
	require.NoError(t, err)

	fitter := NewFitter(DefaultFitOptions(), 1)
	fs, err := fitter.Fit(m2, sd, unitSizeFactors(m2.NSamples()))
	require.NoError(t, err)

	dead := fs.Fits[5]
	assert.True(t, dead.AllZero)
	assert.Equal(t, 0.0, dead.BaseMean)
	assert.Equal(t, make([]float64, 4), dead.Coef)
}

func TestFit_EmptyDesignCellIsLowConfidence(t *testing.T) {
	reps := 4
	m := exactMatrix(t, 8, reps)
	sd := twoByTwoDesign(t, reps)

	// gene 0: no reads at all in the High/Inhibitor cell
	genes := m.Genes()
	counts := make([][]float64, m.NGenes())
	for i := range counts {
		counts[i] = append([]float64{}, m.Row(i)...)
	}
	counts[0] = cellCounts(reps, 100, 150, 200, 0)
	m2, err := exprmat.NewCountMatrix(genes, m.Samples(), counts)
	require.NoError(t, err)

	fitter := NewFitter(DefaultFitOptions(), 1)
	fs, err := fitter.Fit(m2, sd, unitSizeFactors(m2.NSamples()))
	require.NoError(t, err)

	// the batch is not aborted and the degenerate gene is flagged
	assert.True(t, fs.Fits[0].LowConfidence)
	for i := 1; i < 8; i++ {
		assert.False(t, fs.Fits[i].LowConfidence, "gene %d", i)
		assert.True(t, fs.Fits[i].Converged, "gene %d", i)
	}
}

func TestFit_NoConvergence(t *testing.T) {
	reps := 2
	m := exactMatrix(t, 3, reps)
	sd := twoByTwoDesign(t, reps)

	opts := DefaultFitOptions()
	opts.MaxIter = 1
	opts.Tol = 1e-15

	fitter := NewFitter(opts, 1)
	_, err := fitter.Fit(m, sd, unitSizeFactors(m.NSamples()))
	assert.ErrorContains(t, err, "no gene converged")
}

func TestFit_AlignmentChecked(t *testing.T) {
	reps := 2
	m := exactMatrix(t, 3, reps)

	var samples, cond, treat []string
	for j := m.NSamples() - 1; j >= 0; j-- {
		samples = append(samples, fmt.Sprintf("s%d", j))
		cond = append(cond, "Low")
		treat = append(treat, "Vehicle")
	}
	cond[0], treat[1] = "High", "Inhibitor"
	sd, err := exprmat.NewSampleDesign(samples,
		[]exprmat.Factor{
			{Name: "condition", Levels: []string{"Low", "High"}, Reference: "Low"},
			{Name: "treatment", Levels: []string{"Vehicle", "Inhibitor"}, Reference: "Vehicle"},
		},
		map[string][]string{"condition": cond, "treatment": treat})
	require.NoError(t, err)

	fitter := NewFitter(DefaultFitOptions(), 1)
	_, err = fitter.Fit(m, sd, unitSizeFactors(m.NSamples()))
	var alignErr *exprmat.DataAlignmentError
	assert.ErrorAs(t, err, &alignErr)
}

func TestParallelFit_DeterministicAssembly(t *testing.T) {
	fits := parallelFit(500, 8, func(gene int) *GLMFit {
		return &GLMFit{BaseMean: float64(gene)}
	})
	require.Len(t, fits, 500)
	for i, f := range fits {
		assert.Equal(t, float64(i), f.BaseMean, "slot %d", i)
	}
}

func TestParallelFit_SingleWorkerAndEmpty(t *testing.T) {
	fits := parallelFit(10, 1, func(gene int) *GLMFit {
		return &GLMFit{BaseMean: float64(gene)}
	})
	require.Len(t, fits, 10)

	none := parallelFit(0, 4, func(gene int) *GLMFit { return nil })
	assert.Empty(t, none)
}
