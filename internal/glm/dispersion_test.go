package glm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitTrend_RecoversParameters(t *testing.T) {
	// dispersions lying exactly on alpha = 0.05 + 5/mu
	var means, disps []float64
	for mu := 10.0; mu <= 1000; mu += 10 {
		means = append(means, mu)
		disps = append(disps, 0.05+5/mu)
	}

	trend := fitTrend(means, disps, 16, 4, DefaultFitOptions())
	assert.InDelta(t, 0.05, trend.A0, 1e-6)
	assert.InDelta(t, 5.0, trend.A1, 1e-4)
	assert.InDelta(t, 0.05+5/100.0, trend.At(100), 1e-6)

	// residual spread is zero, so the prior variance sits at its floor
	assert.InDelta(t, 0.25, trend.PriorVar, 1e-9)
}

func TestFitTrend_FewPointsFallsBackToMedian(t *testing.T) {
	trend := fitTrend([]float64{100, 200}, []float64{0.2, 0.4}, 16, 4, DefaultFitOptions())
	assert.InDelta(t, 0.3, trend.A0, 1e-9)
	assert.Equal(t, 0.0, trend.A1)
}

func TestShrinkDispersion_BetweenRawAndTrend(t *testing.T) {
	opts := DefaultFitOptions()
	trend := TrendParams{A0: 0.1, A1: 0, PriorVar: 0.25, SamplingVar: 0.25}

	for _, raw := range []float64{0.02, 0.05, 0.1, 0.15, 0.3} {
		shrunk, outlier := shrinkDispersion(raw, 100, trend, opts)
		require.False(t, outlier, "raw %v", raw)

		lo := math.Min(raw, trend.At(100))
		hi := math.Max(raw, trend.At(100))
		assert.GreaterOrEqual(t, shrunk, lo-1e-12, "raw %v", raw)
		assert.LessOrEqual(t, shrunk, hi+1e-12, "raw %v", raw)
	}
}

func TestShrinkDispersion_OutlierKeepsRaw(t *testing.T) {
	opts := DefaultFitOptions()
	trend := TrendParams{A0: 0.01, A1: 0, PriorVar: 0.25, SamplingVar: 0.1}

	// far above the trend: more than 2 sd in log space
	shrunk, outlier := shrinkDispersion(5, 100, trend, opts)
	assert.True(t, outlier)
	assert.Equal(t, 5.0, shrunk)
}

func TestMomDispersion(t *testing.T) {
	opts := DefaultFitOptions()

	// mean 100, variance 2100 -> alpha = (2100-100)/10000 = 0.2
	// constructed as {mean-d, mean+d} pairs with matching variance
	norm := []float64{60, 140, 70, 130, 100, 100}
	m := 100.0
	var v float64
	for _, q := range norm {
		v += (q - m) * (q - m)
	}
	v /= float64(len(norm) - 1)
	want := (v - m) / (m * m)

	assert.InDelta(t, want, momDispersion(norm, opts), 1e-12)

	// underdispersed data clamps to the floor
	assert.Equal(t, opts.MinDisp, momDispersion([]float64{100, 100, 100, 100}, opts))
}

func TestResidualDispersion(t *testing.T) {
	opts := DefaultFitOptions()

	// residuals +/-10 around fitted mean 100 with one coefficient:
	// alpha = (4/3 * 400 - 400) / 40000
	y := []float64{90, 110, 90, 110}
	mu := []float64{100, 100, 100, 100}
	want := (4.0/3.0*400 - 400) / 40000
	assert.InDelta(t, want, residualDispersion(y, mu, 1, opts), 1e-12)

	// a perfect fit clamps to the floor
	assert.Equal(t, opts.MinDisp, residualDispersion(mu, mu, 1, opts))
}
