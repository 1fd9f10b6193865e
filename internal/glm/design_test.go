package glm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refstab/destat/internal/exprmat"
)

// twoByTwoDesign builds a balanced condition x treatment design with
// reps samples per cell.
func twoByTwoDesign(t *testing.T, reps int) *exprmat.SampleDesign {
	t.Helper()

	var samples, cond, treat []string
	i := 0
	for _, c := range []string{"Low", "High"} {
		for _, tr := range []string{"Vehicle", "Inhibitor"} {
			for r := 0; r < reps; r++ {
				samples = append(samples, fmt.Sprintf("s%d", i))
				cond = append(cond, c)
				treat = append(treat, tr)
				i++
			}
		}
	}

	d, err := exprmat.NewSampleDesign(samples,
		[]exprmat.Factor{
			{Name: "condition", Levels: []string{"Low", "High"}, Reference: "Low"},
			{Name: "treatment", Levels: []string{"Vehicle", "Inhibitor"}, Reference: "Vehicle"},
		},
		map[string][]string{"condition": cond, "treatment": treat})
	require.NoError(t, err)
	return d
}

func TestBuildDesign_Columns(t *testing.T) {
	sd := twoByTwoDesign(t, 2)

	d, err := BuildDesign(sd, true)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Intercept",
		"condition_High_vs_Low",
		"treatment_Inhibitor_vs_Vehicle",
		"condition_High_vs_Low.treatment_Inhibitor_vs_Vehicle",
	}, d.Columns)
	assert.Equal(t, 4, d.NCols())
	assert.Len(t, d.X, 8)

	// first sample: Low/Vehicle, last sample: High/Inhibitor
	assert.Equal(t, []float64{1, 0, 0, 0}, d.X[0])
	assert.Equal(t, []float64{1, 1, 1, 1}, d.X[7])

	assert.Equal(t, 3, d.ColumnIndex("condition_High_vs_Low.treatment_Inhibitor_vs_Vehicle"))
	assert.Equal(t, -1, d.ColumnIndex("missing"))
}

func TestBuildDesign_NoInteractions(t *testing.T) {
	sd := twoByTwoDesign(t, 1)
	d, err := BuildDesign(sd, false)
	require.NoError(t, err)
	assert.Equal(t, 3, d.NCols())
}

func TestBuildDesign_RankDeficient(t *testing.T) {
	// condition and batch are perfectly confounded
	d, err := exprmat.NewSampleDesign([]string{"s0", "s1", "s2", "s3"},
		[]exprmat.Factor{
			{Name: "condition", Levels: []string{"Low", "High"}, Reference: "Low"},
			{Name: "batch", Levels: []string{"b1", "b2"}, Reference: "b1"},
		},
		map[string][]string{
			"condition": {"Low", "Low", "High", "High"},
			"batch":     {"b1", "b1", "b2", "b2"},
		})
	require.NoError(t, err)

	_, err = BuildDesign(d, false)
	assert.ErrorContains(t, err, "rank deficient")
}

func TestBuildDesign_MoreCoefficientsThanSamples(t *testing.T) {
	d, err := exprmat.NewSampleDesign([]string{"s0", "s1"},
		[]exprmat.Factor{
			{Name: "condition", Levels: []string{"a", "b"}, Reference: "a"},
			{Name: "treatment", Levels: []string{"x", "y"}, Reference: "x"},
		},
		map[string][]string{
			"condition": {"a", "b"},
			"treatment": {"x", "y"},
		})
	require.NoError(t, err)

	_, err = BuildDesign(d, true)
	assert.Error(t, err)
}
