package exprmat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCountMatrix(t *testing.T) {
	input := "gene_id\ts1\ts2\ts3\n" +
		"g1\t10\t20\t30\n" +
		"g2\t0\t0\t1\n"

	m, err := ParseCountMatrix(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, m.Samples())
	assert.Equal(t, []string{"g1", "g2"}, m.Genes())
	assert.Equal(t, []float64{10, 20, 30}, m.Row(0))
}

func TestParseCountMatrix_CSV(t *testing.T) {
	input := "gene_id,s1,s2\ng1,1,2\n"
	m, err := ParseCountMatrix(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, m.Row(0))
}

func TestParseCountMatrix_Errors(t *testing.T) {
	_, err := ParseCountMatrix(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty")

	_, err = ParseCountMatrix(strings.NewReader("gene_id\ts1\ng1\t1\t2\n"))
	assert.ErrorContains(t, err, "fields")

	_, err = ParseCountMatrix(strings.NewReader("gene_id\ts1\ng1\tx\n"))
	assert.ErrorContains(t, err, "parse count")

	// negative counts rejected through matrix validation
	_, err = ParseCountMatrix(strings.NewReader("gene_id\ts1\ng1\t-3\n"))
	assert.ErrorContains(t, err, "non-negative integer")
}

func TestParseSampleDesign(t *testing.T) {
	input := "sample\tcondition\ttreatment\n" +
		"s1\tLow\tVehicle\n" +
		"s2\tLow\tInhibitor\n" +
		"s3\tHigh\tVehicle\n" +
		"s4\tHigh\tInhibitor\n"

	refs := map[string]string{"condition": "Low", "treatment": "Vehicle"}
	d, err := ParseSampleDesign(strings.NewReader(input), refs)
	require.NoError(t, err)

	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, d.Samples())
	require.Len(t, d.Factors(), 2)
	assert.Equal(t, "condition", d.Factors()[0].Name)
	assert.Equal(t, "Low", d.Factors()[0].Reference)
	assert.Equal(t, []string{"Low", "High"}, d.Factors()[0].Levels)
	assert.Equal(t, "Inhibitor", d.Level("treatment", 3))
}

func TestParseSampleDesign_MissingReference(t *testing.T) {
	input := "sample\tcondition\ns1\tLow\n"
	_, err := ParseSampleDesign(strings.NewReader(input), map[string]string{})
	assert.ErrorContains(t, err, "no reference level")
}

func TestParseGeneSets(t *testing.T) {
	input := "SET_A\tdescription a\tg1\tg2\tg3\n" +
		"SET_B\t\tg4\n"

	sets, err := ParseGeneSets(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "SET_A", sets[0].Name)
	assert.Equal(t, []string{"g1", "g2", "g3"}, sets[0].Genes)
	assert.Equal(t, []string{"g4"}, sets[1].Genes)

	_, err = ParseGeneSets(strings.NewReader("SET_A\tonly-description\n"))
	assert.ErrorContains(t, err, "at least one gene")
}
