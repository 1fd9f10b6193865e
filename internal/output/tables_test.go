package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refstab/destat/internal/contrast"
	"github.com/refstab/destat/internal/enrich"
	"github.com/refstab/destat/internal/refgenes"
)

func fptr(v float64) *float64 { return &v }

func TestDETableWriter(t *testing.T) {
	table := &contrast.Table{
		Contrast: "effect",
		Results: []contrast.DEResult{
			{
				GeneID:         "g1",
				BaseMean:       120.5,
				Log2FoldChange: 1.5,
				StdErr:         0.25,
				Stat:           6,
				PValue:         fptr(1e-9),
				PAdj:           fptr(5e-8),
				Converged:      true,
			},
			{
				GeneID:    "g2",
				BaseMean:  0.4,
				Converged: false,
			},
		},
	}

	var buf strings.Builder
	require.NoError(t, NewDETableWriter(&buf).WriteTable(table))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		"gene_id\tbase_mean\tlog2_fold_change\tlfc_se\tstat\tpvalue\tpadj\tconverged\tlow_confidence",
		lines[0])

	g1 := strings.Split(lines[1], "\t")
	assert.Equal(t, "g1", g1[0])
	assert.Equal(t, "1e-09", g1[5])
	assert.Equal(t, "true", g1[7])

	// untested genes keep their row with NA statistics
	g2 := strings.Split(lines[2], "\t")
	assert.Equal(t, "g2", g2[0])
	assert.Equal(t, "NA", g2[5])
	assert.Equal(t, "NA", g2[6])
	assert.Equal(t, "false", g2[7])
}

func TestEnrichmentWriter(t *testing.T) {
	var buf strings.Builder
	ew := NewEnrichmentWriter(&buf)
	require.NoError(t, ew.WriteHeader())
	require.NoError(t, ew.Write(&enrich.Result{
		Name: "HALLMARK_X", Stat: 3.2, PValue: 0.0013, Direction: enrich.DirectionUp,
	}))
	require.NoError(t, ew.Flush())

	assert.Equal(t,
		"set_name\tstat\tpvalue\tdirection\nHALLMARK_X\t3.2\t0.0013\tup\n",
		buf.String())
}

func TestRefGeneWriter(t *testing.T) {
	set := &refgenes.ReferenceGeneSet{Genes: []refgenes.RefGene{
		{ID: "ACTB", CV: 0.75},
		{ID: "GAPDH", CV: 1.25},
	}}

	var buf strings.Builder
	require.NoError(t, NewRefGeneWriter(&buf).WriteSet(set))

	assert.Equal(t,
		"gene_id\tcv_percent\nACTB\t0.75\nGAPDH\t1.25\n",
		buf.String())
}
