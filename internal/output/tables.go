// Package output writes the pipeline's result tables in tab-delimited
// format.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/refstab/destat/internal/contrast"
	"github.com/refstab/destat/internal/enrich"
	"github.com/refstab/destat/internal/refgenes"
)

// DETableWriter writes differential expression results, one row per
// gene. Filtered and non-convergent genes appear with NA statistics
// rather than being dropped.
type DETableWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewDETableWriter creates a differential expression table writer.
func NewDETableWriter(w io.Writer) *DETableWriter {
	return &DETableWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"gene_id",
			"base_mean",
			"log2_fold_change",
			"lfc_se",
			"stat",
			"pvalue",
			"padj",
			"converged",
			"low_confidence",
		},
	}
}

// WriteHeader writes the header line.
func (tw *DETableWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes one result row.
func (tw *DETableWriter) Write(r *contrast.DEResult) error {
	fields := []string{
		r.GeneID,
		formatFloat(r.BaseMean),
		formatFloat(r.Log2FoldChange),
		formatFloat(r.StdErr),
		formatFloat(r.Stat),
		formatNullable(r.PValue),
		formatNullable(r.PAdj),
		strconv.FormatBool(r.Converged),
		strconv.FormatBool(r.LowConfidence),
	}
	_, err := tw.w.WriteString(strings.Join(fields, "\t") + "\n")
	return err
}

// WriteTable writes a header and every row of the table.
func (tw *DETableWriter) WriteTable(t *contrast.Table) error {
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	for i := range t.Results {
		if err := tw.Write(&t.Results[i]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// Flush flushes buffered output.
func (tw *DETableWriter) Flush() error {
	return tw.w.Flush()
}

// EnrichmentWriter writes gene set enrichment results.
type EnrichmentWriter struct {
	w *bufio.Writer
}

// NewEnrichmentWriter creates an enrichment table writer.
func NewEnrichmentWriter(w io.Writer) *EnrichmentWriter {
	return &EnrichmentWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header line.
func (ew *EnrichmentWriter) WriteHeader() error {
	_, err := ew.w.WriteString("set_name\tstat\tpvalue\tdirection\n")
	return err
}

// Write writes one result row.
func (ew *EnrichmentWriter) Write(r *enrich.Result) error {
	_, err := fmt.Fprintf(ew.w, "%s\t%s\t%s\t%s\n",
		r.Name, formatFloat(r.Stat), formatFloat(r.PValue), r.Direction)
	return err
}

// Flush flushes buffered output.
func (ew *EnrichmentWriter) Flush() error {
	return ew.w.Flush()
}

// RefGeneWriter exports a reference gene set with stability scores for
// reuse across runs.
type RefGeneWriter struct {
	w *bufio.Writer
}

// NewRefGeneWriter creates a reference gene set writer.
func NewRefGeneWriter(w io.Writer) *RefGeneWriter {
	return &RefGeneWriter{w: bufio.NewWriter(w)}
}

// WriteSet writes the header and every selected gene in order.
func (rw *RefGeneWriter) WriteSet(s *refgenes.ReferenceGeneSet) error {
	if _, err := rw.w.WriteString("gene_id\tcv_percent\n"); err != nil {
		return err
	}
	for _, g := range s.Genes {
		if _, err := fmt.Fprintf(rw.w, "%s\t%s\n", g.ID, formatFloat(g.CV)); err != nil {
			return err
		}
	}
	return rw.w.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func formatNullable(p *float64) string {
	if p == nil {
		return "NA"
	}
	return formatFloat(*p)
}
