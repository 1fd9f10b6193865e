package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refstab/destat/internal/enrich"
	"github.com/refstab/destat/internal/exprmat"
	"github.com/refstab/destat/internal/output"
	"github.com/refstab/destat/internal/store"
)

func newEnrichCmd() *cobra.Command {
	opts := enrich.DefaultOptions()
	var (
		gmtFile    string
		outputFile string
		dbPath     string
		runName    string
		valueBased bool
	)

	cmd := &cobra.Command{
		Use:   "enrich <de-table>",
		Short: "Rank-based gene set enrichment on DE statistics",
		Long: `Test named gene sets for a shift toward either end of the Wald
statistic ranking from a 'destat run' result table. The null variance is
inflated for the average pairwise correlation among set members.`,
		Example: `  destat enrich de_results.tsv --gene-sets hallmark.gmt -o enrichment.tsv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigDefaults(cmd, "enrich",
				"inter-gene-cor", "estimate-cor", "db", "run-name"); err != nil {
				return err
			}

			genes, stats, err := readStatVector(args[0])
			if err != nil {
				return err
			}

			geneSets, err := exprmat.ReadGeneSets(gmtFile)
			if err != nil {
				return err
			}

			geneIdx := make(map[string]int, len(genes))
			for i, g := range genes {
				geneIdx[g] = i
			}

			sets := make(map[string][]int, len(geneSets))
			for _, gs := range geneSets {
				var idx []int
				missing := 0
				for _, g := range gs.Genes {
					i, ok := geneIdx[g]
					if !ok {
						missing++
						continue
					}
					idx = append(idx, i)
				}
				if missing > 0 {
					logger.Warn("gene set has unresolvable ids",
						zap.String("set", gs.Name), zap.Int("missing", missing))
				}
				sets[gs.Name] = idx
			}

			opts.UseRanks = !valueBased
			results, errs := enrich.TestAll(stats, sets, opts)
			for _, err := range errs {
				logger.Warn("gene set skipped", zap.Error(err))
			}
			sort.Slice(results, func(a, b int) bool { return results[a].PValue < results[b].PValue })

			out := os.Stdout
			if outputFile != "" {
				out, err = os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer out.Close()
			}
			ew := output.NewEnrichmentWriter(out)
			if err := ew.WriteHeader(); err != nil {
				return err
			}
			for i := range results {
				if err := ew.Write(&results[i]); err != nil {
					return err
				}
			}
			if err := ew.Flush(); err != nil {
				return err
			}

			if dbPath != "" {
				st, err := store.Open(dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.SaveEnrichment(runName, results); err != nil {
					return fmt.Errorf("save enrichment results: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&gmtFile, "gene-sets", "", "Gene sets in GMT format (required)")
	cmd.Flags().BoolVar(&valueBased, "value-based", false, "Score raw statistic values instead of ranks")
	cmd.Flags().Float64Var(&opts.InterGeneCor, "inter-gene-cor", opts.InterGeneCor, "Assumed average pairwise correlation among set members")
	cmd.Flags().BoolVar(&opts.EstimateCor, "estimate-cor", false, "Estimate inter-gene correlation from the data")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB database to store results in")
	cmd.Flags().StringVar(&runName, "run-name", "default", "Run name for stored results")

	cmd.MarkFlagRequired("gene-sets")

	return cmd
}
