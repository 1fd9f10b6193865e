package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refstab/destat/internal/output"
	"github.com/refstab/destat/internal/refgenes"
	"github.com/refstab/destat/internal/store"
)

func newRefGenesCmd() *cobra.Command {
	opts := refgenes.DefaultOptions()
	var (
		outputFile string
		dbPath     string
		setName    string
	)

	cmd := &cobra.Command{
		Use:   "refgenes <measurements-file>",
		Short: "Select expression-stable reference genes",
		Long: `Select reference genes by coefficient of variation across two
independent reference conditions. Input is a delimited file with a header
and three columns: gene id, condition A value, condition B value.`,
		Example: `  destat refgenes encode_rnaseq.tsv -o refgenes.tsv
  destat refgenes encode_rnaseq.tsv --quantile 0.02 --db results.duckdb --set-name encode_stable`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigDefaults(cmd, "refgenes",
				"min-expr", "exclude", "quantile", "db", "set-name"); err != nil {
				return err
			}

			measurements, err := refgenes.ReadMeasurements(args[0])
			if err != nil {
				return err
			}

			set, err := refgenes.Select(measurements, opts)
			if err != nil {
				return err
			}
			logger.Info("reference genes selected",
				zap.Int("input_genes", len(measurements)),
				zap.Int("retained", len(set.Genes)))

			out := os.Stdout
			if outputFile != "" {
				out, err = os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer out.Close()
			}
			if err := output.NewRefGeneWriter(out).WriteSet(set); err != nil {
				return fmt.Errorf("write reference gene set: %w", err)
			}

			if dbPath != "" {
				st, err := store.Open(dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.SaveRefGeneSet(setName, set); err != nil {
					return fmt.Errorf("save reference gene set: %w", err)
				}
				logger.Info("reference gene set stored",
					zap.String("db", dbPath), zap.String("set_name", setName))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&opts.MinTotalExpr, "min-expr", opts.MinTotalExpr, "Minimum summed expression across both conditions")
	cmd.Flags().StringVar(&opts.ExcludePattern, "exclude", opts.ExcludePattern, "Regexp for excluded identifiers (spike-in controls)")
	cmd.Flags().Float64Var(&opts.Quantile, "quantile", opts.Quantile, "Retained fraction of lowest-CV genes")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB database to store the set in")
	cmd.Flags().StringVar(&setName, "set-name", "default", "Name of the stored reference gene set")

	return cmd
}
