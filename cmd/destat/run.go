package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refstab/destat/internal/output"
	"github.com/refstab/destat/internal/pipeline"
	"github.com/refstab/destat/internal/refgenes"
	"github.com/refstab/destat/internal/store"
)

func newRunCmd() *cobra.Command {
	opts := pipeline.DefaultOptions()
	var (
		designFile   string
		refFile      string
		refSetName   string
		refLevelArgs []string
		contrastName string
		outputFile   string
		dbPath       string
		runName      string
		noFilter     bool
	)

	cmd := &cobra.Command{
		Use:   "run <counts-file>",
		Short: "Run the differential expression workflow",
		Long: `Run size factor estimation restricted to a reference gene set,
negative binomial GLM fitting over the two-factor interaction design,
and Wald testing of the requested coefficient.

The sample design file must list samples in exactly the count matrix
column order; each factor needs a declared reference level via --ref-level.`,
		Example: `  destat run counts.tsv --design samples.tsv \
      --ref-level condition=Low --ref-level treatment=Vehicle \
      --ref-genes refgenes.tsv \
      --contrast condition_High_vs_Low.treatment_Inhibitor_vs_Vehicle \
      -o de_results.tsv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigDefaults(cmd, "run",
				"db", "run-name", "no-filter", "workers"); err != nil {
				return err
			}

			refLevels, err := parseRefLevels(refLevelArgs)
			if err != nil {
				return err
			}

			counts, err := readCounts(args[0])
			if err != nil {
				return err
			}
			design, err := readDesign(designFile, refLevels)
			if err != nil {
				return err
			}

			refSet, err := loadRefGenes(refFile, dbPath, refSetName)
			if err != nil {
				return err
			}

			opts.Test.DisableFiltering = noFilter
			p := pipeline.New(opts)
			p.SetLogger(logger)

			run, err := p.Execute(counts, design, refSet, contrastName)
			if err != nil {
				return err
			}

			out := os.Stdout
			if outputFile != "" {
				out, err = os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer out.Close()
			}
			if err := output.NewDETableWriter(out).WriteTable(run.Table); err != nil {
				return fmt.Errorf("write result table: %w", err)
			}

			if dbPath != "" {
				st, err := store.Open(dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.SaveDETable(runName, run.Table); err != nil {
					return fmt.Errorf("save result table: %w", err)
				}
				logger.Info("result table stored",
					zap.String("db", dbPath), zap.String("run_name", runName))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&designFile, "design", "", "Sample design file (required)")
	cmd.Flags().StringArrayVar(&refLevelArgs, "ref-level", nil, "Reference level per factor, as factor=level (repeatable)")
	cmd.Flags().StringVar(&refFile, "ref-genes", "", "Reference gene set file from 'destat refgenes'")
	cmd.Flags().StringVar(&refSetName, "ref-set", "", "Name of a stored reference gene set (needs --db)")
	cmd.Flags().StringVar(&contrastName, "contrast", "", "Design matrix coefficient to test (required)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB database to store results in")
	cmd.Flags().StringVar(&runName, "run-name", "default", "Run name for stored results")
	cmd.Flags().BoolVar(&noFilter, "no-filter", false, "Disable adaptive independent filtering")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Fit workers (0 = one per CPU)")

	cmd.MarkFlagRequired("design")
	cmd.MarkFlagRequired("contrast")

	return cmd
}

func parseRefLevels(args []string) (map[string]string, error) {
	refLevels := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid --ref-level %q, want factor=level", a)
		}
		refLevels[k] = v
	}
	return refLevels, nil
}

// loadRefGenes resolves the reference gene set from either a file or a
// stored set in the results database.
func loadRefGenes(refFile, dbPath, refSetName string) (*refgenes.ReferenceGeneSet, error) {
	switch {
	case refFile != "" && refSetName != "":
		return nil, fmt.Errorf("use either --ref-genes or --ref-set, not both")
	case refFile != "":
		return readRefGeneSet(refFile)
	case refSetName != "":
		if dbPath == "" {
			return nil, fmt.Errorf("--ref-set requires --db")
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.LoadRefGeneSet(refSetName)
	default:
		return nil, fmt.Errorf("a reference gene set is required (--ref-genes or --ref-set)")
	}
}
