package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/pathcov/internal/coverage"
	"github.com/zjy-dev/pathcov/internal/store"
)

// NewCheckCommand creates the "check" subcommand.
func NewCheckCommand() *cobra.Command {
	var (
		dataFile   string
		thresholds string
		metrics    []string
		outputDir  string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify minimum coverage.",
		Long: `Verify minimum coverage thresholds. Thresholds are ';'-separated entries:
a bare minimum for the project total, "perFile:<min>" for every file, or
"<path prefix>:<min>" for the files under a prefix.

While a threshold is not met, the file coverage.check.failed exists in the
output directory and the command exits non-zero.

Examples:
  pathcov check --thresholds "80;perFile:60;internal/paths:90"
  pathcov check --metrics line,branch --thresholds 75`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("data-file") {
				dataFile = cfg.Coverage.DataFile
			}
			if !cmd.Flags().Changed("thresholds") {
				thresholds = cfg.Check.Thresholds
			}
			if !cmd.Flags().Changed("metrics") {
				metrics = cfg.Check.Metrics
			}
			if !cmd.Flags().Changed("output-dir") {
				outputDir = cfg.Coverage.OutputDir
			}
			ms, err := parseMetrics(metrics)
			if err != nil {
				return err
			}

			check, err := coverage.NewCheck(ms, thresholds)
			if err != nil {
				return err
			}
			if !check.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), "[Check] No thresholds configured")
				return nil
			}

			d, err := store.Load(dataFile)
			if err != nil {
				return err
			}
			violations, err := check.Run(d, outputDir)
			if err != nil {
				return err
			}
			for _, v := range violations {
				fmt.Fprintf(cmd.OutOrStdout(), "[Check] %s\n", v)
			}
			if len(violations) > 0 {
				return fmt.Errorf("%d coverage thresholds not met", len(violations))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "[Check] All thresholds met")
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data-file", "coverage.ser.json", "Coverage data file")
	cmd.Flags().StringVar(&thresholds, "thresholds", "", "Minimum coverage, e.g. \"80;perFile:70;pkg/x:90\"")
	cmd.Flags().StringSliceVar(&metrics, "metrics", nil, "Metrics to check: line, branch, path")
	cmd.Flags().StringVar(&outputDir, "output-dir", "coverage-report", "Directory holding the failure indicator file")

	return cmd
}
