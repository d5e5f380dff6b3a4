package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/pathcov/internal/report"
	"github.com/zjy-dev/pathcov/internal/store"
)

// NewReportCommand creates the "report" subcommand.
func NewReportCommand() *cobra.Command {
	var (
		dataFile  string
		format    string
		metrics   []string
		noColor   bool
		markdown  bool
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a coverage summary.",
		Long: `Print per-file and total coverage for the configured metrics as a table,
JSON or YAML. With --markdown the summary is also saved to the output
directory.

Examples:
  pathcov report
  pathcov report --format json --metrics line,path`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("data-file") {
				dataFile = cfg.Coverage.DataFile
			}
			if !cmd.Flags().Changed("format") {
				format = cfg.Report.Format
			}
			if !cmd.Flags().Changed("metrics") {
				metrics = cfg.Coverage.Metrics
			}
			if !cmd.Flags().Changed("output-dir") {
				outputDir = cfg.Coverage.OutputDir
			}
			ms, err := parseMetrics(metrics)
			if err != nil {
				return err
			}

			d, err := store.Load(dataFile)
			if err != nil {
				return err
			}
			s := report.Build(d, ms)

			if format == "table" {
				err = s.Render(cmd.OutOrStdout(), report.Options{
					Color:     cfg.Report.Color && !noColor,
					WarnBelow: cfg.Report.WarnBelow,
				})
			} else {
				err = s.Write(cmd.OutOrStdout(), format)
			}
			if err != nil {
				return err
			}

			if markdown {
				if err := report.NewMarkdownReporter(outputDir).Save(s); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "[Report] Saved markdown summary to %s\n", outputDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data-file", "coverage.ser.json", "Coverage data file")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json or yaml")
	cmd.Flags().StringSliceVar(&metrics, "metrics", nil, "Metrics to report: line, branch, path")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Also save a markdown summary")
	cmd.Flags().StringVar(&outputDir, "output-dir", "coverage-report", "Directory for saved reports")

	return cmd
}
