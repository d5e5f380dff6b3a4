package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/pathcov/internal/coverage"
	"github.com/zjy-dev/pathcov/internal/exec"
	"github.com/zjy-dev/pathcov/internal/store"
)

// NewCrossCheckCommand creates the "crosscheck" subcommand.
func NewCrossCheckCommand() *cobra.Command {
	var (
		dataFile     string
		sourceRoot   string
		stripPrefix  string
		gcovrCommand string
	)

	cmd := &cobra.Command{
		Use:   "crosscheck [uncovered.json]",
		Short: "Compare with a gcovr uncovered-lines report.",
		Long: `Load an uncovered-lines report produced by gcovr-json-util and list the
lines it reports as uncovered although they were executed here.

The report is read from the given file, or from the standard output of
--gcovr-command, which runs in --source-root.

Examples:
  pathcov crosscheck uncovered.json --strip-prefix /src
  pathcov crosscheck --gcovr-command "gcovr-json-util uncovered build/" --source-root /src`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("data-file") {
				dataFile = cfg.Coverage.DataFile
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var input *coverage.UncoveredInput
			switch {
			case len(args) == 1 && gcovrCommand != "":
				return fmt.Errorf("give either a report file or --gcovr-command, not both")
			case len(args) == 1:
				input, err = coverage.LoadGcovrUncoveredReport(args[0], sourceRoot)
			case gcovrCommand != "":
				var raw []byte
				raw, err = exec.RunShell(ctx, exec.NewCommandExecutor(), sourceRoot, gcovrCommand)
				if err == nil {
					input, err = coverage.ParseGcovrUncoveredReport(raw, sourceRoot)
				}
			default:
				return fmt.Errorf("no gcovr report given")
			}
			if err != nil {
				return err
			}

			d, err := store.Load(dataFile)
			if err != nil {
				return err
			}

			disagreements := coverage.CrossCheck(d, input, stripPrefix)
			for _, dis := range disagreements {
				fmt.Fprintf(cmd.OutOrStdout(), "[CrossCheck] %s\n", dis)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[CrossCheck] %d disagreements\n", len(disagreements))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data-file", "coverage.ser.json", "Coverage data file")
	cmd.Flags().StringVar(&sourceRoot, "source-root", "", "Directory prepended to the report's relative paths")
	cmd.Flags().StringVar(&stripPrefix, "strip-prefix", "", "Prefix removed from report paths before lookup")
	cmd.Flags().StringVar(&gcovrCommand, "gcovr-command", "", "Shell command printing the report JSON")

	return cmd
}
