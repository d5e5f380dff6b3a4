package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/pathcov/internal/instrument"
	"github.com/zjy-dev/pathcov/internal/recorder"
	"github.com/zjy-dev/pathcov/internal/store"
)

// NewReplayCommand creates the "replay" subcommand.
func NewReplayCommand() *cobra.Command {
	var dataFile string

	cmd := &cobra.Command{
		Use:   "replay <trace.yaml>...",
		Short: "Record execution traces into the data file.",
		Long: `Replay recorded executions (lines, branches and reached method nodes per
test) against the data file and save the updated counts.

Examples:
  pathcov replay trace.yaml
  pathcov replay --data-file out/coverage.ser.json unit.yaml integration.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("data-file") {
				dataFile = cfg.Coverage.DataFile
			}

			s := store.NewFileStore(dataFile)
			if !s.Exists() {
				return fmt.Errorf("no data file at %s, run build first", s.GetFilePath())
			}
			d, err := s.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rec := recorder.New(d)
			for _, path := range args {
				trace, err := instrument.LoadTrace(path)
				if err != nil {
					return err
				}
				stats, err := instrument.Replay(ctx, rec, trace)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[Replay] %s: %s\n", path, stats)
			}
			rec.Terminate()

			return s.Save(d)
		},
	}

	cmd.Flags().StringVar(&dataFile, "data-file", "coverage.ser.json", "Coverage data file")

	return cmd
}
