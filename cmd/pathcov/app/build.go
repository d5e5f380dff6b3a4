package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/pathcov/internal/coverage"
	"github.com/zjy-dev/pathcov/internal/instrument"
	"github.com/zjy-dev/pathcov/internal/store"
)

// NewBuildCommand creates the "build" subcommand.
func NewBuildCommand() *cobra.Command {
	var (
		dataFile      string
		workers       int
		callPoints    bool
		mergePrevious bool
	)

	cmd := &cobra.Command{
		Use:   "build <events.yaml>...",
		Short: "Build coverage structure from structural event specs.",
		Long: `Build per-method graphs and paths plus per-file line and branch structure
from one or more YAML event specs, and write them to the data file.

Counts of an existing data file are carried over for files whose
last_modified stamp is unchanged.

Examples:
  # Build from an event spec with settings from config
  pathcov build events.yaml

  # Start from scratch with 8 workers
  pathcov build events.yaml --merge-previous=false --workers 8`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("data-file") {
				dataFile = cfg.Coverage.DataFile
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Coverage.Workers
			}
			if !cmd.Flags().Changed("call-points") {
				callPoints = cfg.Coverage.CallPoints
			}

			in := instrument.New(cfg.Coverage)
			in.Workers = workers

			d := coverage.NewData()
			d.SetWithCallPoints(callPoints)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			failures := 0
			for _, path := range args {
				spec, err := instrument.LoadSpec(path)
				if err != nil {
					return err
				}
				results, err := in.InstrumentProject(ctx, d, spec)
				if err != nil {
					return err
				}
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "[Build] %s\n", r)
					failures += len(r.Failures)
				}
			}

			s := store.NewFileStore(dataFile)
			if mergePrevious && s.Exists() {
				prev, err := s.Load()
				if err != nil {
					return err
				}
				if err := d.Merge(prev); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "[Build] Warning: some counts were not carried over: %v\n", err)
				}
			}
			if err := s.Save(d); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[Build] Wrote %s (%d files, %d methods left uninstrumented)\n",
				s.GetFilePath(), len(d.Files()), failures)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data-file", "coverage.ser.json", "Coverage data file")
	cmd.Flags().IntVar(&workers, "workers", 4, "Methods built concurrently")
	cmd.Flags().BoolVar(&callPoints, "call-points", false, "Record which tests reach each line and branch")
	cmd.Flags().BoolVar(&mergePrevious, "merge-previous", true, "Carry over counts from the existing data file")

	return cmd
}
