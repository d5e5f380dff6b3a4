package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/pathcov/internal/store"
)

// NewMergeCommand creates the "merge" subcommand.
func NewMergeCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge <current> <previous>...",
		Short: "Merge data files of several runs.",
		Long: `Fold the data of earlier runs into the current one. A file is merged only
when both runs saw the same last_modified stamp; files only present in an
earlier run are added. Merging is not idempotent.

Examples:
  pathcov merge run3.json run2.json run1.json -o merged.json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(); err != nil {
				return err
			}
			if output == "" {
				output = args[0]
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			all, err := store.LoadAll(ctx, args)
			if err != nil {
				return err
			}

			merged := all[0]
			for i, prev := range all[1:] {
				if err := merged.Merge(prev); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "[Merge] Warning: %s: %v\n", args[i+1], err)
				}
			}
			if err := store.Save(output, merged); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[Merge] Wrote %s (%d files)\n", output, len(merged.Files()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output data file (default: the current data file)")

	return cmd
}
