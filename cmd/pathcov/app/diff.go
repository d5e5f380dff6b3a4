package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/pathcov/internal/coverage"
	"github.com/zjy-dev/pathcov/internal/store"
)

// NewDiffCommand creates the "diff" subcommand.
func NewDiffCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <previous> <current>",
		Short: "Show coverage gained between two data files.",
		Long: `List the lines covered in <current> but not in <previous>, per file, and
the number of newly covered paths.

Examples:
  pathcov diff before.json after.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			both, err := store.LoadAll(ctx, args)
			if err != nil {
				return err
			}
			inc := coverage.ComputeIncrease(both[0], both[1])
			fmt.Fprint(cmd.OutOrStdout(), inc.FormattedReport())
			return nil
		},
	}
	return cmd
}
