package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/pathcov/internal/config"
	"github.com/zjy-dev/pathcov/internal/logger"
	"github.com/zjy-dev/pathcov/internal/metric"
)

// NewPathcovCommand creates the root command for the pathcov tool.
func NewPathcovCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pathcov",
		Short: "Line, branch and path coverage from structural event streams.",
		Long: `pathcov builds per-method control-flow graphs from recorded structural
events, enumerates every entry-to-exit path, and reports line, branch and
path coverage for the executions replayed against them.

Configuration is read from configs/config.yaml (key "config") and can be
overridden with PATHCOV_* environment variables and command line flags.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewBuildCommand())
	cmd.AddCommand(NewReplayCommand())
	cmd.AddCommand(NewMergeCommand())
	cmd.AddCommand(NewReportCommand())
	cmd.AddCommand(NewCheckCommand())
	cmd.AddCommand(NewDiffCommand())
	cmd.AddCommand(NewCrossCheckCommand())

	return cmd
}

// setup loads the configuration and initializes logging.
func setup() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Log.Dir != "" {
		if err := logger.InitWithFile(cfg.Log.Level, cfg.Log.Dir); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	} else {
		logger.Init(cfg.Log.Level)
		logger.SetLevel(cfg.Log.Level)
	}
	return cfg, nil
}

func parseMetrics(names []string) ([]metric.Metric, error) {
	ms, err := metric.ParseList(names)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics: %w", err)
	}
	return ms, nil
}
