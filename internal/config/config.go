package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. PATHCOV_COVERAGE_WORKERS=8 overrides config.coverage.workers.
const EnvPrefix = "PATHCOV"

// LogConfig controls the leveled logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Dir enables file logging when non-empty.
	Dir string `mapstructure:"dir"`
}

// CoverageConfig controls what is measured and where data is kept.
type CoverageConfig struct {
	Metrics         []string `mapstructure:"metrics"`
	CallPoints      bool     `mapstructure:"call_points"`
	MaxPathsWarning int      `mapstructure:"max_paths_warning"`
	Workers         int      `mapstructure:"workers"`
	DataFile        string   `mapstructure:"data_file"`
	OutputDir       string   `mapstructure:"output_dir"`
}

// CheckConfig holds minimum coverage thresholds, e.g. "80;perFile:70;pkg/x:90".
type CheckConfig struct {
	Metrics    []string `mapstructure:"metrics"`
	Thresholds string   `mapstructure:"thresholds"`
}

// ReportConfig controls summary output.
type ReportConfig struct {
	Format    string `mapstructure:"format"`
	Color     bool   `mapstructure:"color"`
	WarnBelow int    `mapstructure:"warn_below"`
}

// Config is the top-level configuration, read from the "config" key of
// configs/config.yaml.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Coverage CoverageConfig `mapstructure:"coverage"`
	Check    CheckConfig    `mapstructure:"check"`
	Report   ReportConfig   `mapstructure:"report"`
}

type fileLayout struct {
	Config Config `mapstructure:"config"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config.log.level", "info")
	v.SetDefault("config.coverage.metrics", []string{"line", "branch", "path"})
	v.SetDefault("config.coverage.call_points", false)
	v.SetDefault("config.coverage.max_paths_warning", 4096)
	v.SetDefault("config.coverage.workers", 4)
	v.SetDefault("config.coverage.data_file", "coverage.ser.json")
	v.SetDefault("config.coverage.output_dir", "coverage-report")
	v.SetDefault("config.check.metrics", []string{"line"})
	v.SetDefault("config.report.format", "table")
	v.SetDefault("config.report.color", true)
	v.SetDefault("config.report.warn_below", 80)
}

func newViper(configName string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")
	return v
}

// Load reads a configuration file from the "configs" directory into a struct.
// The configName parameter should be the base name of the file without the extension (e.g., "config").
// The result parameter should be a pointer to a struct that the configuration will be unmarshaled into.
func Load(configName string, result interface{}) error {
	v := newViper(configName)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := v.Unmarshal(result); err != nil {
		return fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	return nil
}

// LoadConfig loads configs/config.yaml with defaults and PATHCOV_*
// environment overrides applied. A missing file is not an error: the
// defaults are returned.
func LoadConfig() (*Config, error) {
	return loadNamed("config")
}

func loadNamed(configName string) (*Config, error) {
	v := newViper(configName)
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("CONFIG.", "", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var layout fileLayout
	if err := v.Unmarshal(&layout); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	cfg := &layout.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	if c.Coverage.Workers < 1 {
		return fmt.Errorf("invalid config: coverage.workers must be at least 1, got %d", c.Coverage.Workers)
	}
	if c.Coverage.MaxPathsWarning < 0 {
		return fmt.Errorf("invalid config: coverage.max_paths_warning must not be negative")
	}
	switch c.Report.Format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid config: unsupported report.format %q", c.Report.Format)
	}
	return nil
}
