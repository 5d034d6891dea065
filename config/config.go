package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// ProcessConfig is the workflowctl process's own configuration: where
// it persists instances, how it logs, and the concurrency bounds it
// hands to engine.New. Grounded on mrz1836-atlas's layered Config/Load
// (internal/config/{config,load}.go), narrowed to this engine's
// concerns.
type ProcessConfig struct {
	Store      StoreConfig      `mapstructure:"store"`
	Log        LogConfig        `mapstructure:"log"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `mapstructure:"driver"`
	// DSN is the sqlite DSN (file path or "file::memory:?cache=shared");
	// ignored when Driver == "memory".
	DSN string `mapstructure:"dsn"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug|info|warn|error
	Format string `mapstructure:"format"` // json|console
	// File, if set, rotates through lumberjack instead of writing to
	// stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// EngineConfig mirrors the engine.EngineOption knobs that are worth
// exposing as process configuration.
type EngineConfig struct {
	MaxAsyncWorkers int           `mapstructure:"max_async_workers"`
	MaxSteps        int           `mapstructure:"max_steps"`
	MaxConcurrent   int           `mapstructure:"max_concurrent_runs"`
	ResumeTimeout   time.Duration `mapstructure:"resume_timeout"`
}

// MetricsConfig configures the /metrics HTTP surface exposed by
// `workflowctl serve`.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

const envPrefix = "WORKFLOWCTL"

// DefaultProcessConfig returns the built-in defaults, the lowest
// precedence layer Load applies.
func DefaultProcessConfig() *ProcessConfig {
	return &ProcessConfig{
		Store: StoreConfig{Driver: "memory"},
		Log:   LogConfig{Level: "info", Format: "console"},
		Engine: EngineConfig{
			MaxAsyncWorkers: 8,
			MaxSteps:        100000,
			MaxConcurrent:   0,
			ResumeTimeout:   30 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: false, Addr: ":9090"},
	}
}

// Load reads configuration with precedence (highest first):
//  1. WORKFLOWCTL_* environment variables
//  2. project config (./.workflowctl/config.yaml)
//  3. global config (~/.workflowctl/config.yaml)
//  4. DefaultProcessConfig()
//
// Missing config files are not an error; only malformed ones are.
func Load() (*ProcessConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := mergeIfExists(v, globalConfigPath()); err != nil {
		return nil, err
	}
	if err := mergeIfExists(v, projectConfigPath()); err != nil {
		return nil, err
	}

	var cfg ProcessConfig
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadFromPath loads configuration from one explicit file, for tests
// and `workflowctl --config path` invocations, skipping the global and
// project search entirely.
func LoadFromPath(path string) (*ProcessConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := mergeIfExists(v, path); err != nil {
			return nil, err
		}
	}

	var cfg ProcessConfig
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultProcessConfig()
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("engine.max_async_workers", d.Engine.MaxAsyncWorkers)
	v.SetDefault("engine.max_steps", d.Engine.MaxSteps)
	v.SetDefault("engine.max_concurrent_runs", d.Engine.MaxConcurrent)
	v.SetDefault("engine.resume_timeout", d.Engine.ResumeTimeout)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

func mergeIfExists(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return nil
}

func globalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".workflowctl", "config.yaml")
}

func projectConfigPath() string {
	return filepath.Join(".workflowctl", "config.yaml")
}

// viperDecoderOption lets YAML/env config express durations as plain
// strings ("30s") and have them decode straight into time.Duration
// fields. Grounded on mrz1836-atlas's viperDecoderOption
// (internal/config/load.go).
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}

// Validate enforces ProcessConfig invariants not expressible through
// viper defaults alone.
func Validate(cfg *ProcessConfig) error {
	switch cfg.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("store.driver must be memory or sqlite, got %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN == "" {
		return stderrors.New("store.dsn is required when store.driver is sqlite")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug|info|warn|error, got %q", cfg.Log.Level)
	}
	if cfg.Engine.MaxAsyncWorkers < 0 {
		return stderrors.New("engine.max_async_workers must be >= 0")
	}
	return nil
}
