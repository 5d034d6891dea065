// Package cli implements workflowctl's cobra command tree. Grounded on
// mrz1836-atlas's internal/cli/root.go: a function-constructed root
// command (no package-level cobra globals), global flags held in a
// plain struct, and a PersistentPreRunE that initializes logging before any
// subcommand runs.
package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/driftkit-go/workflow-engine/config"
)

// BuildInfo carries version metadata injected via ldflags at build time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

var (
	globalLogger   zerolog.Logger
	globalLoggerMu sync.RWMutex
)

// Logger returns the logger initialized by the root command's
// PersistentPreRunE. Must only be called from within a RunE.
func Logger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

func setLogger(l zerolog.Logger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = l
}

// globalFlags holds the flags every subcommand inherits.
type globalFlags struct {
	configPath string
	verbose    bool
}

// newRootCmd builds the workflowctl command tree.
func newRootCmd(flags *globalFlags, info BuildInfo) *cobra.Command {
	var cfg *config.ProcessConfig

	cmd := &cobra.Command{
		Use:     "workflowctl",
		Short:   "Register, run, and inspect workflow-engine workflows",
		Version: formatVersion(info),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadConfig(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded

			logger := newLogger(cfg.Log, flags.verbose)
			setLogger(logger)
			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a workflowctl config file")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	addRegisterCommand(cmd)
	addRunCommand(cmd)
	addResumeCommand(cmd)
	addStatusCommand(cmd)
	addCancelCommand(cmd)
	addServeCommand(cmd)

	return cmd
}

func loadConfig(path string) (*config.ProcessConfig, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the root command against os.Args.
func Execute(ctx context.Context, info BuildInfo) error {
	flags := &globalFlags{}
	cmd := newRootCmd(flags, info)
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	return cmd.ExecuteContext(ctx)
}
