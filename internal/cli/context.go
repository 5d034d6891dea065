package cli

import (
	"context"

	"github.com/driftkit-go/workflow-engine/config"
)

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.ProcessConfig) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// configFromContext recovers the ProcessConfig PersistentPreRunE
// attached to cmd.Context(). Falls back to defaults when run outside
// the root command's flow (e.g. direct unit-test invocation).
func configFromContext(ctx context.Context) *config.ProcessConfig {
	if cfg, ok := ctx.Value(configKey{}).(*config.ProcessConfig); ok && cfg != nil {
		return cfg
	}
	return config.DefaultProcessConfig()
}
