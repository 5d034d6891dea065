package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/driftkit-go/workflow-engine/config"
	"github.com/driftkit-go/workflow-engine/engine"
	"github.com/driftkit-go/workflow-engine/engine/store"
)

// builtinRegistry is the set of step executors workflowctl ships with
// out of the box, resolvable by name from a StepDef.Executor field.
// Real deployments register their own executors programmatically
// through the engine package; this registry exists so the CLI's YAML
// workflows (and its own tests) have something to run without
// embedding application code.
func builtinRegistry() config.StepRegistry {
	return config.StepRegistry{
		"echo": engine.StepExecutorFunc(func(_ context.Context, input any) engine.Result {
			return engine.Finish(input)
		}),
		"log": engine.StepExecutorFunc(func(ctx context.Context, input any) engine.Result {
			Logger().Info().Interface("input", input).Msg("workflow step")
			return engine.Continue(input)
		}),
		"sleep": engine.StepExecutorFunc(func(ctx context.Context, input any) engine.Result {
			d, _ := input.(time.Duration)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return engine.Fail(ctx.Err())
			}
			return engine.Continue(input)
		}),
		"fail": engine.StepExecutorFunc(func(_ context.Context, input any) engine.Result {
			return engine.Fail(fmt.Errorf("fail step invoked with input %v", input))
		}),
	}
}

// buildEngine constructs an *engine.Engine from cfg and registers every
// workflow definition found under workflowsDir.
func buildEngine(cfg *config.ProcessConfig, workflowsDir string) (*engine.Engine, error) {
	instanceStore, err := buildInstanceStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	opts := []engine.EngineOption{
		engine.WithInstanceStore(instanceStore),
		engine.WithMaxAsyncWorkers(cfg.Engine.MaxAsyncWorkers),
	}
	if cfg.Engine.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(cfg.Engine.MaxSteps))
	}
	if cfg.Engine.MaxConcurrent > 0 {
		opts = append(opts, engine.WithMaxConcurrentRuns(cfg.Engine.MaxConcurrent))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, engine.WithMetrics(engine.NewMetrics(nil)))
	}

	eng := engine.New(opts...)

	defs, err := discoverWorkflowDefs(workflowsDir)
	if err != nil {
		return nil, err
	}
	registry := builtinRegistry()
	for _, path := range defs {
		def, err := config.LoadWorkflowDef(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		wf, err := config.Compile(def, registry, nil)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", path, err)
		}
		if err := eng.Register(wf); err != nil {
			return nil, fmt.Errorf("register %s: %w", path, err)
		}
	}
	return eng, nil
}

func buildInstanceStore(cfg config.StoreConfig) (engine.InstanceStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.DSN)
	default:
		return store.NewMemStore(), nil
	}
}

// discoverWorkflowDefs lists *.yaml/*.yml files directly under dir.
// A missing dir is not an error: it means no workflows are registered
// yet, which `register` itself will fix.
func discoverWorkflowDefs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workflows dir %s: %w", dir, err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
