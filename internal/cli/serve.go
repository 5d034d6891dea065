package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// addServeCommand adds `workflowctl serve`: a long-running process
// exposing /metrics for Prometheus scraping. Grounded on the pack's
// prometheus_monitoring example idiom of wiring promhttp.Handler()
// behind a plain net/http server.
func addServeCommand(root *cobra.Command) {
	var workflowsDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived process exposing /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, workflowsDir)
		},
	}
	addWorkflowsDirFlag(cmd, &workflowsDir)
	root.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, workflowsDir string) error {
	cfg := configFromContext(cmd.Context())

	// Registering here (rather than lazily on first request) surfaces a
	// malformed workflow definition at startup instead of on first use.
	if _, err := buildEngine(cfg, workflowsDir); err != nil {
		return err
	}

	if !cfg.Metrics.Enabled {
		Logger().Warn().Msg("metrics.enabled is false; serve has nothing to expose")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	Logger().Info().Str("addr", cfg.Metrics.Addr).Msg("serving /metrics")

	select {
	case <-cmd.Context().Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
