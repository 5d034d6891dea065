package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// addCancelCommand adds `workflowctl cancel <runID>`.
func addCancelCommand(root *cobra.Command) {
	var workflowsDir string

	cmd := &cobra.Command{
		Use:   "cancel <runID>",
		Short: "Transition a run directly to CANCELLED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd, args[0], workflowsDir)
		},
	}
	addWorkflowsDirFlag(cmd, &workflowsDir)
	root.AddCommand(cmd)
}

func runCancel(cmd *cobra.Command, runID, workflowsDir string) error {
	cfg := configFromContext(cmd.Context())

	eng, err := buildEngine(cfg, workflowsDir)
	if err != nil {
		return err
	}

	if err := eng.CancelRun(cmd.Context(), runID); err != nil {
		return fmt.Errorf("cancel %s: %w", runID, err)
	}

	Logger().Info().Str("run_id", runID).Msg("run cancelled")
	fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", runID)
	return nil
}
