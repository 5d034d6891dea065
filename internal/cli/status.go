package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftkit-go/workflow-engine/engine"
)

// addStatusCommand adds `workflowctl status <runID>`.
func addStatusCommand(root *cobra.Command) {
	var workflowsDir string

	cmd := &cobra.Command{
		Use:   "status <runID>",
		Short: "Print a run's current snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args[0], workflowsDir)
		},
	}
	addWorkflowsDirFlag(cmd, &workflowsDir)
	root.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, runID, workflowsDir string) error {
	cfg := configFromContext(cmd.Context())

	eng, err := buildEngine(cfg, workflowsDir)
	if err != nil {
		return err
	}

	result, err := eng.GetCurrentResult(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("status %s: %w", runID, err)
	}

	out := map[string]any{
		"runId":  runID,
		"stepId": result.StepID,
	}
	switch result.Kind {
	case engine.CurrentResultRunning:
		out["status"] = "RUNNING"
	case engine.CurrentResultSuspended:
		out["status"] = "SUSPENDED"
		out["prompt"] = result.Prompt
	case engine.CurrentResultAsyncRunning:
		out["status"] = "ASYNC_RUNNING"
		out["taskId"] = result.TaskID
		out["percentComplete"] = result.Percent
		out["message"] = result.Message
		out["completed"] = result.Done
	case engine.CurrentResultCompleted:
		out["status"] = "COMPLETED"
		out["value"] = result.Value
	case engine.CurrentResultFailed:
		out["status"] = "FAILED"
		out["error"] = result.Error
	case engine.CurrentResultCancelled:
		out["status"] = "CANCELLED"
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
