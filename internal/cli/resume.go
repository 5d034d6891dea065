package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// addResumeCommand adds `workflowctl resume <runID> <value.json>`.
func addResumeCommand(root *cobra.Command) {
	var workflowsDir string

	cmd := &cobra.Command{
		Use:   "resume <runID> <value.json>",
		Short: "Supply a value to a suspended run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResumeCmd(cmd, args[0], args[1], workflowsDir)
		},
	}
	addWorkflowsDirFlag(cmd, &workflowsDir)
	root.AddCommand(cmd)
}

func runResumeCmd(cmd *cobra.Command, runID, valuePath, workflowsDir string) error {
	cfg := configFromContext(cmd.Context())

	value, err := readJSONInput(valuePath)
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg, workflowsDir)
	if err != nil {
		return err
	}

	inst, err := eng.Resume(cmd.Context(), runID, value)
	if err != nil {
		return fmt.Errorf("resume %s: %w", runID, err)
	}
	return printInstanceSummary(cmd, inst)
}
