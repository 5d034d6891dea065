package cli

import "github.com/spf13/cobra"

const defaultWorkflowsDir = "./workflows"

// addWorkflowsDirFlag adds the --workflows-dir flag shared by every
// command that needs to discover and compile YAML workflow
// definitions before talking to the engine.
func addWorkflowsDirFlag(cmd *cobra.Command, dir *string) {
	cmd.Flags().StringVar(dir, "workflows-dir", defaultWorkflowsDir, "directory of workflow YAML definitions")
}
