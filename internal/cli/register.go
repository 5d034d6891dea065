package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/driftkit-go/workflow-engine/config"
)

// addRegisterCommand adds `workflowctl register <file.yaml>`: validates
// a workflow definition compiles against the builtin executor registry,
// then copies it into --workflows-dir so later run/resume/status/cancel
// invocations pick it up.
func addRegisterCommand(root *cobra.Command) {
	var workflowsDir string

	cmd := &cobra.Command{
		Use:   "register <file.yaml>",
		Short: "Validate and install a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, args[0], workflowsDir)
		},
	}
	addWorkflowsDirFlag(cmd, &workflowsDir)
	root.AddCommand(cmd)
}

func runRegister(cmd *cobra.Command, path, workflowsDir string) error {
	def, err := config.LoadWorkflowDef(path)
	if err != nil {
		return err
	}
	if _, err := config.Compile(def, builtinRegistry(), nil); err != nil {
		return fmt.Errorf("workflow %s does not compile: %w", path, err)
	}

	if err := os.MkdirAll(workflowsDir, 0o755); err != nil {
		return fmt.Errorf("create workflows dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dest := filepath.Join(workflowsDir, def.ID+"-"+def.Version+filepath.Ext(path))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("install workflow: %w", err)
	}

	Logger().Info().Str("workflow_id", def.ID).Str("version", def.Version).Str("path", dest).Msg("registered workflow")
	fmt.Fprintf(cmd.OutOrStdout(), "registered %s@%s -> %s\n", def.ID, def.Version, dest)
	return nil
}
