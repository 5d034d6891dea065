package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftkit-go/workflow-engine/engine"
)

// addRunCommand adds `workflowctl run <workflowID[@version]> <input.json>`.
func addRunCommand(root *cobra.Command) {
	var workflowsDir string

	cmd := &cobra.Command{
		Use:   "run <workflowID[@version]> <input.json>",
		Short: "Start a new run of a registered workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], args[1], workflowsDir)
		},
	}
	addWorkflowsDirFlag(cmd, &workflowsDir)
	root.AddCommand(cmd)
}

func runRun(cmd *cobra.Command, workflowRef, inputPath, workflowsDir string) error {
	cfg := configFromContext(cmd.Context())

	workflowID, version := splitWorkflowRef(workflowRef)

	var triggerData any
	var err error
	if inputPath == "-" {
		if err = json.NewDecoder(cmd.InOrStdin()).Decode(&triggerData); err != nil {
			return fmt.Errorf("decode stdin input: %w", err)
		}
	} else if triggerData, err = readJSONInput(inputPath); err != nil {
		return err
	}

	eng, err := buildEngine(cfg, workflowsDir)
	if err != nil {
		return err
	}

	inst, err := eng.Execute(cmd.Context(), workflowID, version, triggerData)
	if err != nil {
		return fmt.Errorf("execute %s: %w", workflowRef, err)
	}

	return printInstanceSummary(cmd, inst)
}

// splitWorkflowRef parses "id@version" into (id, version); version is
// "" (meaning latest registered) when absent.
func splitWorkflowRef(ref string) (id, version string) {
	if idx := strings.IndexByte(ref, '@'); idx >= 0 {
		return ref[:idx], ref[idx+1:]
	}
	return ref, ""
}

func readJSONInput(path string) (any, error) {
	if path == "-" {
		var v any
		if err := json.NewDecoder(os.Stdin).Decode(&v); err != nil {
			return nil, fmt.Errorf("decode stdin input: %w", err)
		}
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse input %s: %w", path, err)
	}
	return v, nil
}

func printInstanceSummary(cmd *cobra.Command, inst *engine.Instance) error {
	out := map[string]any{
		"runId":      inst.RunID,
		"workflowId": inst.WorkflowID,
		"version":    inst.Version,
		"status":     inst.Status.String(),
		"currentStep": inst.CurrentStepID,
	}
	if inst.Error != nil {
		out["error"] = inst.Error
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
