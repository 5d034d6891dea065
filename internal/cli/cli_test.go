package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkflowFixture(t *testing.T, dir string) {
	t.Helper()
	contents := `
id: smoke
version: v1
steps:
  - id: start
    executor: echo
    initial: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smoke.yaml"), []byte(contents), 0o644))
}

func TestRunCommandPrintsCompletedSummary(t *testing.T) {
	workDir := t.TempDir()
	workflowsDir := filepath.Join(workDir, "workflows")
	require.NoError(t, os.MkdirAll(workflowsDir, 0o755))
	writeWorkflowFixture(t, workflowsDir)

	configPath := filepath.Join(workDir, "config.yaml")
	dbPath := filepath.Join(workDir, "run.db")
	require.NoError(t, os.WriteFile(configPath, []byte(
		"store:\n  driver: sqlite\n  dsn: "+dbPath+"\nlog:\n  level: error\n"), 0o644))

	flags := &globalFlags{}
	root := newRootCmd(flags, BuildInfo{})

	var runOut bytes.Buffer
	root.SetOut(&runOut)
	root.SetErr(&runOut)
	root.SetIn(bytes.NewBufferString(`{"n":1}`))
	root.SetArgs([]string{
		"--config", configPath,
		"run", "smoke", "-",
		"--workflows-dir", workflowsDir,
	})

	err := root.ExecuteContext(context.Background())
	require.NoError(t, err)

	var summary map[string]any
	require.NoError(t, json.Unmarshal(runOut.Bytes(), &summary))
	assert.Equal(t, "smoke", summary["workflowId"])
	assert.Equal(t, "COMPLETED", summary["status"])
}

func TestSplitWorkflowRef(t *testing.T) {
	id, version := splitWorkflowRef("demo@v2")
	assert.Equal(t, "demo", id)
	assert.Equal(t, "v2", version)

	id, version = splitWorkflowRef("demo")
	assert.Equal(t, "demo", id)
	assert.Equal(t, "", version)
}

func TestRegisterCopiesWorkflowIntoWorkflowsDir(t *testing.T) {
	workDir := t.TempDir()
	srcDir := filepath.Join(workDir, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	writeWorkflowFixture(t, srcDir)

	workflowsDir := filepath.Join(workDir, "workflows")

	flags := &globalFlags{}
	root := newRootCmd(flags, BuildInfo{})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{
		"register", filepath.Join(srcDir, "smoke.yaml"),
		"--workflows-dir", workflowsDir,
	})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.FileExists(t, filepath.Join(workflowsDir, "smoke-v1.yaml"))
}
