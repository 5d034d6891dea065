// Command workflowctl registers, runs, resumes, and inspects
// workflow-engine workflows from the command line.
package main

import (
	"context"
	"os"

	"github.com/driftkit-go/workflow-engine/internal/cli"
)

// Build info, set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx := context.Background()
	if err := cli.Execute(ctx, cli.BuildInfo{Version: version, Commit: commit, Date: date}); err != nil {
		os.Exit(1)
	}
}
