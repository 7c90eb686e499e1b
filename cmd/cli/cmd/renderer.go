package cmd

import (
	"fmt"
	"os"

	"github.com/benchctl/benchctl/internal/config"
)

// fileRenderer supplies the site-provided batch script verbatim. Script
// content is cluster-specific and owned by the operator; benchctl only
// carries it into each job's artifact directory.
type fileRenderer struct {
	path string
}

func (f *fileRenderer) Render(*config.Config, int) (string, error) {
	if f.path == "" {
		return "", fmt.Errorf("no batch script given; set --script or BENCHCTL_SCRIPT")
	}
	script, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("failed to read batch script: %w", err)
	}
	return string(script), nil
}
