package launcher

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/benchctl/benchctl/internal/registry"
	"github.com/benchctl/benchctl/pkg/models"
)

// Local starts processes directly on the current host. Used for single-node
// runs and as the test double's real counterpart.
type Local struct{}

// NewLocal returns a local launch primitive.
func NewLocal() *Local {
	return &Local{}
}

// Spawn starts the spec's command on the local host, ignoring its node.
func (l *Local) Spawn(ctx context.Context, spec models.LaunchSpec) (registry.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("spec %s has an empty command", spec.Name)
	}

	stdout, stderr, files, err := openLogFiles(spec)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Env = mergedEnviron(spec.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		for _, f := range files {
			f.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}
	return newExecHandle(cmd, files), nil
}
