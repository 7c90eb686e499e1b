package launcher

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/benchctl/benchctl/internal/registry"
	"github.com/benchctl/benchctl/pkg/models"
)

// Srun places processes on allocation nodes through the scheduler's step
// launcher. Steps overlap within the allocation so many processes can share
// the nodes the job already holds.
type Srun struct {
	container string
}

// SrunOption configures the srun launch primitive.
type SrunOption func(*Srun)

// WithContainer runs every step inside the given container image.
func WithContainer(image string) SrunOption {
	return func(s *Srun) { s.container = image }
}

// NewSrun returns an srun-backed launch primitive.
func NewSrun(opts ...SrunOption) *Srun {
	s := &Srun{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn launches the spec as an overlapping single-task step pinned to the
// spec's node. The spec's environment is exported through the step.
func (s *Srun) Spawn(ctx context.Context, spec models.LaunchSpec) (registry.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("spec %s has an empty command", spec.Name)
	}

	stdout, stderr, files, err := openLogFiles(spec)
	if err != nil {
		return nil, err
	}

	args := []string{
		"--nodes=1",
		"--ntasks=1",
		"--overlap",
		"--export=ALL",
		"--nodelist=" + spec.Node,
		"--job-name=" + spec.Name,
	}
	if s.container != "" {
		args = append(args, "--container-image="+s.container)
	}
	args = append(args, spec.Command...)

	cmd := exec.Command("srun", args...)
	cmd.Env = mergedEnviron(spec.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		for _, f := range files {
			f.Close()
		}
		return nil, fmt.Errorf("failed to start srun step for %s: %w", spec.Name, err)
	}
	return newExecHandle(cmd, files), nil
}
