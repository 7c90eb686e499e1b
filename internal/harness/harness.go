// Package harness invokes the benchmark load generator once the serving
// endpoints are ready. The engine does not interpret benchmark output; it
// only waits for completion and then tears the job down.
package harness

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/benchctl/benchctl/internal/config"
	"github.com/benchctl/benchctl/internal/logging"
	"github.com/benchctl/benchctl/internal/runtime"
)

// Runner executes the benchmark phase of a job.
type Runner interface {
	Run(ctx context.Context, rc *runtime.Context) error
}

// New returns the runner for the configured benchmark type.
func New(cfg *config.Config) (Runner, error) {
	switch cfg.Benchmark.Type {
	case "manual":
		return &manualRunner{}, nil
	case "command":
		if len(cfg.Benchmark.Command) == 0 {
			return nil, fmt.Errorf("benchmark type %q requires a command", cfg.Benchmark.Type)
		}
		return &commandRunner{
			command: cfg.Benchmark.Command,
			env:     cfg.Benchmark.Env,
		}, nil
	default:
		return nil, fmt.Errorf("unknown benchmark type %q", cfg.Benchmark.Type)
	}
}

// manualRunner holds the serving topology up until the job is cancelled or
// times out; the operator drives load externally.
type manualRunner struct{}

func (m *manualRunner) Run(ctx context.Context, rc *runtime.Context) error {
	logging.Info(ctx, "manual benchmark mode: serving until job end", "log_dir", rc.LogDir)
	<-ctx.Done()
	return nil
}

// commandRunner executes the configured load generator and waits for it.
type commandRunner struct {
	command []string
	env     map[string]string
}

func (c *commandRunner) Run(ctx context.Context, rc *runtime.Context) error {
	logPath := filepath.Join(rc.ResultsDir, "benchmark.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open benchmark log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	for k, v := range c.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env,
		"BENCH_RESULTS_DIR="+rc.ResultsDir,
		"BENCH_JOB_ID="+rc.JobID,
		"BENCH_HEAD_NODE="+rc.HeadNode(),
	)

	logging.Info(ctx, "starting benchmark harness", "command", c.command[0])
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("benchmark harness failed: %w", err)
	}
	return nil
}
