package slurm

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// JobID returns the scheduler-assigned job identifier from the environment.
func JobID() (string, error) {
	if id := os.Getenv("SLURM_JOB_ID"); id != "" {
		return id, nil
	}
	if id := os.Getenv("SLURM_JOBID"); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("SLURM_JOB_ID is not set; not running inside a batch allocation")
}

// NodeList returns the ordered node set of the current allocation, expanded
// from the environment's compressed expression.
func NodeList() ([]string, error) {
	expr := os.Getenv("SLURM_JOB_NODELIST")
	if expr == "" {
		expr = os.Getenv("SLURM_NODELIST")
	}
	if expr == "" {
		return nil, fmt.Errorf("SLURM_JOB_NODELIST is not set; not running inside a batch allocation")
	}
	return ExpandNodeList(expr)
}

// SubmitOptions parameterize an sbatch submission.
type SubmitOptions struct {
	Account   string
	Partition string
	TimeLimit string
	Nodes     int
	JobName   string
}

var submittedJobRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// Submit runs sbatch on the given script and returns the new job's ID.
func Submit(ctx context.Context, scriptPath string, opts SubmitOptions) (string, error) {
	args := []string{"--parsable"}
	if opts.Account != "" {
		args = append(args, "--account", opts.Account)
	}
	if opts.Partition != "" {
		args = append(args, "--partition", opts.Partition)
	}
	if opts.TimeLimit != "" {
		args = append(args, "--time", opts.TimeLimit)
	}
	if opts.Nodes > 0 {
		args = append(args, "--nodes", fmt.Sprintf("%d", opts.Nodes))
	}
	if opts.JobName != "" {
		args = append(args, "--job-name", opts.JobName)
	}
	args = append(args, scriptPath)

	out, err := exec.CommandContext(ctx, "sbatch", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("sbatch failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	return parseSubmitOutput(string(out))
}

// parseSubmitOutput extracts the job ID from sbatch output, handling both
// --parsable ("12345" or "12345;cluster") and the default sentence form.
func parseSubmitOutput(out string) (string, error) {
	out = strings.TrimSpace(out)
	if m := submittedJobRe.FindStringSubmatch(out); m != nil {
		return m[1], nil
	}

	id, _, _ := strings.Cut(out, ";")
	id = strings.TrimSpace(id)
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("unexpected sbatch output %q", out)
		}
	}
	if id == "" {
		return "", fmt.Errorf("unexpected sbatch output %q", out)
	}
	return id, nil
}
