// Package runtime resolves every job-scoped derived value exactly once at
// startup. The resulting Context is immutable; all other components read from
// it and none recompute paths or addresses locally.
package runtime

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/benchctl/benchctl/internal/config"
	"github.com/benchctl/benchctl/pkg/models"
)

// Context is the single source of truth for a running job. Constructed once
// by Resolve and never mutated afterwards.
type Context struct {
	JobID string
	RunID string

	// Nodes is the ordered node list handed down by the batch scheduler.
	// The first node is the head node hosting shared infrastructure.
	Nodes []string

	ModelPath       string
	ServedModelName string
	Container       string

	LogDir     string
	ResultsDir string

	StartedAt time.Time
}

// Option customizes context resolution, mainly for tests.
type Option func(*resolver)

type resolver struct {
	now   func() time.Time
	runID func() string
}

// WithTimeFunc overrides the clock used for log directory timestamps.
func WithTimeFunc(now func() time.Time) Option {
	return func(r *resolver) { r.now = now }
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(r *resolver) { r.runID = func() string { return id } }
}

// Resolve builds the job context from the config and the scheduler-assigned
// job identity. It fails with ConfigResolutionError when the node list is
// empty or a model/container alias has no entry in the cluster alias table;
// resolution failure is fatal and never retried.
func Resolve(cfg *config.Config, jobID string, nodes []string, opts ...Option) (*Context, error) {
	r := &resolver{
		now:   time.Now,
		runID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	if jobID == "" {
		return nil, &ConfigResolutionError{Field: "job ID"}
	}
	if len(nodes) == 0 {
		return nil, &ConfigResolutionError{Field: "node list"}
	}

	modelPath, err := resolveAlias("model path", cfg.Model.Path, cfg.Cluster.ModelAliases)
	if err != nil {
		return nil, err
	}

	container := cfg.Model.Container
	if container != "" {
		container, err = resolveAlias("container", container, cfg.Cluster.ContainerAliases)
		if err != nil {
			return nil, err
		}
	}

	servedName := cfg.Model.ServedName
	if servedName == "" {
		servedName = path.Base(modelPath)
	}

	startedAt := r.now()
	logDir := filepath.Join(cfg.Cluster.LogDirBase, logDirName(cfg, jobID, startedAt))

	ordered := make([]string, len(nodes))
	copy(ordered, nodes)

	return &Context{
		JobID:           jobID,
		RunID:           r.runID(),
		Nodes:           ordered,
		ModelPath:       modelPath,
		ServedModelName: servedName,
		Container:       container,
		LogDir:          logDir,
		ResultsDir:      filepath.Join(logDir, "results"),
		StartedAt:       startedAt,
	}, nil
}

// resolveAlias maps a name through the alias table. Values containing a path
// separator are literal artifact paths and pass through unchanged.
func resolveAlias(field, value string, aliases map[string]string) (string, error) {
	if value == "" {
		return "", &ConfigResolutionError{Field: field}
	}
	if resolved, ok := aliases[value]; ok {
		return resolved, nil
	}
	if strings.Contains(value, "/") {
		return value, nil
	}
	return "", &ConfigResolutionError{Field: field, Value: value}
}

// logDirName encodes the topology shape into the directory name, e.g.
// "12345_2P_2D_20260823_141530" or "12345_1A_20260823_141530".
func logDirName(cfg *config.Config, jobID string, ts time.Time) string {
	stamp := ts.Format("20060102_150405")
	if cfg.Resources.Aggregated.Workers > 0 {
		return fmt.Sprintf("%s_%dA_%s", jobID, cfg.Resources.Aggregated.Workers, stamp)
	}
	return fmt.Sprintf("%s_%dP_%dD_%s",
		jobID, cfg.Resources.Prefill.Workers, cfg.Resources.Decode.Workers, stamp)
}

// HeadNode returns the node hosting shared infrastructure and router 0.
func (c *Context) HeadNode() string {
	return c.Nodes[0]
}

// EnsureDirs creates the log and results directories.
func (c *Context) EnsureDirs() error {
	for _, dir := range []string{c.LogDir, c.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// WorkerLogPath returns the log destination for one worker rank, named so
// concurrent workers never collide.
func (c *Context) WorkerLogPath(mode models.Mode, index, rank int, node string) string {
	return filepath.Join(c.LogDir,
		fmt.Sprintf("%s_%d_rank%d_%s_%s.log", mode, index, rank, node, c.JobID))
}

// FrontendLogPath returns the log destination for a router or load balancer.
func (c *Context) FrontendLogPath(name, node string) string {
	return filepath.Join(c.LogDir, fmt.Sprintf("%s_%s_%s.log", name, node, c.JobID))
}
