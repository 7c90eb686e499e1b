// Package submit drives the submission side of a benchmark run: it expands
// sweep configs into a job family, writes the per-job artifact directory
// (config snapshot, batch script, run metadata), and hands each script to the
// scheduler. Dry runs stop after the artifacts.
package submit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/benchctl/benchctl/internal/config"
	"github.com/benchctl/benchctl/internal/logging"
	"github.com/benchctl/benchctl/internal/slurm"
	"github.com/benchctl/benchctl/internal/status"
)

// ScriptRenderer produces the batch script text for one job. Script content
// is site-specific and supplied by the caller.
type ScriptRenderer interface {
	Render(cfg *config.Config, nodes int) (string, error)
}

// SubmitFunc submits a batch script and returns the scheduler job ID.
type SubmitFunc func(ctx context.Context, scriptPath string, opts slurm.SubmitOptions) (string, error)

// Result describes one prepared (and possibly submitted) job.
type Result struct {
	Name       string
	RunID      string
	JobID      string // empty on dry runs
	Dir        string
	ScriptPath string
	Nodes      int
}

// Manager runs the submission flow.
type Manager struct {
	renderer ScriptRenderer
	submit   SubmitFunc
	now      func() time.Time
	newRunID func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithSubmitFunc overrides the scheduler submission, for tests.
func WithSubmitFunc(f SubmitFunc) Option {
	return func(m *Manager) { m.submit = f }
}

// WithTimeFunc injects the clock, for tests.
func WithTimeFunc(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRunIDFunc injects run-ID generation, for tests.
func WithRunIDFunc(f func() string) Option {
	return func(m *Manager) { m.newRunID = f }
}

// NewManager creates a submission manager using the given script renderer.
func NewManager(renderer ScriptRenderer, opts ...Option) *Manager {
	m := &Manager{
		renderer: renderer,
		submit:   slurm.Submit,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// metadata is the run-metadata artifact written next to each job's script.
type metadata struct {
	RunID     string    `yaml:"run_id"`
	Name      string    `yaml:"name"`
	Model     string    `yaml:"model"`
	Topology  string    `yaml:"topology"`
	Nodes     int       `yaml:"nodes"`
	CreatedAt time.Time `yaml:"created_at"`
	JobID     string    `yaml:"job_id,omitempty"`
}

// DryRun expands the config and writes every job's artifact directory
// without touching the scheduler.
func (m *Manager) DryRun(ctx context.Context, cfg *config.Config, outDir string) ([]Result, error) {
	return m.prepareAll(ctx, cfg, outDir)
}

// Apply expands the config, writes every job's artifacts, submits each
// script, and registers the job with any configured tracking endpoints.
// It stops at the first submission failure, returning the jobs submitted
// so far alongside the error.
func (m *Manager) Apply(ctx context.Context, cfg *config.Config, outDir string) ([]Result, error) {
	results, err := m.prepareAll(ctx, cfg, outDir)
	if err != nil {
		return nil, err
	}

	jobs := config.Expand(*cfg)
	submitted := make([]Result, 0, len(results))
	for i := range results {
		r := results[i]
		jc := jobs[i]

		opts := slurm.SubmitOptions{
			Account:   jc.Cluster.Account,
			Partition: jc.Cluster.Partition,
			TimeLimit: jc.Cluster.TimeLimit,
			Nodes:     r.Nodes,
			JobName:   jc.Name,
		}
		jobID, err := m.submit(ctx, r.ScriptPath, opts)
		if err != nil {
			return submitted, fmt.Errorf("submission of %s failed: %w", jc.Name, err)
		}
		r.JobID = jobID

		// Rewrite the metadata now that the scheduler assigned an ID.
		if err := m.writeMetadata(r, &jc); err != nil {
			return submitted, err
		}
		m.registerJob(ctx, r, &jc)

		logging.Info(ctx, "job submitted",
			"name", jc.Name, "job_id", jobID, "nodes", r.Nodes)
		submitted = append(submitted, r)
	}
	return submitted, nil
}

// prepareAll validates, expands, and writes artifacts for every job in the
// family. Nothing is written until the root config validates.
func (m *Manager) prepareAll(ctx context.Context, cfg *config.Config, outDir string) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jobs := config.Expand(*cfg)
	results := make([]Result, 0, len(jobs))
	for i := range jobs {
		r, err := m.prepare(ctx, &jobs[i], outDir)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (m *Manager) prepare(ctx context.Context, jc *config.Config, outDir string) (Result, error) {
	nodes := jc.Resources.ToTopology().DedicatedNodes()

	r := Result{
		Name:  jc.Name,
		RunID: m.newRunID(),
		Dir:   filepath.Join(outDir, jc.Name),
		Nodes: nodes,
	}
	r.ScriptPath = filepath.Join(r.Dir, "job.sbatch")

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	snapshot, err := yaml.Marshal(jc)
	if err != nil {
		return Result{}, fmt.Errorf("failed to serialize config for %s: %w", jc.Name, err)
	}
	if err := os.WriteFile(filepath.Join(r.Dir, "job.yaml"), snapshot, 0o644); err != nil {
		return Result{}, err
	}

	script, err := m.renderer.Render(jc, nodes)
	if err != nil {
		return Result{}, fmt.Errorf("failed to render batch script for %s: %w", jc.Name, err)
	}
	if err := os.WriteFile(r.ScriptPath, []byte(script), 0o755); err != nil {
		return Result{}, err
	}

	if err := m.writeMetadata(r, jc); err != nil {
		return Result{}, err
	}

	logging.Debug(ctx, "job artifacts written", "name", jc.Name, "dir", r.Dir)
	return r, nil
}

func (m *Manager) writeMetadata(r Result, jc *config.Config) error {
	md := metadata{
		RunID:     r.RunID,
		Name:      jc.Name,
		Model:     jc.Model.Path,
		Topology:  topologyLabel(jc),
		Nodes:     r.Nodes,
		CreatedAt: m.now(),
		JobID:     r.JobID,
	}
	out, err := yaml.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata for %s: %w", jc.Name, err)
	}
	return os.WriteFile(filepath.Join(r.Dir, "metadata.yaml"), out, 0o644)
}

// registerJob announces the new job to the configured trackers. Best effort;
// never fails the submission.
func (m *Manager) registerJob(ctx context.Context, r Result, jc *config.Config) {
	endpoints := jc.Reporting.Status.All()
	if len(endpoints) == 0 {
		return
	}
	reporter := status.NewReporter(endpoints, r.JobID, status.WithTimeFunc(m.now))
	reporter.CreateJobRecord(ctx, status.JobRecord{
		Name:     jc.Name,
		Model:    jc.Model.Path,
		Topology: topologyLabel(jc),
	})
}

// topologyLabel renders the request shape the way log directories do:
// "2P_2D" for disaggregated jobs, "4A" for aggregated ones.
func topologyLabel(jc *config.Config) string {
	if jc.Resources.Aggregated.Workers > 0 {
		return fmt.Sprintf("%dA", jc.Resources.Aggregated.Workers)
	}
	return fmt.Sprintf("%dP_%dD", jc.Resources.Prefill.Workers, jc.Resources.Decode.Workers)
}
