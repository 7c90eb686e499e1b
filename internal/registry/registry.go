// Package registry owns the supervised process set of one job: it launches
// processes through the cluster launch primitive, tracks their state machine,
// detects failures from a concurrent monitor loop, and coordinates teardown.
//
// The process table is the only mutable shared state in the engine. The
// monitor loop and the orchestrator-driven shutdown path both mutate it under
// one mutex; snapshots never observe a torn state.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benchctl/benchctl/internal/logging"
	"github.com/benchctl/benchctl/internal/metrics"
	"github.com/benchctl/benchctl/pkg/models"
)

// State is a process's position in its lifecycle.
type State string

const (
	StatePending     State = "pending"
	StateLaunched    State = "launched"
	StateReady       State = "ready"
	StateFailed      State = "failed"
	StateTerminating State = "terminating"
	StateTerminated  State = "terminated"
)

// terminal reports whether no further transitions are possible.
func (s State) terminal() bool {
	return s == StateFailed || s == StateTerminated
}

// Handle is the registry's view of a spawned OS process.
type Handle interface {
	// Done closes when the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error; only meaningful after Done closes.
	Err() error
	// Terminate requests graceful shutdown.
	Terminate() error
	// Kill forces the process down.
	Kill() error
}

// Spawner is the cluster launch primitive.
type Spawner interface {
	Spawn(ctx context.Context, spec models.LaunchSpec) (Handle, error)
}

// Process binds a launch spec to its endpoint identity for supervision.
type Process struct {
	Endpoint  models.Endpoint
	Rank      int
	Spec      models.LaunchSpec
	EventPort int
}

// Failure identifies a process that exited without a stop request.
type Failure struct {
	Name string
	Node string
	Mode models.Mode
	Err  error
}

type entry struct {
	process       Process
	state         State
	handle        Handle
	stopRequested bool
	launchedAt    time.Time
	exitErr       error
}

// ProcessStatus is a point-in-time view of one supervised process.
type ProcessStatus struct {
	Name  string      `json:"name"`
	Node  string      `json:"node"`
	Mode  models.Mode `json:"mode"`
	Rank  int         `json:"rank"`
	State State       `json:"state"`
	Error string      `json:"error,omitempty"`
}

// Registry supervises the launched process set of one job.
type Registry struct {
	spawner  Spawner
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	procs   map[string]*entry
	order   []string // launch order; teardown walks it backwards
	tainted bool

	failures chan Failure

	shutdownOnce sync.Once
	shutdownDone chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithMonitorInterval overrides the liveness poll interval.
func WithMonitorInterval(d time.Duration) Option {
	return func(r *Registry) { r.interval = d }
}

// WithTimeFunc injects the clock, for tests.
func WithTimeFunc(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a registry backed by the given launch primitive.
func New(spawner Spawner, opts ...Option) *Registry {
	r := &Registry{
		spawner:      spawner,
		interval:     2 * time.Second,
		now:          time.Now,
		procs:        make(map[string]*entry),
		failures:     make(chan Failure, 64),
		shutdownDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a process for supervision in state Pending. The same name
// may only be registered once.
func (r *Registry) Add(p Process) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Spec.Name
	if _, exists := r.procs[name]; exists {
		return &DuplicateProcessError{Name: name}
	}
	r.procs[name] = &entry{process: p, state: StatePending}
	metrics.UpdateProcessState(string(p.Endpoint.Mode), "", string(StatePending))
	return nil
}

// Launch registers the process and spawns it. A spawn error marks the
// process Failed immediately; it never reaches Launched.
func (r *Registry) Launch(ctx context.Context, p Process) error {
	if err := r.Add(p); err != nil {
		return err
	}

	handle, err := r.spawner.Spawn(ctx, p.Spec)

	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.procs[p.Spec.Name]

	if err != nil {
		r.setStateLocked(e, StateFailed)
		e.exitErr = err
		r.tainted = true
		metrics.RecordLaunchFailure(string(p.Endpoint.Mode))
		return &LaunchError{Name: p.Spec.Name, Node: p.Spec.Node, Err: err}
	}

	e.handle = handle
	e.launchedAt = r.now()
	r.setStateLocked(e, StateLaunched)
	r.order = append(r.order, p.Spec.Name)
	metrics.RecordLaunched(string(p.Endpoint.Mode))

	logging.Info(ctx, "process launched",
		"process", p.Spec.Name, "node", p.Spec.Node)
	return nil
}

// MarkReady records the caller-supplied readiness signal.
func (r *Registry) MarkReady(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.procs[name]
	if !ok {
		return &UnknownProcessError{Name: name}
	}
	if e.state != StateLaunched {
		return nil
	}
	r.setStateLocked(e, StateReady)
	metrics.RecordReadinessWait(string(e.process.Endpoint.Mode), r.now().Sub(e.launchedAt))
	return nil
}

// Failures delivers processes detected as failed by the monitor loop. The
// registry reports; the kill-all policy belongs to the orchestrator.
func (r *Registry) Failures() <-chan Failure {
	return r.failures
}

// Tainted reports whether any process has failed.
func (r *Registry) Tainted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tainted
}

// MonitorLoop polls process liveness until the context is cancelled. Run it
// in its own goroutine alongside the orchestrator's driving flow.
func (r *Registry) MonitorLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep checks every supervised process for exit and classifies it. Exits
// after a stop request are Terminated; everything else is a failure.
func (r *Registry) sweep(ctx context.Context) {
	metrics.RecordMonitorCheck()

	r.mu.Lock()
	var failed []Failure
	for name, e := range r.procs {
		if e.handle == nil || e.state.terminal() || e.state == StatePending {
			continue
		}
		select {
		case <-e.handle.Done():
		default:
			continue
		}

		if e.stopRequested {
			r.setStateLocked(e, StateTerminated)
			metrics.RecordTerminated(string(e.process.Endpoint.Mode))
			continue
		}

		exitErr := e.handle.Err()
		if exitErr == nil {
			exitErr = errors.New("process exited unexpectedly")
		}
		e.exitErr = exitErr
		r.setStateLocked(e, StateFailed)
		r.tainted = true
		metrics.RecordFailed(string(e.process.Endpoint.Mode))
		failed = append(failed, Failure{
			Name: name,
			Node: e.process.Spec.Node,
			Mode: e.process.Endpoint.Mode,
			Err:  exitErr,
		})
	}
	r.mu.Unlock()

	for _, f := range failed {
		logging.Error(ctx, "process failed",
			"process", f.Name, "node", f.Node, "error", f.Err.Error())
		select {
		case r.failures <- f:
		default:
			// Channel full: the first failure already triggered teardown.
		}
	}
}

// Shutdown tears the whole process set down: graceful stop in reverse launch
// order, a bounded wait for voluntary exit, then force-kill of stragglers.
// Safe to call concurrently from the failure path and an external
// cancellation signal; only the first call acts, later calls wait for it.
func (r *Registry) Shutdown(ctx context.Context, grace time.Duration) error {
	r.shutdownOnce.Do(func() {
		defer close(r.shutdownDone)
		start := r.now()
		r.shutdown(ctx, grace)
		metrics.RecordTeardown(r.now().Sub(start))
	})
	<-r.shutdownDone
	return nil
}

func (r *Registry) shutdown(ctx context.Context, grace time.Duration) {
	r.mu.Lock()
	var stopping []*entry
	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.procs[r.order[i]]
		if e.state.terminal() || e.handle == nil {
			continue
		}
		e.stopRequested = true
		r.setStateLocked(e, StateTerminating)
		stopping = append(stopping, e)
	}
	r.mu.Unlock()

	for _, e := range stopping {
		if err := e.handle.Terminate(); err != nil {
			logging.Warn(ctx, "graceful stop failed",
				"process", e.process.Spec.Name, "error", err.Error())
		}
	}

	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	for _, e := range stopping {
		select {
		case <-e.handle.Done():
		case <-deadline.C:
			r.killRemaining(ctx, stopping)
			return
		case <-ctx.Done():
			r.killRemaining(ctx, stopping)
			return
		}
	}
	r.markTerminated(stopping)
}

func (r *Registry) killRemaining(ctx context.Context, stopping []*entry) {
	for _, e := range stopping {
		select {
		case <-e.handle.Done():
			continue
		default:
		}
		if err := e.handle.Kill(); err != nil {
			logging.Warn(ctx, "force kill failed",
				"process", e.process.Spec.Name, "error", err.Error())
		}
	}
	r.markTerminated(stopping)
}

func (r *Registry) markTerminated(stopping []*entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range stopping {
		if e.state != StateTerminated {
			r.setStateLocked(e, StateTerminated)
			metrics.RecordTerminated(string(e.process.Endpoint.Mode))
		}
	}
}

// Snapshot returns a consistent point-in-time view of all process states in
// launch order, registered-but-unlaunched processes last.
func (r *Registry) Snapshot() []ProcessStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(r.order))
	statuses := make([]ProcessStatus, 0, len(r.procs))
	appendStatus := func(name string) {
		e := r.procs[name]
		s := ProcessStatus{
			Name:  name,
			Node:  e.process.Spec.Node,
			Mode:  e.process.Endpoint.Mode,
			Rank:  e.process.Rank,
			State: e.state,
		}
		if e.exitErr != nil {
			s.Error = e.exitErr.Error()
		}
		statuses = append(statuses, s)
	}

	for _, name := range r.order {
		appendStatus(name)
		seen[name] = true
	}
	for name := range r.procs {
		if !seen[name] {
			appendStatus(name)
		}
	}
	return statuses
}

// setStateLocked transitions an entry and keeps the state gauges current.
// Callers hold r.mu.
func (r *Registry) setStateLocked(e *entry, next State) {
	mode := string(e.process.Endpoint.Mode)
	metrics.UpdateProcessState(mode, string(e.state), string(next))
	e.state = next
}
