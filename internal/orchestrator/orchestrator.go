// Package orchestrator drives one benchmark job end to end: allocation, head
// infrastructure, worker launch, readiness, frontend placement, the benchmark
// phase, and exactly one teardown regardless of how the job ends.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benchctl/benchctl/internal/backend"
	"github.com/benchctl/benchctl/internal/config"
	"github.com/benchctl/benchctl/internal/harness"
	"github.com/benchctl/benchctl/internal/logging"
	"github.com/benchctl/benchctl/internal/registry"
	"github.com/benchctl/benchctl/internal/runtime"
	"github.com/benchctl/benchctl/internal/status"
	"github.com/benchctl/benchctl/internal/topology"
	"github.com/benchctl/benchctl/pkg/models"
)

// ReadinessProbe supplies the endpoint-ready signals the run blocks on.
type ReadinessProbe interface {
	WaitForPort(ctx context.Context, host string, port int) error
	WaitForHTTP(ctx context.Context, url string) error
}

// StatusReporter pushes stage transitions to external trackers.
type StatusReporter interface {
	Report(ctx context.Context, stage status.Stage, st status.Status, detail string)
}

// Orchestrator composes the engine's components into the job state machine.
type Orchestrator struct {
	cfg      *config.Config
	rc       *runtime.Context
	registry *registry.Registry
	backend  backend.Backend
	frontend *backend.Frontend
	prober   ReadinessProbe
	reporter StatusReporter
	harness  harness.Runner

	grace            time.Duration
	readinessTimeout time.Duration
	infraTimeout     time.Duration
	readyFn          func(bool)
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithGracePeriod overrides the teardown grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Orchestrator) { o.grace = d }
}

// WithReadinessTimeout overrides the per-endpoint readiness wait bound.
func WithReadinessTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.readinessTimeout = d }
}

// WithInfraTimeout overrides the head-infrastructure readiness bound.
func WithInfraTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.infraTimeout = d }
}

// WithReadyFunc registers a callback invoked once the serving endpoint is
// healthy and again when teardown begins.
func WithReadyFunc(fn func(bool)) Option {
	return func(o *Orchestrator) { o.readyFn = fn }
}

// New wires an orchestrator from its collaborators.
func New(
	cfg *config.Config,
	rc *runtime.Context,
	reg *registry.Registry,
	b backend.Backend,
	f *backend.Frontend,
	prober ReadinessProbe,
	reporter StatusReporter,
	runner harness.Runner,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:              cfg,
		rc:               rc,
		registry:         reg,
		backend:          b,
		frontend:         f,
		prober:           prober,
		reporter:         reporter,
		harness:          runner,
		grace:            30 * time.Second,
		readinessTimeout: 30 * time.Minute,
		infraTimeout:     2 * time.Minute,
		readyFn:          func(bool) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the whole job. It always tears down the process set exactly
// once, whether the run completes, a process fails mid-flight, or the
// context is cancelled, and returns the first error observed.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go o.registry.MonitorLoop(runCtx)

	// Exactly one consumer of the failure channel: the first failure
	// cancels the run, teardown below handles the rest.
	var failureMu sync.Mutex
	var firstFailure *registry.Failure
	go func() {
		select {
		case f := <-o.registry.Failures():
			failureMu.Lock()
			firstFailure = &f
			failureMu.Unlock()
			cancel()
		case <-runCtx.Done():
		}
	}()

	o.reporter.Report(runCtx, status.StageStarting, status.StatusRunning, "")
	runErr := o.run(runCtx)

	// Teardown uses a fresh context: the run context is typically already
	// cancelled by the time we get here.
	teardownCtx, teardownCancel := context.WithTimeout(context.Background(), o.grace+time.Minute)
	defer teardownCancel()

	o.reporter.Report(teardownCtx, status.StageCleanup, status.StatusRunning, "")
	if err := o.registry.Shutdown(teardownCtx, o.grace); err != nil {
		logging.Warn(teardownCtx, "teardown error", "error", err.Error())
	}

	failureMu.Lock()
	failure := firstFailure
	failureMu.Unlock()

	switch {
	case failure != nil:
		o.reporter.Report(teardownCtx, status.StageCleanup, status.StatusFailed,
			fmt.Sprintf("%s on %s: %v", failure.Name, failure.Node, failure.Err))
		return fmt.Errorf("process %s on %s failed: %w", failure.Name, failure.Node, failure.Err)
	case runErr != nil:
		o.reporter.Report(teardownCtx, status.StageCleanup, status.StatusFailed, runErr.Error())
		return runErr
	default:
		o.reporter.Report(teardownCtx, status.StageCleanup, status.StatusCompleted, "")
		return nil
	}
}

func (o *Orchestrator) run(ctx context.Context) error {
	if err := o.rc.EnsureDirs(); err != nil {
		return err
	}

	topo := o.cfg.Resources.ToTopology()
	endpoints, err := topology.Allocate(topo, o.rc.Nodes)
	if err != nil {
		return err
	}

	eventPorts := topology.AssignPorts(endpoints, o.cfg.Ports.EventBase,
		o.cfg.Backend.KVEvents.EnabledModes())

	plan, err := topology.PlaceFrontends(o.cfg.Frontend.Routers, o.rc.Nodes)
	if err != nil {
		return err
	}

	if err := o.launchInfra(ctx); err != nil {
		return err
	}
	leaders, err := o.launchWorkers(ctx, endpoints, eventPorts)
	if err != nil {
		return err
	}
	if err := o.waitForWorkers(ctx, leaders); err != nil {
		return err
	}
	if err := o.launchFrontends(ctx, plan, endpoints); err != nil {
		return err
	}
	o.readyFn(true)
	defer o.readyFn(false)

	o.reporter.Report(ctx, status.StageBenchmark, status.StatusRunning, "")
	if err := o.harness.Run(ctx, o.rc); err != nil {
		return err
	}
	return nil
}

// launchInfra starts the message broker and coordination store on the head
// node and blocks until both accept connections. Workers depend on them at
// startup.
func (o *Orchestrator) launchInfra(ctx context.Context) error {
	o.reporter.Report(ctx, status.StageInfra, status.StatusRunning, "")

	head := o.rc.HeadNode()
	for _, spec := range []models.LaunchSpec{backend.NATSSpec(o.rc), backend.EtcdSpec(o.rc)} {
		p := registry.Process{
			Endpoint: models.Endpoint{Mode: models.ModeInfra, Nodes: []string{head}},
			Spec:     spec,
		}
		if err := o.registry.Launch(ctx, p); err != nil {
			return err
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, o.infraTimeout)
	defer cancel()
	for _, svc := range []struct {
		name string
		port int
	}{{"nats", backend.NATSPort}, {"etcd", backend.EtcdPort}} {
		if err := o.prober.WaitForPort(probeCtx, head, svc.port); err != nil {
			return fmt.Errorf("head infrastructure %s never became ready: %w", svc.name, err)
		}
		if err := o.registry.MarkReady(svc.name); err != nil {
			return err
		}
	}
	return nil
}

// leaderProc records what the readiness stage needs for one endpoint.
type leaderProc struct {
	endpoint   models.Endpoint
	name       string
	systemPort int
}

// launchWorkers launches every rank of every worker endpoint in allocation
// order. Each process gets a unique runtime control port; endpoint leaders
// additionally carry their ledger-assigned event port.
func (o *Orchestrator) launchWorkers(
	ctx context.Context,
	endpoints []models.Endpoint,
	eventPorts map[string]int,
) ([]leaderProc, error) {
	o.reporter.Report(ctx, status.StageWorkers, status.StatusRunning, "")

	var leaders []leaderProc
	systemPort := o.cfg.Ports.SystemBase

	for _, ep := range endpoints {
		for rank := range ep.Nodes {
			opts := backend.SpecOptions{SystemPort: systemPort}
			if rank == 0 {
				opts.EventPort = eventPorts[ep.Name()]
			}

			spec, err := o.backend.BuildLaunchSpec(ep, rank, o.rc, opts)
			if err != nil {
				return nil, err
			}

			p := registry.Process{
				Endpoint:  ep,
				Rank:      rank,
				Spec:      spec,
				EventPort: opts.EventPort,
			}
			if err := o.registry.Launch(ctx, p); err != nil {
				return nil, err
			}

			if rank == 0 {
				leaders = append(leaders, leaderProc{
					endpoint:   ep,
					name:       spec.Name,
					systemPort: systemPort,
				})
			}
			systemPort++
		}
	}
	return leaders, nil
}

// waitForWorkers blocks until every endpoint leader answers on its runtime
// control port, then records readiness with the registry.
func (o *Orchestrator) waitForWorkers(ctx context.Context, leaders []leaderProc) error {
	probeCtx, cancel := context.WithTimeout(ctx, o.readinessTimeout)
	defer cancel()

	for _, leader := range leaders {
		epCtx := logging.WithEndpoint(probeCtx, leader.endpoint.Name())
		logging.Info(epCtx, "waiting for endpoint readiness",
			"node", leader.endpoint.Leader(), "port", leader.systemPort)

		if err := o.prober.WaitForPort(probeCtx, leader.endpoint.Leader(), leader.systemPort); err != nil {
			return fmt.Errorf("endpoint %s never became ready: %w", leader.endpoint.Name(), err)
		}
		if err := o.registry.MarkReady(leader.name); err != nil {
			return err
		}
	}
	return nil
}

// launchFrontends places the routers and, with more than one router, the
// load balancer in front of them, then waits for the public endpoint.
func (o *Orchestrator) launchFrontends(
	ctx context.Context,
	plan topology.FrontendPlan,
	endpoints []models.Endpoint,
) error {
	o.reporter.Report(ctx, status.StageFrontend, status.StatusRunning, "")

	targets := make([]backend.WorkerTarget, 0, len(endpoints))
	for _, ep := range endpoints {
		targets = append(targets, backend.WorkerTarget{
			Mode:          ep.Mode,
			Host:          ep.Leader(),
			Port:          o.cfg.Ports.Server,
			BootstrapPort: o.cfg.Ports.Bootstrap,
		})
	}

	for _, router := range plan.Routers {
		spec, err := o.frontend.RouterSpec(router, targets, o.rc)
		if err != nil {
			return err
		}
		p := registry.Process{Endpoint: router, Spec: spec}
		if err := o.registry.Launch(ctx, p); err != nil {
			return err
		}
	}

	publicHost := plan.Routers[0].Leader()
	if plan.HasLoadBalancer() {
		routerAddrs := make([]string, 0, len(plan.Routers))
		for _, router := range plan.Routers {
			routerAddrs = append(routerAddrs, fmt.Sprintf("%s:%d", router.Leader(), o.cfg.Ports.HTTP))
		}

		confPath := filepath.Join(o.rc.LogDir, "nginx.conf")
		conf := backend.RenderNginxConfig(routerAddrs, o.cfg.Ports.HTTP+1)
		if err := os.WriteFile(confPath, []byte(conf), 0o644); err != nil {
			return fmt.Errorf("failed to write load balancer config: %w", err)
		}

		spec := backend.LoadBalancerSpec(plan.LoadBalancerNode, confPath, o.rc)
		p := registry.Process{
			Endpoint: models.Endpoint{Mode: models.ModeFrontend, Nodes: []string{plan.LoadBalancerNode}},
			Spec:     spec,
		}
		if err := o.registry.Launch(ctx, p); err != nil {
			return err
		}
		publicHost = plan.LoadBalancerNode
	}

	probeCtx, cancel := context.WithTimeout(ctx, o.readinessTimeout)
	defer cancel()

	publicPort := o.cfg.Ports.HTTP
	if plan.HasLoadBalancer() {
		publicPort = o.cfg.Ports.HTTP + 1
	}
	url := fmt.Sprintf("http://%s:%d/health", publicHost, publicPort)
	if err := o.prober.WaitForHTTP(probeCtx, url); err != nil {
		return fmt.Errorf("frontend never became healthy: %w", err)
	}

	for _, router := range plan.Routers {
		if err := o.registry.MarkReady(router.Name()); err != nil {
			return err
		}
	}
	logging.Info(ctx, "serving endpoint ready", "url", url)
	return nil
}
