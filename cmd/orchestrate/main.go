// Package main implements the in-allocation orchestrator binary. The
// scheduler starts it as the batch job's head process; it discovers the
// allocation from the environment, launches the serving topology, runs the
// benchmark phase, and tears everything down before the allocation ends.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benchctl/benchctl/internal/api"
	"github.com/benchctl/benchctl/internal/backend"
	"github.com/benchctl/benchctl/internal/config"
	"github.com/benchctl/benchctl/internal/harness"
	"github.com/benchctl/benchctl/internal/launcher"
	"github.com/benchctl/benchctl/internal/logging"
	"github.com/benchctl/benchctl/internal/orchestrator"
	"github.com/benchctl/benchctl/internal/probe"
	"github.com/benchctl/benchctl/internal/registry"
	"github.com/benchctl/benchctl/internal/runtime"
	"github.com/benchctl/benchctl/internal/slurm"
	"github.com/benchctl/benchctl/internal/status"
)

const apiShutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("BENCHCTL_CONFIG"), "path to the job config file")
	gracePeriod := flag.Duration("grace-period", 30*time.Second, "graceful teardown window before force kill")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup(logging.Config{})
		logging.Error(context.Background(), "failed to load config", "error", err.Error())
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}

	ctx := context.Background()
	if err := run(ctx, cfg, *gracePeriod); err != nil {
		logging.Error(ctx, "job failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, grace time.Duration) error {
	jobID, err := slurm.JobID()
	if err != nil {
		return err
	}
	nodes, err := slurm.NodeList()
	if err != nil {
		return err
	}

	rc, err := runtime.Resolve(cfg, jobID, nodes)
	if err != nil {
		return err
	}

	ctx = logging.WithJobID(ctx, jobID)
	logging.Info(ctx, "allocation resolved",
		"nodes", len(rc.Nodes),
		"head_node", rc.HeadNode(),
		"model", rc.ModelPath,
		"log_dir", rc.LogDir)

	var srunOpts []launcher.SrunOption
	if rc.Container != "" {
		srunOpts = append(srunOpts, launcher.WithContainer(rc.Container))
	}
	reg := registry.New(launcher.NewSrun(srunOpts...))

	b, err := backend.New(cfg)
	if err != nil {
		return err
	}
	f, err := backend.NewFrontend(cfg)
	if err != nil {
		return err
	}
	runner, err := harness.New(cfg)
	if err != nil {
		return err
	}

	reporter := status.NewReporter(cfg.Reporting.Status.All(), jobID)

	server := api.New(reg, rc)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "api server error", "error", err.Error())
		}
	}()

	orch := orchestrator.New(cfg, rc, reg, b, f, probe.New(), reporter, runner,
		orchestrator.WithGracePeriod(grace),
		orchestrator.WithReadyFunc(server.SetReady))

	// SIGTERM arrives when the allocation's time limit is about to expire;
	// both it and SIGINT funnel into the same teardown path.
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := orch.Run(runCtx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn(ctx, "api server shutdown error", "error", err.Error())
	}

	return runErr
}
