package backend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benchctl/benchctl/internal/config"
	"github.com/benchctl/benchctl/internal/runtime"
	"github.com/benchctl/benchctl/pkg/models"
)

// WorkerTarget is one serving endpoint a router distributes traffic to.
type WorkerTarget struct {
	Mode          models.Mode
	Host          string
	Port          int
	BootstrapPort int
}

// URL returns the target's HTTP base URL.
func (t WorkerTarget) URL() string {
	return fmt.Sprintf("http://%s:%d", t.Host, t.Port)
}

var routerReserved = reservedSet(
	"host",
	"port",
	"http-port",
	"pd-disaggregation",
	"prefill",
	"decode",
	"worker-urls",
)

// Frontend builds launch specs for the request-routing tier.
type Frontend struct {
	cfg *config.Config
}

// NewFrontend returns the router spec builder for the configured frontend
// type, or UnsupportedBackendError for unknown types.
func NewFrontend(cfg *config.Config) (*Frontend, error) {
	switch cfg.Frontend.Type {
	case "sglang_router", "dynamo":
		return &Frontend{cfg: cfg}, nil
	default:
		return nil, &UnsupportedBackendError{Name: cfg.Frontend.Type}
	}
}

// RouterSpec builds the launch spec for one router. Disaggregated target
// sets run the router in prefill/decode mode, with prefill targets carrying
// their bootstrap port; aggregated sets pass plain worker URLs.
func (f *Frontend) RouterSpec(ep models.Endpoint, targets []WorkerTarget, rc *runtime.Context) (models.LaunchSpec, error) {
	if len(targets) == 0 {
		return models.LaunchSpec{}, fmt.Errorf("router %s has no worker targets", ep.Name())
	}

	var cmd []string
	switch f.cfg.Frontend.Type {
	case "sglang_router":
		cmd = f.sglangRouterCommand(targets)
	case "dynamo":
		cmd = []string{
			"python3", "-m", "dynamo.frontend",
			"--http-port", strconv.Itoa(f.cfg.Ports.HTTP),
		}
	}

	userFlags, err := composeFlags(f.cfg.Frontend.Args, routerReserved)
	if err != nil {
		return models.LaunchSpec{}, err
	}
	cmd = append(cmd, userFlags...)

	node := ep.Leader()
	head := rc.HeadNode()
	env := models.MergeEnv(map[string]string{
		"HEAD_NODE_IP":   head,
		"ETCD_ENDPOINTS": fmt.Sprintf("http://%s:2379", head),
		"NATS_SERVER":    fmt.Sprintf("nats://%s:4222", head),
	}, f.cfg.Env.Global)

	logPath := rc.FrontendLogPath(ep.Name(), node)
	return models.LaunchSpec{
		Name:       ep.Name(),
		Node:       node,
		Command:    cmd,
		Env:        env,
		StdoutPath: logPath,
		StderrPath: logPath,
	}, nil
}

func (f *Frontend) sglangRouterCommand(targets []WorkerTarget) []string {
	cmd := []string{
		"python3", "-m", "sglang_router.launch_router",
		"--host", "0.0.0.0",
		"--port", strconv.Itoa(f.cfg.Ports.HTTP),
	}

	disaggregated := false
	for _, t := range targets {
		if t.Mode == models.ModePrefill || t.Mode == models.ModeDecode {
			disaggregated = true
			break
		}
	}

	if disaggregated {
		cmd = append(cmd, "--pd-disaggregation")
		for _, t := range targets {
			switch t.Mode {
			case models.ModePrefill:
				cmd = append(cmd, "--prefill", t.URL(), strconv.Itoa(t.BootstrapPort))
			case models.ModeDecode:
				cmd = append(cmd, "--decode", t.URL())
			}
		}
		return cmd
	}

	cmd = append(cmd, "--worker-urls")
	for _, t := range targets {
		cmd = append(cmd, t.URL())
	}
	return cmd
}

// RenderNginxConfig produces the load-balancer config fronting the routers.
// The orchestrator writes it under the job's log directory before launch.
func RenderNginxConfig(routers []string, listenPort int) string {
	var b strings.Builder
	b.WriteString("worker_processes auto;\n")
	b.WriteString("events { worker_connections 4096; }\n")
	b.WriteString("http {\n")
	b.WriteString("    upstream routers {\n")
	b.WriteString("        least_conn;\n")
	for _, r := range routers {
		fmt.Fprintf(&b, "        server %s;\n", r)
	}
	b.WriteString("    }\n")
	fmt.Fprintf(&b, "    server {\n        listen %d;\n", listenPort)
	b.WriteString("        location / {\n")
	b.WriteString("            proxy_pass http://routers;\n")
	b.WriteString("            proxy_http_version 1.1;\n")
	b.WriteString("            proxy_buffering off;\n")
	b.WriteString("        }\n    }\n}\n")
	return b.String()
}

// LoadBalancerSpec builds the nginx launch spec on the given node using a
// pre-rendered config file.
func LoadBalancerSpec(node, confPath string, rc *runtime.Context) models.LaunchSpec {
	logPath := rc.FrontendLogPath("nginx_lb", node)
	return models.LaunchSpec{
		Name:       "nginx_lb",
		Node:       node,
		Command:    []string{"nginx", "-c", confPath, "-g", "daemon off;"},
		StdoutPath: logPath,
		StderrPath: logPath,
	}
}
