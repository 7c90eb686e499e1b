package backend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benchctl/benchctl/internal/config"
	"github.com/benchctl/benchctl/internal/runtime"
	"github.com/benchctl/benchctl/pkg/models"
)

// sglangReserved are the flags the adapter derives itself; user overrides of
// these are rejected.
var sglangReserved = reservedSet(
	"model-path",
	"served-model-name",
	"host",
	"port",
	"disaggregation-mode",
	"disaggregation-bootstrap-port",
	"dist-init-addr",
	"nnodes",
	"node-rank",
	"kv-events-config",
)

type sglangBackend struct {
	cfg *config.Config
}

func newSGLang(cfg *config.Config) Backend {
	return &sglangBackend{cfg: cfg}
}

func (b *sglangBackend) Name() string { return "sglang" }

// BuildLaunchSpec composes the sglang worker command for one rank.
//
// Disaggregated modes get --disaggregation-mode, prefill additionally a fixed
// bootstrap port for the KV transfer rendezvous. Multi-node endpoints add the
// torch-distributed rendezvous flags anchored at the endpoint's leader. The
// leader of an event-enabled mode gets a ZMQ KV event publisher on its
// ledger-assigned port.
func (b *sglangBackend) BuildLaunchSpec(ep models.Endpoint, rank int, rc *runtime.Context, opts SpecOptions) (models.LaunchSpec, error) {
	if rank < 0 || rank >= len(ep.Nodes) {
		return models.LaunchSpec{}, fmt.Errorf("endpoint %s has no rank %d", ep.Name(), rank)
	}
	node := ep.Nodes[rank]

	cmd := []string{
		"python3", "-m", "dynamo.sglang",
		"--model-path", rc.ModelPath,
		"--served-model-name", rc.ServedModelName,
		"--host", "0.0.0.0",
		"--port", strconv.Itoa(b.cfg.Ports.Server),
	}

	switch ep.Mode {
	case models.ModePrefill:
		cmd = append(cmd,
			"--disaggregation-mode", "prefill",
			"--disaggregation-bootstrap-port", strconv.Itoa(b.cfg.Ports.Bootstrap))
	case models.ModeDecode:
		cmd = append(cmd, "--disaggregation-mode", "decode")
	}

	if len(ep.Nodes) > 1 {
		cmd = append(cmd,
			"--dist-init-addr", fmt.Sprintf("%s:%d", ep.Leader(), b.cfg.Ports.DistInit),
			"--nnodes", strconv.Itoa(len(ep.Nodes)),
			"--node-rank", strconv.Itoa(rank))
	}

	if opts.EventPort > 0 && rank == 0 {
		cmd = append(cmd,
			"--kv-events-config",
			fmt.Sprintf(`{"publisher":"zmq","endpoint":"tcp://*:%d"}`, opts.EventPort))
	}

	userFlags, err := composeFlags(b.cfg.Backend.ModeArgs(ep.Mode), sglangReserved)
	if err != nil {
		return models.LaunchSpec{}, err
	}
	cmd = append(cmd, userFlags...)

	env := models.MergeEnv(
		b.baseEnv(ep, rc, opts),
		b.cfg.Env.Global,
		b.cfg.Env.ForMode(ep.Mode),
	)

	logPath := rc.WorkerLogPath(ep.Mode, ep.Index, rank, node)
	return models.LaunchSpec{
		Name:       fmt.Sprintf("%s_rank%d", ep.Name(), rank),
		Node:       node,
		Command:    cmd,
		Env:        env,
		StdoutPath: logPath,
		StderrPath: logPath,
	}, nil
}

// baseEnv builds the runtime environment shared by all sglang workers.
// CUDA_VISIBLE_DEVICES is set only when the worker uses a strict subset of a
// node's accelerators; full-node workers see everything by default.
func (b *sglangBackend) baseEnv(ep models.Endpoint, rc *runtime.Context, opts SpecOptions) map[string]string {
	head := rc.HeadNode()
	env := map[string]string{
		"HEAD_NODE_IP":   head,
		"ETCD_ENDPOINTS": fmt.Sprintf("http://%s:2379", head),
		"NATS_SERVER":    fmt.Sprintf("nats://%s:4222", head),
	}
	if opts.SystemPort > 0 {
		env["DYN_SYSTEM_PORT"] = strconv.Itoa(opts.SystemPort)
	}
	if ep.GPUsPerNode < b.cfg.Resources.NodeGPUs {
		indices := make([]string, 0, ep.GPUsPerNode)
		for _, idx := range ep.GPUIndices() {
			indices = append(indices, strconv.Itoa(idx))
		}
		env["CUDA_VISIBLE_DEVICES"] = strings.Join(indices, ",")
	}
	return env
}
