package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchctl/benchctl/pkg/models"
)

func TestRouterSpecDisaggregated(t *testing.T) {
	cfg := testBackendConfig()
	rc := testRuntimeContext(t, cfg, []string{"node0", "node1", "node2"})
	f, err := NewFrontend(cfg)
	require.NoError(t, err)

	ep := models.Endpoint{Mode: models.ModeFrontend, Index: 0, Nodes: []string{"node0"}}
	targets := []WorkerTarget{
		{Mode: models.ModePrefill, Host: "node1", Port: 30000, BootstrapPort: 30001},
		{Mode: models.ModeDecode, Host: "node2", Port: 30000},
	}

	spec, err := f.RouterSpec(ep, targets, rc)
	require.NoError(t, err)

	assert.Equal(t, "frontend_0", spec.Name)
	assert.Equal(t, "node0", spec.Node)
	assert.Equal(t, []string{"python3", "-m", "sglang_router.launch_router"}, spec.Command[:3])
	assert.True(t, hasFlag(spec.Command, "--pd-disaggregation"))
	assert.Equal(t, "8000", flagValue(spec.Command, "--port"))

	// --prefill takes URL and bootstrap port positionally
	prefillIdx := -1
	for i, arg := range spec.Command {
		if arg == "--prefill" {
			prefillIdx = i
		}
	}
	require.GreaterOrEqual(t, prefillIdx, 0)
	assert.Equal(t, "http://node1:30000", spec.Command[prefillIdx+1])
	assert.Equal(t, "30001", spec.Command[prefillIdx+2])

	assert.Equal(t, "http://node2:30000", flagValue(spec.Command, "--decode"))
	assert.Equal(t, "nats://node0:4222", spec.Env["NATS_SERVER"])
}

func TestRouterSpecAggregated(t *testing.T) {
	cfg := testBackendConfig()
	rc := testRuntimeContext(t, cfg, []string{"node0", "node1"})
	f, err := NewFrontend(cfg)
	require.NoError(t, err)

	ep := models.Endpoint{Mode: models.ModeFrontend, Index: 0, Nodes: []string{"node0"}}
	targets := []WorkerTarget{
		{Mode: models.ModeAggregated, Host: "node0", Port: 30000},
		{Mode: models.ModeAggregated, Host: "node1", Port: 30000},
	}

	spec, err := f.RouterSpec(ep, targets, rc)
	require.NoError(t, err)

	assert.False(t, hasFlag(spec.Command, "--pd-disaggregation"))
	assert.Equal(t, "http://node0:30000", flagValue(spec.Command, "--worker-urls"))
	assert.Contains(t, spec.Command, "http://node1:30000")
}

func TestRouterSpecDynamoFrontend(t *testing.T) {
	cfg := testBackendConfig()
	cfg.Frontend.Type = "dynamo"
	rc := testRuntimeContext(t, cfg, []string{"node0"})
	f, err := NewFrontend(cfg)
	require.NoError(t, err)

	ep := models.Endpoint{Mode: models.ModeFrontend, Index: 0, Nodes: []string{"node0"}}
	targets := []WorkerTarget{{Mode: models.ModeAggregated, Host: "node0", Port: 30000}}

	spec, err := f.RouterSpec(ep, targets, rc)
	require.NoError(t, err)

	assert.Equal(t, []string{"python3", "-m", "dynamo.frontend"}, spec.Command[:3])
	assert.Equal(t, "8000", flagValue(spec.Command, "--http-port"))
}

func TestRouterSpecNoTargets(t *testing.T) {
	cfg := testBackendConfig()
	rc := testRuntimeContext(t, cfg, []string{"node0"})
	f, err := NewFrontend(cfg)
	require.NoError(t, err)

	ep := models.Endpoint{Mode: models.ModeFrontend, Index: 0, Nodes: []string{"node0"}}
	_, err = f.RouterSpec(ep, nil, rc)
	assert.Error(t, err)
}

func TestNewFrontendUnknownType(t *testing.T) {
	cfg := testBackendConfig()
	cfg.Frontend.Type = "haproxy"

	_, err := NewFrontend(cfg)
	require.Error(t, err)

	var unsupportedErr *UnsupportedBackendError
	assert.ErrorAs(t, err, &unsupportedErr)
}

func TestRenderNginxConfig(t *testing.T) {
	conf := RenderNginxConfig([]string{"node0:8000", "node3:8000"}, 8080)

	assert.Contains(t, conf, "server node0:8000;")
	assert.Contains(t, conf, "server node3:8000;")
	assert.Contains(t, conf, "listen 8080;")
	assert.Contains(t, conf, "least_conn;")
}

func TestLoadBalancerSpec(t *testing.T) {
	cfg := testBackendConfig()
	rc := testRuntimeContext(t, cfg, []string{"node0"})

	spec := LoadBalancerSpec("node0", "/tmp/nginx.conf", rc)

	assert.Equal(t, "nginx_lb", spec.Name)
	assert.Equal(t, "node0", spec.Node)
	assert.Equal(t, []string{"nginx", "-c", "/tmp/nginx.conf", "-g", "daemon off;"}, spec.Command)
}

func TestInfraSpecs(t *testing.T) {
	cfg := testBackendConfig()
	rc := testRuntimeContext(t, cfg, []string{"node0", "node1"})

	nats := NATSSpec(rc)
	assert.Equal(t, "node0", nats.Node)
	assert.Contains(t, nats.Command, "--jetstream")
	assert.Contains(t, nats.Command, "4222")

	etcd := EtcdSpec(rc)
	assert.Equal(t, "node0", etcd.Node)
	assert.Equal(t, "etcd", etcd.Command[0])
	assert.Contains(t, etcd.Command, "http://node0:2379")
}
