package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceFrontendsSingleRouter(t *testing.T) {
	plan, err := PlaceFrontends(1, nodeNames(4))
	require.NoError(t, err)

	require.Len(t, plan.Routers, 1)
	assert.Equal(t, []string{"node0"}, plan.Routers[0].Nodes)
	assert.False(t, plan.HasLoadBalancer())
}

func TestPlaceFrontendsOnePerNode(t *testing.T) {
	nodes := nodeNames(10)
	plan, err := PlaceFrontends(10, nodes)
	require.NoError(t, err)

	require.Len(t, plan.Routers, 10)
	for i, router := range plan.Routers {
		assert.Equal(t, []string{nodes[i]}, router.Nodes, "router %d", i)
		assert.Equal(t, i, router.Index)
	}
	assert.Equal(t, "node0", plan.LoadBalancerNode)
}

func TestPlaceFrontendsSlicedPlacement(t *testing.T) {
	plan, err := PlaceFrontends(4, nodeNames(10))
	require.NoError(t, err)

	require.Len(t, plan.Routers, 4)
	assert.Equal(t, []string{"node0"}, plan.Routers[0].Nodes)
	assert.Equal(t, []string{"node1"}, plan.Routers[1].Nodes)
	assert.Equal(t, []string{"node4"}, plan.Routers[2].Nodes)
	assert.Equal(t, []string{"node7"}, plan.Routers[3].Nodes)
	assert.True(t, plan.HasLoadBalancer())
}

func TestPlaceFrontendsMoreRoutersThanNodes(t *testing.T) {
	plan, err := PlaceFrontends(5, nodeNames(3))
	require.NoError(t, err)

	require.Len(t, plan.Routers, 5)
	assert.Equal(t, []string{"node0"}, plan.Routers[0].Nodes)
	assert.Equal(t, []string{"node1"}, plan.Routers[1].Nodes)
	assert.Equal(t, []string{"node2"}, plan.Routers[2].Nodes)
	assert.Equal(t, []string{"node1"}, plan.Routers[3].Nodes)
	assert.Equal(t, []string{"node2"}, plan.Routers[4].Nodes)
}

func TestPlaceFrontendsValidation(t *testing.T) {
	_, err := PlaceFrontends(0, nodeNames(2))
	assert.Error(t, err)

	_, err = PlaceFrontends(2, nil)
	assert.Error(t, err)
}
