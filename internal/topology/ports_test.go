package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchctl/benchctl/pkg/models"
)

func TestAssignPortsFixedOrder(t *testing.T) {
	endpoints := []models.Endpoint{
		{Mode: models.ModeDecode, Index: 1, Nodes: []string{"node3"}},
		{Mode: models.ModePrefill, Index: 0, Nodes: []string{"node0"}},
		{Mode: models.ModeDecode, Index: 0, Nodes: []string{"node2"}},
		{Mode: models.ModePrefill, Index: 1, Nodes: []string{"node1"}},
	}
	enabled := map[models.Mode]bool{
		models.ModePrefill: true,
		models.ModeDecode:  true,
	}

	ports := AssignPorts(endpoints, 5550, enabled)

	assert.Equal(t, map[string]int{
		"prefill_0": 5550,
		"prefill_1": 5551,
		"decode_0":  5552,
		"decode_1":  5553,
	}, ports)
}

func TestAssignPortsSkipsDisabledModes(t *testing.T) {
	endpoints := []models.Endpoint{
		{Mode: models.ModePrefill, Index: 0, Nodes: []string{"node0"}},
		{Mode: models.ModeDecode, Index: 0, Nodes: []string{"node1"}},
		{Mode: models.ModeDecode, Index: 1, Nodes: []string{"node2"}},
	}
	enabled := map[models.Mode]bool{models.ModeDecode: true}

	ports := AssignPorts(endpoints, 5550, enabled)

	assert.Equal(t, map[string]int{
		"decode_0": 5550,
		"decode_1": 5551,
	}, ports)
}

func TestAssignPortsDeterministicAndUnique(t *testing.T) {
	endpoints := []models.Endpoint{
		{Mode: models.ModeAggregated, Index: 0, Nodes: []string{"node4"}},
		{Mode: models.ModeDecode, Index: 0, Nodes: []string{"node2"}},
		{Mode: models.ModePrefill, Index: 1, Nodes: []string{"node1"}},
		{Mode: models.ModePrefill, Index: 0, Nodes: []string{"node0"}},
		{Mode: models.ModeDecode, Index: 1, Nodes: []string{"node3"}},
		{Mode: models.ModeAggregated, Index: 1, Nodes: []string{"node5"}},
	}
	enabled := map[models.Mode]bool{
		models.ModePrefill:    true,
		models.ModeDecode:     true,
		models.ModeAggregated: true,
	}

	first := AssignPorts(endpoints, 5550, enabled)
	second := AssignPorts(endpoints, 5550, enabled)
	require.Equal(t, first, second)

	seen := make(map[int]bool)
	for _, port := range first {
		assert.False(t, seen[port], "port %d assigned twice", port)
		seen[port] = true
	}
	assert.Len(t, first, 6)
	assert.Equal(t, 5550, first["prefill_0"])
	assert.Equal(t, 5555, first["aggregated_1"])
}

func TestAssignPortsIgnoresFrontends(t *testing.T) {
	endpoints := []models.Endpoint{
		{Mode: models.ModePrefill, Index: 0, Nodes: []string{"node0"}},
		{Mode: models.ModeFrontend, Index: 0, Nodes: []string{"node0"}},
	}
	enabled := map[models.Mode]bool{
		models.ModePrefill:  true,
		models.ModeFrontend: true,
	}

	ports := AssignPorts(endpoints, 5550, enabled)

	assert.Equal(t, map[string]int{"prefill_0": 5550}, ports)
}
