package models

import "fmt"

// Mode identifies the serving role of an endpoint.
type Mode string

const (
	// ModePrefill handles the prompt-processing half of disaggregated serving
	ModePrefill Mode = "prefill"
	// ModeDecode handles the token-generation half of disaggregated serving
	ModeDecode Mode = "decode"
	// ModeAggregated runs prefill and decode together on one worker pool
	ModeAggregated Mode = "aggregated"
	// ModeFrontend is a request router or load balancer, not a serving worker
	ModeFrontend Mode = "frontend"
	// ModeInfra is a shared coordination service on the head node
	ModeInfra Mode = "infra"
)

// WorkerModes returns the modes that consume node allocations, in the fixed
// order used for allocation, port assignment, and launch.
func WorkerModes() []Mode {
	return []Mode{ModePrefill, ModeDecode, ModeAggregated}
}

// IsWorker reports whether the mode is a serving worker mode.
func (m Mode) IsWorker() bool {
	return m == ModePrefill || m == ModeDecode || m == ModeAggregated
}

// Endpoint is a logical worker unit of one serving mode spanning one or more
// nodes. Endpoints are computed once at job start and never change afterwards.
type Endpoint struct {
	Mode  Mode
	Index int

	// Nodes is the ordered slice of node hostnames this endpoint spans,
	// contiguous in allocation order. The first node is the leader (rank 0).
	Nodes []string

	// GPUsPerNode is how many accelerators this endpoint uses on each of its
	// nodes.
	GPUsPerNode int

	// GPUOffset is the first accelerator index this endpoint uses on each of
	// its nodes. Non-zero only when the endpoint shares nodes with another
	// mode's workers.
	GPUOffset int

	// Shared marks endpoints placed onto another mode's nodes instead of
	// dedicated ones.
	Shared bool
}

// Name returns the stable identifier used for logs, ports, and registration.
func (e Endpoint) Name() string {
	return fmt.Sprintf("%s_%d", e.Mode, e.Index)
}

// Leader returns the node hosting rank 0. Every endpoint has exactly one.
func (e Endpoint) Leader() string {
	return e.Nodes[0]
}

// GPUIndices returns the accelerator indices this endpoint uses on each node.
func (e Endpoint) GPUIndices() []int {
	indices := make([]int, e.GPUsPerNode)
	for i := range indices {
		indices[i] = e.GPUOffset + i
	}
	return indices
}
