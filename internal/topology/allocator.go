// Package topology maps abstract worker counts onto concrete node, port, and
// accelerator assignments. Everything here is a pure function over the ordered
// node list: no I/O, no randomness, no hidden state, so identical inputs
// always produce identical allocations.
package topology

import (
	"github.com/benchctl/benchctl/pkg/models"
)

// Allocate maps the requested worker topology onto the ordered node list.
//
// Nodes are handed out in fixed mode order (prefill, decode, aggregated), each
// endpoint receiving a contiguous slice: endpoint i of a mode gets nodes
// [i*nodesPerWorker, (i+1)*nodesPerWorker) of that mode's slice. The leader of
// each endpoint is the first node of its slice, which fixes rendezvous
// coordinates for multi-node workers.
//
// A mode requesting zero dedicated nodes (decode over prefill is the supported
// pairing) is placed round-robin onto the donor mode's already-assigned nodes
// instead of consuming fresh ones; the shared endpoints take the next free
// accelerator range on each node so that co-located workers never collide on
// the node's accelerator budget.
func Allocate(req models.TopologyRequest, nodes []string) ([]models.Endpoint, error) {
	required := req.DedicatedNodes()
	if required > len(nodes) {
		return nil, &InsufficientNodesError{Required: required, Available: len(nodes)}
	}

	var endpoints []models.Endpoint
	assigned := make(map[models.Mode][]string)
	gpuCursor := make(map[string]int)

	cursor := 0
	for _, mode := range models.WorkerModes() {
		mr := req.ForMode(mode)
		if !mr.Requested() {
			continue
		}

		if mr.SharesNodes() {
			shared, err := placeShared(mode, mr, req, assigned, gpuCursor)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, shared...)
			continue
		}

		for i := 0; i < mr.Workers; i++ {
			slice := nodeSlice(nodes[cursor:], i, mr.NodesPerWorker)
			endpoints = append(endpoints, models.Endpoint{
				Mode:        mode,
				Index:       i,
				Nodes:       slice,
				GPUsPerNode: mr.GPUsPerNode,
			})
			assigned[mode] = append(assigned[mode], slice...)
			for _, n := range slice {
				gpuCursor[n] += mr.GPUsPerNode
			}
		}
		cursor += mr.Workers * mr.NodesPerWorker
	}

	return endpoints, nil
}

// placeShared distributes a zero-dedicated-nodes mode over the donor mode's
// node set, one node per worker, round-robin.
func placeShared(
	mode models.Mode,
	mr models.ModeRequest,
	req models.TopologyRequest,
	assigned map[models.Mode][]string,
	gpuCursor map[string]int,
) ([]models.Endpoint, error) {
	donor := shareDonor(mode)
	donorNodes := assigned[donor]
	if donor == "" || len(donorNodes) == 0 {
		return nil, &NodeSharingError{Mode: mode}
	}

	endpoints := make([]models.Endpoint, 0, mr.Workers)
	for i := 0; i < mr.Workers; i++ {
		node := donorNodes[i%len(donorNodes)]
		offset := gpuCursor[node]
		if offset+mr.GPUsPerNode > req.NodeGPUs {
			return nil, &GPUBudgetError{
				Node:      node,
				Requested: offset + mr.GPUsPerNode,
				Budget:    req.NodeGPUs,
			}
		}
		gpuCursor[node] = offset + mr.GPUsPerNode
		endpoints = append(endpoints, models.Endpoint{
			Mode:        mode,
			Index:       i,
			Nodes:       []string{node},
			GPUsPerNode: mr.GPUsPerNode,
			GPUOffset:   offset,
			Shared:      true,
		})
	}
	return endpoints, nil
}

// shareDonor returns the mode whose nodes a sharing mode rides on.
func shareDonor(mode models.Mode) models.Mode {
	if mode == models.ModeDecode {
		return models.ModePrefill
	}
	return ""
}

// nodeSlice returns slot i of the given width from an ordered node list. Both
// the worker allocator and the frontend placement use this primitive so that
// slicing behaves identically everywhere.
func nodeSlice(nodes []string, i, width int) []string {
	start := i * width
	end := start + width
	if start > len(nodes) {
		start = len(nodes)
	}
	if end > len(nodes) {
		end = len(nodes)
	}
	out := make([]string, end-start)
	copy(out, nodes[start:end])
	return out
}
