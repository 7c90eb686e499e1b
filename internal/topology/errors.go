package topology

import (
	"fmt"

	"github.com/benchctl/benchctl/pkg/models"
)

// InsufficientNodesError indicates the allocated node set cannot satisfy the
// topology request. It is fatal and raised before any process is launched.
type InsufficientNodesError struct {
	Required  int
	Available int
}

func (e *InsufficientNodesError) Error() string {
	return fmt.Sprintf("topology requires %d nodes but only %d were allocated",
		e.Required, e.Available)
}

// GPUBudgetError indicates that node sharing would oversubscribe a node's
// accelerator budget.
type GPUBudgetError struct {
	Node      string
	Requested int
	Budget    int
}

func (e *GPUBudgetError) Error() string {
	return fmt.Sprintf("node %s: accelerator budget exceeded (%d requested, %d per node)",
		e.Node, e.Requested, e.Budget)
}

// NodeSharingError indicates an unsupported node-sharing request. Only decode
// workers may share prefill's nodes.
type NodeSharingError struct {
	Mode models.Mode
}

func (e *NodeSharingError) Error() string {
	return fmt.Sprintf("mode %s requested zero dedicated nodes but has no mode to share with", e.Mode)
}
