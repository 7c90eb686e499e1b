package topology

import (
	"fmt"

	"github.com/benchctl/benchctl/pkg/models"
)

// FrontendPlan is the placement of request routers and, when more than one
// router runs, the load balancer that fronts them.
type FrontendPlan struct {
	Routers []models.Endpoint

	// LoadBalancerNode is where the TCP load balancer runs. Empty when a
	// single router serves traffic directly.
	LoadBalancerNode string
}

// HasLoadBalancer reports whether the plan includes a load balancer tier.
func (p FrontendPlan) HasLoadBalancer() bool {
	return p.LoadBalancerNode != ""
}

// PlaceFrontends spreads totalRouters routers across the node list.
//
// Router 0 is always pinned to the first node, alongside the shared
// coordination services. With a single router there is no load balancer.
// With more, the remaining nodes are split into ceil-division slices and
// each additional router takes the head of its slice, so ten routers over
// nine remaining nodes land one per node; when routers outnumber the
// remaining nodes the extras wrap around. The load balancer always runs on
// the first node.
func PlaceFrontends(totalRouters int, nodes []string) (FrontendPlan, error) {
	if totalRouters < 1 {
		return FrontendPlan{}, fmt.Errorf("frontend placement requires at least one router, got %d", totalRouters)
	}
	if len(nodes) == 0 {
		return FrontendPlan{}, fmt.Errorf("frontend placement requires at least one node")
	}

	plan := FrontendPlan{
		Routers: []models.Endpoint{{
			Mode:  models.ModeFrontend,
			Index: 0,
			Nodes: []string{nodes[0]},
		}},
	}
	if totalRouters == 1 {
		return plan, nil
	}

	remaining := nodes[1:]
	nodesPerRouter := 1
	if len(remaining) > 0 {
		nodesPerRouter = ceilDiv(len(remaining), totalRouters-1)
	}

	for i := 1; i < totalRouters; i++ {
		node := nodes[0]
		if len(remaining) > 0 {
			slot := nodeSlice(remaining, i-1, nodesPerRouter)
			if len(slot) == 0 {
				slot = nodeSlice(remaining, (i-1)%len(remaining), 1)
			}
			node = slot[0]
		}
		plan.Routers = append(plan.Routers, models.Endpoint{
			Mode:  models.ModeFrontend,
			Index: i,
			Nodes: []string{node},
		})
	}

	plan.LoadBalancerNode = nodes[0]
	return plan, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
