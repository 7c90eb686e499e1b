package models

// ModeRequest describes the resources one serving mode asks for.
//
// NodesPerWorker == 0 with Workers > 0 requests node sharing: the mode's
// workers are placed round-robin onto another mode's already-assigned nodes
// instead of consuming fresh ones. Decode sharing prefill's nodes is the only
// supported pairing.
type ModeRequest struct {
	Workers        int `mapstructure:"workers" yaml:"workers" validate:"gte=0"`
	NodesPerWorker int `mapstructure:"nodes_per_worker" yaml:"nodes_per_worker" validate:"gte=0"`
	GPUsPerNode    int `mapstructure:"gpus_per_node" yaml:"gpus_per_node" validate:"gte=0"`
}

// Requested reports whether any workers of this mode were asked for.
func (r ModeRequest) Requested() bool {
	return r.Workers > 0
}

// SharesNodes reports whether this mode rides on another mode's nodes.
func (r ModeRequest) SharesNodes() bool {
	return r.Workers > 0 && r.NodesPerWorker == 0
}

// DedicatedNodes returns the number of fresh nodes this mode consumes.
func (r ModeRequest) DedicatedNodes() int {
	if r.SharesNodes() {
		return 0
	}
	return r.Workers * r.NodesPerWorker
}

// TopologyRequest specifies, per mode, how many workers to run and how many
// nodes and accelerators each spans. NodeGPUs is the per-node accelerator
// budget of the cluster partition.
type TopologyRequest struct {
	Prefill    ModeRequest `mapstructure:"prefill" yaml:"prefill"`
	Decode     ModeRequest `mapstructure:"decode" yaml:"decode"`
	Aggregated ModeRequest `mapstructure:"aggregated" yaml:"aggregated"`
	NodeGPUs   int         `mapstructure:"node_gpus" yaml:"node_gpus" validate:"gt=0"`
}

// ForMode returns the request for the given worker mode.
func (t TopologyRequest) ForMode(m Mode) ModeRequest {
	switch m {
	case ModePrefill:
		return t.Prefill
	case ModeDecode:
		return t.Decode
	case ModeAggregated:
		return t.Aggregated
	}
	return ModeRequest{}
}

// DedicatedNodes returns the total number of fresh nodes the request consumes.
func (t TopologyRequest) DedicatedNodes() int {
	total := 0
	for _, m := range WorkerModes() {
		total += t.ForMode(m).DedicatedNodes()
	}
	return total
}

// TotalWorkers returns the number of worker endpoints across all modes.
func (t TopologyRequest) TotalWorkers() int {
	return t.Prefill.Workers + t.Decode.Workers + t.Aggregated.Workers
}
