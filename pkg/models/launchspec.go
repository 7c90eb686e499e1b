package models

// LaunchSpec fully describes one OS process to start on a cluster node.
// Specs are built by backend adapters and frontend builders, then handed to
// the cluster launch primitive unchanged. A spec is immutable once built.
type LaunchSpec struct {
	// Name uniquely identifies the process within the job,
	// e.g. "prefill_0_rank0" or "router_1".
	Name string

	// Node is the hostname the process must run on.
	Node string

	Command []string
	Env     map[string]string

	// StdoutPath and StderrPath are log destinations under the job's log
	// directory, named so that concurrent workers never collide.
	StdoutPath string
	StderrPath string
}

// CloneEnv returns a copy of the spec's environment map, never nil.
func (s LaunchSpec) CloneEnv() map[string]string {
	env := make(map[string]string, len(s.Env))
	for k, v := range s.Env {
		env[k] = v
	}
	return env
}

// MergeEnv overlays maps left to right, later values overriding earlier ones.
// Nil maps are skipped. The result is always a fresh map.
func MergeEnv(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}
