package topology

import (
	"sort"

	"github.com/benchctl/benchctl/pkg/models"
)

// AssignPorts hands out consecutive event ports starting at basePort to the
// worker endpoints whose mode is enabled, keyed by endpoint name.
//
// Assignment order is fixed: endpoints sorted by mode (prefill, decode,
// aggregated) then by index, so the same topology always yields the same
// port map regardless of the order endpoints were allocated in. Disabled
// modes are skipped and consume no ports.
func AssignPorts(endpoints []models.Endpoint, basePort int, enabled map[models.Mode]bool) map[string]int {
	workers := make([]models.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Mode.IsWorker() {
			workers = append(workers, ep)
		}
	}
	sort.SliceStable(workers, func(i, j int) bool {
		if workers[i].Mode != workers[j].Mode {
			return modeRank(workers[i].Mode) < modeRank(workers[j].Mode)
		}
		return workers[i].Index < workers[j].Index
	})

	ports := make(map[string]int)
	next := basePort
	for _, ep := range workers {
		if !enabled[ep.Mode] {
			continue
		}
		ports[ep.Name()] = next
		next++
	}
	return ports
}

func modeRank(m models.Mode) int {
	for i, mode := range models.WorkerModes() {
		if m == mode {
			return i
		}
	}
	return len(models.WorkerModes())
}
