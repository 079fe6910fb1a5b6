package pool

import "courtside/internal/worker"

// Stats is an aggregated snapshot of pool health. Latency aggregates live in
// the result store; this covers what the pool itself observes.
type Stats struct {
	Workers     []worker.Snapshot `json:"workers"`
	Ready       int               `json:"ready"`
	Busy        int               `json:"busy"`
	SuccessRate float64           `json:"success_rate"`
}

// Stats captures a point-in-time view of every worker.
func (p *Pool) Stats() Stats {
	stats := Stats{Workers: make([]worker.Snapshot, 0, len(p.workers))}
	var served, errors uint64
	for _, w := range p.workers {
		snap := w.Snapshot()
		stats.Workers = append(stats.Workers, snap)
		served += snap.RequestsServed
		errors += snap.Errors
		switch snap.Status {
		case worker.StatusReady.String():
			stats.Ready++
		case worker.StatusBusy.String():
			stats.Busy++
		}
	}
	if total := served + errors; total > 0 {
		stats.SuccessRate = float64(served) / float64(total)
	}
	return stats
}
