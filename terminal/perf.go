package terminal

import "time"

// runPerfMonitor periodically drains and reports per-terminal perf
// counters to the configured metrics.Collector (§4.3 "Perf monitor").
func (reg *Registry) runPerfMonitor(interval time.Duration) {
	defer reg.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-reg.perfStop:
			return
		case <-ticker.C:
			reg.reportPerf()
		}
	}
}

func (reg *Registry) reportPerf() {
	reg.mu.Lock()
	records := make([]*Record, 0, len(reg.records))
	for _, r := range reg.records {
		records = append(records, r)
	}
	reg.mu.Unlock()

	for _, r := range records {
		r.mu.Lock()
		snap := perfSnapshot(r)
		r.perf = PerfCounters{pendingInputAt: r.perf.pendingInputAt}
		r.mu.Unlock()
		reg.perf.Report(snap)
	}
}
