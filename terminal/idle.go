package terminal

import "time"

// runIdleMonitor periodically checks Running, client-less terminals
// against the configured auto-kill/warn-before-kill window (§4.3 "Idle
// monitor"). autoKillIdleMinutes<=0 disables eviction entirely.
func (reg *Registry) runIdleMonitor(interval time.Duration) {
	defer reg.wg.Done()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-reg.idleStop:
			return
		case <-ticker.C:
			reg.sweepIdle()
		}
	}
}

func (reg *Registry) sweepIdle() {
	reg.mu.Lock()
	k := reg.settings.AutoKillIdleMinutes
	w := reg.settings.WarnBeforeKillMinutes
	records := make([]*Record, 0, len(reg.records))
	for _, r := range reg.records {
		records = append(records, r)
	}
	reg.mu.Unlock()

	if k <= 0 {
		return
	}

	now := reg.now()
	for _, r := range records {
		r.mu.Lock()
		idleClients := r.status == StatusRunning && len(r.clients) == 0
		idleMinutes := now.Sub(r.lastActivityAt).Minutes()
		alreadyWarned := r.warnedIdle
		r.mu.Unlock()

		if !idleClients {
			continue
		}

		if idleMinutes >= float64(k) {
			reg.Kill(r.id)
			continue
		}

		if w > 0 && idleMinutes >= float64(k-w) && !alreadyWarned {
			r.mu.Lock()
			r.warnedIdle = true
			r.mu.Unlock()
			reg.events.publish(Event{Type: EventIdleWarning, TerminalID: r.id})
		}
	}
}
