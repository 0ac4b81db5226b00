package terminal

import (
	"sync"
	"time"
)

// Shutdown stops the idle/perf monitors and force-kills every Running
// PTY immediately, without waiting for a graceful exit. Use
// ShutdownGracefully when a SIGTERM grace period is wanted.
func (reg *Registry) Shutdown() {
	reg.stopMonitors()

	reg.mu.Lock()
	records := make([]*Record, 0, len(reg.records))
	for _, r := range reg.records {
		records = append(records, r)
	}
	reg.mu.Unlock()

	for _, r := range records {
		r.mu.Lock()
		pty := r.pty
		running := r.status == StatusRunning
		r.mu.Unlock()
		if running && pty != nil {
			_ = pty.Kill(nil)
		}
	}

	reg.wg.Wait()
}

// ShutdownGracefully sends the platform's terminate signal to every
// Running PTY, races their exit against timeout, then force-kills any
// survivor (§5 "shutdownGracefully"). Exit listeners are installed
// before signals are sent to avoid the TOCTOU race the spec calls out;
// a record that transitions to Exited between the check and the signal
// is simply skipped by the subsequent Kill (idempotent).
func (reg *Registry) ShutdownGracefully(timeout time.Duration) {
	reg.stopMonitors()

	reg.mu.Lock()
	records := make([]*Record, 0, len(reg.records))
	for _, r := range reg.records {
		records = append(records, r)
	}
	reg.mu.Unlock()

	var wg sync.WaitGroup
	deadline := time.Now().Add(timeout)

	for _, r := range records {
		r.mu.Lock()
		pty := r.pty
		running := r.status == StatusRunning
		r.mu.Unlock()
		if !running || pty == nil {
			continue
		}

		exited := make(chan struct{})
		unsubscribe := reg.events.subscribe(func(e Event) {
			if e.Type == EventExit && e.TerminalID == r.id {
				select {
				case <-exited:
				default:
					close(exited)
				}
			}
		})

		_ = pty.Kill(terminateSignal())

		wg.Add(1)
		go func(r *Record, exited chan struct{}, unsubscribe func()) {
			defer wg.Done()
			defer unsubscribe()
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			select {
			case <-exited:
			case <-time.After(remaining):
				r.mu.Lock()
				stillRunning := r.status == StatusRunning
				pty := r.pty
				r.mu.Unlock()
				if stillRunning && pty != nil {
					_ = pty.Kill(nil)
				}
			}
		}(r, exited, unsubscribe)
	}

	wg.Wait()
	reg.wg.Wait()
}

func (reg *Registry) stopMonitors() {
	if reg.idleStop != nil {
		close(reg.idleStop)
		reg.idleStop = nil
	}
	if reg.perfStop != nil {
		close(reg.perfStop)
		reg.perfStop = nil
	}
}
