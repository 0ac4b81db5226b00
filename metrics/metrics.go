// Package metrics defines the Perf Metrics Collector hook: a typed,
// non-blocking sink for per-terminal counters. The concrete sink
// (a metrics backend, a time-series database, etc.) is an external
// collaborator; this package only defines the contract and a default
// logging implementation.
package metrics

import "github.com/freshell/freshell/log"

// Snapshot is one terminal's counters at a point in time, drained and
// reported by the registry's perf monitor.
type Snapshot struct {
	TerminalID      string
	BytesOut        int64
	ChunksOut       int64
	BytesIn         int64
	InputCount      int64
	DroppedMessages int64
	MaxInputLagMS   int64
}

// Collector receives perf snapshots. Implementations must not block the
// caller; the registry's perf monitor runs on its own ticker and expects
// Report to return quickly.
type Collector interface {
	Report(Snapshot)
}

// LoggingCollector is the default Collector: it logs each snapshot at
// debug severity with a perfSeverity field that escalates to "warn" when
// drops occurred or input lag exceeded the configured threshold, letting
// downstream log sinks filter without losing the native log level.
type LoggingCollector struct {
	LagWarnThresholdMS int64
}

// NewLoggingCollector returns a LoggingCollector using the given
// lag-warning threshold in milliseconds.
func NewLoggingCollector(lagWarnThresholdMS int64) *LoggingCollector {
	return &LoggingCollector{LagWarnThresholdMS: lagWarnThresholdMS}
}

func (c *LoggingCollector) Report(s Snapshot) {
	severity := "info"
	if s.DroppedMessages > 0 || (c.LagWarnThresholdMS > 0 && s.MaxInputLagMS >= c.LagWarnThresholdMS) {
		severity = "warn"
	}

	log.Debug().
		Str("terminalId", s.TerminalID).
		Int64("bytesOut", s.BytesOut).
		Int64("chunksOut", s.ChunksOut).
		Int64("bytesIn", s.BytesIn).
		Int64("inputCount", s.InputCount).
		Int64("droppedMessages", s.DroppedMessages).
		Int64("maxInputLagMs", s.MaxInputLagMS).
		Str("perfSeverity", severity).
		Msg("terminal perf snapshot")
}

// NoopCollector discards every snapshot; used when no sink is configured.
type NoopCollector struct{}

func (NoopCollector) Report(Snapshot) {}
