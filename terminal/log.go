package terminal

import (
	"github.com/freshell/freshell/log"
	"github.com/freshell/freshell/metrics"
)

// defaultSpawnWarningLogger logs a non-fatal Spawn Spec Resolver warning
// (e.g. an ignored resume request) the way the teacher logs provider
// oddities — at warn level with the terminal id for correlation.
func defaultSpawnWarningLogger(terminalID, msg string) {
	log.Warn().Str("terminalId", terminalID).Msg(msg)
}

// perfSnapshot converts a record's in-flight counters to the metrics
// package's reporting shape. Caller must hold record.mu.
func perfSnapshot(r *Record) metrics.Snapshot {
	return metrics.Snapshot{
		TerminalID:      r.id,
		BytesOut:        r.perf.BytesOut,
		ChunksOut:       r.perf.ChunksOut,
		BytesIn:         r.perf.BytesIn,
		InputCount:      r.perf.InputCount,
		DroppedMessages: r.perf.DroppedMessages,
		MaxInputLagMS:   r.perf.MaxInputLagMS,
	}
}
