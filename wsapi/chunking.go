package wsapi

import (
	"context"
	"time"

	"github.com/freshell/freshell/terminal"
)

const (
	drainPollInterval  = 20 * time.Millisecond
	defaultMaxChunkBytes = 500 * 1024
)

// waitForDrain blocks until client's buffered amount falls below
// threshold, or returns false on timeout, socket close, or
// shouldCancel() becoming true (§4.4 "Chunked snapshot delivery with
// drain awareness"). A buffer already under threshold resolves true
// immediately without polling.
func waitForDrain(ctx context.Context, client terminal.ClientConn, threshold int, timeout time.Duration, shouldCancel func() bool) bool {
	if client.BufferedAmount() < threshold {
		return true
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if shouldCancel != nil && shouldCancel() {
				return false
			}
			if client.BufferedAmount() < threshold {
				return true
			}
			if time.Now().After(deadline) {
				return false
			}
		}
	}
}

// sendSnapshotChunked splits snapshot into attached.start / attached.chunk*
// / attached.end frames bounded by maxChunkBytes, draining between
// chunks (§4.4 property 3, §8 property 6). Returns false if the stream
// was aborted (cancel or drain timeout) partway through, in which case
// the caller must not send attached.end or any further output for this
// attach.
func sendSnapshotChunked(ctx context.Context, client terminal.ClientConn, terminalID, snapshot string, maxChunkBytes int, drainThreshold int, drainTimeout time.Duration, shouldCancel func() bool) bool {
	if maxChunkBytes <= 0 {
		maxChunkBytes = defaultMaxChunkBytes
	}

	if shouldCancel != nil && shouldCancel() {
		return false
	}
	if err := client.WriteJSON(attachedStartMessage{Type: "attached.start", TerminalID: terminalID}); err != nil {
		return false
	}

	chunks := splitChunks(snapshot, maxChunkBytes)
	for i, chunk := range chunks {
		if shouldCancel != nil && shouldCancel() {
			return false
		}
		if !waitForDrain(ctx, client, drainThreshold, drainTimeout, shouldCancel) {
			return false
		}
		if err := client.WriteJSON(attachedChunkMessage{Type: "attached.chunk", TerminalID: terminalID, Index: i, Data: chunk}); err != nil {
			return false
		}
	}

	if shouldCancel != nil && shouldCancel() {
		return false
	}
	if err := client.WriteJSON(attachedEndMessage{Type: "attached.end", TerminalID: terminalID}); err != nil {
		return false
	}
	return true
}

// splitChunks splits s into pieces no larger than maxBytes, splitting on
// rune boundaries so multi-byte characters are never torn.
func splitChunks(s string, maxBytes int) []string {
	if len(s) == 0 {
		return nil
	}
	var out []string
	runes := []rune(s)
	start := 0
	byteLen := 0
	for i, r := range runes {
		rl := len(string(r))
		if byteLen+rl > maxBytes && i > start {
			out = append(out, string(runes[start:i]))
			start = i
			byteLen = 0
		}
		byteLen += rl
	}
	out = append(out, string(runes[start:]))
	return out
}
