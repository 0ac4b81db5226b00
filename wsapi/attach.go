package wsapi

import (
	"context"
	"errors"

	"github.com/freshell/freshell/terminal"
)

// handleAttach implements terminal.attach (§4.5, §4.4): registers the
// client with pendingSnapshot=true so concurrent PTY output queues
// rather than races the snapshot delivery, then streams the snapshot
// (inline or chunked, serialized per-(connection, terminal)), then
// flushes whatever queued during the stream before returning to live
// fan-out.
func (h *Handler) handleAttach(ctx context.Context, cn *connection, data []byte) {
	msg, err := decode[terminalIDMessage](data)
	if err != nil || msg.TerminalID == "" {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidMessage, Message: "invalid terminal.attach"})
		return
	}

	record, err := h.registry.Attach(msg.TerminalID, cn.c, true)
	if err != nil {
		if errors.Is(err, terminal.ErrTerminalNotFound) {
			_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidTerminalID, Message: "terminal not found"})
			return
		}
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInternal, Message: err.Error()})
		return
	}
	cn.trackAttach(msg.TerminalID)

	mu := h.registry.StreamMutex(msg.TerminalID, cn.c)
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}

	snapshot := record.Snapshot()
	generation := cn.currentGeneration()
	aborted := false

	if cn.capabilitiesSnapshot().TerminalAttachChunkV1 && len(snapshot) > h.cfg.maxChunkBytesOrDefault() {
		if !sendSnapshotChunked(ctx, cn.c, msg.TerminalID, snapshot, h.cfg.maxChunkBytesOrDefault(), h.cfg.drainThresholdOrDefault(), h.cfg.drainTimeoutOrDefault(), cn.superseded(generation)) {
			aborted = true
		}
	} else {
		if err := cn.c.WriteJSON(terminalAttachedMessage{Type: "terminal.attached", TerminalID: msg.TerminalID, Snapshot: snapshot}); err != nil {
			aborted = true
		}
	}

	if aborted {
		// §4.5 "Connection teardown": an aborted stream observes close
		// or supersession and does not call FinishAttachSnapshot — the
		// pending queue is torn down with the connection or the next
		// attach instead.
		return
	}

	// Flush whatever queued during the snapshot window, in arrival
	// order, before any subsequent live output (§5 ordering guarantee).
	// FinishAttachSnapshot performs the sends itself, atomically with
	// clearing the pending-queue flag, so a live chunk can't race ahead.
	h.registry.FinishAttachSnapshot(msg.TerminalID, cn.c)
}
