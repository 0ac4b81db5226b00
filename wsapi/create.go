package wsapi

import (
	"context"
	"errors"

	"github.com/freshell/freshell/terminal"
)

// handleCreate implements terminal.create (§4.5 "Key behaviors"):
// idempotent per (connection, requestId), reuses a provider's existing
// Running session for the requested (mode, resumeSessionId), and rate-
// limits new spawns.
func (h *Handler) handleCreate(ctx context.Context, cn *connection, data []byte) {
	msg, err := decode[terminalCreateMessage](data)
	if err != nil || msg.Mode == "" {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidMessage, Message: "invalid terminal.create", RequestID: msg.RequestID})
		return
	}

	if existingID, ok := cn.lookupCreate(msg.RequestID); ok {
		h.respondCreated(ctx, cn, msg.RequestID, existingID, false)
		return
	}

	if !cn.createLimiter.Allow() {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeRateLimited, Message: "too many terminal.create calls", RequestID: msg.RequestID})
		return
	}

	record, err := h.registry.Create(terminal.CreateOptions{
		Mode:            msg.Mode,
		Shell:           msg.Shell,
		Cwd:             msg.Cwd,
		Cols:            msg.Cols,
		Rows:            msg.Rows,
		ResumeSessionID: msg.ResumeSessionID,
		PermissionMode:  msg.PermissionMode,
		EnvContext:      msg.EnvContext,
	})
	if err != nil {
		if errors.Is(err, terminal.ErrMaxTerminalsReached) {
			_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeMaxTerminalsReach, Message: "max terminals reached", RequestID: msg.RequestID})
			return
		}
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInternal, Message: err.Error(), RequestID: msg.RequestID})
		return
	}

	cn.rememberCreate(msg.RequestID, record.ID())
	h.respondCreated(ctx, cn, msg.RequestID, record.ID(), true)
}

// respondCreated sends terminal.created. On a replay of an already-seen
// requestId (freshlyCreated false) it also delivers the existing
// scrollback, chunked the same way attach does when the client
// negotiated chunking. A create that the registry satisfied by reusing
// a Running (mode, resumeSessionId) record counts as freshly created
// and gets no snapshot.
func (h *Handler) respondCreated(ctx context.Context, cn *connection, requestID, terminalID string, freshlyCreated bool) {
	record := h.registry.Get(terminalID)
	if record == nil {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInternal, Message: "terminal vanished after create", RequestID: requestID})
		return
	}

	descriptor := record.Descriptor()
	effectiveResume := descriptor.ResumeSessionID

	if freshlyCreated {
		_ = cn.c.WriteJSON(terminalCreatedMessage{
			Type:                     "terminal.created",
			RequestID:                requestID,
			TerminalID:               terminalID,
			EffectiveResumeSessionID: effectiveResume,
		})
		return
	}

	// Idempotent requestId replay: deliver the existing scrollback the same
	// way an attach would, serialized per-(connection, terminal) so a
	// concurrent attach can't interleave with it (§4.4 "Stream
	// serialization").
	mu := h.registry.StreamMutex(terminalID, cn.c)
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}

	snapshot := record.Snapshot()
	if cn.capabilitiesSnapshot().TerminalAttachChunkV1 && len(snapshot) > h.cfg.maxChunkBytesOrDefault() {
		generation := cn.currentGeneration()
		_ = cn.c.WriteJSON(terminalCreatedMessage{
			Type:                     "terminal.created",
			RequestID:                requestID,
			TerminalID:               terminalID,
			SnapshotChunked:          true,
			EffectiveResumeSessionID: effectiveResume,
		})
		sendSnapshotChunked(ctx, cn.c, terminalID, snapshot, h.cfg.maxChunkBytesOrDefault(), h.cfg.drainThresholdOrDefault(), h.cfg.drainTimeoutOrDefault(), cn.superseded(generation))
		return
	}

	_ = cn.c.WriteJSON(terminalCreatedMessage{
		Type:                     "terminal.created",
		RequestID:                requestID,
		TerminalID:               terminalID,
		Snapshot:                 snapshot,
		EffectiveResumeSessionID: effectiveResume,
	})
}
