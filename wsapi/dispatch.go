package wsapi

import (
	"context"
	"encoding/json"
	"time"
)

// runDispatchLoop reads frames until the connection closes, validating
// and routing each by its `type` discriminator (§4.5 "Message
// dispatch"). A malformed frame or unknown type emits a non-fatal
// `error` and the loop continues.
func (h *Handler) runDispatchLoop(ctx context.Context, cn *connection) {
	for {
		_, data, err := cn.c.ws.Read(ctx)
		if err != nil {
			return
		}

		var env clientEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidMessage, Message: "malformed JSON"})
			continue
		}

		h.dispatch(ctx, cn, env.Type, data)
	}
}

func (h *Handler) dispatch(ctx context.Context, cn *connection, msgType string, data []byte) {
	switch msgType {
	case "ping":
		_ = cn.c.WriteJSON(pongMessage{Type: "pong", Timestamp: time.Now().UnixMilli()})
	case "hello":
		// Idempotent per §4.5: re-emit ready, don't re-run provisioning.
		_ = cn.c.WriteJSON(readyMessage{Type: "ready"})
	case "terminal.create":
		h.handleCreate(ctx, cn, data)
	case "terminal.attach":
		h.handleAttach(ctx, cn, data)
	case "terminal.detach":
		h.handleDetach(cn, data)
	case "terminal.input":
		h.handleInput(cn, data)
	case "terminal.resize":
		h.handleResize(cn, data)
	case "terminal.kill":
		h.handleKill(cn, data)
	case "terminal.list":
		h.handleList(cn, data)
	default:
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidMessage, Message: "unknown message type: " + msgType})
	}
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

func (h *Handler) handleDetach(cn *connection, data []byte) {
	msg, err := decode[terminalIDMessage](data)
	if err != nil || msg.TerminalID == "" {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidMessage, Message: "invalid terminal.detach"})
		return
	}
	h.registry.Detach(msg.TerminalID, cn.c)
	cn.trackDetach(msg.TerminalID)
}

func (h *Handler) handleInput(cn *connection, data []byte) {
	msg, err := decode[terminalInputMessage](data)
	if err != nil || msg.TerminalID == "" {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidMessage, Message: "invalid terminal.input"})
		return
	}
	if !h.registry.Input(msg.TerminalID, []byte(msg.Data)) {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidTerminalID, Message: "terminal not found or exited"})
	}
}

func (h *Handler) handleResize(cn *connection, data []byte) {
	msg, err := decode[terminalResizeMessage](data)
	if err != nil || msg.TerminalID == "" {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidMessage, Message: "invalid terminal.resize"})
		return
	}
	if msg.Cols < 2 || msg.Cols > 1000 || msg.Rows < 2 || msg.Rows > 500 {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidMessage, Message: "cols/rows out of range"})
		return
	}
	if !h.registry.Resize(msg.TerminalID, msg.Cols, msg.Rows) {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidTerminalID, Message: "terminal not found"})
	}
}

func (h *Handler) handleKill(cn *connection, data []byte) {
	msg, err := decode[terminalIDMessage](data)
	if err != nil || msg.TerminalID == "" {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidMessage, Message: "invalid terminal.kill"})
		return
	}
	if !h.registry.Kill(msg.TerminalID) {
		_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeInvalidTerminalID, Message: "terminal not found"})
	}
}

func (h *Handler) handleList(cn *connection, data []byte) {
	msg, _ := decode[terminalListMessage](data)
	_ = cn.c.WriteJSON(terminalListResponseMessage{
		Type:      "terminal.list.response",
		RequestID: msg.RequestID,
		Terminals: h.registry.List(),
	})
}
