package wsapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freshell/freshell/log"
)

// runHandshake waits for the first message, enforcing HELLO_TIMEOUT_MS,
// and requires it to be a valid `hello` with a matching token (§4.5
// "Handshake state machine"). Returns false if the connection should be
// torn down (timeout, bad frame, or auth failure).
func (h *Handler) runHandshake(ctx context.Context, cn *connection) bool {
	type helloResult struct {
		msg helloMessage
		err error
	}
	resultCh := make(chan helloResult, 1)

	go func() {
		_, data, err := cn.c.ws.Read(ctx)
		if err != nil {
			resultCh <- helloResult{err: err}
			return
		}
		var msg helloMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			resultCh <- helloResult{err: err}
			return
		}
		resultCh <- helloResult{msg: msg}
	}()

	timeout := h.cfg.HelloTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	select {
	case <-time.After(timeout):
		_ = cn.c.Close(CloseAuthFailed, "hello timeout")
		return false
	case res := <-resultCh:
		if res.err != nil {
			_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeNotAuthenticated, Message: "expected hello"})
			_ = cn.c.Close(CloseAuthFailed, "expected hello")
			return false
		}
		if res.msg.Type != "hello" {
			_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeNotAuthenticated, Message: "first message must be hello"})
			_ = cn.c.Close(CloseAuthFailed, "first message must be hello")
			return false
		}
		if h.cfg.AuthToken != "" && trimToken(res.msg.Token) != h.cfg.AuthToken {
			_ = cn.c.WriteJSON(errorMessage{Type: "error", Code: CodeNotAuthenticated, Message: "invalid token"})
			_ = cn.c.Close(CloseAuthFailed, "invalid token")
			return false
		}

		cn.markAuthenticated(res.msg.Capabilities)
		_ = cn.c.WriteJSON(readyMessage{Type: "ready"})
		h.postHelloProvision(cn)
		return true
	}
}

// postHelloProvision sends the settings snapshot and, if configured, the
// initial sessions snapshot (§4.5 "post-hello provisioning"). The
// sessions snapshot goes out as a single sessions.updated frame; it is
// not chunked and does not wait for the socket to drain.
func (h *Handler) postHelloProvision(cn *connection) {
	if snap := h.settings.SettingsSnapshot(); snap != nil {
		_ = cn.c.WriteJSON(settingsUpdatedMessage{Type: "settings.updated", Settings: snap})
	}

	if snap := h.sessions.SessionsSnapshot(); snap != nil {
		_ = cn.c.WriteJSON(sessionsUpdatedMessage{Type: "sessions.updated", Projects: snap})
	}

	log.Debug().Msg("wsapi: connection authenticated")
}
