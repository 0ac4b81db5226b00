// Package wsapi implements the WebSocket Session Handler: the single
// authenticated endpoint that multiplexes terminal.* messages over one
// connection per client (§4.5). It owns the hello handshake, message
// dispatch, and the backpressure/chunking policy (§4.4); the Terminal
// Registry (package terminal) owns everything downstream of "a terminal
// exists".
package wsapi

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/coder/websocket"
)

// conn adapts a coder/websocket connection to terminal.ClientConn. Sends
// are queued on a buffered channel drained by a single writer goroutine,
// mirroring the teacher's claude.Client{Conn, Send chan []byte} pattern;
// the queued-byte counter stands in for the browser-side
// `bufferedAmount` the spec's backpressure policy is modeled on, since a
// server-side Go socket has no equivalent OS-level counter to read.
type conn struct {
	ws  *websocket.Conn
	ctx context.Context

	send        chan []byte
	queuedBytes atomic.Int64

	closed    chan struct{}
	closeOnce atomic.Bool
}

func newConn(ctx context.Context, ws *websocket.Conn) *conn {
	c := &conn{
		ws:     ws,
		ctx:    ctx,
		send:   make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			c.queuedBytes.Add(-int64(len(data)))
			if err := c.ws.Write(c.ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// WriteJSON implements terminal.ClientConn. It enqueues rather than
// writing synchronously so a slow network write on one message can't
// stall the caller (the registry's PTY-output goroutine, in the common
// case). A full queue drops the message — the caller is expected to
// have already checked BufferedAmount via Registry.SafeSend before
// reaching here.
func (c *conn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		c.queuedBytes.Add(int64(len(data)))
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

// BufferedAmount implements terminal.ClientConn.
func (c *conn) BufferedAmount() int {
	return int(c.queuedBytes.Load())
}

// Close implements terminal.ClientConn, closing the underlying socket
// with the given WebSocket close code and reason.
func (c *conn) Close(code int, reason string) error {
	if c.closeOnce.CompareAndSwap(false, true) {
		close(c.closed)
	}
	return c.ws.Close(websocket.StatusCode(code), reason)
}
