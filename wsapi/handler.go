package wsapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/freshell/freshell/log"
	"github.com/freshell/freshell/terminal"
)

// Config holds the handler's tunables, normally sourced from
// config.Config (§6 "CLI/env surface").
type Config struct {
	AuthToken      string
	AllowedOrigins []string
	HelloTimeout   time.Duration
	MaxConnections int

	TerminalCreateRateLimit  int
	TerminalCreateRateWindow time.Duration

	MaxChunkBytes  int
	DrainThreshold int
	DrainTimeout   time.Duration
}

func (c Config) maxChunkBytesOrDefault() int {
	if c.MaxChunkBytes > 0 {
		return c.MaxChunkBytes
	}
	return 500 * 1024
}

func (c Config) drainThresholdOrDefault() int {
	if c.DrainThreshold > 0 {
		return c.DrainThreshold
	}
	return 512 * 1024
}

func (c Config) drainTimeoutOrDefault() time.Duration {
	if c.DrainTimeout > 0 {
		return c.DrainTimeout
	}
	return 5 * time.Second
}

// Handler is the single WebSocket endpoint's gin handler. Construct with
// New, register with router.GET("/ws", handler.ServeHTTP).
type Handler struct {
	registry *terminal.Registry
	cfg      Config

	settings SettingsProvider
	sessions SessionsProvider

	connCount atomic.Int32
}

// New constructs a Handler. settings/sessions may be nil to use no-op
// defaults (§4.5 "post-hello provisioning").
func New(registry *terminal.Registry, cfg Config, settings SettingsProvider, sessions SessionsProvider) *Handler {
	if settings == nil {
		settings = noSettingsProvider{}
	}
	if sessions == nil {
		sessions = noSessionsProvider{}
	}
	return &Handler{registry: registry, cfg: cfg, settings: settings, sessions: sessions}
}

// ConnectionCount returns the number of currently-open connections, for
// the admin/ops connection-list endpoint.
func (h *Handler) ConnectionCount() int { return int(h.connCount.Load()) }

// ServeHTTP handles the WebSocket upgrade and runs the connection's
// entire lifecycle (§4.5 "Handshake state machine").
func (h *Handler) ServeHTTP(c *gin.Context) {
	if int(h.connCount.Load()) >= h.cfg.MaxConnections {
		h.rejectUpgrade(c, CloseTooManyConnections, "Too many connections")
		return
	}

	if !h.originAllowed(c.Request) {
		h.rejectUpgrade(c, CloseAuthFailed, "Origin not allowed")
		return
	}

	log.MarkHijacked(c)

	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}

	wsConn, err := websocket.Accept(w, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin already checked above; loopback is always trusted
	})
	if err != nil {
		log.Error().Err(err).Msg("wsapi: upgrade failed")
		return
	}
	c.Abort()

	h.connCount.Add(1)
	defer h.connCount.Add(-1)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	defer wsConn.Close(websocket.StatusNormalClosure, "")

	cn := newConnection(newConn(ctx, wsConn), rate.Every(h.cfg.TerminalCreateRateWindow/time.Duration(maxInt(h.cfg.TerminalCreateRateLimit, 1))), h.cfg.TerminalCreateRateLimit)

	if !h.runHandshake(ctx, cn) {
		return
	}

	h.runDispatchLoop(ctx, cn)
	h.teardown(cn)
}

// originAllowed implements the loopback-trusted / allow-list exception
// (§4.5 "On upgrade").
func (h *Handler) originAllowed(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "127.0.0.1" || host == "::1" {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func (h *Handler) rejectUpgrade(c *gin.Context, code int, reason string) {
	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}
	wsConn, err := websocket.Accept(w, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Abort()
	_ = wsConn.Close(websocket.StatusCode(code), reason)
}

// teardown detaches the connection from every terminal it touched
// (§4.5 "Connection teardown").
func (h *Handler) teardown(cn *connection) {
	cn.bumpGeneration() // abort any in-flight chunked stream
	for _, id := range cn.allAttached() {
		h.registry.Detach(id, cn.c)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func trimToken(s string) string {
	return strings.TrimSpace(s)
}
