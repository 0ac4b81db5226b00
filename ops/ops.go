// Package ops implements the Admin/Ops Controls component (§2 "Admin /
// Ops Controls"): the handful of HTTP routes that sit beside the
// WebSocket upgrade (connection count, a terminal list snapshot, a
// health check) plus the orchestration for a graceful process shutdown.
// Grounded on server/server.go's Shutdown and claude/manager.go's
// Shutdown/forceKillAllSessions, generalized from "one subsystem" to
// "every subsystem this daemon owns".
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/freshell/freshell/log"
	"github.com/freshell/freshell/terminal"
)

// ConnectionCounter is the seam into the WebSocket Session Handler's
// live connection count, without ops importing wsapi's full surface.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Controller owns the admin HTTP routes and the shutdown sequencing for
// the process as a whole.
type Controller struct {
	registry *terminal.Registry
	conns    ConnectionCounter
}

// New constructs a Controller.
func New(registry *terminal.Registry, conns ConnectionCounter) *Controller {
	return &Controller{registry: registry, conns: conns}
}

// RegisterRoutes mounts the admin endpoints under group.
func (c *Controller) RegisterRoutes(group gin.IRouter) {
	group.GET("/healthz", c.handleHealth)
	group.GET("/admin/connections", c.handleConnections)
	group.GET("/admin/terminals", c.handleTerminals)
}

func (c *Controller) handleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (c *Controller) handleConnections(ctx *gin.Context) {
	count := 0
	if c.conns != nil {
		count = c.conns.ConnectionCount()
	}
	ctx.JSON(http.StatusOK, gin.H{"connections": count})
}

func (c *Controller) handleTerminals(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"terminals": c.registry.List()})
}

// Shutdown orchestrates the process-wide graceful shutdown: stop
// accepting new terminals is implicit (the HTTP server itself stops
// accepting connections upstream of this call), then every Running PTY
// gets the grace period before a force-kill (§5 "shutdownGracefully").
func (c *Controller) Shutdown(ctx context.Context, timeout time.Duration) {
	log.Info().Dur("timeout", timeout).Msg("ops: starting graceful shutdown")
	c.registry.ShutdownGracefully(timeout)
	log.Info().Msg("ops: graceful shutdown complete")
}
