package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/freshell/freshell/config"
	"github.com/freshell/freshell/gitinfo"
	"github.com/freshell/freshell/log"
	"github.com/freshell/freshell/metrics"
	"github.com/freshell/freshell/ops"
	"github.com/freshell/freshell/terminal"
	"github.com/freshell/freshell/wsapi"
)

// Server owns and coordinates all application components
type Server struct {
	cfg *config.Config

	registry *terminal.Registry
	ws       *wsapi.Handler
	ops      *ops.Controller

	// Shutdown context - cancelled when server is shutting down.
	// Long-running handlers (WebSocket) should listen to this.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	// HTTP
	router *gin.Engine
	http   *http.Server
}

// New creates a new server with all components initialized
func New(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	log.Info().Msg("initializing terminal registry")
	s.registry = terminal.New(cfg, terminal.Settings{
		MaxTerminals:            cfg.MaxTerminals,
		MaxExitedTerminals:      cfg.MaxExitedTerminals,
		MaxScrollbackChars:      cfg.MaxScrollbackChars,
		MaxPendingSnapshotChars: cfg.MaxPendingSnapshotChars,
		MaxWSBufferedAmount:     cfg.MaxWSBufferedAmount,
		AutoKillIdleMinutes:     cfg.AutoKillIdleMinutes,
		WarnBeforeKillMinutes:   cfg.WarnBeforeKillMinutes,
	}, gitinfo.NewGoGitResolver(), metrics.NewLoggingCollector(500))

	log.Info().Msg("initializing websocket session handler")
	s.ws = wsapi.New(s.registry, wsapi.Config{
		AuthToken:                cfg.AuthToken,
		AllowedOrigins:           cfg.AllowedOrigins,
		HelloTimeout:             time.Duration(cfg.HelloTimeoutMS) * time.Millisecond,
		MaxConnections:           cfg.MaxConnections,
		TerminalCreateRateLimit:  cfg.TerminalCreateRateLimit,
		TerminalCreateRateWindow: time.Duration(cfg.TerminalCreateRateWindowSec) * time.Second,
		MaxChunkBytes:            cfg.MaxWSChunkBytes,
		DrainThreshold:           cfg.MaxWSBufferedAmount / 4,
	}, nil, nil)

	s.ops = ops.New(s.registry, s.ws)

	s.setupRouter()

	log.Info().Msg("server initialized successfully")
	return s, nil
}

// setupRouter creates and configures the Gin router
func (s *Server) setupRouter() {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(log.GinLogger())

	if s.cfg.IsDevelopment() {
		s.router.Use(s.corsMiddleware())
	}
	if !s.cfg.IsDevelopment() {
		s.router.Use(s.securityHeadersMiddleware())
	}

	// Gzip everywhere except the WebSocket upgrade, which must not be
	// wrapped by a response-buffering middleware.
	s.router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/ws",
	})))

	s.router.SetTrustedProxies(nil)

	s.router.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	s.router.GET("/ws", s.ws.ServeHTTP)
	s.ops.RegisterRoutes(s.router)
}

// corsMiddleware handles CORS for development environments
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, allowed := range s.cfg.AllowedOrigins {
			if origin == allowed {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		if origin == "http://localhost:12345" || origin == "http://localhost:12346" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// securityHeadersMiddleware adds security headers for production
func (s *Server) securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// Start starts the background monitors and the HTTP server
func (s *Server) Start() error {
	log.Info().Msg("starting terminal registry monitors")
	s.registry.StartMonitors(
		time.Duration(s.cfg.IdleMonitorIntervalSec)*time.Second,
		time.Duration(s.cfg.PerfMonitorIntervalSec)*time.Second,
	)

	s.http = &http.Server{
		Addr:     fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:  s.router,
		ErrorLog: log.StdErrorLogger(),
	}

	log.Info().
		Str("addr", s.http.Addr).
		Str("env", s.cfg.Env).
		Msg("HTTP server starting")

	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server: stop accepting new
// connections, then give every running PTY its grace period before a
// force-kill.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	log.Info().Msg("signaling handlers to stop")
	s.shutdownCancel()

	// Give handlers a moment to process the cancellation and close
	// connections before the HTTP server itself stops.
	time.Sleep(100 * time.Millisecond)

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	deadline := 10 * time.Second
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}
	s.ops.Shutdown(ctx, deadline)

	log.Info().Msg("server shutdown complete")
	return nil
}

// Component accessors for callers that need direct access (cmd/freshelld, tests)
func (s *Server) Registry() *terminal.Registry     { return s.registry }
func (s *Server) Router() *gin.Engine              { return s.router }
func (s *Server) ShutdownContext() context.Context { return s.shutdownCtx }
