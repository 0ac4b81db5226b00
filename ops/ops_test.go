package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/freshell/freshell/gitinfo"
	"github.com/freshell/freshell/metrics"
	"github.com/freshell/freshell/terminal"
	"github.com/freshell/freshell/terminal/spawn"
)

type fixedHost struct{}

func (fixedHost) Host() spawn.Host { return spawn.Host{GOOS: "linux"} }

type fixedConnCounter struct{ count int }

func (f fixedConnCounter) ConnectionCount() int { return f.count }

func newTestController(t *testing.T) (*Controller, *terminal.Registry) {
	t.Helper()
	reg := terminal.New(fixedHost{}, terminal.Settings{MaxTerminals: 5}, gitinfo.NoopResolver{}, metrics.NoopCollector{})
	return New(reg, fixedConnCounter{count: 3}), reg
}

func TestHandleHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, reg := newTestController(t)
	defer reg.Shutdown()

	router := gin.New()
	c.RegisterRoutes(router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHandleConnections(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, reg := newTestController(t)
	defer reg.Shutdown()

	router := gin.New()
	c.RegisterRoutes(router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/connections", nil)
	router.ServeHTTP(w, req)

	var body struct {
		Connections int `json:"connections"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Connections != 3 {
		t.Errorf("expected 3 connections, got %d", body.Connections)
	}
}

func TestHandleTerminals_EmptyRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, reg := newTestController(t)
	defer reg.Shutdown()

	router := gin.New()
	c.RegisterRoutes(router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/terminals", nil)
	router.ServeHTTP(w, req)

	var body struct {
		Terminals []terminal.Descriptor `json:"terminals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(body.Terminals) != 0 {
		t.Errorf("expected no terminals, got %d", len(body.Terminals))
	}
}

func TestShutdown_CompletesWithinTimeout(t *testing.T) {
	reg := terminal.New(fixedHost{}, terminal.Settings{MaxTerminals: 5}, gitinfo.NoopResolver{}, metrics.NoopCollector{})
	c := New(reg, fixedConnCounter{})

	done := make(chan struct{})
	go func() {
		c.Shutdown(context.Background(), 2*time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return within the expected bound")
	}
}
