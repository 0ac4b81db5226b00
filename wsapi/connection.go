package wsapi

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// connState is the handshake state machine (§4.5 "Handshake state
// machine"): Connected -> Authenticated -> (Closed).
type connState int32

const (
	stateConnected connState = iota
	stateAuthenticated
)

// connection is per-client state owned exclusively by the session
// handler (§3 "Connection State"). All mutation happens on the
// connection's own read-loop goroutine except for fields marked atomic,
// which the registry's fan-out goroutines may touch concurrently.
type connection struct {
	c *conn

	state atomic.Int32

	mu               sync.Mutex
	capabilities     Capabilities
	attachedTerminals map[string]struct{}
	createdByRequest  map[string]string // requestId -> terminalId, for idempotent create

	// generation supersedes in-flight long operations (chunked snapshot
	// sends) when bumped; a superseded stream's shouldCancel observes a
	// mismatch and aborts (§3 "session update generation").
	generation atomic.Int64

	createLimiter *rate.Limiter
}

func newConnection(c *conn, createRateLimit rate.Limit, createRateBurst int) *connection {
	return &connection{
		c:                 c,
		attachedTerminals: make(map[string]struct{}),
		createdByRequest:  make(map[string]string),
		createLimiter:     rate.NewLimiter(createRateLimit, createRateBurst),
	}
}

func (cn *connection) isAuthenticated() bool {
	return connState(cn.state.Load()) == stateAuthenticated
}

func (cn *connection) markAuthenticated(caps Capabilities) {
	cn.mu.Lock()
	cn.capabilities = caps
	cn.mu.Unlock()
	cn.state.Store(int32(stateAuthenticated))
}

// capabilitiesSnapshot returns the capabilities negotiated at hello.
func (cn *connection) capabilitiesSnapshot() Capabilities {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	return cn.capabilities
}

func (cn *connection) trackAttach(terminalID string) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	cn.attachedTerminals[terminalID] = struct{}{}
}

func (cn *connection) trackDetach(terminalID string) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	delete(cn.attachedTerminals, terminalID)
}

// allAttached returns a snapshot of attached terminal ids, for O(n)
// connection teardown (§9 "Cyclic references").
func (cn *connection) allAttached() []string {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	out := make([]string, 0, len(cn.attachedTerminals))
	for id := range cn.attachedTerminals {
		out = append(out, id)
	}
	return out
}

func (cn *connection) rememberCreate(requestID, terminalID string) {
	if requestID == "" {
		return
	}
	cn.mu.Lock()
	defer cn.mu.Unlock()
	cn.createdByRequest[requestID] = terminalID
}

func (cn *connection) lookupCreate(requestID string) (string, bool) {
	if requestID == "" {
		return "", false
	}
	cn.mu.Lock()
	defer cn.mu.Unlock()
	id, ok := cn.createdByRequest[requestID]
	return id, ok
}

func (cn *connection) bumpGeneration() int64 {
	return cn.generation.Add(1)
}

func (cn *connection) currentGeneration() int64 {
	return cn.generation.Load()
}

// superseded returns a shouldCancel func reporting whether generation no
// longer matches current, i.e. a newer operation has superseded this one.
func (cn *connection) superseded(generation int64) func() bool {
	return func() bool {
		return cn.generation.Load() != generation
	}
}

const helloTimeoutCheckInterval = 50 * time.Millisecond
