package terminal

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freshell/freshell/gitinfo"
	"github.com/freshell/freshell/metrics"
	"github.com/freshell/freshell/terminal/spawn"
)

// testHost satisfies HostResolver with a fixed, deterministic host so
// tests never depend on the ambient shell/PATH of the machine running
// them.
type testHost struct{}

func (testHost) Host() spawn.Host {
	return spawn.Host{
		GOOS:    "linux",
		Environ: map[string]string{"SHELL": "/bin/sh", "PATH": "/usr/bin:/bin"},
		Term:    "xterm-256color",
		// Route every provider at a real, always-present binary so
		// tests don't depend on coding-assistant CLIs being installed.
		ProviderCmd: map[spawn.Mode]string{
			spawn.ModeClaude:   "/bin/sh",
			spawn.ModeCodex:    "/bin/sh",
			spawn.ModeOpenCode: "/bin/sh",
			spawn.ModeGemini:   "/bin/sh",
			spawn.ModeKimi:     "/bin/sh",
		},
	}
}

// fakeClient is a minimal terminal.ClientConn recorder for assertions.
type fakeClient struct {
	mu       sync.Mutex
	messages []interface{}
	closed   bool
	closeErr error
}

func (c *fakeClient) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, v)
	return nil
}

func (c *fakeClient) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

func (c *fakeClient) BufferedAmount() int { return 0 }

func (c *fakeClient) outputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.messages {
		if om, ok := m.(OutputMessage); ok {
			out = append(out, om.Data)
		}
	}
	return out
}

func newTestRegistry(t *testing.T, settings Settings) *Registry {
	t.Helper()
	return New(testHost{}, settings, gitinfo.NoopResolver{}, metrics.NoopCollector{})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestCreate_SpawnsAndEchoesInput(t *testing.T) {
	reg := newTestRegistry(t, Settings{MaxTerminals: 5, MaxScrollbackChars: 4096, MaxPendingSnapshotChars: 4096})

	record, err := reg.Create(CreateOptions{Mode: spawn.ModeShell, Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer reg.Shutdown()

	client := &fakeClient{}
	if _, err := reg.Attach(record.ID(), client, false); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if !reg.Input(record.ID(), []byte("echo marker-word\n")) {
		t.Fatal("Input returned false for a running terminal")
	}

	waitFor(t, 3*time.Second, func() bool {
		for _, chunk := range client.outputs() {
			if strings.Contains(chunk, "marker-word") {
				return true
			}
		}
		return false
	})
}

func TestCreate_MaxTerminalsReached(t *testing.T) {
	reg := newTestRegistry(t, Settings{MaxTerminals: 1, MaxScrollbackChars: 4096, MaxPendingSnapshotChars: 4096})
	defer reg.Shutdown()

	if _, err := reg.Create(CreateOptions{Mode: spawn.ModeShell}); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	if _, err := reg.Create(CreateOptions{Mode: spawn.ModeShell}); err != ErrMaxTerminalsReached {
		t.Fatalf("expected ErrMaxTerminalsReached, got %v", err)
	}
}

func TestKill_MarksExitedAndNotifiesClients(t *testing.T) {
	reg := newTestRegistry(t, Settings{MaxTerminals: 5, MaxScrollbackChars: 4096, MaxPendingSnapshotChars: 4096})
	defer reg.Shutdown()

	record, err := reg.Create(CreateOptions{Mode: spawn.ModeShell})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	client := &fakeClient{}
	if _, err := reg.Attach(record.ID(), client, false); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if !reg.Kill(record.ID()) {
		t.Fatal("Kill returned false")
	}

	waitFor(t, 3*time.Second, func() bool {
		return reg.Get(record.ID()).Descriptor().Status == StatusExited
	})

	client.mu.Lock()
	defer client.mu.Unlock()
	var exitMsg *ExitMessage
	for _, m := range client.messages {
		if em, ok := m.(ExitMessage); ok {
			exitMsg = &em
		}
	}
	if exitMsg == nil {
		t.Fatal("expected an ExitMessage to be delivered to the attached client")
	}
	// §3 "sets exit code (preserves existing if set, else 0)" / E1: a
	// kill with no previously-captured exit code reports 0, not the
	// raw signal-kill value Wait() returns.
	if exitMsg.ExitCode != 0 {
		t.Errorf("expected exitCode=0 for a killed terminal with no prior exit code, got %d", exitMsg.ExitCode)
	}
}

func TestSnapshot_DeliveredBeforeQueuedOutput(t *testing.T) {
	reg := newTestRegistry(t, Settings{MaxTerminals: 5, MaxScrollbackChars: 4096, MaxPendingSnapshotChars: 4096})
	defer reg.Shutdown()

	record, err := reg.Create(CreateOptions{Mode: spawn.ModeShell})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !reg.Input(record.ID(), []byte("echo before-attach\n")) {
		t.Fatal("Input failed")
	}
	waitFor(t, 3*time.Second, func() bool {
		return strings.Contains(record.Snapshot(), "before-attach")
	})

	client := &fakeClient{}
	if _, err := reg.Attach(record.ID(), client, true); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	snapshot := record.Snapshot()
	// FinishAttachSnapshot flushes any output queued during the attach
	// window directly to client, atomically with clearing the pending
	// flag (§5 ordering guarantee) — nothing should have queued here
	// since no output was produced between Attach and this call.
	reg.FinishAttachSnapshot(record.ID(), client)

	if !strings.Contains(snapshot, "before-attach") {
		t.Errorf("expected pre-attach output in snapshot, got %q", snapshot)
	}
	// Anything flushed from the queue must be distinct from (not a
	// duplicate prefix of) what the snapshot already covers.
	for _, chunk := range client.outputs() {
		if strings.Contains(snapshot, chunk) && chunk != "" {
			t.Errorf("flushed chunk %q already present in snapshot; attach is replaying history", chunk)
		}
	}
}

// TestOneRunningTerminalPerModeAndSession exercises the dedup branch in
// Create directly against a Running record seeded into the registry,
// rather than spawning a real "claude" binary that won't exist in a test
// environment — the invariant under test is Create's bookkeeping, not
// the provider subprocess itself.
func TestOneRunningTerminalPerModeAndSession(t *testing.T) {
	reg := newTestRegistry(t, Settings{MaxTerminals: 5, MaxScrollbackChars: 4096, MaxPendingSnapshotChars: 4096})
	defer reg.Shutdown()

	id := "550e8400-e29b-41d4-a716-446655440000"
	existing := newRecord("existing-id", CreateOptions{Mode: spawn.ModeClaude, ResumeSessionID: id}, reg.settings.MaxScrollbackChars)
	existing.status = StatusRunning

	reg.mu.Lock()
	reg.records[existing.id] = existing
	reg.order = append(reg.order, existing.id)
	reg.mu.Unlock()

	second, err := reg.Create(CreateOptions{Mode: spawn.ModeClaude, ResumeSessionID: id})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if second.ID() != existing.ID() {
		t.Errorf("expected the existing Running record to be reused for (mode, resumeSessionId), got a new terminal %s instead of %s", second.ID(), existing.ID())
	}
}

func TestReapExited_FIFOEvictsOldestFirst(t *testing.T) {
	reg := newTestRegistry(t, Settings{MaxTerminals: 5, MaxExitedTerminals: 1, MaxScrollbackChars: 4096, MaxPendingSnapshotChars: 4096})
	defer reg.Shutdown()

	first, err := reg.Create(CreateOptions{Mode: spawn.ModeShell})
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	reg.Kill(first.ID())
	waitFor(t, 3*time.Second, func() bool { return reg.Get(first.ID()).Descriptor().Status == StatusExited })

	second, err := reg.Create(CreateOptions{Mode: spawn.ModeShell})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	reg.Kill(second.ID())
	waitFor(t, 3*time.Second, func() bool { return reg.Get(second.ID()).Descriptor().Status == StatusExited })

	// handleExit reaps after every exit: with a cap of one exited record,
	// the second terminal's exit already evicted the oldest (first), and
	// the third terminal's exit evicts second in turn.
	third, err := reg.Create(CreateOptions{Mode: spawn.ModeShell})
	if err != nil {
		t.Fatalf("third Create: %v", err)
	}
	reg.Kill(third.ID())
	waitFor(t, 3*time.Second, func() bool { return reg.Get(third.ID()).Descriptor().Status == StatusExited })

	if reg.Get(first.ID()) != nil {
		t.Error("expected the oldest exited record to have been reaped")
	}
}

func TestOutputMessage_RoundTripsJSON(t *testing.T) {
	msg := OutputMessage{Type: "terminal.output", TerminalID: "abc", Data: "hello"}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out OutputMessage
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != msg {
		t.Errorf("round-trip mismatch: got %+v, want %+v", out, msg)
	}
}
