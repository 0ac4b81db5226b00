// Package terminal implements the Terminal Registry: the process-
// spawning, lifecycle, and output fan-out engine that owns every PTY the
// server runs. It is the single-owner of Record state — all mutation
// goes through Registry methods; no field is exposed for external
// mutation (§4.3).
package terminal

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freshell/freshell/gitinfo"
	"github.com/freshell/freshell/metrics"
	"github.com/freshell/freshell/terminal/spawn"
)

// CreateOptions is the logical request passed to Registry.Create. Cwd
// resolution, resume-session normalization, and Spawn Spec construction
// all happen inside Create; callers supply only what the client asked
// for.
type CreateOptions struct {
	Title           string
	Description     string
	Mode            spawn.Mode
	Shell           spawn.Shell
	Cwd             string
	Cols            int
	Rows            int
	ResumeSessionID string
	PermissionMode  string
	EnvContext      spawn.EnvContext
}

// Settings holds the registry-wide knobs that can be hot-reloaded
// without restarting the process (§4.3 "setSettings").
type Settings struct {
	MaxTerminals            int
	MaxExitedTerminals      int
	MaxScrollbackChars      int
	MaxPendingSnapshotChars int
	MaxWSBufferedAmount     int
	AutoKillIdleMinutes     int
	WarnBeforeKillMinutes   int
}

// HostResolver supplies the Host value the Spawn Spec Resolver needs;
// injected so the registry never touches the environment directly.
type HostResolver interface {
	Host() spawn.Host
}

// Registry owns every Record for the lifetime of the process. Construct
// with New; call Shutdown or ShutdownGracefully exactly once.
type Registry struct {
	mu       sync.Mutex
	records  map[string]*Record
	order    []string // insertion order of ids; reapExitedLocked orders by exit time and does not read it
	settings Settings

	host HostResolver
	git  gitinfo.Resolver
	perf metrics.Collector

	events *eventBus

	idleStop chan struct{}
	perfStop chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// New constructs a Registry. git and perf may be nil; nil git disables
// Git-metadata enrichment, nil perf uses metrics.NoopCollector.
func New(host HostResolver, settings Settings, git gitinfo.Resolver, perf metrics.Collector) *Registry {
	if git == nil {
		git = gitinfo.NoopResolver{}
	}
	if perf == nil {
		perf = metrics.NoopCollector{}
	}
	r := &Registry{
		records:  make(map[string]*Record),
		settings: settings,
		host:     host,
		git:      git,
		perf:     perf,
		events:   newEventBus(),
		now:      time.Now,
	}
	return r
}

// Subscribe registers handler for registry events (terminal.created,
// terminal.exit, terminal.idle.warning). Returns an unsubscribe func.
func (reg *Registry) Subscribe(handler EventHandler) func() {
	return reg.events.subscribe(handler)
}

// StartMonitors launches the idle monitor and, if perf is non-nil and
// interval>0, the perf monitor. Call once after New.
func (reg *Registry) StartMonitors(idleInterval time.Duration, perfInterval time.Duration) {
	reg.idleStop = make(chan struct{})
	reg.wg.Add(1)
	go reg.runIdleMonitor(idleInterval)

	if perfInterval > 0 {
		reg.perfStop = make(chan struct{})
		reg.wg.Add(1)
		go reg.runPerfMonitor(perfInterval)
	}
}

// Create spawns a new PTY per opts and returns its Record. Fails with
// ErrMaxTerminalsReached when Running count is already at the
// configured maximum (after reaping exited overflow). If a Running
// record already owns (mode, resumeSessionID), that record is returned
// instead of spawning a second process (§3 invariant).
func (reg *Registry) Create(opts CreateOptions) (*Record, error) {
	reg.mu.Lock()

	reg.reapExitedLocked()

	if opts.Mode != spawn.ModeShell && opts.ResumeSessionID != "" {
		if existing := reg.findRunningBySessionLocked(opts.Mode, opts.ResumeSessionID); existing != nil {
			reg.mu.Unlock()
			return existing, nil
		}
	}

	if reg.runningCountLocked() >= reg.settings.MaxTerminals {
		reg.mu.Unlock()
		return nil, ErrMaxTerminalsReached
	}

	cwd := reg.resolveCwdLocked(opts.Cwd)
	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	id := uuid.NewString()
	normalized := opts
	normalized.Cwd = cwd
	normalized.Cols = cols
	normalized.Rows = rows

	record := newRecord(id, normalized, reg.settings.MaxScrollbackChars)
	if cwd != "" {
		record.git = reg.git.Resolve(cwd)
	}

	// The raw (possibly non-UUID) resumeSessionId is handed to the
	// resolver as-is: its provider-arg gate is what both omits the
	// resume arg and logs the "not a valid UUID" warning (§4.2, §8
	// property 5, E6) — nullifying it here would silently swallow the
	// warning instead of just the arg.
	req := spawn.Request{
		Mode:            opts.Mode,
		Shell:           opts.Shell,
		Cwd:             cwd,
		ResumeSessionID: opts.ResumeSessionID,
		PermissionMode:  opts.PermissionMode,
		EnvContext:      opts.EnvContext,
	}
	spec, err := spawn.Resolve(req, reg.host.Host())
	if err != nil {
		reg.mu.Unlock()
		return nil, fmt.Errorf("terminal: resolve spawn spec: %w", err)
	}
	for _, w := range spec.Warnings {
		logSpawnWarning(id, w)
	}
	if spec.EffectiveResumeSessionID != "" {
		record.resumeSessionID = spec.EffectiveResumeSessionID
	} else {
		record.resumeSessionID = ""
	}

	pty, err := startPTY(spec, cols, rows)
	if err != nil {
		reg.mu.Unlock()
		return nil, fmt.Errorf("terminal: spawn pty: %w", err)
	}
	record.pty = pty

	reg.records[id] = record
	reg.order = append(reg.order, id)
	reg.mu.Unlock()

	reg.wireOutputAndExit(record)

	reg.events.publish(Event{Type: EventCreated, TerminalID: id})
	return record, nil
}

// wireOutputAndExit starts the goroutines that pump PTY output into the
// record's buffer/fan-out and observe process exit. One pair per
// record, for the record's lifetime.
func (reg *Registry) wireOutputAndExit(record *Record) {
	reg.wg.Add(1)
	go func() {
		defer reg.wg.Done()
		buf := make([]byte, 32*1024)
		for {
			n, err := record.pty.Read(buf)
			if n > 0 {
				reg.handleOutput(record, string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()

	reg.wg.Add(1)
	go func() {
		defer reg.wg.Done()
		exitCode := record.pty.Wait()
		reg.handleExit(record, exitCode)
	}()
}

// handleOutput implements the PTY data handler (§4.3).
func (reg *Registry) handleOutput(record *Record, chunk string) {
	record.mu.Lock()

	record.lastActivityAt = reg.now()
	record.warnedIdle = false
	record.scrollback.Append(chunk)
	record.perf.BytesOut += int64(len(chunk))
	record.perf.ChunksOut++

	if !record.perf.pendingInputAt.IsZero() {
		lag := reg.now().Sub(record.perf.pendingInputAt).Milliseconds()
		if lag > record.perf.MaxInputLagMS {
			record.perf.MaxInputLagMS = lag
		}
		record.perf.pendingInputAt = time.Time{}
	}

	type overflowClient struct {
		client ClientConn
	}
	var overflowed []overflowClient
	var directSend []ClientConn

	for client := range record.clients {
		if q, ok := record.pendingQueues[client]; ok {
			q.chunks = append(q.chunks, chunk)
			q.queuedChars += len(chunk)
			if q.queuedChars > reg.settings.MaxPendingSnapshotChars {
				overflowed = append(overflowed, overflowClient{client})
			}
			continue
		}
		directSend = append(directSend, client)
	}
	for _, o := range overflowed {
		delete(record.pendingQueues, o.client)
		delete(record.clients, o.client)
	}
	record.mu.Unlock()

	for _, o := range overflowed {
		_ = o.client.Close(4008, "Attach snapshot queue overflow")
	}
	for _, client := range directSend {
		reg.SafeSend(client, OutputMessage{Type: "terminal.output", TerminalID: record.id, Data: chunk}, record)
	}
}

// handleExit implements the PTY exit handler (§4.3). Idempotent. Honors
// an exit code already pinned by Kill (§3 "sets exit code (preserves
// existing if set, else 0)") instead of overwriting it with the raw
// signal-kill value Wait() reports.
func (reg *Registry) handleExit(record *Record, exitCode int) {
	record.mu.Lock()
	if record.status == StatusExited {
		record.mu.Unlock()
		return
	}
	record.status = StatusExited
	if !record.exitCodeSet {
		record.exitCode = exitCode
		record.exitCodeSet = true
	}
	finalExitCode := record.exitCode
	record.exitedAt = reg.now()
	clients := clientSlice(record.clients)
	record.clients = make(map[ClientConn]struct{})
	record.pendingQueues = make(map[ClientConn]*pendingSnapshotQueue)
	record.mu.Unlock()

	for _, client := range clients {
		reg.SafeSend(client, ExitMessage{Type: "terminal.exit", TerminalID: record.id, ExitCode: finalExitCode}, record)
	}

	reg.events.publish(Event{Type: EventExit, TerminalID: record.id, ExitCode: finalExitCode})

	reg.mu.Lock()
	reg.reapExitedLocked()
	reg.mu.Unlock()
}

// Attach adds client to the record's fan-out set. If pendingSnapshot,
// subsequent output is diverted into a per-client queue until
// FinishAttachSnapshot is called.
func (reg *Registry) Attach(id string, client ClientConn, pendingSnapshot bool) (*Record, error) {
	reg.mu.Lock()
	record, ok := reg.records[id]
	reg.mu.Unlock()
	if !ok {
		return nil, ErrTerminalNotFound
	}

	record.mu.Lock()
	record.clients[client] = struct{}{}
	if pendingSnapshot {
		record.pendingQueues[client] = &pendingSnapshotQueue{}
	}
	record.mu.Unlock()

	return record, nil
}

// FinishAttachSnapshot deletes the per-client pending queue and flushes
// its contents to client in arrival order, atomically with clearing the
// pending flag. Doing the flush while still holding record.mu closes
// the window where handleOutput could see the queue already gone and
// direct-send a live chunk ahead of the queued snapshot-window output
// (§5 ordering guarantee, §8 property 7).
func (reg *Registry) FinishAttachSnapshot(id string, client ClientConn) {
	reg.mu.Lock()
	record, ok := reg.records[id]
	reg.mu.Unlock()
	if !ok {
		return
	}

	record.mu.Lock()
	defer record.mu.Unlock()
	q, ok := record.pendingQueues[client]
	if !ok {
		return
	}
	delete(record.pendingQueues, client)
	for _, chunk := range q.chunks {
		reg.safeSendLocked(client, OutputMessage{Type: "terminal.output", TerminalID: id, Data: chunk}, record)
	}
}

// Detach removes client from the record's client set and pending queue.
func (reg *Registry) Detach(id string, client ClientConn) bool {
	reg.mu.Lock()
	record, ok := reg.records[id]
	reg.mu.Unlock()
	if !ok {
		return false
	}
	record.mu.Lock()
	_, present := record.clients[client]
	delete(record.clients, client)
	delete(record.pendingQueues, client)
	record.mu.Unlock()
	return present
}

// Input writes data to the PTY. Rejects when the terminal is missing or
// already Exited.
func (reg *Registry) Input(id string, data []byte) bool {
	reg.mu.Lock()
	record, ok := reg.records[id]
	reg.mu.Unlock()
	if !ok {
		return false
	}

	record.mu.Lock()
	if record.status != StatusRunning {
		record.mu.Unlock()
		return false
	}
	record.lastActivityAt = reg.now()
	record.warnedIdle = false
	if record.perf.pendingInputAt.IsZero() {
		record.perf.pendingInputAt = reg.now()
	}
	record.perf.BytesIn += int64(len(data))
	record.perf.InputCount++
	pty := record.pty
	record.mu.Unlock()

	_, err := pty.WriteInput(data)
	return err == nil
}

// Resize updates the record's dimensions and best-effort resizes the
// PTY. Never fails the caller even if the underlying resize errors.
func (reg *Registry) Resize(id string, cols, rows int) bool {
	reg.mu.Lock()
	record, ok := reg.records[id]
	reg.mu.Unlock()
	if !ok {
		return false
	}

	record.mu.Lock()
	record.cols, record.rows = cols, rows
	pty := record.pty
	running := record.status == StatusRunning
	record.mu.Unlock()

	if running && pty != nil {
		_ = pty.Resize(cols, rows)
	}
	return true
}

// Kill terminates the PTY (if Running) and transitions the record to
// Exited. Idempotent: returns true immediately if already Exited. Pins
// the exit code to 0 before signaling (§3 "sets exit code (preserves
// existing if set, else 0)") so the asynchronous Wait() result — which
// reports -1 for a signal-terminated process — doesn't later overwrite
// it in handleExit.
func (reg *Registry) Kill(id string) bool {
	reg.mu.Lock()
	record, ok := reg.records[id]
	reg.mu.Unlock()
	if !ok {
		return false
	}

	record.mu.Lock()
	if record.status == StatusExited {
		record.mu.Unlock()
		return true
	}
	if !record.exitCodeSet {
		record.exitCode = 0
		record.exitCodeSet = true
	}
	pty := record.pty
	record.mu.Unlock()

	if pty != nil {
		_ = pty.Kill(nil)
	}
	// handleExit (driven by the Wait() goroutine) performs the actual
	// state transition and client notification, preserving the single
	// idempotent termination path (§5 "Idempotent lifecycle").
	return true
}

// Remove kills (if needed) and deletes the record from the registry.
func (reg *Registry) Remove(id string) bool {
	killed := reg.Kill(id)
	reg.mu.Lock()
	_, existed := reg.records[id]
	delete(reg.records, id)
	reg.mu.Unlock()
	return killed && existed
}

// StreamMutex returns the per-(connection, terminal) mutex used to
// serialize concurrent snapshot streams bound for id on client (§4.4
// "Stream serialization per (connection, terminal)"). Returns nil if id
// is unknown.
func (reg *Registry) StreamMutex(id string, client ClientConn) *sync.Mutex {
	reg.mu.Lock()
	record, ok := reg.records[id]
	reg.mu.Unlock()
	if !ok {
		return nil
	}
	return record.streamMutexFor(client)
}

// Get returns the record for id, or nil if absent.
func (reg *Registry) Get(id string) *Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.records[id]
}

// List returns lightweight descriptors for every known record (Running
// and Exited), sorted by creation time.
func (reg *Registry) List() []Descriptor {
	reg.mu.Lock()
	records := make([]*Record, 0, len(reg.records))
	for _, r := range reg.records {
		records = append(records, r)
	}
	reg.mu.Unlock()

	descriptors := make([]Descriptor, 0, len(records))
	for _, r := range records {
		descriptors = append(descriptors, r.Descriptor())
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].CreatedAt.Before(descriptors[j].CreatedAt)
	})
	return descriptors
}

// SetSettings updates the registry-wide settings and pushes the new
// scrollback cap into every existing record's ring buffer.
func (reg *Registry) SetSettings(s Settings) {
	reg.mu.Lock()
	reg.settings = s
	records := make([]*Record, 0, len(reg.records))
	for _, r := range reg.records {
		records = append(records, r)
	}
	reg.mu.Unlock()

	for _, r := range records {
		r.mu.Lock()
		r.scrollback.SetMaxChars(s.MaxScrollbackChars)
		r.mu.Unlock()
	}
}

// SetResumeSessionID assigns a resume session id to an existing record,
// honoring the per-provider UUID gate (§3 invariant, §8 property 5).
func (reg *Registry) SetResumeSessionID(id string, sessionID string) bool {
	reg.mu.Lock()
	record, ok := reg.records[id]
	reg.mu.Unlock()
	if !ok {
		return false
	}

	record.mu.Lock()
	defer record.mu.Unlock()
	if !spawn.ValidResumeSessionID(record.mode, sessionID) {
		return false
	}
	record.resumeSessionID = sessionID
	return true
}

// FindTerminalsBySession returns every record (Running or Exited) for
// (mode, sessionID).
func (reg *Registry) FindTerminalsBySession(mode spawn.Mode, sessionID string) []*Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var out []*Record
	for _, r := range reg.records {
		r.mu.Lock()
		match := r.mode == mode && r.resumeSessionID == sessionID
		r.mu.Unlock()
		if match {
			out = append(out, r)
		}
	}
	return out
}

// FindRunningTerminalBySession returns the single Running record for
// (mode, sessionID), or nil.
func (reg *Registry) FindRunningTerminalBySession(mode spawn.Mode, sessionID string) *Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.findRunningBySessionLocked(mode, sessionID)
}

func (reg *Registry) findRunningBySessionLocked(mode spawn.Mode, sessionID string) *Record {
	if sessionID == "" {
		return nil
	}
	for _, r := range reg.records {
		r.mu.Lock()
		match := r.status == StatusRunning && r.mode == mode && r.resumeSessionID == sessionID
		r.mu.Unlock()
		if match {
			return r
		}
	}
	return nil
}

// FindUnassociatedTerminals returns Running records for mode at cwd that
// have no resume session id assigned yet (normalized per-OS per §4.3).
func (reg *Registry) FindUnassociatedTerminals(mode spawn.Mode, cwd string) []*Record {
	normalized := normalizeCwd(cwd)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var out []*Record
	for _, r := range reg.records {
		r.mu.Lock()
		match := r.status == StatusRunning && r.mode == mode && r.resumeSessionID == "" && normalizeCwd(r.cwd) == normalized
		r.mu.Unlock()
		if match {
			out = append(out, r)
		}
	}
	return out
}

func (reg *Registry) runningCountLocked() int {
	n := 0
	for _, r := range reg.records {
		r.mu.Lock()
		if r.status == StatusRunning {
			n++
		}
		r.mu.Unlock()
	}
	return n
}

// reapExitedLocked evicts the oldest Exited records beyond
// MaxExitedTerminals, ordered by exitedAt (falling back to
// lastActivityAt). Caller must hold reg.mu.
func (reg *Registry) reapExitedLocked() {
	type exitedEntry struct {
		id   string
		when time.Time
	}
	var exited []exitedEntry
	for id, r := range reg.records {
		r.mu.Lock()
		if r.status == StatusExited {
			when := r.exitedAt
			if when.IsZero() {
				when = r.lastActivityAt
			}
			exited = append(exited, exitedEntry{id, when})
		}
		r.mu.Unlock()
	}
	overflow := len(exited) - reg.settings.MaxExitedTerminals
	if overflow <= 0 {
		return
	}
	sort.Slice(exited, func(i, j int) bool { return exited[i].when.Before(exited[j].when) })
	for i := 0; i < overflow; i++ {
		delete(reg.records, exited[i].id)
	}
}

// resolveCwdLocked resolves the effective working directory: the
// caller's requested cwd if it exists, else the host's home directory
// on Unix, else left empty so the resolver falls back to the server's
// own working directory (§4.3 "create(opts)").
func (reg *Registry) resolveCwdLocked(requested string) string {
	if requested != "" {
		if info, err := os.Stat(requested); err == nil && info.IsDir() {
			return requested
		}
	}
	h := reg.host.Host()
	if h.GOOS != "windows" && h.HomeDir != "" {
		return h.HomeDir
	}
	return ""
}

func clientSlice(m map[ClientConn]struct{}) []ClientConn {
	out := make([]ClientConn, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return out
}

// normalizeCwd implements the cwd comparison rule from §4.3: backslashes
// to slashes, trailing slash stripped, case folded only as
// platformFoldCase (platform_unix.go / platform_windows.go) dictates.
func normalizeCwd(cwd string) string {
	cwd = strings.ReplaceAll(cwd, "\\", "/")
	cwd = strings.TrimSuffix(cwd, "/")
	return platformFoldCase(cwd)
}

func logSpawnWarning(terminalID, msg string) {
	spawnWarningLogger(terminalID, msg)
}

// spawnWarningLogger is a package variable so tests can observe warnings
// without depending on the log package's global state.
var spawnWarningLogger = defaultSpawnWarningLogger
