package terminal

import (
	"sync"
	"time"

	"github.com/freshell/freshell/gitinfo"
	"github.com/freshell/freshell/terminal/ringbuffer"
	"github.com/freshell/freshell/terminal/spawn"
)

// Status is the terminal record's lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

// PerfCounters are the optional byte/chunk/lag counters drained by the
// perf monitor (§4.3 "Perf monitor").
type PerfCounters struct {
	BytesOut        int64
	ChunksOut       int64
	BytesIn         int64
	InputCount      int64
	DroppedMessages int64
	MaxInputLagMS   int64

	pendingInputAt time.Time
}

// pendingSnapshotQueue buffers output for one client between
// attach(pendingSnapshot=true) and finishAttachSnapshot, per §4.4.2.
type pendingSnapshotQueue struct {
	chunks      []string
	queuedChars int
}

// Descriptor is the lightweight, read-only view of a Record returned by
// List() and carried in terminal.list.response and the admin terminals
// route.
type Descriptor struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Mode            spawn.Mode `json:"mode"`
	Cwd             string     `json:"cwd,omitempty"`
	Cols            int        `json:"cols"`
	Rows            int        `json:"rows"`
	ResumeSessionID string     `json:"resumeSessionId,omitempty"`
	Status          Status     `json:"status"`
	ExitCode        *int       `json:"exitCode,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastActivityAt  time.Time  `json:"lastActivityAt"`
	ClientCount     int        `json:"clientCount"`
	GitBranch       string     `json:"gitBranch,omitempty"`
	GitRemoteURL    string     `json:"gitRemoteUrl,omitempty"`
}

// Record is one running or recently-exited PTY subprocess. All mutation
// goes through the Registry that owns it; no field is exposed for
// external mutation outside this package.
type Record struct {
	mu sync.Mutex

	id              string
	title           string
	description     string
	mode            spawn.Mode
	shell           spawn.Shell
	cwd             string
	cols, rows      int
	resumeSessionID string
	envContext      spawn.EnvContext

	createdAt      time.Time
	lastActivityAt time.Time
	exitedAt       time.Time
	status         Status
	exitCode       int
	exitCodeSet    bool

	clients       map[ClientConn]struct{}
	pendingQueues map[ClientConn]*pendingSnapshotQueue

	scrollback *ringbuffer.Buffer

	git *gitinfo.Info

	pty *ptyProcess

	perf PerfCounters

	warnedIdle bool

	// streamMutexes serializes concurrent snapshot streams bound for
	// this terminal, keyed by the connection producing them (§4.4,
	// "Stream serialization per (connection, terminal)").
	streamMutexes map[ClientConn]*sync.Mutex
}

func newRecord(id string, opts CreateOptions, scrollbackCap int) *Record {
	now := time.Now()
	return &Record{
		id:              id,
		title:           opts.Title,
		description:     opts.Description,
		mode:            opts.Mode,
		shell:           opts.Shell,
		cwd:             opts.Cwd,
		cols:            opts.Cols,
		rows:            opts.Rows,
		resumeSessionID: opts.ResumeSessionID,
		envContext:      opts.EnvContext,
		createdAt:       now,
		lastActivityAt:  now,
		status:          StatusRunning,
		clients:         make(map[ClientConn]struct{}),
		pendingQueues:   make(map[ClientConn]*pendingSnapshotQueue),
		scrollback:      ringbuffer.New(scrollbackCap),
		streamMutexes:   make(map[ClientConn]*sync.Mutex),
	}
}

// ID returns the record's immutable identifier.
func (r *Record) ID() string { return r.id }

// Descriptor returns a consistent snapshot of the record's lightweight,
// UI-facing fields.
func (r *Record) Descriptor() Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := Descriptor{
		ID:              r.id,
		Title:           r.title,
		Description:     r.description,
		Mode:            r.mode,
		Cwd:             r.cwd,
		Cols:            r.cols,
		Rows:            r.rows,
		ResumeSessionID: r.resumeSessionID,
		Status:          r.status,
		CreatedAt:       r.createdAt,
		LastActivityAt:  r.lastActivityAt,
		ClientCount:     len(r.clients),
	}
	if r.status == StatusExited {
		ec := r.exitCode
		d.ExitCode = &ec
	}
	if r.git != nil {
		d.GitBranch = r.git.Branch
		d.GitRemoteURL = r.git.RemoteURL
	}
	return d
}

// Snapshot returns the terminal's current scrollback contents.
func (r *Record) Snapshot() string {
	return r.scrollback.Snapshot()
}

func (r *Record) streamMutexFor(client ClientConn) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.streamMutexes[client]
	if !ok {
		m = &sync.Mutex{}
		r.streamMutexes[client] = m
	}
	return m
}
