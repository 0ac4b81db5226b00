package wsapi

import "github.com/freshell/freshell/terminal/spawn"

// Capabilities are the tagged booleans a client negotiates during hello
// (§3 "Connection State").
type Capabilities struct {
	SessionsPatchV1       bool `json:"sessionsPatchV1,omitempty"`
	TerminalAttachChunkV1 bool `json:"terminalAttachChunkV1,omitempty"`
}

// clientEnvelope is the minimal shape every inbound frame is first
// decoded into, so dispatch can branch on Type before validating the
// rest of the payload per-type.
type clientEnvelope struct {
	Type string `json:"type"`
}

type helloMessage struct {
	Type         string       `json:"type"`
	Token        string       `json:"token"`
	Capabilities Capabilities `json:"capabilities"`
}

type terminalCreateMessage struct {
	Type            string          `json:"type"`
	RequestID       string          `json:"requestId"`
	Mode            spawn.Mode      `json:"mode"`
	Shell           spawn.Shell     `json:"shell"`
	Cwd             string          `json:"cwd"`
	Cols            int             `json:"cols"`
	Rows            int             `json:"rows"`
	ResumeSessionID string          `json:"resumeSessionId"`
	EnvContext      spawn.EnvContext `json:"envContext"`
	PermissionMode  string          `json:"permissionMode"`
}

type terminalIDMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
}

type terminalInputMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
	Data       string `json:"data"`
}

type terminalResizeMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
}

type terminalListMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
}

// --- server -> client ---

type readyMessage struct {
	Type string `json:"type"`
}

type pongMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type errorMessage struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type terminalCreatedMessage struct {
	Type                    string             `json:"type"`
	RequestID               string             `json:"requestId"`
	TerminalID              string             `json:"terminalId"`
	Snapshot                string             `json:"snapshot,omitempty"`
	SnapshotChunked         bool               `json:"snapshotChunked,omitempty"`
	EffectiveResumeSessionID string            `json:"effectiveResumeSessionId,omitempty"`
}

type terminalAttachedMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
	Snapshot   string `json:"snapshot"`
}

type attachedStartMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
}

type attachedChunkMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
	Index      int    `json:"index"`
	Data       string `json:"data"`
}

type attachedEndMessage struct {
	Type       string `json:"type"`
	TerminalID string `json:"terminalId"`
}

type terminalListResponseMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Terminals interface{}     `json:"terminals"`
}

type settingsUpdatedMessage struct {
	Type     string      `json:"type"`
	Settings interface{} `json:"settings"`
}

type sessionsUpdatedMessage struct {
	Type     string      `json:"type"`
	Projects interface{} `json:"projects"`
}
