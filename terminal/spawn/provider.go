package spawn

import (
	"github.com/google/uuid"
)

// ProviderConfig describes one entry in the closed provider table: a
// coding-assistant CLI the registry knows how to launch and, optionally,
// resume.
type ProviderConfig struct {
	Label              string
	EnvVarOverride     string
	DefaultExecutable  string
	RequiresUUIDResume bool
	// ResumeArgs builds the extra argv needed to resume a prior session.
	// Nil means the provider has no resume support: a resume request is
	// logged and ignored rather than rejected.
	ResumeArgs func(sessionID string) []string
	// PermissionFlag returns the extra argv for a non-default permission
	// mode, or nil if the provider doesn't support one.
	PermissionFlag func(mode string) []string
}

// providerTable is the closed sum type of supported providers. New
// providers extend this table; callers never branch on mode by name.
var providerTable = map[Mode]ProviderConfig{
	ModeClaude: {
		Label:              "Claude",
		EnvVarOverride:     "CLAUDE_CMD",
		DefaultExecutable:  "claude",
		RequiresUUIDResume: true,
		ResumeArgs: func(sessionID string) []string {
			return []string{"--resume", sessionID}
		},
		PermissionFlag: func(mode string) []string {
			if mode == "" || mode == "default" {
				return nil
			}
			return []string{"--permission-mode", mode}
		},
	},
	ModeCodex: {
		Label:             "Codex",
		EnvVarOverride:    "CODEX_CMD",
		DefaultExecutable: "codex",
		ResumeArgs: func(sessionID string) []string {
			return []string{"resume", sessionID}
		},
	},
	ModeOpenCode: {
		Label:             "OpenCode",
		EnvVarOverride:    "OPENCODE_CMD",
		DefaultExecutable: "opencode",
		// No resume support: requests are logged and ignored.
	},
	ModeGemini: {
		Label:             "Gemini",
		EnvVarOverride:    "GEMINI_CMD",
		DefaultExecutable: "gemini",
		ResumeArgs: func(sessionID string) []string {
			return []string{"--resume", sessionID}
		},
	},
	ModeKimi: {
		Label:             "Kimi",
		EnvVarOverride:    "KIMI_CMD",
		DefaultExecutable: "kimi",
		// No resume support: requests are logged and ignored.
	},
}

// LookupProvider returns the provider table entry for m, and whether it
// exists. ModeShell never has an entry.
func LookupProvider(m Mode) (ProviderConfig, bool) {
	p, ok := providerTable[m]
	return p, ok
}

// RequiresUUIDResume reports whether mode validates resumeSessionId as a
// UUID before accepting it.
func RequiresUUIDResume(m Mode) bool {
	p, ok := providerTable[m]
	return ok && p.RequiresUUIDResume
}

// ValidResumeSessionID reports whether sessionID is acceptable for mode.
// Providers that require a UUID shape reject anything else; providers
// that don't care accept any non-empty string.
func ValidResumeSessionID(m Mode, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	if RequiresUUIDResume(m) {
		_, err := uuid.Parse(sessionID)
		return err == nil
	}
	return true
}

// providerExecutable resolves the executable for mode, honoring a
// host-level override before falling back to the table default.
func providerExecutable(h Host, m Mode) string {
	if override, ok := h.ProviderCmd[m]; ok && override != "" {
		return override
	}
	p := providerTable[m]
	return p.DefaultExecutable
}
