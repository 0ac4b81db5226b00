package config

import (
	"os"
	"runtime"
	"strings"

	"github.com/freshell/freshell/terminal/spawn"
)

// Host builds the spawn.Host value the Spawn Spec Resolver needs,
// satisfying terminal.HostResolver structurally. Config is the single
// place that actually reads the OS environment for this purpose; the
// resolver itself stays a pure function of (Request, Host).
func (c *Config) Host() spawn.Host {
	environ := make(map[string]string, len(os.Environ()))
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			environ[kv[:i]] = kv[i+1:]
		}
	}

	home, _ := os.UserHomeDir()

	return spawn.Host{
		GOOS:    runtime.GOOS,
		IsWSL:   isWSL(),
		Environ: environ,
		HomeDir: home,

		WindowsShell:    c.WindowsShell,
		WSLExe:          c.WSLExe,
		WSLDistro:       c.WSLDistro,
		WSLWindowsSys32: c.WSLWindowsSys32,
		PowerShellExe:   c.PowerShellExe,

		ProviderCmd: map[spawn.Mode]string{
			spawn.ModeClaude:   c.ClaudeCmd,
			spawn.ModeCodex:    c.CodexCmd,
			spawn.ModeOpenCode: c.OpenCodeCmd,
			spawn.ModeGemini:   c.GeminiCmd,
			spawn.ModeKimi:     c.KimiCmd,
		},

		Term:      c.Term,
		ColorTerm: c.ColorTerm,
	}
}

// isWSL detects a WSL Linux kernel via the interop env vars Microsoft's
// WSL injects into every shell (§4.2 "Normalize shell").
func isWSL() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	return os.Getenv("WSL_DISTRO_NAME") != "" || os.Getenv("WSL_INTEROP") != ""
}
