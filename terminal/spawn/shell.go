package spawn

// resolveUnixShell picks a concrete Unix shell executable using the
// priority chain: $SHELL (if set) -> platform default (zsh on Darwin,
// bash on Linux) -> /bin/sh.
func resolveUnixShell(h Host) string {
	if sh, ok := h.Environ["SHELL"]; ok && sh != "" {
		return sh
	}
	if h.GOOS == "darwin" {
		return "/bin/zsh"
	}
	if h.GOOS == "linux" {
		return "/bin/bash"
	}
	return "/bin/sh"
}

// bellStopHook returns the argv fragment (as a single shell-ready string)
// that rings the terminal bell when a provider turn completes, chosen per
// how the command line will ultimately be interpreted.
func bellStopHook(targetIsWindowsNative bool) string {
	if targetIsWindowsNative {
		// Executed via a PowerShell -Command invocation.
		return "[console]::beep()"
	}
	// Executed via a Unix shell; write BEL directly to the controlling
	// tty so it rings even if stdout is redirected.
	return "printf '\\a' > /dev/tty 2>/dev/null || true"
}
