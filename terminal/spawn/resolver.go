package spawn

import (
	"fmt"
	"strings"
)

// ServerOnlyEnvKeys lists env vars that must never reach a spawned PTY child.
func ServerOnlyEnvKeys() []string {
	return []string{"AUTH_TOKEN", "PORT", "VITE_PORT", "ALLOWED_ORIGINS"}
}

// target is the resolver's internal dispatch decision once Shell has been
// normalized against the host.
type target int

const (
	targetLinuxDirect target = iota
	targetWSLLaunch
	targetWindowsCmd
	targetWindowsPowerShell
)

// Resolve translates req into a concrete Spec for the given host. It never
// returns an error for well-formed input; the tuple is a deterministic,
// pure function of (req, host).
func Resolve(req Request, h Host) (Spec, error) {
	spec := Spec{Env: buildEnv(h, req)}

	t := resolveTarget(req, h)

	switch t {
	case targetWindowsCmd:
		resolveWindowsCmd(req, h, &spec)
	case targetWindowsPowerShell:
		resolveWindowsPowerShell(req, h, &spec)
	case targetWSLLaunch:
		resolveWSLLaunch(req, h, &spec)
	default:
		resolveLinuxDirect(req, h, &spec)
	}

	return spec, nil
}

// resolveTarget implements §4.2 step 2 (normalize shell) and the host
// dispatch of step 3, collapsed into a single decision.
func resolveTarget(req Request, h Host) target {
	nativeWindows := h.GOOS == "windows" && !h.IsWSL
	shell := req.Shell
	if shell == "" {
		shell = ShellSystem
	}

	if nativeWindows {
		// A Unix-style requested cwd on native Windows forces WSL mode,
		// regardless of the requested shell.
		if req.Cwd != "" && IsUnixStylePath(req.Cwd) {
			return targetWSLLaunch
		}
		switch shell {
		case ShellWSL:
			return targetWSLLaunch
		case ShellPowerShell:
			return targetWindowsPowerShell
		case ShellCmd:
			return targetWindowsCmd
		default: // system
			if h.WindowsShell == "powershell" {
				return targetWindowsPowerShell
			}
			return targetWindowsCmd
		}
	}

	if h.IsWSL {
		switch shell {
		case ShellCmd:
			return targetWindowsCmd
		case ShellPowerShell:
			return targetWindowsPowerShell
		default: // system, wsl -> the WSL distro's own Linux shell
			return targetLinuxDirect
		}
	}

	// Non-WSL Unix: cmd/powershell/wsl all collapse to system.
	return targetLinuxDirect
}

func buildEnv(h Host, req Request) map[string]string {
	env := make(map[string]string, len(h.Environ)+4)
	for k, v := range h.Environ {
		env[k] = v
	}
	for _, key := range ServerOnlyEnvKeys() {
		delete(env, key)
	}
	if _, ok := env["TERM"]; !ok {
		env["TERM"] = h.Term
	}
	if _, ok := env["COLORTERM"]; !ok {
		env["COLORTERM"] = h.ColorTerm
	}
	if req.EnvContext.TabID != "" {
		env["FRESHELL_TAB_ID"] = req.EnvContext.TabID
	}
	if req.EnvContext.PaneID != "" {
		env["FRESHELL_PANE_ID"] = req.EnvContext.PaneID
	}
	if req.Mode.IsProvider() {
		env["FRESHELL_STOP_HOOK"] = bellStopHook(false)
	}
	return env
}

// providerArgsFor builds argv and resume-applied state for a provider
// mode, applying the UUID gate and permission-mode flag from the table.
func providerArgsFor(m Mode, req Request, spec *Spec) []string {
	p := providerTable[m]
	var args []string

	if req.ResumeSessionID != "" {
		if p.RequiresUUIDResume && !ValidResumeSessionID(m, req.ResumeSessionID) {
			spec.Warnings = append(spec.Warnings,
				fmt.Sprintf("%s resume session id %q is not a valid UUID; resume ignored", p.Label, req.ResumeSessionID))
		} else if p.ResumeArgs == nil {
			spec.Warnings = append(spec.Warnings,
				fmt.Sprintf("%s does not support session resume; resume request ignored", p.Label))
		} else {
			args = append(args, p.ResumeArgs(req.ResumeSessionID)...)
			spec.EffectiveResumeSessionID = req.ResumeSessionID
		}
	}

	if p.PermissionFlag != nil {
		if flag := p.PermissionFlag(req.PermissionMode); flag != nil {
			args = append(args, flag...)
		}
	}

	return args
}

func resolveLinuxDirect(req Request, h Host, spec *Spec) {
	spec.Cwd = req.Cwd
	if req.Mode == ModeShell {
		spec.Executable = resolveUnixShell(h)
		spec.Args = []string{"-l"}
		return
	}
	spec.Executable = providerExecutable(h, req.Mode)
	spec.Args = providerArgsFor(req.Mode, req, spec)
}

func resolveWSLLaunch(req Request, h Host, spec *Spec) {
	wslExe := h.WSLExe
	if wslExe == "" {
		wslExe = "wsl.exe"
	}
	spec.Executable = wslExe
	var args []string
	if h.WSLDistro != "" {
		args = append(args, "-d", h.WSLDistro)
	}

	unixCwd := req.Cwd
	if unixCwd != "" && !IsUnixStylePath(unixCwd) {
		unixCwd = WindowsToWSLPath(unixCwd, h.mountPrefix())
	}
	if unixCwd != "" {
		args = append(args, "--cd", unixCwd)
	}
	// wsl.exe owns the working directory via --cd; leave the process Cwd
	// undefined so no UNC path is ever handed to the launcher.
	spec.Cwd = ""

	args = append(args, "--")
	if req.Mode == ModeShell {
		args = append(args, "bash", "-l")
	} else {
		args = append(args, providerExecutable(h, req.Mode))
		args = append(args, providerArgsFor(req.Mode, req, spec)...)
	}
	spec.Args = args
}

func cmdExePath(h Host) string {
	if h.IsWSL && h.WSLWindowsSys32 != "" {
		return h.WSLWindowsSys32 + "/cmd.exe"
	}
	return "cmd.exe"
}

func powerShellExePath(h Host) string {
	if h.PowerShellExe != "" {
		return h.PowerShellExe
	}
	return "powershell.exe"
}

// windowsCwd returns req.Cwd translated to a Windows-style path if it
// arrived as a WSL mount path, otherwise unchanged.
func windowsCwd(req Request, h Host) string {
	if req.Cwd == "" {
		return ""
	}
	if IsUnixStylePath(req.Cwd) {
		return UnixToWindowsPath(req.Cwd, h.mountPrefix())
	}
	return req.Cwd
}

func resolveWindowsCmd(req Request, h Host, spec *Spec) {
	spec.Executable = cmdExePath(h)
	// cwd=undefined avoids handing cmd.exe a UNC path; the directory
	// change is instead prepended to the command line below.
	spec.Cwd = ""

	winCwd := windowsCwd(req, h)
	var cmdLine string
	if winCwd != "" {
		cmdLine = fmt.Sprintf(`cd /d "%s"`, EscapeCmdExe(winCwd))
	}

	if req.Mode != ModeShell {
		exe := providerExecutable(h, req.Mode)
		args := providerArgsFor(req.Mode, req, spec)
		escapedArgs := make([]string, len(args))
		for i, a := range args {
			escapedArgs[i] = EscapeCmdExe(a)
		}
		providerLine := strings.TrimSpace(exe + " " + strings.Join(escapedArgs, " "))
		if cmdLine != "" {
			cmdLine = cmdLine + " && " + providerLine
		} else {
			cmdLine = providerLine
		}
	}

	if cmdLine == "" {
		spec.Args = []string{"/k"}
	} else {
		spec.Args = []string{"/k", cmdLine}
	}
}

func resolveWindowsPowerShell(req Request, h Host, spec *Spec) {
	spec.Executable = powerShellExePath(h)
	spec.Cwd = ""

	winCwd := windowsCwd(req, h)
	var cmdLine string
	if winCwd != "" {
		cmdLine = fmt.Sprintf("Set-Location -LiteralPath %s", QuotePowerShellLiteral(winCwd))
	}

	if req.Mode != ModeShell {
		exe := providerExecutable(h, req.Mode)
		args := providerArgsFor(req.Mode, req, spec)
		quotedArgs := make([]string, len(args))
		for i, a := range args {
			quotedArgs[i] = QuotePowerShellLiteral(a)
		}
		providerLine := strings.TrimSpace("& " + QuotePowerShellLiteral(exe) + " " + strings.Join(quotedArgs, " "))
		if cmdLine != "" {
			cmdLine = cmdLine + "; " + providerLine
		} else {
			cmdLine = providerLine
		}
	}

	if cmdLine == "" {
		spec.Args = []string{"-NoExit"}
	} else {
		spec.Args = []string{"-NoExit", "-Command", cmdLine}
	}
}
