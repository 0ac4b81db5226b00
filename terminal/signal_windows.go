//go:build windows

package terminal

import "syscall"

// terminateSignal on native Windows: os/exec's Process.Signal only
// supports os.Kill, so ShutdownGracefully's "ask nicely first" step
// collapses to the same plain kill the force-kill fallback would use
// (§5 "shutdownGracefully": "on Windows, plain kill").
func terminateSignal() syscall.Signal {
	return syscall.SIGKILL
}
