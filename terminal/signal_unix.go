//go:build !windows

package terminal

import "syscall"

// terminateSignal is the signal ShutdownGracefully sends to ask a PTY
// child to exit on its own before the force-kill fallback (§5
// "shutdownGracefully").
func terminateSignal() syscall.Signal {
	return syscall.SIGTERM
}
