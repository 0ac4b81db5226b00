package terminal

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"

	"github.com/freshell/freshell/terminal/spawn"
)

// ptyProcess is the native handle wrapping one spawned PTY subprocess. It
// implements the "opaque native handle" described for the Terminal
// Record: writeInput, resize, kill, plus the data/exit hooks the
// registry wires in when it creates a record.
type ptyProcess struct {
	cmd *exec.Cmd
	f   *os.File // the PTY master
}

// startPTY launches spec under a PTY sized cols x rows.
func startPTY(spec spawn.Spec, cols, rows int) (*ptyProcess, error) {
	cmd := exec.Command(spec.Executable, spec.Args...)
	if spec.Cwd != "" {
		cmd.Dir = spec.Cwd
	}
	if len(spec.Env) > 0 {
		env := make([]string, 0, len(spec.Env))
		for k, v := range spec.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	f, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, err
	}

	return &ptyProcess{cmd: cmd, f: f}, nil
}

func (p *ptyProcess) Read(buf []byte) (int, error) {
	return p.f.Read(buf)
}

func (p *ptyProcess) WriteInput(data []byte) (int, error) {
	return p.f.Write(data)
}

func (p *ptyProcess) Resize(cols, rows int) error {
	return pty.Setsize(p.f, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Kill sends sig to the child process. A nil signal defaults to
// SIGKILL.
func (p *ptyProcess) Kill(sig os.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}
	if sig == nil {
		sig = syscall.SIGKILL
	}
	return p.cmd.Process.Signal(sig)
}

func (p *ptyProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits and returns its exit code.
func (p *ptyProcess) Wait() int {
	err := p.cmd.Wait()
	_ = p.f.Close()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func (p *ptyProcess) Close() error {
	return p.f.Close()
}
