//go:build windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// IsRunning reports the recorded PID and whether that process is alive.
// FindProcess opens a handle on Windows, so it fails for exited processes.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	_ = proc.Release()
	return pid, true
}

// Signal sends sig to the recorded server process. Windows only delivers
// os.Kill, so every signal terminates the process.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if sig == syscall.Signal(0) {
		return proc.Release()
	}
	return proc.Kill()
}
