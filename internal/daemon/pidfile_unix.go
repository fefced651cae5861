//go:build !windows

package daemon

import (
	"errors"
	"fmt"
	"syscall"
)

// IsRunning reports the recorded PID and whether that process is alive.
// A process owned by another user (EPERM) still counts as alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	err = syscall.Kill(pid, 0)
	return pid, err == nil || errors.Is(err, syscall.EPERM)
}

// Signal sends sig to the recorded server process.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal PID %d: %w", pid, err)
	}
	return nil
}
