//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// detach starts the background server in its own session so it survives the
// launching terminal.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// stopSignals returns the polite and the forced stop signal.
func stopSignals() (term, kill syscall.Signal) {
	return syscall.SIGTERM, syscall.SIGKILL
}
