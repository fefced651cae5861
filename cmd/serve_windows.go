//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// detach is a no-op; Windows children already outlive the console.
func detach(_ *exec.Cmd) {}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// stopSignals returns the polite and the forced stop signal. Both end the
// process on Windows.
func stopSignals() (term, kill syscall.Signal) {
	return syscall.SIGTERM, syscall.SIGKILL
}
