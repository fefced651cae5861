package daemon

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID is a PID that almost certainly does not exist.
const deadPID = 999999

func newPIDFile(t *testing.T) *PIDFile {
	t.Helper()
	return NewPIDFile(filepath.Join(t.TempDir(), "run", "board-serve.pid"))
}

func TestPIDFile_WriteCreatesDirectory(t *testing.T) {
	pf := newPIDFile(t)

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	_, err := NewPIDFile(path).Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestPIDFile_Acquire(t *testing.T) {
	pf := newPIDFile(t)

	require.NoError(t, pf.Acquire())
	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	err := pf.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestPIDFile_Acquire_ReplacesStaleFile(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(deadPID))

	require.NoError(t, pf.Acquire())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Release(t *testing.T) {
	pf := newPIDFile(t)

	// Nothing to release.
	require.NoError(t, pf.Release())

	require.NoError(t, pf.Acquire())
	require.NoError(t, pf.Release())
	_, err := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_Release_KeepsOtherOwner(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(deadPID))

	require.NoError(t, pf.Release())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, deadPID, pid)
}

func TestPIDFile_IsRunning(t *testing.T) {
	pf := newPIDFile(t)

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)

	require.NoError(t, pf.WritePID(deadPID))
	pid, running = pf.IsRunning()
	assert.Equal(t, deadPID, pid)
	assert.False(t, running)
}

func TestPIDFile_WaitStopped(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(deadPID))
	require.NoError(t, pf.WaitStopped(context.Background(), time.Millisecond))

	require.NoError(t, pf.Write())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pf.WaitStopped(ctx, 5*time.Millisecond), context.DeadlineExceeded)
}

func TestPIDFile_Signal(t *testing.T) {
	pf := newPIDFile(t)

	err := pf.Signal(syscall.Signal(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")

	require.NoError(t, pf.Write())
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}

func TestPIDFile_Read_RejectsNonPositive(t *testing.T) {
	pf := newPIDFile(t)
	require.NoError(t, pf.WritePID(0))

	_, err := pf.Read()
	require.Error(t, err)

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}
