package coordination

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	p := NewPIDFile(dir)
	require.NoError(t, p.Write())

	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_ReadMissingFileReturnsNotFound(t *testing.T) {
	p := NewPIDFile(t.TempDir())
	_, err := p.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
}

func TestPIDFile_ActiveServerPID_LiveNonServerProcessRejectedWhereProcReadable(t *testing.T) {
	dir := t.TempDir()
	p := NewPIDFile(dir)
	require.NoError(t, p.Write())

	// This test process is alive, but its command line names no mcp
	// server. Without a readable /proc the command-line check accepts any
	// live process.
	_, procErr := os.Stat("/proc/self/cmdline")
	_, ok := p.ActiveServerPID("")
	assert.Equal(t, procErr != nil, ok)
}

func TestPIDFile_ActiveServerPID_DeadProcessCleansUpFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.pid")
	require.NoError(t, os.WriteFile(path, []byte("999999"), 0o644))

	p := NewPIDFile(dir)
	_, ok := p.ActiveServerPID("")
	assert.False(t, ok)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stale pid file should be removed")
}

func TestPIDFile_Remove_IsIdempotent(t *testing.T) {
	p := NewPIDFile(t.TempDir())
	require.NoError(t, p.Remove())
	require.NoError(t, p.Remove())
}
