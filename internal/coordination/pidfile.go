package coordination

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrPIDFileNotFound is returned when mcp.pid doesn't exist.
var ErrPIDFileNotFound = errors.New("coordination: pid file not found")

// PIDFile manages the mcp.pid file that registers the running MCP
// server for a coordination directory. Adapted from
// internal/daemon/pidfile.go's PIDFile, narrowed to the single
// well-known filename this package's handshake uses.
type PIDFile struct {
	path string
}

// NewPIDFile returns the mcp.pid manager for the given coordination dir.
func NewPIDFile(dir string) *PIDFile {
	return &PIDFile{path: filepath.Join(dir, "mcp.pid")}
}

// Path returns the PID file path.
func (p *PIDFile) Path() string { return p.path }

// Write records the current process's PID.
func (p *PIDFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create coordination directory: %w", err)
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Read returns the recorded PID.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrPIDFileNotFound
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in file: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	err := os.Remove(p.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// ActiveServerPID returns the PID of a live, validated chunkhound MCP
// server for dbPath, cleaning up the PID file if the recorded process
// is gone or no longer matches. Mirrors
// process_detection.py's find_mcp_server/_is_chunkhound_mcp, using
// /proc/<pid>/cmdline in place of psutil (not in this repo's
// dependency set, and this check only needs a cmdline substring test).
func (p *PIDFile) ActiveServerPID(dbPath string) (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	if !processExists(pid) {
		_ = p.Remove()
		return 0, false
	}
	if !processMatchesServer(pid, dbPath) {
		_ = p.Remove()
		return 0, false
	}
	return pid, true
}

// Signal sends sig to the recorded PID.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	return nil
}

func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// processMatchesServer checks /proc/<pid>/cmdline for "mcp" and for
// dbPath or its base name (any cmdline containing "mcp" matches when
// dbPath is empty).
// Where /proc is unavailable (non-Linux), it returns true — a
// best-effort result, since this repo carries no portable
// process-inspection dependency for a stronger check.
func processMatchesServer(pid int, dbPath string) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return true
	}
	cmdline := strings.ReplaceAll(string(data), "\x00", " ")
	if !strings.Contains(cmdline, "mcp") {
		return false
	}
	if dbPath == "" {
		return true
	}
	return strings.Contains(cmdline, dbPath) || strings.Contains(cmdline, filepath.Base(dbPath))
}
