// Package coordination implements the signal coordinator: the
// rendezvous protocol that lets a one-shot indexing CLI take exclusive
// control of the database out from under a long-running MCP server,
// then hand it back. Grounded on
// original_source/chunkhound/signal_coordinator.py's SignalCoordinator
// and CLICoordinator, and process_detection.py's ProcessDetector. The
// PID-file idiom is adapted from internal/daemon/pidfile.go and rebuilt
// around this repo's SIGUSR1/SIGUSR2 + ready.flag/done.flag contract.
package coordination

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
)

// Dir computes the coordination directory for dbPath: a hash of its
// absolute path under the OS temp directory, so every process pointed
// at the same database file lands on the same rendezvous directory
// without any shared configuration. Mirrors
// SignalCoordinator._get_coordination_dir's md5(db_path)[:8], using
// os.TempDir() in place of a hardcoded /tmp for portability.
func Dir(dbPath string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(abs))
	hash := hex.EncodeToString(sum[:])[:8]
	return filepath.Join(os.TempDir(), "chunkhound-"+hash), nil
}

// EnsureDir creates the coordination directory if it doesn't exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
