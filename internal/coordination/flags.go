package coordination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

const (
	readyFlagName = "ready.flag"
	doneFlagName  = "done.flag"
)

// Flags manages the ready.flag/done.flag handshake files inside a
// coordination directory. Grounded on
// signal_coordinator.py's _graceful_database_shutdown (ready.flag
// write) and _wait_for_indexing_completion (done.flag poll-exists),
// with writes guarded by a gofrs/flock advisory lock — the same
// cross-process locking idiom as internal/embed/lock.go's FileLock —
// so a reader never observes a partially-written flag file.
type Flags struct {
	dir string
}

// NewFlags returns the flag manager for the given coordination dir.
func NewFlags(dir string) *Flags {
	return &Flags{dir: dir}
}

func (f *Flags) readyPath() string { return filepath.Join(f.dir, readyFlagName) }
func (f *Flags) donePath() string  { return filepath.Join(f.dir, doneFlagName) }

// SetReady writes the ready flag, signaling the database is quiesced
// and available for exclusive access.
func (f *Flags) SetReady() error { return writeFlag(f.readyPath()) }

// ClearReady removes the ready flag.
func (f *Flags) ClearReady() error { return clearFlag(f.readyPath()) }

// SetDone writes the done flag, signaling indexing has completed.
func (f *Flags) SetDone() error { return writeFlag(f.donePath()) }

// ClearDone removes the done flag.
func (f *Flags) ClearDone() error { return clearFlag(f.donePath()) }

// ReadyExists reports whether the ready flag is currently set.
func (f *Flags) ReadyExists() bool { return exists(f.readyPath()) }

// DoneExists reports whether the done flag is currently set.
func (f *Flags) DoneExists() bool { return exists(f.donePath()) }

func writeFlag(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create coordination directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()
	return os.WriteFile(path, []byte(strconv.FormatInt(time.Now().Unix(), 10)), 0o644)
}

func clearFlag(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WaitForReady polls until the ready flag appears, ctx is cancelled, or
// timeout elapses.
func WaitForReady(ctx context.Context, f *Flags, timeout time.Duration) bool {
	return pollUntil(ctx, f.ReadyExists, timeout, 100*time.Millisecond)
}

// WaitForDone polls until the done flag appears, ctx is cancelled, or
// timeout elapses. timeout <= 0 uses the 5-minute default from
// _wait_for_indexing_completion's timeout = 300.
func WaitForDone(ctx context.Context, f *Flags, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return pollUntil(ctx, f.DoneExists, timeout, time.Second)
}

func pollUntil(ctx context.Context, predicate func() bool, timeout, interval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if predicate() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
