package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chunkhound-go/chunkhound/internal/gitignore"
)

// renameCorrelationWindow bounds how long a bare fsnotify Rename (which,
// unlike watchdog's on_moved, arrives with only the old path) waits for a
// matching Create before it is reported as a plain deletion. fsnotify
// does not expose the inotify move cookie that would let us correlate
// the two sides directly, so this is a best-effort reconstruction of
// original_source/chunkhound/file_watcher.py's on_moved, which always
// has both sides because watchdog correlates them for us.
const renameCorrelationWindow = 150 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// PollInterval is the fallback polling cadence when fsnotify cannot
	// be initialized. Default 5s.
	PollInterval time.Duration
	// IgnorePatterns are additional gitignore-syntax patterns layered on
	// top of any .gitignore files found under each root.
	IgnorePatterns []string
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	return o
}

// Watcher produces Events onto a Queue. It never performs database I/O —
// that is strictly the consumer's responsibility. Grounded on
// HybridWatcher: fsnotify primary, polling fallback when
// fsnotify.NewWatcher fails.
type Watcher struct {
	queue     *Queue
	supported SupportedFunc
	ignore    *gitignore.Matcher
	opts      Options

	fsWatcher *fsnotify.Watcher
	poller    *poller

	mu            sync.Mutex
	pendingRename *pendingRename
	stopped       bool
	stopCh        chan struct{}
}

type pendingRename struct {
	oldPath string
	timer   *time.Timer
}

// New creates a Watcher that enqueues onto queue, filtering by supported
// and an optional ignore matcher (nil disables ignore filtering beyond
// whatever roots the caller chooses to watch).
func New(queue *Queue, supported SupportedFunc, ignore *gitignore.Matcher, opts Options) *Watcher {
	if ignore == nil {
		ignore = gitignore.New()
	}
	return &Watcher{
		queue:     queue,
		supported: supported,
		ignore:    ignore,
		opts:      opts.withDefaults(),
		stopCh:    make(chan struct{}),
	}
}

// Start begins watching roots recursively until ctx is cancelled or Stop
// is called. It blocks until watching ends.
func (w *Watcher) Start(ctx context.Context, roots []string) error {
	for _, root := range roots {
		w.loadGitignore(root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
		return w.startPolling(ctx, roots)
	}
	w.fsWatcher = fsw
	return w.startFsnotify(ctx, roots)
}

// Stop releases the watcher's resources. Safe to call more than once;
// calls after the first do nothing.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	if w.poller != nil {
		w.poller.stop()
	}
	return nil
}

func (w *Watcher) startFsnotify(ctx context.Context, roots []string) error {
	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("fsnotify error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnoreDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			slog.Warn("failed to watch directory", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) shouldIgnoreDir(path string) bool {
	base := filepath.Base(path)
	if base == ".git" {
		return true
	}
	return w.ignore.Match(path, true)
}

func (w *Watcher) handleFsnotifyEvent(ev fsnotify.Event) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		w.handleCreate(ev.Name)
	case ev.Op&fsnotify.Write != 0:
		w.emitIfMatched(ev.Name, KindModified, "")
	case ev.Op&fsnotify.Remove != 0:
		w.emitIfMatched(ev.Name, KindDeleted, "")
	case ev.Op&fsnotify.Rename != 0:
		w.handleRename(ev.Name)
	case ev.Op&fsnotify.Chmod != 0:
		// no-op
	}
}

func (w *Watcher) handleCreate(path string) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if !w.shouldIgnoreDir(path) {
			if err := w.fsWatcher.Add(path); err != nil {
				slog.Warn("failed to watch new directory", slog.String("path", path), slog.String("error", err.Error()))
			}
			_ = w.addRecursive(path)
		}
		return
	}

	w.mu.Lock()
	pending := w.pendingRename
	w.mu.Unlock()
	if pending != nil {
		pending.timer.Stop()
		w.mu.Lock()
		w.pendingRename = nil
		w.mu.Unlock()

		w.emitIfMatched(pending.oldPath, KindDeleted, "")
		if w.supported(path) && !w.ignore.Match(path, false) {
			w.queue.push(Event{Path: path, OldPath: pending.oldPath, Kind: KindMoved, Timestamp: time.Now()})
		}
		return
	}

	w.emitIfMatched(path, KindCreated, "")
}

// handleRename stashes the old path and waits renameCorrelationWindow for
// a paired Create before giving up and reporting a plain deletion —
// reconstructing file_watcher.py's on_moved(deleted(old), moved(new))
// pair as best the fsnotify API allows (see renameCorrelationWindow).
func (w *Watcher) handleRename(oldPath string) {
	w.mu.Lock()
	if w.pendingRename != nil {
		w.pendingRename.timer.Stop()
		stale := w.pendingRename.oldPath
		w.mu.Unlock()
		w.emitIfMatched(stale, KindDeleted, "")
		w.mu.Lock()
	}

	pr := &pendingRename{oldPath: oldPath}
	pr.timer = time.AfterFunc(renameCorrelationWindow, func() {
		w.mu.Lock()
		if w.pendingRename == pr {
			w.pendingRename = nil
		}
		w.mu.Unlock()
		w.emitIfMatched(oldPath, KindDeleted, "")
	})
	w.pendingRename = pr
	w.mu.Unlock()
}

func (w *Watcher) emitIfMatched(path string, kind Kind, oldPath string) {
	if !w.supported(path) {
		return
	}
	if kind != KindDeleted && w.ignore.Match(path, false) {
		return
	}
	w.queue.push(Event{Path: path, OldPath: oldPath, Kind: kind, Timestamp: time.Now()})
}

func (w *Watcher) loadGitignore(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if filepath.Base(path) == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Base(path) == ".gitignore" {
			_ = w.ignore.AddFromFile(path, filepath.Dir(path))
		}
		return nil
	})
	for _, pattern := range w.opts.IgnorePatterns {
		w.ignore.AddPattern(pattern)
	}
}
