package watch

import (
	"io/fs"
	"path/filepath"
	"time"
)

// CatchUpBuffer and CatchUpTimeout mirror
// original_source/chunkhound/file_watcher.py's FileWatcherManager.initialize
// (last_scan_time - 300, timeout=3.0): files that changed within the
// buffer window before lastScanTime are still reported, and the walk
// itself is time-boxed so a large tree never delays server startup.
const (
	CatchUpBuffer  = 300 * time.Second
	CatchUpTimeout = 3 * time.Second
)

// CatchUp walks each root recursively and enqueues a modified event for
// every supported-extension file whose mtime is newer than
// lastScanTime-CatchUpBuffer. The walk stops as soon as timeout elapses;
// anything left unscanned is picked up by the live watcher on its first
// future modification.
func CatchUp(queue *Queue, supported SupportedFunc, roots []string, lastScanTime time.Time, timeout time.Duration) {
	if timeout <= 0 {
		timeout = CatchUpTimeout
	}
	cutoff := lastScanTime.Add(-CatchUpBuffer)
	deadline := time.Now().Add(timeout)

	for _, root := range roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if time.Now().After(deadline) {
				return filepath.SkipAll
			}
			if err != nil {
				return nil // skip inaccessible paths
			}
			if d.IsDir() {
				if filepath.Base(path) == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if !supported(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.ModTime().After(cutoff) {
				queue.push(Event{Path: path, Kind: KindModified, Timestamp: time.Now()})
			}
			return nil
		})
	}
}
