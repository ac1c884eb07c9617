// Package watch is the file watcher: it turns filesystem activity into a
// single bounded queue of events for Consume to drain. It never
// touches the database — that is the consumer's job.
//
// Grounded on HybridWatcher's fsnotify primary + PollingWatcher
// fallback, and Debouncer's non-blocking channel-send-with-drop-count
// pattern, generalized away from a debounced-batch output toward
// original_source/chunkhound/file_watcher.py's single bounded
// asyncio.Queue(maxsize=1000) with per-event extension filtering and
// an offline catch-up walk.
package watch

import "time"

// Kind is the event kind carried on the queue: created, modified,
// deleted, or moved.
type Kind string

const (
	KindCreated  Kind = "created"
	KindModified Kind = "modified"
	KindDeleted  Kind = "deleted"
	KindMoved    Kind = "moved"
)

// Event is one queue entry. OldPath is only set for KindMoved.
type Event struct {
	Path      string
	OldPath   string
	Kind      Kind
	Timestamp time.Time
}
