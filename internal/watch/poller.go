package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

// poller is the fallback event source used when fsnotify.NewWatcher
// fails (e.g. inotify watch limits exhausted). Grounded on
// PollingWatcher: periodic recursive scan, diffed against the previous
// scan's (modTime, size) snapshot per path. It does not attempt move
// correlation — a renamed file surfaces as delete(old) + create(new) a
// poll tick apart, a documented simplification versus the fsnotify path.
type poller struct {
	roots    []string
	interval time.Duration
	w        *Watcher

	mu      sync.Mutex
	state   map[string]snapshot
	stopCh  chan struct{}
	stopped bool
}

type snapshot struct {
	modTime time.Time
	size    int64
}

func newPoller(w *Watcher, roots []string, interval time.Duration) *poller {
	return &poller{
		roots:    roots,
		interval: interval,
		w:        w,
		state:    make(map[string]snapshot),
		stopCh:   make(chan struct{}),
	}
}

func (w *Watcher) startPolling(ctx context.Context, roots []string) error {
	p := newPoller(w, roots, w.opts.PollInterval)
	w.poller = p
	return p.run(ctx)
}

func (p *poller) run(ctx context.Context) error {
	p.scan(false)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.scan(true)
		}
	}
}

func (p *poller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.stopCh)
}

func (p *poller) scan(emit bool) {
	current := make(map[string]snapshot)

	for _, root := range p.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if p.w.shouldIgnoreDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			snap := snapshot{modTime: info.ModTime(), size: info.Size()}
			current[path] = snap

			if !emit || !p.w.supported(path) || p.w.ignore.Match(path, false) {
				return nil
			}

			p.mu.Lock()
			prev, existed := p.state[path]
			p.mu.Unlock()

			if !existed {
				p.w.emitIfMatched(path, KindCreated, "")
			} else if prev.modTime != snap.modTime || prev.size != snap.size {
				p.w.emitIfMatched(path, KindModified, "")
			}
			return nil
		})
	}

	if emit {
		p.mu.Lock()
		for path := range p.state {
			if _, stillThere := current[path]; !stillThere {
				p.mu.Unlock()
				p.w.emitIfMatched(path, KindDeleted, "")
				p.mu.Lock()
			}
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.state = current
	p.mu.Unlock()
}
