// Package discovery caches expensive glob-expansion walks over a project
// tree, invalidated by TTL and by directory modification time.
// Grounded on original_source/chunkhound/file_discovery_cache.py
// (FileDiscoveryCache), with the glob matching itself borrowed from
// mvp-joe-project-cortex's internal/indexer/discovery.go
// (github.com/gobwas/glob, walking via filepath.WalkDir).
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gobwas/glob"
)

// DefaultMaxEntries and DefaultTTL mirror FileDiscoveryCache's Python
// defaults (max_entries=100, ttl_seconds=300).
const (
	DefaultMaxEntries = 100
	DefaultTTL        = 300 * time.Second
)

// Stats reports cumulative cache activity, mirroring get_stats().
type Stats struct {
	Hits          int
	Misses        int
	Evictions     int
	Invalidations int
}

type entry struct {
	files      []string
	cachedAt   time.Time
	dirModTime time.Time
}

// Cache is an LRU+TTL cache over directory walks, keyed by
// (directory, include patterns, exclude patterns). A cached result is
// invalidated early if the directory's mtime advances past what was
// recorded when the entry was stored. Eviction order is delegated to
// golang-lru/v2 (the same library internal/embedding's QueryCache uses);
// this wrapper only adds the TTL/mtime freshness check and stats
// bookkeeping on top.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration

	entries *lru.Cache[string, entry]

	stats Stats
}

// New creates a cache with the given capacity and TTL (zero values fall
// back to DefaultMaxEntries/DefaultTTL).
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entries, _ := lru.New[string, entry](maxEntries)
	return &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    entries,
	}
}

// GetFiles returns every file under directory matching at least one of
// include and none of exclude, served from cache when the entry is still
// fresh (within TTL and the directory hasn't been modified since).
func (c *Cache) GetFiles(directory string, include, exclude []string) ([]string, error) {
	key := cacheKey(directory, include, exclude)

	c.mu.Lock()
	if files, ok := c.lookupLocked(key, directory); ok {
		c.mu.Unlock()
		return files, nil
	}
	c.mu.Unlock()

	files, err := walk(directory, include, exclude)
	if err != nil {
		return nil, err
	}

	c.store(key, directory, files)
	return files, nil
}

// InvalidateDirectory drops every cached entry keyed on exactly
// directory (entries for its subdirectories are kept), returning the
// count removed.
func (c *Cache) InvalidateDirectory(directory string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := directory + "|"
	removed := 0
	for _, k := range c.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.entries.Remove(k)
			removed++
		}
	}
	c.stats.Invalidations += removed
	return removed
}

// Clear removes every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Evictions += c.entries.Len()
	c.entries.Purge()
}

// Stats returns a snapshot of cumulative cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache) lookupLocked(key, directory string) ([]string, bool) {
	e, ok := c.entries.Get(key) // Get itself marks key most-recently-used
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	if time.Since(e.cachedAt) > c.ttl {
		c.entries.Remove(key)
		c.stats.Evictions++
		c.stats.Misses++
		return nil, false
	}

	info, err := os.Stat(directory)
	if err != nil || info.ModTime().After(e.dirModTime) {
		c.entries.Remove(key)
		c.stats.Invalidations++
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return e.files, true
}

func (c *Cache) store(key, directory string, files []string) {
	info, err := os.Stat(directory)
	if err != nil {
		return // can't track mtime, so don't cache (mirrors the Python behavior)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if evicted := c.entries.Add(key, entry{files: files, cachedAt: time.Now(), dirModTime: info.ModTime()}); evicted {
		c.stats.Evictions++
	}
}

func cacheKey(directory string, include, exclude []string) string {
	i := append([]string(nil), include...)
	e := append([]string(nil), exclude...)
	sort.Strings(i)
	sort.Strings(e)
	return fmt.Sprintf("%s|%s|%s", directory, strings.Join(i, ","), strings.Join(e, ","))
}

// walk discovers every regular file under directory whose path (relative
// to directory, slash-normalized) matches at least one include glob and
// no exclude glob. An empty include list matches everything.
func walk(directory string, include, exclude []string) ([]string, error) {
	includeGlobs, err := compileGlobs(include)
	if err != nil {
		return nil, err
	}
	excludeGlobs, err := compileGlobs(exclude)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(directory, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(directory, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if matchesAny(rel, excludeGlobs) {
			return nil
		}
		if len(includeGlobs) == 0 || matchesAny(rel, includeGlobs) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("discovery: compile glob %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchesAny(path string, patterns []glob.Glob) bool {
	for _, g := range patterns {
		if g.Match(path) {
			return true
		}
	}
	return false
}
