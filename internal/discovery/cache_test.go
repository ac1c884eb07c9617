package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCache_GetFiles_DiscoversMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a")
	writeFile(t, filepath.Join(dir, "b.txt"), "text")

	c := New(10, time.Minute)
	files, err := c.GetFiles(dir, []string{"*.go"}, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "a.go"), files[0])
}

func TestCache_GetFiles_EmptyIncludeMatchesEverything(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a")
	writeFile(t, filepath.Join(dir, "b.txt"), "text")

	c := New(10, time.Minute)
	files, err := c.GetFiles(dir, nil, nil)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestCache_GetFiles_ExcludeWinsOverInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a")
	writeFile(t, filepath.Join(dir, "a_test.go"), "package a")

	c := New(10, time.Minute)
	files, err := c.GetFiles(dir, []string{"*.go"}, []string{"*_test.go"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "a.go"), files[0])
}

func TestCache_GetFiles_SecondCallIsAHit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a")

	c := New(10, time.Minute)
	_, err := c.GetFiles(dir, []string{"*.go"}, nil)
	require.NoError(t, err)
	_, err = c.GetFiles(dir, []string{"*.go"}, nil)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
}

func TestCache_GetFiles_DirectoryMtimeChangeInvalidates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a")

	c := New(10, time.Minute)
	_, err := c.GetFiles(dir, []string{"*.go"}, nil)
	require.NoError(t, err)

	// Touch the directory's mtime forward so the cached entry looks stale.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(dir, future, future))

	_, err = c.GetFiles(dir, []string{"*.go"}, nil)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Hits)
	assert.Equal(t, 2, stats.Misses)
	assert.Equal(t, 1, stats.Invalidations)
}

func TestCache_GetFiles_TTLExpiryInvalidates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a")

	c := New(10, time.Millisecond)
	_, err := c.GetFiles(dir, []string{"*.go"}, nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = c.GetFiles(dir, []string{"*.go"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, c.Stats().Hits)
}

func TestCache_InvalidateDirectory_RemovesOnlyThatDirectorysEntries(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, filepath.Join(dirA, "a.go"), "package a")
	writeFile(t, filepath.Join(dirB, "b.go"), "package b")

	c := New(10, time.Minute)
	_, err := c.GetFiles(dirA, []string{"*.go"}, nil)
	require.NoError(t, err)
	_, err = c.GetFiles(dirB, []string{"*.go"}, nil)
	require.NoError(t, err)

	removed := c.InvalidateDirectory(dirA)
	assert.Equal(t, 1, removed)

	_, err = c.GetFiles(dirB, []string{"*.go"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Stats().Hits) // dirB's second call still hits
}

func TestCache_Clear_RemovesAllEntries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a")

	c := New(10, time.Minute)
	_, err := c.GetFiles(dir, []string{"*.go"}, nil)
	require.NoError(t, err)

	c.Clear()
	assert.Equal(t, 0, c.entries.Len())
}

func TestCache_GetFiles_EvictsOldestWhenFull(t *testing.T) {
	c := New(1, time.Minute)

	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writeFile(t, filepath.Join(dir1, "a.go"), "package a")
	writeFile(t, filepath.Join(dir2, "b.go"), "package b")

	_, err := c.GetFiles(dir1, []string{"*.go"}, nil)
	require.NoError(t, err)
	_, err = c.GetFiles(dir2, []string{"*.go"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, c.entries.Len())
	assert.GreaterOrEqual(t, c.Stats().Evictions, 1)
}

func TestNew_DefaultsMaxEntriesAndTTL(t *testing.T) {
	c := New(0, 0)
	assert.Equal(t, DefaultMaxEntries, c.maxEntries)
	assert.Equal(t, DefaultTTL, c.ttl)
}
