package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, q *Queue, timeout time.Duration) (Event, bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-q.Events():
			return e, true
		case <-deadline:
			return Event{}, false
		}
	}
}

func startWatcher(t *testing.T, dir string) (*Queue, context.CancelFunc) {
	t.Helper()
	q := NewQueue(100)
	w := New(q, alwaysGo, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		close(started)
		_ = w.Start(ctx, []string{dir})
	}()
	<-started
	time.Sleep(150 * time.Millisecond)

	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	return q, cancel
}

func TestWatcher_CreateEmitsCreatedEvent(t *testing.T) {
	dir := t.TempDir()
	q, _ := startWatcher(t, dir)

	path := filepath.Join(dir, "new.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))

	e, ok := waitForEvent(t, q, 2*time.Second)
	require.True(t, ok, "expected an event")
	assert.Equal(t, KindCreated, e.Kind)
	assert.Equal(t, path, e.Path)
}

func TestWatcher_UnsupportedExtensionIsFiltered(t *testing.T) {
	dir := t.TempDir()
	q, _ := startWatcher(t, dir)

	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("notes"), 0o644))

	_, ok := waitForEvent(t, q, 300*time.Millisecond)
	assert.False(t, ok, "unsupported extension should not be enqueued")
}

func TestWatcher_ModifyEmitsModifiedEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))

	q, _ := startWatcher(t, dir)
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc A() {}\n"), 0o644))

	e, ok := waitForEvent(t, q, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, KindModified, e.Kind)
}

func TestWatcher_DeleteEmitsDeletedEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))

	q, _ := startWatcher(t, dir)
	require.NoError(t, os.Remove(path))

	e, ok := waitForEvent(t, q, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, KindDeleted, e.Kind)
	assert.Equal(t, path, e.Path)
}
