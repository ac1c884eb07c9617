package coordination

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandoff struct {
	mu          sync.Mutex
	quiesced    int
	reopened    int
	failQuiesce bool
}

func (f *fakeHandoff) Quiesce(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quiesced++
	if f.failQuiesce {
		return assert.AnError
	}
	return nil
}

func (f *fakeHandoff) Reopen(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reopened++
	return nil
}

func (f *fakeHandoff) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quiesced, f.reopened
}

// TestServerCoordinator_HandlesShutdownThenReopenThenTerminate drives a
// ServerCoordinator through a full SIGUSR1/SIGUSR2/SIGTERM cycle using
// real OS signals sent to this test process, the same way a CLI
// indexer process would coordinate with a live MCP server.
func TestServerCoordinator_HandlesShutdownThenReopenThenTerminate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chunkhound.db")
	handoff := &fakeHandoff{}
	server, err := NewServerCoordinator(dbPath, handoff)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(server.Dir()) })

	ctx := context.Background()
	startErr := make(chan error, 1)
	go func() { startErr <- server.Start(ctx) }()

	waitForPIDFile(t, server)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	require.Eventually(t, func() bool {
		q, _ := handoff.counts()
		return q == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, server.flags.ReadyExists, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))
	require.Eventually(t, func() bool {
		_, r := handoff.counts()
		return r == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, server.flags.ReadyExists())

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	select {
	case err := <-startErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after SIGTERM")
	}
}

func waitForPIDFile(t *testing.T, server *ServerCoordinator) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(server.pid.Path())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

// TestClientCoordinator_RequestAccessReturnsTrueImmediatelyWithNoServer
// covers the common case: a CLI indexer runs against a database with no
// MCP server attached, so there is nothing to coordinate.
func TestClientCoordinator_RequestAccessReturnsTrueImmediatelyWithNoServer(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chunkhound.db")
	client, err := NewClientCoordinator(dbPath)
	require.NoError(t, err)

	granted, err := client.RequestAccess(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.NoError(t, client.ReleaseAccess())
}
