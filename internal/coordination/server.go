package coordination

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Handoff is implemented by whatever owns the live storage connection.
// Quiesce must leave the database closed or detached and safe for
// another process to open; Reopen restores serving state. Mirrors
// signal_coordinator.py's disconnect/detach/close and
// reconnect/reattach/connect fallback chains, collapsed to two calls
// since this repo has one storage engine rather than several candidate
// teardown methods to try in sequence.
type Handoff interface {
	Quiesce(ctx context.Context) error
	Reopen(ctx context.Context) error
}

// ServerCoordinator runs inside the MCP server process. It registers
// the process via mcp.pid and, until stopped, reacts to: SIGUSR1 (a
// CLI indexer wants exclusive database access — quiesce and set
// ready.flag, then wait for done.flag), SIGUSR2 (the indexer is done —
// reopen and clear both flags), and SIGTERM/SIGINT (clean shutdown).
// Grounded on signal_coordinator.py's SignalCoordinator.
type ServerCoordinator struct {
	dir     string
	flags   *Flags
	pid     *PIDFile
	handoff Handoff

	doneTimeout time.Duration
	sigCh       chan os.Signal
}

// NewServerCoordinator prepares coordination for dbPath without
// starting it.
func NewServerCoordinator(dbPath string, handoff Handoff) (*ServerCoordinator, error) {
	dir, err := Dir(dbPath)
	if err != nil {
		return nil, err
	}
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	return &ServerCoordinator{
		dir:         dir,
		flags:       NewFlags(dir),
		pid:         NewPIDFile(dir),
		handoff:     handoff,
		doneTimeout: 5 * time.Minute,
		sigCh:       make(chan os.Signal, 4),
	}, nil
}

// Dir returns the coordination directory in use.
func (c *ServerCoordinator) Dir() string { return c.dir }

// Start registers this process as the MCP server and handles
// coordination signals until ctx is cancelled or SIGTERM/SIGINT
// arrives. It blocks; run it in its own goroutine.
func (c *ServerCoordinator) Start(ctx context.Context) error {
	if err := c.pid.Write(); err != nil {
		return fmt.Errorf("register mcp server: %w", err)
	}
	defer func() {
		_ = c.pid.Remove()
		_ = c.flags.ClearReady()
		_ = c.flags.ClearDone()
	}()

	signal.Notify(c.sigCh, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(c.sigCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-c.sigCh:
			switch sig {
			case syscall.SIGUSR1:
				c.handleShutdownRequest(ctx)
			case syscall.SIGUSR2:
				c.handleReopenRequest(ctx)
			default: // SIGTERM, SIGINT
				return nil
			}
		}
	}
}

func (c *ServerCoordinator) handleShutdownRequest(ctx context.Context) {
	slog.Info("coordination: shutdown request received")
	if err := c.handoff.Quiesce(ctx); err != nil {
		slog.Error("coordination: quiesce failed", slog.String("error", err.Error()))
		return
	}
	if err := c.flags.SetReady(); err != nil {
		slog.Error("coordination: set ready flag failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("coordination: ready flag set, database available for indexing")

	if !WaitForDone(ctx, c.flags, c.doneTimeout) {
		slog.Warn("coordination: timed out waiting for indexing completion")
	}
}

func (c *ServerCoordinator) handleReopenRequest(ctx context.Context) {
	slog.Info("coordination: reopen request received")
	if err := c.handoff.Reopen(ctx); err != nil {
		slog.Error("coordination: reopen failed", slog.String("error", err.Error()))
		return
	}
	_ = c.flags.ClearReady()
	_ = c.flags.ClearDone()
	slog.Info("coordination: database serving resumed")
}
