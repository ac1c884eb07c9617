package coordination

import (
	"context"
	"fmt"
	"syscall"
	"time"
)

// ClientCoordinator runs inside a one-shot indexer/CLI process that
// needs exclusive database access while an MCP server may be running
// against the same database file. Grounded on
// signal_coordinator.py's CLICoordinator.
type ClientCoordinator struct {
	dbPath string
	flags  *Flags
	pid    *PIDFile
	active bool
}

// NewClientCoordinator prepares client-side coordination for dbPath.
func NewClientCoordinator(dbPath string) (*ClientCoordinator, error) {
	dir, err := Dir(dbPath)
	if err != nil {
		return nil, err
	}
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	return &ClientCoordinator{
		dbPath: dbPath,
		flags:  NewFlags(dir),
		pid:    NewPIDFile(dir),
	}, nil
}

// RequestAccess signals a running MCP server, if any, to quiesce the
// database and waits up to timeout for its ready flag. Returns
// (true, nil) immediately, with no signal sent, when no server is
// running — there is nothing to coordinate with.
func (c *ClientCoordinator) RequestAccess(ctx context.Context, timeout time.Duration) (bool, error) {
	_, ok := c.pid.ActiveServerPID(c.dbPath)
	if !ok {
		return true, nil
	}

	if err := c.pid.Signal(syscall.SIGUSR1); err != nil {
		return false, fmt.Errorf("signal mcp server: %w", err)
	}

	if !WaitForReady(ctx, c.flags, timeout) {
		return false, nil
	}
	c.active = true
	return true, nil
}

// ReleaseAccess signals indexing completion and asks the coordinating
// MCP server to reopen the database. A no-op if RequestAccess never
// established coordination.
func (c *ClientCoordinator) ReleaseAccess() error {
	if !c.active {
		return nil
	}
	defer func() {
		_ = c.flags.ClearReady()
		_ = c.flags.ClearDone()
		c.active = false
	}()

	if err := c.flags.SetDone(); err != nil {
		return err
	}
	return c.pid.Signal(syscall.SIGUSR2)
}
