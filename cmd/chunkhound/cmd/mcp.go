package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chunkhound-go/chunkhound/internal/coordination"
	"github.com/chunkhound-go/chunkhound/internal/logging"
	"github.com/chunkhound-go/chunkhound/internal/mcpserver"
)

// newMCPCmd serves the MCP tools over stdio against an existing database.
// The MCP transport owns stdout exclusively for JSON-RPC framing, so
// logging here goes to the rotating file only, set up before any
// component can write a stray byte.
func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp [path]",
		Short: "Serve search_regex/search_semantic/get_stats/health_check over stdio",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			level := "info"
			if flagVerbose {
				level = "debug"
			}
			cleanup, err := logging.SetupMCPMode(level)
			if err != nil {
				return fmt.Errorf("setup mcp logging: %w", err)
			}
			defer cleanup()

			a, err := buildApp(projectRoot(args), currentFlags())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, resolve := signalContext()
			stopCoord := startCoordination(ctx, a)
			defer stopCoord()

			srv := mcpserver.NewServer(a.store, a.orchestrator, slog.Default())
			err = srv.Run(ctx, os.Stdin, os.Stdout)
			return resolve(err)
		},
	}
}

// startCoordination registers the running process as the coordinating MCP
// server for a.cfg.Database.Path, so a separate one-shot indexing CLI
// invocation can ask it to quiesce the database via SIGUSR1 and hand it
// back via SIGUSR2. Failure to register is logged and otherwise ignored:
// coordination is a liveness nicety, not required for this process to
// serve correctly on its own.
func startCoordination(ctx context.Context, a *app) func() {
	sc, err := coordination.NewServerCoordinator(a.cfg.Database.Path, a.store)
	if err != nil {
		slog.Warn("coordination setup failed, concurrent indexer handoff unavailable", slog.String("error", err.Error()))
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sc.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("coordination stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()
	return func() { <-done }
}
