package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/chunkhound-go/chunkhound/internal/indexing"
	"github.com/chunkhound-go/chunkhound/internal/logging"
	"github.com/chunkhound-go/chunkhound/internal/mcpserver"
	"github.com/chunkhound-go/chunkhound/internal/preflight"
	"github.com/chunkhound-go/chunkhound/internal/watch"
)

// newRunCmd implements "chunkhound run <path>": index the directory, then
// serve the MCP tools over stdio against the freshly built database,
// optionally keeping a background watcher running so later edits stay
// indexed. This always (re)indexes rather than checking a metadata file
// first, since a file's own up-to-date short-circuit already makes a
// redundant pass cheap.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <path>",
		Short: "Index a directory and serve MCP over stdio",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			root := args[0]

			level := "info"
			if flagVerbose {
				level = "debug"
			}
			cleanup, err := logging.SetupMCPMode(level)
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}
			defer cleanup()

			a, err := buildApp(root, currentFlags())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, resolve := signalContext()

			if err := runPreflight(ctx, a, root); err != nil {
				return resolve(err)
			}

			if err := runIndex(ctx, a, root); err != nil {
				return resolve(fmt.Errorf("indexing failed: %w", err))
			}

			var stopWatch func()
			if a.cfg.Watch.Enabled {
				stopWatch = startWatcher(ctx, a, root)
				defer stopWatch()
			}

			stopCoord := startCoordination(ctx, a)
			defer stopCoord()

			srv := mcpserver.NewServer(a.store, a.orchestrator, slog.Default())
			return resolve(srv.Run(ctx, os.Stdin, os.Stdout))
		},
	}
}

// runPreflight checks disk space, memory, write permissions, file
// descriptor limits, and embedding-provider reachability before indexing
// starts, failing fast on anything required rather than partway through a
// long directory walk.
func runPreflight(ctx context.Context, a *app, root string) error {
	checker := preflight.New()
	results := checker.RunAll(ctx, root, a.provider)
	for _, r := range results {
		switch r.Status {
		case preflight.StatusFail:
			slog.Warn("preflight check failed", slog.String("check", r.Name), slog.String("message", r.Message))
		case preflight.StatusWarn:
			slog.Warn("preflight check warned", slog.String("check", r.Name), slog.String("message", r.Message))
		}
	}
	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("preflight check failed, see log for details")
	}
	return nil
}

// runIndex drives ProcessDirectory with a progress bar. stdout is reserved
// for the MCP stream once serving starts, but indexing happens before
// that point, so the progress bar's stderr output is safe.
func runIndex(ctx context.Context, a *app, root string) error {
	var bar *progressbar.ProgressBar
	result := a.coordinator.ProcessDirectory(ctx, root, indexing.DirectoryOptions{
		Include: a.cfg.Discovery.Include,
		Exclude: a.cfg.Discovery.Exclude,
		Progress: func(processed, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("indexing"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("files/s"),
					progressbar.OptionThrottle(65*time.Millisecond),
					progressbar.OptionShowElapsedTimeOnFinish(),
				)
			}
			_ = bar.Set(processed)
		},
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if result.Err != nil {
		return result.Err
	}
	slog.Info("indexing complete",
		slog.String("root", root),
		slog.Int("files", result.FilesProcessed),
		slog.Int("chunks", result.TotalChunks),
		slog.Int("embeddings", result.TotalEmbeddings))
	return nil
}

// startWatcher runs the file watcher and its consumer loop in the
// background, feeding changes back through the same coordinator used for
// the initial index. Returns a stop function.
func startWatcher(ctx context.Context, a *app, root string) func() {
	queue := watch.NewQueue(a.cfg.Watch.QueueSize)
	supported := watch.RegistrySupported(a.registry)
	w := watch.New(queue, supported, nil, watch.Options{})

	watch.CatchUp(queue, supported, []string{root}, time.Now(), 0)

	go func() {
		if err := w.Start(ctx, []string{root}); err != nil && ctx.Err() == nil {
			slog.Warn("file watcher failed to start, edits will not be auto-indexed", slog.String("error", err.Error()))
		}
	}()

	interval := time.Duration(0)
	if a.cfg.Watch.ConsumerInterval != "" {
		if d, err := time.ParseDuration(a.cfg.Watch.ConsumerInterval); err == nil {
			interval = d
		}
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	go watch.Consume(consumeCtx, queue, func(ctx context.Context, e watch.Event) error {
		if e.Kind == watch.KindDeleted {
			f, err := a.store.GetFileByPath(ctx, e.Path)
			if err != nil {
				return err
			}
			if f == nil {
				return nil
			}
			return a.store.DeleteFileCompletely(ctx, f.ID)
		}
		result := a.coordinator.ProcessFile(ctx, e.Path, false)
		return result.Err
	}, interval)

	return func() {
		cancel()
		_ = w.Stop()
		queue.Close()
	}
}
