package watch

import (
	"context"
	"log/slog"
	"time"
)

// ConsumerTick and MaxBatchSize mirror
// original_source/chunkhound/file_watcher.py's _queue_processing_loop
// (asyncio.sleep(1.0)) and process_file_change_queue (max_batch_size=10).
const (
	ConsumerTick = time.Second
	MaxBatchSize = 10
)

// Handle processes one Event. A returned error is logged and does not
// stop the batch — one bad event never blocks the rest, matching
// process_file_change_queue's per-event try/except.
type Handle func(ctx context.Context, e Event) error

// Consume drains queue at the given cadence (ConsumerTick when interval
// <= 0), up to MaxBatchSize events per tick, blocking until ctx is
// cancelled; chunkhound mcp runs it on a goroutine of its own, beside the
// MCP server on the main goroutine. The interval is configurable so the
// CLI's --debounce-ms flag can trade responsiveness against batching.
func Consume(ctx context.Context, queue *Queue, handle Handle, interval time.Duration) {
	if interval <= 0 {
		interval = ConsumerTick
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drainBatch(ctx, queue, handle)
		}
	}
}

func drainBatch(ctx context.Context, queue *Queue, handle Handle) {
	events := queue.Events()
	for i := 0; i < MaxBatchSize; i++ {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := handle(ctx, e); err != nil {
				slog.Warn("watch event handling failed",
					slog.String("path", e.Path),
					slog.String("kind", string(e.Kind)),
					slog.String("error", err.Error()),
				)
			}
		default:
			return
		}
	}
}
