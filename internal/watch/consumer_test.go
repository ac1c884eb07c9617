package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDrainBatch_ProcessesUpToMaxBatchSizeAndIsolatesFailures(t *testing.T) {
	q := NewQueue(20)
	for i := 0; i < 15; i++ {
		q.push(Event{Path: "f.go", Kind: KindModified})
	}

	var mu sync.Mutex
	processed := 0
	drainBatch(context.Background(), q, func(ctx context.Context, e Event) error {
		mu.Lock()
		processed++
		mu.Unlock()
		if processed == 1 {
			return errors.New("boom")
		}
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, MaxBatchSize, processed)
}

func TestConsume_StopsWhenContextCancelled(t *testing.T) {
	q := NewQueue(10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Consume(ctx, q, func(ctx context.Context, e Event) error { return nil }, 0)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not stop after context cancellation")
	}
}
