package embedding

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/chunkhound-go/chunkhound/internal/errs"
)

// Result pairs a produced vector with the index of the text it was
// computed from in the slice passed to Embed. The result list may be
// shorter than the input list — texts dropped for exceeding a
// provider's token limit simply have no Result.
type Result struct {
	Index  int
	Vector []float32
}

// Config tunes an Orchestrator's batching and concurrency behavior. Zero
// values fall back to sensible defaults and the source embedder's own
// defaults.
type Config struct {
	// Concurrency caps the number of batches in flight at once across
	// all concurrent Embed calls against one Orchestrator. Default 3.
	Concurrency int

	// InterBatchDelay is slept between sequential batches within a
	// single Embed call, easing pressure on rate-limited providers.
	InterBatchDelay time.Duration

	// AdaptiveBatching enables the rolling-window batch-size heuristic.
	// When false, every batch is packed up to the provider's MaxBatch.
	AdaptiveBatching bool
	MinBatchSize     int
	MaxBatchSize     int

	// EnableICL enables the in-context-learning example cache behind
	// BatchContext. Embed itself neither computes nor attaches hints.
	EnableICL    bool
	ICLCacheSize int
	ICLThreshold float64
}

// Orchestrator turns lists of texts into lists of vectors, wrapping a
// single Provider with token-aware batching, token-limit recovery,
// adaptive batch sizing, an ICL example cache, and a concurrency
// ceiling. Grounded on original_source/chunkhound/embeddings.py's
// EmbeddingManager and internal/embed package's retry
// and caching idioms.
type Orchestrator struct {
	provider Provider
	sem      *semaphore.Weighted
	cfg      Config

	mu    sync.Mutex
	sizer *adaptiveSizer
	icl   *ICLCache

	latchErr error
}

// NewOrchestrator wraps provider with the given configuration.
func NewOrchestrator(provider Provider, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}

	o := &Orchestrator{
		provider: provider,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		cfg:      cfg,
	}

	if cfg.AdaptiveBatching {
		caps := provider.Capabilities()
		min := cfg.MinBatchSize
		if min <= 0 {
			min = 1
		}
		max := cfg.MaxBatchSize
		if max <= 0 {
			max = caps.MaxBatch
		}
		if max <= 0 {
			max = min
		}
		if caps.MaxBatch > 0 && max > caps.MaxBatch {
			max = caps.MaxBatch
		}
		initial := caps.MaxBatch
		if initial <= 0 {
			initial = max
		}
		o.sizer = newAdaptiveSizer(initial, min, max)
	}

	if cfg.EnableICL {
		o.icl = NewICLCache(cfg.ICLCacheSize, cfg.ICLThreshold)
	}

	return o
}

// Capabilities passes through to the wrapped provider.
func (o *Orchestrator) Capabilities() Capabilities {
	return o.provider.Capabilities()
}

// BatchContext returns the cached ICL hint for language/target, or the
// zero ICLExample when ICL is disabled. Callers that want to forward
// in-context-learning hints to a provider call this before EmbedBatch;
// the orchestrator itself never forwards hints, since Provider doesn't
// expose a hook to receive them.
func (o *Orchestrator) BatchContext(language, target string) ICLExample {
	if o.icl == nil {
		return ICLExample{}
	}
	return o.icl.ContextFor(language, target)
}

// Embed computes a vector for every text in texts that fits within the
// provider's limits, preserving each Result's original index. Batches
// inside this call are processed sequentially per provider, in order;
// a semaphore bounds how many batches run concurrently across
// simultaneous calls to Embed on the same Orchestrator.
func (o *Orchestrator) Embed(ctx context.Context, texts []string) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	caps := o.provider.Capabilities()
	tok := caps.Tokenizer
	if tok == nil {
		tok = DefaultTokenizer()
	}

	batchItemLimit := caps.MaxBatch
	if o.cfg.AdaptiveBatching {
		o.mu.Lock()
		batchItemLimit = o.sizer.size()
		o.mu.Unlock()
	}

	batches, _ := packBatches(texts, tok, caps.MaxTokens, batchItemLimit)

	results := make([]Result, 0, len(texts))
	for i, b := range batches {
		if i > 0 && o.cfg.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(o.cfg.InterBatchDelay):
			}
		}

		vectors, indices, err := o.runBatch(ctx, b, tok, caps.MaxTokens)
		if err != nil {
			return results, err
		}
		for j, v := range vectors {
			results = append(results, Result{Index: indices[j], Vector: v})
		}
	}

	o.mu.Lock()
	latchErr := o.latchErr
	o.mu.Unlock()
	if latchErr != nil {
		return results, latchErr
	}

	return results, nil
}

// runBatch executes one packed batch under the concurrency semaphore,
// recovering from a token-limit rejection by splitting and retrying.
func (o *Orchestrator) runBatch(ctx context.Context, b textBatch, tok Tokenizer, maxTokens int) ([][]float32, []int, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer o.sem.Release(1)

	start := time.Now()
	vectors, err := o.provider.EmbedBatch(ctx, b.texts)
	elapsed := time.Since(start)

	if err == nil {
		o.observeLatency(elapsed)
		o.latchDims(vectors)
		return vectors, b.indices, nil
	}

	if !isTokenLimitError(err) || len(b.texts) == 0 {
		return nil, nil, err
	}

	subBatches := splitForTokenLimit(b, tok, maxTokens)
	if len(subBatches) == 1 && len(subBatches[0].texts) == len(b.texts) {
		// splitForTokenLimit couldn't actually shrink this batch.
		return nil, nil, err
	}

	var allVectors [][]float32
	var allIndices []int
	for _, sub := range subBatches {
		vecs, idxs, subErr := o.runBatch(ctx, sub, tok, maxTokens)
		if subErr != nil {
			return nil, nil, subErr
		}
		allVectors = append(allVectors, vecs...)
		allIndices = append(allIndices, idxs...)
	}
	return allVectors, allIndices, nil
}

func (o *Orchestrator) observeLatency(elapsed time.Duration) {
	if o.sizer == nil {
		return
	}
	o.mu.Lock()
	o.sizer.observe(elapsed)
	o.mu.Unlock()
}

// latchDims reports each successful batch's vector width to a DimsLatcher
// provider: the first report fixes the dimensionality (auto-discovering it
// rather than requiring it be configured), and a later differing width is
// recorded as an EmbeddingError that Embed returns.
func (o *Orchestrator) latchDims(vectors [][]float32) {
	latcher, ok := o.provider.(DimsLatcher)
	if !ok || len(vectors) == 0 {
		return
	}
	if err := latcher.Latch(len(vectors[0])); err != nil {
		o.mu.Lock()
		if o.latchErr == nil {
			o.latchErr = errs.Embedding(errs.EmbeddingSubKindNone, err.Error(), err)
		}
		o.mu.Unlock()
	}
}

// isTokenLimitError reports whether err (or something it wraps) is an
// EmbeddingError classified as a token-limit rejection.
func isTokenLimitError(err error) bool {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Kind == errs.KindEmbedding && e.SubKind == errs.EmbeddingSubKindTokenLimit
	}
	return false
}
