package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize bounds the number of distinct query texts kept
// in memory, matching internal/embed/cached.go's default.
const DefaultQueryCacheSize = 1000

// QueryCache wraps an Orchestrator's single-text path with an LRU cache
// keyed by (provider, model, text), saving repeated semantic-search
// queries the cost of a round trip to the provider. Grounded on
// internal/embed/cached.go's CachedEmbedder; narrowed to the
// single-query path since bulk indexing embeddings are never repeated.
type QueryCache struct {
	inner *Orchestrator
	cache *lru.Cache[string, []float32]
}

// NewQueryCache wraps orch with an LRU cache of the given size (0 uses
// DefaultQueryCacheSize).
func NewQueryCache(orch *Orchestrator, size int) *QueryCache {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &QueryCache{inner: orch, cache: cache}
}

func (q *QueryCache) key(text string) string {
	caps := q.inner.provider.Capabilities()
	sum := sha256.Sum256([]byte(caps.Name + "\x00" + caps.Model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// EmbedQuery returns a single vector for text, served from cache when
// available.
func (q *QueryCache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := q.key(text)
	if vec, ok := q.cache.Get(key); ok {
		return vec, nil
	}

	results, err := q.inner.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	q.cache.Add(key, results[0].Vector)
	return results[0].Vector, nil
}

// Capabilities passes through to the wrapped orchestrator's provider.
func (q *QueryCache) Capabilities() Capabilities {
	return q.inner.provider.Capabilities()
}
