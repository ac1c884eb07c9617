// Package embedding turns lists of chunk texts into lists of vectors,
// subject to a provider's token and rate constraints, and layers on
// token-aware batching, adaptive batch sizing, an in-context-learning
// example cache, and bounded per-provider concurrency on top of whatever
// a concrete Provider implements.
package embedding
