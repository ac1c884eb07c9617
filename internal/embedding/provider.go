package embedding

import "context"

// Capabilities describes the shape of a provider: its identity, the
// vector width it produces (possibly unknown until the first call), and
// the limits that govern batching. Grounded on
// original_source/chunkhound/embeddings.py's EmbeddingProvider protocol
// (name/model/dims/distance/batch_size), extended with the optional
// token ceiling local-model providers never needed.
type Capabilities struct {
	Name      string
	Model     string
	Dims      int // 0 means "unknown until first Embed call"
	Distance  string
	MaxBatch  int
	MaxTokens int // 0 means "no token limit declared"
	Tokenizer Tokenizer
}

// Provider generates embeddings for batches of text. Capabilities().Dims
// may be 0 before the first successful EmbedBatch call; after that it must
// be stable for the provider's lifetime.
type Provider interface {
	Capabilities() Capabilities
	// EmbedBatch embeds the given texts as one batch — batch splitting,
	// token-limit pre-flight, and token-limit recovery are the
	// orchestrator's job, not the provider's. The orchestrator does not
	// retry transient failures; a provider may retry its own request.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Available(ctx context.Context) bool
	Close() error
}

// DimsLatcher is implemented by providers whose Capabilities().Dims is
// unknown until the first embedding response arrives. The orchestrator
// calls Latch after every successful EmbedBatch with the returned width:
// the first call fixes it, and a later differing width is an error.
type DimsLatcher interface {
	Latch(dims int) error
}
