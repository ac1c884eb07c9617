package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/chunkhound-go/chunkhound/internal/errs"
)

// StaticProvider generates deterministic, hash-based embeddings with no
// network access and no model download — used for tests and when the
// configured provider name is "static". Grounded on
// internal/embed/static.go and static768.go, merged into
// one provider with a configurable dimension instead of two fixed-width
// types.
type StaticProvider struct {
	mu     sync.RWMutex
	closed bool
	dims   int
}

// staticStopWords filters common keywords that carry no semantic
// signal across languages.
var staticStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

var staticTokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticProvider creates a static provider producing vectors of the
// given width (256 when dims <= 0, matching the source default).
func NewStaticProvider(dims int) *StaticProvider {
	if dims <= 0 {
		dims = 256
	}
	return &StaticProvider{dims: dims}
}

// Capabilities reports a fixed, already-known Dims — the static
// provider never needs DimsLatcher.
func (p *StaticProvider) Capabilities() Capabilities {
	return Capabilities{
		Name:     "static",
		Model:    "static-hash",
		Dims:     p.dims,
		Distance: "cosine",
		MaxBatch: 512,
	}
}

// EmbedBatch hash-embeds each text independently.
func (p *StaticProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errs.Embedding(errs.EmbeddingSubKindTransport, "static provider is closed", nil)
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = p.embedOne(text)
	}
	return results, nil
}

func (p *StaticProvider) embedOne(text string) []float32 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, p.dims)
	}
	return normalizeVector(p.generateVector(trimmed))
}

func (p *StaticProvider) generateVector(text string) []float32 {
	vector := make([]float32, p.dims)

	tokens := staticFilterStopWords(staticTokenize(text))
	for _, token := range tokens {
		vector[staticHashToIndex(token, p.dims)] += staticTokenWeight
	}

	normalized := staticNormalizeForNgrams(text)
	for _, ngram := range staticExtractNgrams(normalized, staticNgramSize) {
		vector[staticHashToIndex(ngram, p.dims)] += staticNgramWeight
	}

	return vector
}

// Available is always true while the provider hasn't been closed.
func (p *StaticProvider) Available(_ context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

// Close marks the provider unusable.
func (p *StaticProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func staticTokenize(text string) []string {
	var tokens []string
	for _, word := range staticTokenRegex.FindAllString(text, -1) {
		for _, t := range staticSplitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func staticSplitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, staticSplitCamelCase(part)...)
			}
		}
		return result
	}
	return staticSplitCamelCase(token)
}

func staticSplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func staticFilterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !staticStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func staticNormalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func staticExtractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func staticHashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// normalizeVector L2-normalizes v in place conceptually, returning a new
// slice so callers never observe a partially-normalized vector.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
