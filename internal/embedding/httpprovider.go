package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chunkhound-go/chunkhound/internal/errs"
)

const (
	defaultHTTPBaseURL  = "https://api.openai.com/v1"
	defaultHTTPMaxBatch = 256
	defaultHTTPTimeout  = 30 * time.Second
	defaultHTTPRetries  = 3
)

// HTTPProviderConfig configures an HTTPProvider. Name identifies the
// provider for Capabilities and for --provider mismatch validation at the
// MCP/HTTP boundaries; it does not change request shape, which is always
// the OpenAI embeddings-endpoint contract (POST {base_url}/embeddings).
type HTTPProviderConfig struct {
	Name    string
	Model   string
	APIKey  string
	BaseURL string
	Dims    int // 0 lets Latch fix it from the first response
}

// HTTPProvider calls an OpenAI-compatible embeddings endpoint over HTTP.
// Grounded on internal/embed/ollama.go's HTTP-client-with-retry shape,
// simplified to the orchestrator's contract: EmbedBatch handles one batch,
// retrying its request on transient failures; batch splitting is the
// caller's job.
type HTTPProvider struct {
	client *http.Client
	cfg    HTTPProviderConfig

	mu     sync.RWMutex
	closed bool
	dims   int
}

var _ Provider = (*HTTPProvider)(nil)
var _ DimsLatcher = (*HTTPProvider)(nil)

// NewHTTPProvider constructs an HTTPProvider. cfg.BaseURL defaults to
// OpenAI's endpoint; cfg.Name defaults to "openai".
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHTTPBaseURL
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	return &HTTPProvider{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		cfg:    cfg,
		dims:   cfg.Dims,
	}
}

func (p *HTTPProvider) Capabilities() Capabilities {
	p.mu.RLock()
	dims := p.dims
	p.mu.RUnlock()
	return Capabilities{
		Name:     p.cfg.Name,
		Model:    p.cfg.Model,
		Dims:     dims,
		Distance: "cosine",
		MaxBatch: defaultHTTPMaxBatch,
	}
}

// Latch fixes Dims after the first successful EmbedBatch response,
// satisfying DimsLatcher for providers whose width isn't known up front.
func (p *HTTPProvider) Latch(dims int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dims != 0 && p.dims != dims {
		return fmt.Errorf("embedding dims changed from %d to %d", p.dims, dims)
	}
	p.dims = dims
	return nil
}

type httpEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type httpEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// EmbedBatch sends one request for texts, retrying transient failures
// with exponential backoff.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, errs.Embedding(errs.EmbeddingSubKindTransport, "http provider is closed", nil)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt < defaultHTTPRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := p.doRequest(ctx, texts)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ae, ok := err.(*errs.Error); ok && !ae.Retryable {
			return nil, ae
		}
	}
	return nil, fmt.Errorf("embedding request failed after %d attempts: %w", defaultHTTPRetries, lastErr)
}

func (p *HTTPProvider) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(httpEmbedRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(p.cfg.BaseURL, "/")+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errs.Embedding(errs.EmbeddingSubKindTransport, "embedding request failed: "+err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, errs.Embedding(errs.EmbeddingSubKindAuth, "embedding provider rejected credentials", nil)
	case http.StatusTooManyRequests:
		return nil, errs.Embedding(errs.EmbeddingSubKindRate, "embedding provider rate limit exceeded", nil)
	case http.StatusRequestEntityTooLarge:
		return nil, errs.Embedding(errs.EmbeddingSubKindTokenLimit, "embedding request exceeded provider token limit", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Embedding(errs.EmbeddingSubKindTransport,
			fmt.Sprintf("embedding provider returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed httpEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, errs.Embedding(errs.EmbeddingSubKindTransport, "embedding provider error: "+parsed.Error.Message, nil)
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = normalizeVector(d.Embedding)
	}
	return out, nil
}

// Available issues a minimal embed call to confirm reachability and
// credentials, without relying on a separate health endpoint (the
// embeddings API is the only contract this provider depends on).
func (p *HTTPProvider) Available(ctx context.Context) bool {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := p.doRequest(checkCtx, []string{"ping"})
	return err == nil
}

func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
