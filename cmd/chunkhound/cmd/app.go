package cmd

import (
	"fmt"
	"time"

	"github.com/chunkhound-go/chunkhound/internal/chunker"
	"github.com/chunkhound-go/chunkhound/internal/config"
	"github.com/chunkhound-go/chunkhound/internal/discovery"
	"github.com/chunkhound-go/chunkhound/internal/embedding"
	"github.com/chunkhound-go/chunkhound/internal/indexing"
	"github.com/chunkhound-go/chunkhound/internal/parser"
	"github.com/chunkhound-go/chunkhound/internal/storage"
)

// flagOverrides carries the CLI flags that take highest precedence over
// every config layer. Empty/zero fields leave the loaded config value
// untouched.
type flagOverrides struct {
	dbPath       string
	include      []string
	exclude      []string
	debounceMs   int
	provider     string
	model        string
	apiKey       string
	baseURL      string
	noEmbeddings bool
	host         string
	port         int
}

func (f flagOverrides) apply(cfg *config.Config) {
	if f.dbPath != "" {
		cfg.Database.Path = f.dbPath
	}
	if len(f.include) > 0 {
		cfg.Discovery.Include = f.include
	}
	if len(f.exclude) > 0 {
		cfg.Discovery.Exclude = append(cfg.Discovery.Exclude, f.exclude...)
	}
	if f.debounceMs > 0 {
		cfg.Watch.ConsumerInterval = fmt.Sprintf("%dms", f.debounceMs)
	}
	if f.provider != "" {
		cfg.Embedding.Provider = f.provider
	}
	if f.model != "" {
		cfg.Embedding.Model = f.model
	}
	if f.apiKey != "" {
		cfg.Embedding.APIKey = f.apiKey
	}
	if f.baseURL != "" {
		cfg.Embedding.BaseURL = f.baseURL
	}
	if f.port > 0 {
		cfg.Server.Port = f.port
	}
}

// app is the composition root: every long-running subcommand (run,
// server, mcp) builds one of these from a loaded Config and flag
// overrides, then wires it into the transport it needs. Every component
// takes its context explicitly rather than reaching for process-wide
// state.
type app struct {
	cfg          *config.Config
	store        *storage.Store
	registry     *parser.Registry
	chunker      *chunker.Chunker
	orchestrator *embedding.Orchestrator // nil when --no-embeddings or no provider configured
	provider     embedding.Provider      // the orchestrator's underlying provider, for Close
	discovery    *discovery.Cache
	coordinator  *indexing.Coordinator
}

// buildApp loads configuration for dir, applies flag overrides, and
// constructs every parser/chunker/storage/embedding/discovery/indexing
// component the run/server/mcp subcommands share.
func buildApp(dir string, flags flagOverrides) (*app, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := storage.Open(cfg.Database.Path, cfg.Database.IndexDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	registry := parser.DefaultRegistry()
	ch := chunker.New(chunker.Options{})

	cacheTTL, err := time.ParseDuration(cfg.Discovery.CacheTTL)
	if err != nil {
		cacheTTL = 5 * time.Minute
	}
	disc := discovery.New(cfg.Discovery.CacheSize, cacheTTL)

	var orchestrator *embedding.Orchestrator
	var provider embedding.Provider
	if !flags.noEmbeddings && cfg.Embedding.Provider != "" {
		provider = buildProvider(cfg.Embedding)
		orchestrator = embedding.NewOrchestrator(provider, embedding.Config{
			Concurrency: cfg.Embedding.MaxConcurrency,
		})
	}

	coordinator := indexing.New(store, registry, ch, orchestrator, disc)

	return &app{
		cfg:          cfg,
		store:        store,
		registry:     registry,
		chunker:      ch,
		orchestrator: orchestrator,
		provider:     provider,
		discovery:    disc,
		coordinator:  coordinator,
	}, nil
}

// buildProvider selects an embedding.Provider from the configured
// provider name. "static" and "" (offline/default) use the hash-based
// provider; anything else is treated as an OpenAI-compatible HTTP
// endpoint, matching --provider/--model/--api-key/--base-url.
func buildProvider(cfg config.EmbeddingConfig) embedding.Provider {
	switch cfg.Provider {
	case "", "static":
		return embedding.NewStaticProvider(cfg.Dimensions)
	default:
		return embedding.NewHTTPProvider(embedding.HTTPProviderConfig{
			Name:    cfg.Provider,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Dims:    cfg.Dimensions,
		})
	}
}

func (a *app) Close() {
	if a.provider != nil {
		_ = a.provider.Close()
	}
	_ = a.store.Close()
}
