// Package parser turns a file's bytes into an ordered sequence of chunk
// descriptors. Parsers are specified only by contract: the concrete
// tree-sitter grammars live behind a small per-language configuration.
package parser

import (
	"context"
	"strings"
	"sync"

	"github.com/chunkhound-go/chunkhound/internal/domain"
)

// Descriptor is a parser's raw, pre-normalization view of one candidate
// chunk. The chunker turns these into domain.Chunk records.
type Descriptor struct {
	Symbol       string
	ChunkType    domain.ChunkType
	StartLine    int // 1-indexed
	EndLine      int // inclusive
	StartByte    int
	EndByte      int
	Code         string
	ParentHeader string
}

// Parser turns a file's bytes into an ordered sequence of chunk descriptors.
type Parser interface {
	// Parse returns descriptors for the given source. An unparseable file
	// returns an empty, non-nil slice and a nil error: no parse failure is
	// fatal to the caller.
	Parse(ctx context.Context, path string, content []byte) ([]Descriptor, error)

	// SupportedExtensions returns the file extensions this parser handles,
	// including the leading dot (e.g. ".go").
	SupportedExtensions() []string
}

// Registry resolves a Parser by language name or file extension.
type Registry struct {
	mu        sync.RWMutex
	byLang    map[string]Parser
	extToLang map[string]string
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		byLang:    make(map[string]Parser),
		extToLang: make(map[string]string),
	}
}

// Register associates a language name and its extensions with a Parser.
func (r *Registry) Register(language string, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLang[language] = p
	for _, ext := range p.SupportedExtensions() {
		r.extToLang[normalizeExt(ext)] = language
	}
}

// ForLanguage resolves a Parser by language name.
func (r *Registry) ForLanguage(language string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byLang[language]
	return p, ok
}

// LanguageForExtension maps a file extension to a registered language name.
// Returns ("", false) for unsupported extensions.
func (r *Registry) LanguageForExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.extToLang[normalizeExt(ext)]
	return lang, ok
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// DefaultRegistry returns a registry pre-populated with the tree-sitter
// based parsers and the markdown parser.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for lang, cfg := range defaultLanguageConfigs() {
		r.Register(lang, NewTreeSitterParser(cfg))
	}
	r.Register("markdown", NewMarkdownParser())
	return r
}
