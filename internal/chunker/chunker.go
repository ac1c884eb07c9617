// Package chunker normalizes parser.Descriptor output into domain.Chunk
// records and computes minimal change sets between successive parses of the
// same file.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/parser"
)

// Options configures normalization thresholds. Zero values are replaced by
// defaults in New.
type Options struct {
	MinCodeLines int // default 3
	MinDocLines  int // default 1
	MaxLines     int // default 500
}

const (
	defaultMinCodeLines = 3
	defaultMinDocLines  = 1
	defaultMaxLines     = 500
)

// generatedMarkers are case-insensitive substrings that mark a chunk as
// machine-generated and therefore excluded from indexing.
var generatedMarkers = []string{
	"generated by",
	"auto-generated",
	"autogenerated",
	"do not edit",
	"code generated",
}

// Chunker turns raw parser descriptors into normalized, deduplicated Chunks.
type Chunker struct {
	opts Options
}

// New creates a Chunker, filling unset options with their defaults.
func New(opts Options) *Chunker {
	if opts.MinCodeLines == 0 {
		opts.MinCodeLines = defaultMinCodeLines
	}
	if opts.MinDocLines == 0 {
		opts.MinDocLines = defaultMinDocLines
	}
	if opts.MaxLines == 0 {
		opts.MaxLines = defaultMaxLines
	}
	return &Chunker{opts: opts}
}

// Normalize applies the normalization contract to a file's parsed
// descriptors, returning the surviving Chunks in stable order.
//
// Steps, in order, per descriptor:
//  1. strip trailing whitespace per line, strip leading/trailing blank lines
//  2. drop if line count is below the type-appropriate minimum
//  3. drop if line count exceeds the maximum
//  4. drop if cleaned code is empty
//  5. drop if a generated-file marker is present
//  6. dedup by (symbol, hash(cleaned_code)), keeping the first
func (c *Chunker) Normalize(fileID, language string, descriptors []parser.Descriptor) []*domain.Chunk {
	seen := make(map[string]struct{}, len(descriptors))
	out := make([]*domain.Chunk, 0, len(descriptors))

	for _, d := range descriptors {
		cleaned, lineShift := cleanCode(d.Code)
		if cleaned == "" {
			continue
		}

		lineCount := strings.Count(cleaned, "\n") + 1
		minLines := c.opts.MinCodeLines
		if d.ChunkType.IsDocumentation() {
			minLines = c.opts.MinDocLines
		}
		if lineCount < minLines || lineCount > c.opts.MaxLines {
			continue
		}

		if isGenerated(cleaned) {
			continue
		}

		key := dedupKey(d.Symbol, cleaned)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		startLine := d.StartLine + lineShift.leading
		endLine := startLine + lineCount - 1

		chunk, err := domain.NewChunk(fileID, d.Symbol, d.ChunkType, language, startLine, endLine, cleaned, d.ParentHeader)
		if err != nil {
			continue
		}
		if d.StartByte != 0 || d.EndByte != 0 {
			sb, eb := d.StartByte, d.EndByte
			chunk.StartByte = &sb
			chunk.EndByte = &eb
		}
		out = append(out, chunk)
	}

	return out
}

type shift struct {
	leading int
}

// cleanCode strips trailing whitespace from every line and leading/trailing
// blank lines, reporting how many leading lines were dropped so callers can
// adjust start_line accordingly.
func cleanCode(code string) (string, shift) {
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start >= end {
		return "", shift{}
	}
	return strings.Join(lines[start:end], "\n"), shift{leading: start}
}

func isGenerated(code string) bool {
	lower := strings.ToLower(code)
	for _, marker := range generatedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func dedupKey(symbol, cleanedCode string) string {
	sum := sha256.Sum256([]byte(cleanedCode))
	return symbol + ":" + hex.EncodeToString(sum[:])
}
