// Package domain holds the immutable record types shared by every component
// of the indexing pipeline and storage engine: File, Chunk, and Embedding.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
)

// ChunkType is a closed enum partitioned into code and documentation kinds.
type ChunkType string

const (
	ChunkTypeFunction    ChunkType = "function"
	ChunkTypeMethod      ChunkType = "method"
	ChunkTypeClass       ChunkType = "class"
	ChunkTypeConstructor ChunkType = "constructor"
	ChunkTypeInterface   ChunkType = "interface"
	ChunkTypeType        ChunkType = "type"
	ChunkTypeVariable    ChunkType = "variable"
	ChunkTypeConstant    ChunkType = "constant"

	ChunkTypeHeader1   ChunkType = "header_1"
	ChunkTypeHeader2   ChunkType = "header_2"
	ChunkTypeHeader3   ChunkType = "header_3"
	ChunkTypeHeader4   ChunkType = "header_4"
	ChunkTypeHeader5   ChunkType = "header_5"
	ChunkTypeHeader6   ChunkType = "header_6"
	ChunkTypeParagraph ChunkType = "paragraph"
)

// IsDocumentation reports whether the chunk type belongs to the
// documentation partition (headers, paragraphs) rather than code.
func (t ChunkType) IsDocumentation() bool {
	switch t {
	case ChunkTypeHeader1, ChunkTypeHeader2, ChunkTypeHeader3,
		ChunkTypeHeader4, ChunkTypeHeader5, ChunkTypeHeader6, ChunkTypeParagraph:
		return true
	default:
		return false
	}
}

// IsCode reports the complement of IsDocumentation.
func (t ChunkType) IsCode() bool { return !t.IsDocumentation() }

// File is an ingested source file tracked by path.
type File struct {
	ID        string
	Path      string // absolute when persisted
	MTime     float64
	SizeBytes int64
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewFileID derives the content-addressable ID for a file from its path.
// Stable across reprocessing so chunk/embedding foreign keys never change
// when only a file's content (not its path) changes.
func NewFileID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// NewFile constructs a File, validating the invariants from the data model:
// size_bytes >= 0, mtime >= 0, and an absolute path.
func NewFile(path string, mtime float64, sizeBytes int64, language string, now time.Time) (*File, error) {
	if sizeBytes < 0 {
		return nil, fmt.Errorf("domain: file size_bytes must be >= 0, got %d", sizeBytes)
	}
	if mtime < 0 {
		return nil, fmt.Errorf("domain: file mtime must be >= 0, got %f", mtime)
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("domain: file path must be absolute, got %q", path)
	}
	return &File{
		ID:        NewFileID(path),
		Path:      path,
		MTime:     mtime,
		SizeBytes: sizeBytes,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Chunk is a semantic unit of source text bounded by a parser-recognized
// construct. Chunks are never mutated in place — a changed region is
// expressed as delete+insert (see internal/chunker).
type Chunk struct {
	ID           string
	FileID       string
	Symbol       string
	ChunkType    ChunkType
	Language     string
	StartLine    int
	EndLine      int
	StartByte    *int
	EndByte      *int
	Code         string
	ParentHeader string
}

// LineCount returns end_line - start_line + 1.
func (c *Chunk) LineCount() int { return c.EndLine - c.StartLine + 1 }

// NewChunkID derives the content-addressable ID for a chunk. Stable across
// line-number shifts elsewhere in the file as long as the chunk's own code
// and position are unchanged, which is what the differential chunker
// needs to diff old and new chunk sets by identity.
func NewChunkID(fileID string, startLine int, code string) string {
	h := sha256.Sum256([]byte(code))
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", fileID, startLine, hex.EncodeToString(h[:]))))
	return hex.EncodeToString(sum[:])[:16]
}

// NewChunk constructs a Chunk, validating the invariants from the data
// model: code non-empty after cleanup, start_line >= 1, end_line >= start_line.
func NewChunk(fileID, symbol string, chunkType ChunkType, language string, startLine, endLine int, code, parentHeader string) (*Chunk, error) {
	if startLine < 1 {
		return nil, fmt.Errorf("domain: chunk start_line must be >= 1, got %d", startLine)
	}
	if endLine < startLine {
		return nil, fmt.Errorf("domain: chunk end_line (%d) must be >= start_line (%d)", endLine, startLine)
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("domain: chunk code must be non-empty after cleanup")
	}
	return &Chunk{
		ID:           NewChunkID(fileID, startLine, code),
		FileID:       fileID,
		Symbol:       symbol,
		ChunkType:    chunkType,
		Language:     language,
		StartLine:    startLine,
		EndLine:      endLine,
		Code:         code,
		ParentHeader: parentHeader,
	}, nil
}

// Embedding is a fixed-dimension numeric vector produced by a provider for
// one chunk's text. Uniqueness key: (chunk_id, provider, model).
type Embedding struct {
	ChunkID   string
	Provider  string
	Model     string
	Dims      int
	Vector    []float32
	CreatedAt time.Time
}

// NewEmbedding constructs an Embedding whose Dims is the vector's length,
// validating that every component is finite.
func NewEmbedding(chunkID, provider, model string, vector []float32, now time.Time) (*Embedding, error) {
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("domain: embedding vector component %d is not finite", i)
		}
	}
	return &Embedding{
		ChunkID:   chunkID,
		Provider:  provider,
		Model:     model,
		Dims:      len(vector),
		Vector:    vector,
		CreatedAt: now,
	}, nil
}
