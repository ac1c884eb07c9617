// Package indexing is the indexing coordinator: it drives a file from
// bytes to persisted chunks and embeddings with transactional safety, and
// batches that work across a whole directory. Grounded on
// internal/index/coordinator.go for the ProcessFile/ProcessDirectory shape
// and result-status enum, generalized to the transaction-safe backup/restore
// dance specified in original_source/services/indexing_coordinator.py's
// _process_file_modification_safe — a transactional path the reference server lacks,
// since its BM25+vector-store pairing has no single transaction spanning
// both stores the way this repo's single SQL database does (internal/storage).
package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chunkhound-go/chunkhound/internal/chunker"
	"github.com/chunkhound-go/chunkhound/internal/discovery"
	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/embedding"
	"github.com/chunkhound-go/chunkhound/internal/errs"
	"github.com/chunkhound-go/chunkhound/internal/parser"
	"github.com/chunkhound-go/chunkhound/internal/storage"
)

// Status tags the outcome of ProcessFile:
// {success, up_to_date, no_content, no_chunks, skipped:unsupported_type, error}.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusUpToDate           Status = "up_to_date"
	StatusNoContent          Status = "no_content"
	StatusNoChunks           Status = "no_chunks"
	StatusSkippedUnsupported Status = "skipped:unsupported_type"
	StatusError              Status = "error"
)

// mtimeEpsilon is the minimum mtime delta that counts as "changed" — below
// it, two stats of the same file are considered the same file.
const mtimeEpsilon = 0.001

// Result is process_file's output record.
type Result struct {
	Status     Status
	FileID     string
	Chunks     int
	ChunkIDs   []string
	ChunkTexts []string // populated alongside ChunkIDs so callers can batch-embed later
	Embeddings int
	Err        error
}

// Coordinator wires the parser registry, chunker, storage engine, and
// (optionally) an embedding orchestrator into the process_file/
// process_directory contract. A nil orchestrator means embeddings are
// never generated, regardless of skipEmbeddings.
type Coordinator struct {
	Store        *storage.Store
	Registry     *parser.Registry
	Chunker      *chunker.Chunker
	Orchestrator *embedding.Orchestrator
	Discovery    *discovery.Cache

	now func() time.Time
}

// New constructs a Coordinator. orchestrator may be nil to disable
// embedding generation entirely (e.g. --no-embeddings).
func New(store *storage.Store, registry *parser.Registry, ch *chunker.Chunker, orchestrator *embedding.Orchestrator, disc *discovery.Cache) *Coordinator {
	return &Coordinator{
		Store:        store,
		Registry:     registry,
		Chunker:      ch,
		Orchestrator: orchestrator,
		Discovery:    disc,
		now:          time.Now,
	}
}

// ProcessFile drives path through the complete indexing pipeline: language
// detection, parsing, chunking, and (unless skipEmbeddings) embedding
// generation, with transaction-safe handling of modifications to an
// already-indexed file. An observer reading the database at any instant
// sees either the full old or the full new content of the file, never a
// partial state.
func (c *Coordinator) ProcessFile(ctx context.Context, path string, skipEmbeddings bool) Result {
	language, ok := c.languageForPath(path)
	if !ok {
		return Result{Status: StatusSkippedUnsupported}
	}

	p, ok := c.Registry.ForLanguage(language)
	if !ok {
		return errResult(fmt.Errorf("no parser registered for language %q", language))
	}

	info, err := os.Stat(path)
	if err != nil {
		return errResult(fmt.Errorf("stat %s: %w", path, err))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errResult(fmt.Errorf("resolve absolute path for %s: %w", path, err))
	}

	currentMtime := float64(info.ModTime().UnixNano()) / 1e9
	existing, err := c.Store.GetFileByPath(ctx, absPath)
	if err != nil {
		return errResult(err)
	}

	if existing != nil && math.Abs(existing.MTime-currentMtime) < mtimeEpsilon {
		chunks, err := c.Store.GetChunksByFile(ctx, existing.ID)
		if err != nil {
			return errResult(err)
		}
		return Result{Status: StatusUpToDate, FileID: existing.ID, Chunks: len(chunks)}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return errResult(fmt.Errorf("read %s: %w", path, err))
	}

	descriptors, err := p.Parse(ctx, absPath, content)
	if err != nil {
		return errResult(err)
	}
	if len(descriptors) == 0 {
		return Result{Status: StatusNoContent}
	}

	fileID := domain.NewFileID(absPath)
	chunks := c.Chunker.Normalize(fileID, language, descriptors)
	if len(chunks) == 0 {
		return Result{Status: StatusNoChunks}
	}

	now := c.now()
	file, err := domain.NewFile(absPath, currentMtime, info.Size(), language, now)
	if err != nil {
		return errResult(err)
	}

	isModification := existing != nil
	if isModification {
		file.CreatedAt = existing.CreatedAt
		if err := c.Store.ReplaceFileChunks(ctx, file, chunks); err != nil {
			return errResult(err)
		}
	} else {
		if err := c.Store.InsertFile(ctx, file); err != nil {
			return errResult(err)
		}
		if err := c.Store.InsertChunks(ctx, chunks); err != nil {
			return errResult(err)
		}
	}

	chunkIDs := make([]string, len(chunks))
	chunkTexts := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkIDs[i] = ch.ID
		chunkTexts[i] = ch.Code
	}

	result := Result{
		Status:     StatusSuccess,
		FileID:     file.ID,
		Chunks:     len(chunks),
		ChunkIDs:   chunkIDs,
		ChunkTexts: chunkTexts,
	}

	if skipEmbeddings || c.Orchestrator == nil {
		return result
	}

	generated, err := c.embedAndStore(ctx, chunkIDs, chunkTexts)
	if err != nil {
		slog.Warn("embedding generation failed", slog.String("path", path), slog.String("error", err.Error()))
		return result
	}
	result.Embeddings = generated
	return result
}

// DirectoryOptions configures ProcessDirectory's discovery and reporting.
type DirectoryOptions struct {
	Include  []string
	Exclude  []string
	Progress func(processed, total int) // invoked after each file in the first pass
}

// DirectoryResult is process_directory's output record.
type DirectoryResult struct {
	Status          string
	FilesProcessed  int
	TotalChunks     int
	TotalEmbeddings int
	Err             error
}

// ProcessDirectory discovers files under directory through the discovery
// cache, processes each with skipEmbeddings=true, then generates
// embeddings for every accumulated (chunk_id, text) pair in one batched
// phase — amortizing the HNSW drop/rebuild cost across the whole
// directory.
func (c *Coordinator) ProcessDirectory(ctx context.Context, directory string, opts DirectoryOptions) DirectoryResult {
	files, err := c.Discovery.GetFiles(directory, opts.Include, opts.Exclude)
	if err != nil {
		return DirectoryResult{Status: "error", Err: err}
	}
	if len(files) == 0 {
		return DirectoryResult{Status: "no_files"}
	}

	var (
		filesProcessed int
		totalChunks    int
		allChunkIDs    []string
		allChunkTexts  []string
	)

	for i, path := range files {
		select {
		case <-ctx.Done():
			return DirectoryResult{Status: "error", Err: ctx.Err()}
		default:
		}

		result := c.ProcessFile(ctx, path, true)
		if result.Status == StatusSuccess {
			filesProcessed++
			totalChunks += result.Chunks
			allChunkIDs = append(allChunkIDs, result.ChunkIDs...)
			allChunkTexts = append(allChunkTexts, result.ChunkTexts...)
		}

		if opts.Progress != nil {
			opts.Progress(i+1, len(files))
		}
	}

	var totalEmbeddings int
	if c.Orchestrator != nil && len(allChunkIDs) > 0 {
		generated, err := c.embedAndStore(ctx, allChunkIDs, allChunkTexts)
		if err != nil {
			slog.Warn("directory embedding generation failed", slog.String("directory", directory), slog.String("error", err.Error()))
		}
		totalEmbeddings = generated
	}

	return DirectoryResult{
		Status:          "success",
		FilesProcessed:  filesProcessed,
		TotalChunks:     totalChunks,
		TotalEmbeddings: totalEmbeddings,
	}
}

// RemoveFile deletes a file and every chunk/embedding that belongs to it,
// returning the number of chunks removed.
func (c *Coordinator) RemoveFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolve absolute path for %s: %w", path, err)
	}

	file, err := c.Store.GetFileByPath(ctx, absPath)
	if err != nil {
		return 0, err
	}
	if file == nil {
		return 0, nil
	}

	chunks, err := c.Store.GetChunksByFile(ctx, file.ID)
	if err != nil {
		return 0, err
	}

	if err := c.Store.DeleteFileCompletely(ctx, file.ID); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// embedAndStore runs texts through the orchestrator and persists the
// resulting vectors, preserving the orchestrator's index-based result
// mapping back onto chunkIDs (texts that exceed a provider's limits are
// simply dropped, per embedding.Orchestrator.Embed's contract).
func (c *Coordinator) embedAndStore(ctx context.Context, chunkIDs, texts []string) (int, error) {
	results, err := c.Orchestrator.Embed(ctx, texts)
	if err != nil && len(results) == 0 {
		return 0, err
	}

	caps := c.Orchestrator.Capabilities()
	now := c.now()
	embeddings := make([]*domain.Embedding, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(chunkIDs) {
			continue
		}
		e, buildErr := domain.NewEmbedding(chunkIDs[r.Index], caps.Name, caps.Model, r.Vector, now)
		if buildErr != nil {
			continue
		}
		embeddings = append(embeddings, e)
	}
	if len(embeddings) == 0 {
		return 0, err
	}

	if insertErr := c.Store.InsertEmbeddings(ctx, embeddings, storage.InsertEmbeddingsOptions{}); insertErr != nil {
		return 0, insertErr
	}
	return len(embeddings), err
}

func (c *Coordinator) languageForPath(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	return c.Registry.LanguageForExtension(ext)
}

func errResult(err error) Result {
	return Result{Status: StatusError, Err: wrapIfPlain(err)}
}

func wrapIfPlain(err error) error {
	if errs.KindOf(err) != "" {
		return err
	}
	return errs.New(errs.KindCoordination, err.Error(), err)
}
