package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkhound-go/chunkhound/internal/chunker"
	"github.com/chunkhound-go/chunkhound/internal/discovery"
	"github.com/chunkhound-go/chunkhound/internal/embedding"
	"github.com/chunkhound-go/chunkhound/internal/parser"
	"github.com/chunkhound-go/chunkhound/internal/storage"
)

const goSource = `package sample

func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	return a - b
}
`

func newTestCoordinator(t *testing.T, withEmbeddings bool) (*Coordinator, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "chunkhound.db"), filepath.Join(dir, "indexes"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var orch *embedding.Orchestrator
	if withEmbeddings {
		orch = embedding.NewOrchestrator(embedding.NewStaticProvider(8), embedding.Config{})
	}

	return New(store, parser.DefaultRegistry(), chunker.New(chunker.Options{}), orch, discovery.New(10, time.Minute)), dir
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessFile_NewFileIndexedSuccessfully(t *testing.T) {
	c, dir := newTestCoordinator(t, false)
	path := writeSource(t, dir, "a.go", goSource)

	result := c.ProcessFile(context.Background(), path, true)

	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 2, result.Chunks)
	assert.Len(t, result.ChunkIDs, 2)
}

func TestProcessFile_UnsupportedExtensionIsSkipped(t *testing.T) {
	c, dir := newTestCoordinator(t, false)
	path := writeSource(t, dir, "a.bin", "binary junk")

	result := c.ProcessFile(context.Background(), path, true)
	assert.Equal(t, StatusSkippedUnsupported, result.Status)
}

func TestProcessFile_MissingFileIsError(t *testing.T) {
	c, dir := newTestCoordinator(t, false)
	result := c.ProcessFile(context.Background(), filepath.Join(dir, "missing.go"), true)
	assert.Equal(t, StatusError, result.Status)
	assert.Error(t, result.Err)
}

func TestProcessFile_ReprocessingUnchangedFileIsUpToDate(t *testing.T) {
	c, dir := newTestCoordinator(t, false)
	path := writeSource(t, dir, "a.go", goSource)

	first := c.ProcessFile(context.Background(), path, true)
	require.Equal(t, StatusSuccess, first.Status)

	second := c.ProcessFile(context.Background(), path, true)
	assert.Equal(t, StatusUpToDate, second.Status)
	assert.Equal(t, first.Chunks, second.Chunks)
}

func TestProcessFile_ModifiedFileReplacesChunks(t *testing.T) {
	c, dir := newTestCoordinator(t, false)
	path := writeSource(t, dir, "a.go", goSource)

	first := c.ProcessFile(context.Background(), path, true)
	require.Equal(t, StatusSuccess, first.Status)

	future := time.Now().Add(time.Hour)
	modified := goSource + "\nfunc Mul(a, b int) int {\n\treturn a * b\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(modified), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	second := c.ProcessFile(context.Background(), path, true)
	require.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, 3, second.Chunks)
	assert.Equal(t, first.FileID, second.FileID)
}

func TestProcessFile_GeneratesEmbeddingsWhenNotSkipped(t *testing.T) {
	c, dir := newTestCoordinator(t, true)
	path := writeSource(t, dir, "a.go", goSource)

	result := c.ProcessFile(context.Background(), path, false)
	require.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 2, result.Embeddings)
}

func TestProcessDirectory_NoFilesReportsNoFiles(t *testing.T) {
	c, dir := newTestCoordinator(t, false)
	result := c.ProcessDirectory(context.Background(), dir, DirectoryOptions{Include: []string{"*.go"}})
	assert.Equal(t, "no_files", result.Status)
}

func TestProcessDirectory_ProcessesAllFilesAndBatchesEmbeddings(t *testing.T) {
	c, dir := newTestCoordinator(t, true)
	writeSource(t, dir, "a.go", goSource)
	writeSource(t, dir, "b.go", "package sample\n\nfunc Double(x int) int {\n\treturn x * 2\n}\n")

	result := c.ProcessDirectory(context.Background(), dir, DirectoryOptions{Include: []string{"*.go"}})

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 3, result.TotalChunks)
	assert.Equal(t, 3, result.TotalEmbeddings)
}

func TestProcessDirectory_ProgressCallbackFiresPerFile(t *testing.T) {
	c, dir := newTestCoordinator(t, false)
	writeSource(t, dir, "a.go", goSource)

	calls := 0
	c.ProcessDirectory(context.Background(), dir, DirectoryOptions{
		Include:  []string{"*.go"},
		Progress: func(processed, total int) { calls++ },
	})
	assert.Equal(t, 1, calls)
}

func TestRemoveFile_DeletesFileAndReturnsChunkCount(t *testing.T) {
	c, dir := newTestCoordinator(t, false)
	path := writeSource(t, dir, "a.go", goSource)

	result := c.ProcessFile(context.Background(), path, true)
	require.Equal(t, StatusSuccess, result.Status)

	removed, err := c.RemoveFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	again := c.ProcessFile(context.Background(), path, true)
	assert.Equal(t, StatusSuccess, again.Status) // file gone, re-indexed as new
}

func TestRemoveFile_MissingFileReturnsZero(t *testing.T) {
	c, dir := newTestCoordinator(t, false)
	removed, err := c.RemoveFile(context.Background(), filepath.Join(dir, "nope.go"))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
