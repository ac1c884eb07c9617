package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := storage.Open(filepath.Join(dir, "chunkhound.db"), filepath.Join(dir, "indexes"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedFile(t *testing.T, s *storage.Store, path, code string) {
	t.Helper()
	ctx := context.Background()
	f, err := domain.NewFile(path, 100.0, int64(len(code)), "go", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.InsertFile(ctx, f))

	c, err := domain.NewChunk(f.ID, "f", domain.ChunkTypeFunction, "go", 1, 3, code, "")
	require.NoError(t, err)
	require.NoError(t, s.InsertChunks(ctx, []*domain.Chunk{c}))
}

func TestHandleHealth_ReportsDatabaseConnected(t *testing.T) {
	srv := New(newTestStore(t), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["database_connected"])
}

func TestHandleSearchRegex_GETStreamsNDJSONHits(t *testing.T) {
	s := newTestStore(t)
	seedFile(t, s, "/proj/a.go", "func f() {\n\treturn\n}")
	srv := New(s, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search/regex?pattern=func&limit=10", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := splitLines(t, rec.Body.Bytes())
	require.Len(t, lines, 1)
	assert.Equal(t, "/proj/a.go", lines[0]["file_path"])
}

func TestHandleSearchRegex_MissingPatternIs422(t *testing.T) {
	srv := New(newTestStore(t), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/search/regex", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_error", body.Error)
}

func TestHandleSearchRegex_PathTraversalIs422(t *testing.T) {
	s := newTestStore(t)
	seedFile(t, s, "/proj/a.go", "func f() {}")
	srv := New(s, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search/regex?pattern=func&path=..%2Fetc", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleSearchSemantic_NoProviderIs503(t *testing.T) {
	srv := New(newTestStore(t), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/search/semantic?query=hello", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleStats_ReportsSeededCounts(t *testing.T) {
	s := newTestStore(t)
	seedFile(t, s, "/proj/a.go", "func f() {}")
	srv := New(s, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["files"])
	assert.Equal(t, float64(1), body["chunks"])
}

func splitLines(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		out = append(out, m)
	}
	return out
}
