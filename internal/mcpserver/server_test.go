package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
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

// runLines sends each of lines through the server and returns every
// response/result line it wrote back, parsed as raw JSON maps.
func runLines(t *testing.T, srv *Server, lines []string) []map[string]any {
	t.Helper()
	in := bytes.NewBufferString(joinLines(lines))
	var out bytes.Buffer

	err := srv.Run(context.Background(), in, &out)
	require.NoError(t, err)

	var results []map[string]any
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		results = append(results, m)
	}
	return results
}

func joinLines(lines []string) string {
	s := ""
	for _, l := range lines {
		s += l + "\n"
	}
	return s
}

func validInitializeLine() string {
	return `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`
}

func TestInitialize_MissingProtocolVersionReturnsInvalidParamsWithExample(t *testing.T) {
	srv := NewServer(newTestStore(t), nil, nil)
	out := runLines(t, srv, []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"capabilities":{},"clientInfo":{"name":"x"}}}`,
	})
	require.Len(t, out, 1)
	errObj, ok := out[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(CodeInvalidParams), errObj["code"])
	data, ok := errObj["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "protocolVersion", data["missing_field"])
	assert.NotNil(t, data["example"])
}

func TestToolCallBeforeInitializeIsRejected(t *testing.T) {
	srv := NewServer(newTestStore(t), nil, nil)
	out := runLines(t, srv, []string{
		`{"jsonrpc":"2.0","id":2,"method":"get_stats","params":{}}`,
	})
	require.Len(t, out, 1)
	errObj, ok := out[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(CodeInvalidRequest), errObj["code"])
}

func TestSearchRegex_StreamsHitsThenSummary(t *testing.T) {
	s := newTestStore(t)
	seedFile(t, s, "/proj/a.go", "func f() {\n\treturn\n}")
	srv := NewServer(s, nil, nil)

	out := runLines(t, srv, []string{
		validInitializeLine(),
		`{"jsonrpc":"2.0","id":2,"method":"search_regex","params":{"pattern":"func","limit":10}}`,
	})

	require.Len(t, out, 3) // initialize result, 1 hit, closing summary
	hit := out[1]
	assert.Equal(t, "/proj/a.go", hit["file_path"])
	assert.Equal(t, "function", hit["chunk_type"])

	summary := out[2]["result"].(map[string]any)
	assert.Equal(t, float64(1), summary["count"])
}

func TestSearchRegex_PathTraversalFilterRejected(t *testing.T) {
	s := newTestStore(t)
	seedFile(t, s, "/proj/a.go", "func f() {}")
	srv := NewServer(s, nil, nil)

	out := runLines(t, srv, []string{
		validInitializeLine(),
		`{"jsonrpc":"2.0","id":2,"method":"search_regex","params":{"pattern":"func","path":"../etc"}}`,
	})

	require.Len(t, out, 2)
	errObj, ok := out[1]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(CodeInvalidParams), errObj["code"])
}

func TestSearchSemantic_NoOrchestratorConfiguredReturnsInternalError(t *testing.T) {
	s := newTestStore(t)
	srv := NewServer(s, nil, nil)

	out := runLines(t, srv, []string{
		validInitializeLine(),
		`{"jsonrpc":"2.0","id":2,"method":"search_semantic","params":{"query":"f"}}`,
	})

	require.Len(t, out, 2)
	errObj, ok := out[1]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(CodeInternalError), errObj["code"])
}

func TestGetStats_ReportsSeededCounts(t *testing.T) {
	s := newTestStore(t)
	seedFile(t, s, "/proj/a.go", "func f() {}")
	srv := NewServer(s, nil, nil)

	out := runLines(t, srv, []string{
		validInitializeLine(),
		`{"jsonrpc":"2.0","id":2,"method":"get_stats","params":{}}`,
	})

	require.Len(t, out, 2)
	result := out[1]["result"].(map[string]any)
	assert.Equal(t, float64(1), result["files"])
	assert.Equal(t, float64(1), result["chunks"])
}

func TestHealthCheck_ReportsDatabaseConnected(t *testing.T) {
	s := newTestStore(t)
	srv := NewServer(s, nil, nil)

	out := runLines(t, srv, []string{
		validInitializeLine(),
		`{"jsonrpc":"2.0","id":2,"method":"health_check","params":{}}`,
	})

	require.Len(t, out, 2)
	result := out[1]["result"].(map[string]any)
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, true, result["database_connected"])
}
