package mcpserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/errs"
	"github.com/chunkhound-go/chunkhound/internal/storage"
	"github.com/chunkhound-go/chunkhound/pkg/version"
)

// initializeParams is the subset of the MCP initialize request this server
// validates. protocolVersion, capabilities, and clientInfo are all
// required; a missing field short-circuits with -32602.
type initializeParams struct {
	ProtocolVersion *string         `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ClientInfo      json.RawMessage `json:"clientInfo"`
}

func (s *Server) handleInitialize(req *Request, w io.Writer) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeResponse(w, errorResponse(req.ID, &RPCError{Code: CodeInvalidParams, Message: "malformed params: " + err.Error()}))
			return
		}
	}

	switch {
	case params.ProtocolVersion == nil || *params.ProtocolVersion == "":
		s.writeResponse(w, errorResponse(req.ID, newInitializeParamsError("protocolVersion")))
		return
	case len(params.Capabilities) == 0:
		s.writeResponse(w, errorResponse(req.ID, newInitializeParamsError("capabilities")))
		return
	case len(params.ClientInfo) == 0:
		s.writeResponse(w, errorResponse(req.ID, newInitializeParamsError("clientInfo")))
		return
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.writeResponse(w, resultResponse(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "chunkhound",
			"version": version.Short(),
		},
	}))
}

// regexSearchParams is search_regex's input schema, plus an optional path
// filter carried over from the storage layer's own contract.
type regexSearchParams struct {
	Pattern string `json:"pattern"`
	Limit   int    `json:"limit"`
	Path    string `json:"path"`
}

func (s *Server) handleSearchRegex(ctx context.Context, req *Request, w io.Writer) {
	var params regexSearchParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(w, errorResponse(req.ID, &RPCError{Code: CodeInvalidParams, Message: "malformed params: " + err.Error()}))
		return
	}
	if params.Pattern == "" {
		s.writeResponse(w, errorResponse(req.ID, &RPCError{Code: CodeInvalidParams, Message: "pattern is required"}))
		return
	}
	limit := clampLimit(params.Limit, 10, 1, 100)

	if err := storage.ValidatePathFilter(params.Path); err != nil {
		s.writeResponse(w, errorResponse(req.ID, mapError(err)))
		return
	}

	hits, err := s.store.RegexSearch(ctx, params.Pattern, limit, params.Path)
	if err != nil {
		s.writeResponse(w, errorResponse(req.ID, mapError(err)))
		return
	}

	for _, h := range hits {
		s.writeLine(w, regexHitObject(h.Chunk, h.FilePath))
	}
	s.writeResponse(w, resultResponse(req.ID, map[string]any{"count": len(hits)}))
}

// semanticSearchParams is search_semantic's input schema.
// provider/model, if given, must match the configured orchestrator's
// provider/model — this server wraps exactly one orchestrator, so there
// is nothing else to route a mismatched request to.
type semanticSearchParams struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	Threshold *float64 `json:"threshold"`
}

func (s *Server) handleSearchSemantic(ctx context.Context, req *Request, w io.Writer) {
	var params semanticSearchParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(w, errorResponse(req.ID, &RPCError{Code: CodeInvalidParams, Message: "malformed params: " + err.Error()}))
		return
	}
	if params.Query == "" {
		s.writeResponse(w, errorResponse(req.ID, &RPCError{Code: CodeInvalidParams, Message: "query is required"}))
		return
	}
	if params.Threshold != nil && (*params.Threshold < 0 || *params.Threshold > 2) {
		s.writeResponse(w, errorResponse(req.ID, &RPCError{Code: CodeInvalidParams, Message: "threshold must be within [0, 2]"}))
		return
	}
	if s.orchestrator == nil {
		s.writeResponse(w, errorResponse(req.ID, &RPCError{Code: CodeInternalError, Message: "no embedding provider configured"}))
		return
	}

	caps := s.orchestrator.Capabilities()
	if params.Provider != "" && params.Provider != caps.Name {
		s.writeResponse(w, errorResponse(req.ID, &RPCError{
			Code:    CodeInvalidParams,
			Message: "configured provider is '" + caps.Name + "', not '" + params.Provider + "'",
		}))
		return
	}
	if params.Model != "" && params.Model != caps.Model {
		s.writeResponse(w, errorResponse(req.ID, &RPCError{
			Code:    CodeInvalidParams,
			Message: "configured model is '" + caps.Model + "', not '" + params.Model + "'",
		}))
		return
	}

	limit := clampLimit(params.Limit, 10, 1, 100)

	results, err := s.orchestrator.Embed(ctx, []string{params.Query})
	if err != nil {
		s.writeResponse(w, errorResponse(req.ID, mapError(err)))
		return
	}
	if len(results) == 0 {
		s.writeResponse(w, errorResponse(req.ID, mapError(errs.Embedding(errs.EmbeddingSubKindNone, "query text produced no embedding", nil))))
		return
	}

	var threshold *float32
	if params.Threshold != nil {
		t := float32(*params.Threshold)
		threshold = &t
	}

	hits, err := s.store.SemanticSearch(ctx, results[0].Vector, caps.Name, caps.Model, limit, threshold)
	if err != nil {
		s.writeResponse(w, errorResponse(req.ID, mapError(err)))
		return
	}

	for _, h := range hits {
		obj := regexHitObject(h.Chunk, h.FilePath)
		obj["similarity"] = h.Similarity
		s.writeLine(w, obj)
	}
	s.writeResponse(w, resultResponse(req.ID, map[string]any{"count": len(hits)}))
}

func (s *Server) handleGetStats(ctx context.Context, req *Request, w io.Writer) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.writeResponse(w, errorResponse(req.ID, mapError(err)))
		return
	}
	providers := stats.Providers
	if providers == nil {
		providers = []string{}
	}
	vectorIndexes, err := s.store.VectorIndexes(ctx)
	if err != nil {
		s.writeResponse(w, errorResponse(req.ID, mapError(err)))
		return
	}
	dims := make([]int, len(vectorIndexes))
	for i, idx := range vectorIndexes {
		dims[i] = idx.Dims
	}
	s.writeResponse(w, resultResponse(req.ID, map[string]any{
		"files":          stats.Files,
		"chunks":         stats.Chunks,
		"embeddings":     stats.Embeddings,
		"providers":      providers,
		"vector_indexes": dims,
	}))
}

func (s *Server) handleHealthCheck(ctx context.Context, req *Request, w io.Writer) {
	dbConnected := true
	if _, err := s.store.Stats(ctx); err != nil {
		dbConnected = false
	}

	var providers []string
	if s.orchestrator != nil && s.orchestrator.Capabilities().Name != "" {
		providers = []string{s.orchestrator.Capabilities().Name}
	} else {
		providers = []string{}
	}

	status := "ok"
	if !dbConnected {
		status = "degraded"
	}

	s.writeResponse(w, resultResponse(req.ID, map[string]any{
		"status":              status,
		"version":             version.Short(),
		"server_id":           s.id,
		"database_connected":  dbConnected,
		"embedding_providers": providers,
	}))
}

func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// regexHitObject builds the minimum result shape a hit requires:
// chunk_id, symbol, start_line, end_line, code, chunk_type, file_path,
// language. Returned as a map (not a struct) so search_semantic can add
// its extra similarity field without a parallel type.
func regexHitObject(c *domain.Chunk, filePath string) map[string]any {
	return map[string]any{
		"chunk_id":   c.ID,
		"symbol":     c.Symbol,
		"start_line": c.StartLine,
		"end_line":   c.EndLine,
		"code":       c.Code,
		"chunk_type": string(c.ChunkType),
		"file_path":  filePath,
		"language":   c.Language,
	}
}
