package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/errs"
	"github.com/chunkhound-go/chunkhound/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbConnected := true
	if _, err := s.store.Stats(r.Context()); err != nil {
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

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              status,
		"database_connected":  dbConnected,
		"embedding_providers": providers,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeStorageError(w, err)
		return
	}
	providers := stats.Providers
	if providers == nil {
		providers = []string{}
	}
	vectorIndexes, err := s.store.VectorIndexes(r.Context())
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files":          stats.Files,
		"chunks":         stats.Chunks,
		"embeddings":     stats.Embeddings,
		"providers":      providers,
		"vector_indexes": vectorIndexDims(vectorIndexes),
	})
}

func vectorIndexDims(indexes []storage.VectorIndexInfo) []int {
	dims := make([]int, len(indexes))
	for i, idx := range indexes {
		dims[i] = idx.Dims
	}
	return dims
}

type regexSearchRequest struct {
	Pattern string `json:"pattern"`
	Limit   int    `json:"limit"`
	Path    string `json:"path"`
}

func (s *Server) handleSearchRegex(w http.ResponseWriter, r *http.Request) {
	var req regexSearchRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.Pattern = q.Get("pattern")
		req.Limit, _ = strconv.Atoi(q.Get("limit"))
		req.Path = q.Get("path")
	} else if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid request body: "+err.Error())
		return
	}

	if req.Pattern == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "pattern is required")
		return
	}
	limit := clampLimit(req.Limit, 10, 1, 100)

	if err := storage.ValidatePathFilter(req.Path); err != nil {
		writeValidationError(w, err)
		return
	}

	hits, err := s.store.RegexSearch(r.Context(), req.Pattern, limit, req.Path)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	nd := newNDJSONWriter(w)
	for _, h := range hits {
		if werr := nd.WriteObject(hitObject(h.Chunk, h.FilePath)); werr != nil {
			s.logger.Error("httpapi: failed writing NDJSON line", "error", werr)
			return
		}
	}
}

type semanticSearchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	Threshold *float64 `json:"threshold"`
}

func (s *Server) handleSearchSemantic(w http.ResponseWriter, r *http.Request) {
	var req semanticSearchRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.Limit, _ = strconv.Atoi(q.Get("limit"))
		req.Provider = q.Get("provider")
		req.Model = q.Get("model")
		if t := q.Get("threshold"); t != "" {
			if v, err := strconv.ParseFloat(t, 64); err == nil {
				req.Threshold = &v
			}
		}
	} else if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "query is required")
		return
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 2) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "threshold must be within [0, 2]")
		return
	}
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "no_embedding_provider", "no embedding provider is configured for semantic search")
		return
	}

	caps := s.orchestrator.Capabilities()
	if req.Provider != "" && req.Provider != caps.Name {
		writeError(w, http.StatusUnprocessableEntity, "validation_error",
			"configured provider is '"+caps.Name+"', not '"+req.Provider+"'")
		return
	}
	if req.Model != "" && req.Model != caps.Model {
		writeError(w, http.StatusUnprocessableEntity, "validation_error",
			"configured model is '"+caps.Model+"', not '"+req.Model+"'")
		return
	}

	limit := clampLimit(req.Limit, 10, 1, 100)

	results, err := s.orchestrator.Embed(r.Context(), []string{req.Query})
	if err != nil {
		writeEmbeddingError(w, err)
		return
	}
	if len(results) == 0 {
		writeError(w, http.StatusInternalServerError, "internal_error", "query text produced no embedding")
		return
	}

	var threshold *float32
	if req.Threshold != nil {
		t := float32(*req.Threshold)
		threshold = &t
	}

	hits, err := s.store.SemanticSearch(r.Context(), results[0].Vector, caps.Name, caps.Model, limit, threshold)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	nd := newNDJSONWriter(w)
	for _, h := range hits {
		obj := hitObject(h.Chunk, h.FilePath)
		obj["similarity"] = h.Similarity
		if werr := nd.WriteObject(obj); werr != nil {
			s.logger.Error("httpapi: failed writing NDJSON line", "error", werr)
			return
		}
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
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

// hitObject builds the minimum result shape a hit requires for both
// transports: chunk_id, symbol, start_line, end_line, code, chunk_type,
// file_path, language.
func hitObject(c *domain.Chunk, filePath string) map[string]any {
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

// writeValidationError, writeStorageError, writeEmbeddingError map
// internal *errs.Error kinds to HTTP status codes: 422 for validation,
// 500 for internal/storage, 503 only for the no-provider-configured case
// handled directly above.
func writeValidationError(w http.ResponseWriter, err error) {
	var e *errs.Error
	if errors.As(err, &e) {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", e.Message)
		return
	}
	writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
}

func writeStorageError(w http.ResponseWriter, err error) {
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.KindValidation {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", e.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func writeEmbeddingError(w http.ResponseWriter, err error) {
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.KindValidation {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", e.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "embedding provider call failed")
}
