// Package httpapi implements the HTTP surface: GET /health, POST/GET
// /search/regex, POST/GET /search/semantic, GET /stats. Grounded on
// fbrzx-airplane-chat/internal/server/server.go's chi-based HTTP layer.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chunkhound-go/chunkhound/internal/embedding"
	"github.com/chunkhound-go/chunkhound/internal/storage"
)

// Server wires HTTP handlers to the storage engine and (optionally) the
// embedding orchestrator.
type Server struct {
	router       chi.Router
	store        *storage.Store
	orchestrator *embedding.Orchestrator
	logger       *slog.Logger
}

// New constructs a Server. orchestrator may be nil (--no-embeddings or no
// provider configured), in which case /search/semantic answers 503 to
// every request that passes query and threshold validation.
func New(store *storage.Store, orchestrator *embedding.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{store: store, orchestrator: orchestrator, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/search/regex", s.handleSearchRegex)
	r.Post("/search/regex", s.handleSearchRegex)
	r.Get("/search/semantic", s.handleSearchSemantic)
	r.Post("/search/semantic", s.handleSearchSemantic)

	s.router = r
	return s
}

// ServeHTTP exposes the router so Server satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger adapts middleware.Logger's contract to internal/logging's
// slog.Logger instead of chi's own stdlib-log default.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
