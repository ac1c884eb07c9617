package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chunkhound-go/chunkhound/internal/embedding"
	"github.com/chunkhound-go/chunkhound/internal/storage"
)

// maxLineBytes bounds a single incoming JSON-RPC request line, matching
// the NDJSON contract's "one compact JSON object per line" shape — a
// client that never terminates a line can't grow the scanner's buffer
// without bound.
const maxLineBytes = 8 << 20

// Server serves search_regex, search_semantic, get_stats, and
// health_check over a line-delimited JSON-RPC stream. One Server is bound
// to one database; the initialize handshake is mandatory before any tool
// call is accepted.
type Server struct {
	store        *storage.Store
	orchestrator *embedding.Orchestrator // nil when running with --no-embeddings
	logger       *slog.Logger
	id           string // random per-process identifier, surfaced by health_check

	mu          sync.Mutex // serializes writes to the output stream
	initialized bool
}

// NewServer wraps store and orchestrator (which may be nil) for MCP
// stdio service. logger defaults to slog.Default() if nil.
func NewServer(store *storage.Store, orchestrator *embedding.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, orchestrator: orchestrator, logger: logger, id: uuid.NewString()}
}

// Run reads newline-delimited JSON-RPC requests from r and writes
// responses to w until r is exhausted or ctx is canceled. Each request
// line is handled to completion before the next is read. The watch
// consumer, when running, calls into storage from its own goroutine at
// the same time.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Copy since scanner.Bytes() is reused on the next Scan.
		buf := make([]byte, len(line))
		copy(buf, line)
		s.handleLine(ctx, buf, w)
	}
	return scanner.Err()
}

func (s *Server) handleLine(ctx context.Context, line []byte, w io.Writer) {
	req, rerr := parseRequest(line)
	if rerr != nil {
		s.writeResponse(w, errorResponse(nil, rerr))
		return
	}

	if req.Method != "initialize" {
		s.mu.Lock()
		ready := s.initialized
		s.mu.Unlock()
		if !ready {
			s.writeResponse(w, errorResponse(req.ID, &RPCError{
				Code:    CodeInvalidRequest,
				Message: "server not initialized; call initialize first",
			}))
			return
		}
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(req, w)
	case "search_regex":
		s.handleSearchRegex(ctx, req, w)
	case "search_semantic":
		s.handleSearchSemantic(ctx, req, w)
	case "get_stats":
		s.handleGetStats(ctx, req, w)
	case "health_check":
		s.handleHealthCheck(ctx, req, w)
	default:
		s.writeResponse(w, errorResponse(req.ID, &RPCError{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + req.Method,
		}))
	}
}

// writeResponse marshals resp as one compact JSON line, serialized against
// concurrent streaming writes from other in-flight handlers.
func (s *Server) writeResponse(w io.Writer, resp Response) {
	s.writeLine(w, resp)
}

// writeLine marshals v as one compact NDJSON line.
func (s *Server) writeLine(w io.Writer, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("mcp: failed to marshal response", slog.Any("error", err))
		return
	}
	if _, err := w.Write(enc); err != nil {
		s.logger.Error("mcp: failed to write response", slog.Any("error", err))
		return
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		s.logger.Error("mcp: failed to write newline", slog.Any("error", err))
	}
}
