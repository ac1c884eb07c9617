package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/errs"
)

// SemanticHit is one result of a semantic search, joined with its owning
// chunk and file.
type SemanticHit struct {
	Chunk      *domain.Chunk
	FilePath   string
	Similarity float32
}

// SemanticSearch resolves the embeddings_<dims(query)> table; if it doesn't
// exist (no embeddings of that width have ever been provisioned), returns
// an empty result rather than an error. Results are ranked by cosine
// similarity DESC, threshold-filtered if given, limited, and tie-broken by
// chunk id ASC.
func (s *Store) SemanticSearch(ctx context.Context, query []float32, provider, model string, limit int, threshold *float32) ([]SemanticHit, error) {
	dims := len(query)

	s.mu.RLock()
	idx, provisioned := s.indexes[dims]
	s.mu.RUnlock()

	if !provisioned {
		// Table may exist from a previous process without yet being loaded
		// into memory; check the catalog before declaring it truly absent.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM vector_indexes WHERE dims = ?)`, dims,
		).Scan(&exists); err != nil {
			return nil, errs.Storage("check vector_indexes catalog", err)
		}
		if !exists {
			return nil, nil
		}
		var err error
		idx, err = s.indexFor(dims)
		if err != nil {
			return nil, err
		}
	}

	k := limit
	if threshold != nil {
		// Over-fetch since the HNSW index has no native threshold filter;
		// the exact filter is applied after scoring below.
		k = limit * 4
		if k < limit {
			k = limit
		}
	}

	hits, err := idx.Search(query, k)
	if err != nil {
		return nil, errs.Storage("vector index search", err)
	}

	filtered := hits[:0:0]
	for _, h := range hits {
		if threshold != nil && h.Score < *threshold {
			continue
		}
		filtered = append(filtered, h)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].ID < filtered[j].ID
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	out := make([]SemanticHit, 0, len(filtered))
	for _, h := range filtered {
		chunk, filePath, err := s.chunkWithFilePath(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}
		out = append(out, SemanticHit{Chunk: chunk, FilePath: filePath, Similarity: h.Score})
	}
	return out, nil
}

func (s *Store) chunkWithFilePath(ctx context.Context, chunkID string) (*domain.Chunk, string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.file_id, c.symbol, c.chunk_type, c.language, c.start_line, c.end_line,
		       c.start_byte, c.end_byte, c.code, c.parent_header, f.path
		FROM chunks c JOIN files f ON f.id = c.file_id
		WHERE c.id = ?
	`, chunkID)

	var c domain.Chunk
	var chunkType, filePath string
	if err := row.Scan(&c.ID, &c.FileID, &c.Symbol, &chunkType, &c.Language, &c.StartLine, &c.EndLine,
		&c.StartByte, &c.EndByte, &c.Code, &c.ParentHeader, &filePath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", errs.Storage("fetch chunk with file path", err)
	}
	c.ChunkType = domain.ChunkType(chunkType)
	return &c, filePath, nil
}

// RegexHit is one result of a regex search.
type RegexHit struct {
	Chunk    *domain.Chunk
	FilePath string
}

// ValidatePathFilter rejects path filters that could escape the project
// root: "..", "~", or an absolute path. Callers must invoke this before
// any database access.
func ValidatePathFilter(pathFilter string) error {
	if pathFilter == "" {
		return nil
	}
	if strings.Contains(pathFilter, "..") {
		return errs.Validation("path filter must not contain '..'", nil)
	}
	if strings.Contains(pathFilter, "~") {
		return errs.Validation("path filter must not contain '~'", nil)
	}
	if strings.HasPrefix(pathFilter, "/") {
		return errs.Validation("path filter must not be an absolute path", nil)
	}
	return nil
}

// RegexSearch compiles pattern and streams matching chunks ordered by
// (file_path, start_line) ASC. pathFilter, if non-empty, restricts results
// to paths containing it as a substring; it must already have passed
// ValidatePathFilter.
func (s *Store) RegexSearch(ctx context.Context, pattern string, limit int, pathFilter string) ([]RegexHit, error) {
	if err := ValidatePathFilter(pathFilter); err != nil {
		return nil, err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errs.Validation(fmt.Sprintf("invalid regex pattern: %v", err), err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT c.id, c.file_id, c.symbol, c.chunk_type, c.language, c.start_line, c.end_line,
		       c.start_byte, c.end_byte, c.code, c.parent_header, f.path
		FROM chunks c JOIN files f ON f.id = c.file_id
	`
	args := []any{}
	if pathFilter != "" {
		query += " WHERE f.path LIKE ?"
		args = append(args, "%"+pathFilter+"%")
	}
	query += " ORDER BY f.path ASC, c.start_line ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage("query chunks for regex search", err)
	}
	defer rows.Close()

	var out []RegexHit
	for rows.Next() {
		var c domain.Chunk
		var chunkType, filePath string
		if err := rows.Scan(&c.ID, &c.FileID, &c.Symbol, &chunkType, &c.Language, &c.StartLine, &c.EndLine,
			&c.StartByte, &c.EndByte, &c.Code, &c.ParentHeader, &filePath); err != nil {
			return nil, errs.Storage("scan regex search row", err)
		}
		c.ChunkType = domain.ChunkType(chunkType)

		if !re.MatchString(c.Code) {
			continue
		}
		out = append(out, RegexHit{Chunk: &c, FilePath: filePath})
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}
