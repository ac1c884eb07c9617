package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/errs"
)

// insertChunksTx inserts a batch of chunks in a single multi-row statement
// inside tx. InsertChunks calls it in a transaction of its own, and the
// modification path calls it inside the caller's transaction.
func insertChunksTx(ctx context.Context, tx *sql.Tx, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO chunks (id, file_id, symbol, chunk_type, language, start_line, end_line, start_byte, end_byte, code, parent_header) VALUES ")
	args := make([]any, 0, len(chunks)*11)
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args, c.ID, c.FileID, c.Symbol, string(c.ChunkType), c.Language,
			c.StartLine, c.EndLine, c.StartByte, c.EndByte, c.Code, c.ParentHeader)
	}

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return errs.Storage("insert chunks", err)
	}
	return nil
}

// InsertChunks is the first-insert path's chunk write: no prior File content
// exists, so it runs as its own transaction rather than the caller's.
func (s *Store) InsertChunks(ctx context.Context, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin insert chunks transaction", err)
	}
	defer tx.Rollback()

	if err := insertChunksTx(ctx, tx, chunks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Storage("commit insert chunks transaction", err)
	}
	return nil
}

// GetChunksByFile returns all chunks belonging to fileID, ordered by
// start_line.
func (s *Store) GetChunksByFile(ctx context.Context, fileID string) ([]*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getChunksByFileLocked(ctx, s.db, fileID)
}

func (s *Store) getChunksByFileLocked(ctx context.Context, q querier, fileID string) ([]*domain.Chunk, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, file_id, symbol, chunk_type, language, start_line, end_line, start_byte, end_byte, code, parent_header
		FROM chunks WHERE file_id = ? ORDER BY start_line
	`, fileID)
	if err != nil {
		return nil, errs.Storage("query chunks by file", err)
	}
	defer rows.Close()

	var out []*domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// querier abstracts over *sql.DB and *sql.Tx for read helpers reused in and
// outside transactions.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanChunk(rows *sql.Rows) (*domain.Chunk, error) {
	var c domain.Chunk
	var chunkType string
	if err := rows.Scan(&c.ID, &c.FileID, &c.Symbol, &chunkType, &c.Language,
		&c.StartLine, &c.EndLine, &c.StartByte, &c.EndByte, &c.Code, &c.ParentHeader); err != nil {
		return nil, errs.Storage("scan chunk row", err)
	}
	c.ChunkType = domain.ChunkType(chunkType)
	return &c, nil
}

// DeleteChunksByFile deletes all chunks (and cascaded embeddings) for
// fileID.
func (s *Store) DeleteChunksByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return errs.Storage("delete chunks by file", err)
	}
	return nil
}

// DeleteFileCompletely removes a file's embeddings (from every provisioned
// per-dimension table), its chunks, and its File row, in that order, inside
// a single transaction.
func (s *Store) DeleteFileCompletely(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin delete-file transaction", err)
	}
	defer tx.Rollback()

	chunkIDs, err := s.chunkIDsForFileLocked(ctx, tx, fileID)
	if err != nil {
		return err
	}

	dimsList, err := provisionedDims(ctx, tx)
	if err != nil {
		return err
	}
	for _, dims := range dimsList {
		table := embeddingsTableName(dims)
		if err := deleteEmbeddingsByChunkIDs(ctx, tx, table, chunkIDs); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return errs.Storage("delete chunks for file", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return errs.Storage("delete file row", err)
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage("commit delete-file transaction", err)
	}

	for _, dims := range dimsList {
		if idx, ok := s.indexes[dims]; ok {
			idx.Delete(chunkIDs)
		}
	}
	return nil
}

func (s *Store) chunkIDsForFileLocked(ctx context.Context, q querier, fileID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, errs.Storage("query chunk ids for file", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Storage("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func deleteEmbeddingsByChunkIDs(ctx context.Context, tx *sql.Tx, table string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE chunk_id IN (%s)", table, strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errs.Storage(fmt.Sprintf("delete embeddings from %s", table), err)
	}
	return nil
}

func provisionedDims(ctx context.Context, q querier) ([]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT dims FROM vector_indexes`)
	if err != nil {
		return nil, errs.Storage("query vector_indexes catalog", err)
	}
	defer rows.Close()

	var dims []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, errs.Storage("scan vector_indexes row", err)
		}
		dims = append(dims, d)
	}
	return dims, rows.Err()
}
