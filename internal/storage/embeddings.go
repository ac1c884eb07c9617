package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/errs"
)

// InsertEmbeddingsOptions controls the bulk-insert fast path.
type InsertEmbeddingsOptions struct {
	// SemanticReindex forces the bulk (drop/rebuild index) path regardless
	// of batch size.
	SemanticReindex bool
}

// InsertEmbeddings writes a batch of embeddings for a single (provider,
// model, dims) combination. Batches at or above BulkInsertThreshold, or any
// batch flagged SemanticReindex, take the drop-index/bulk-load/rebuild-index
// fast path; smaller batches go through a single INSERT OR REPLACE without
// touching indexes.
func (s *Store) InsertEmbeddings(ctx context.Context, embeddings []*domain.Embedding, opts InsertEmbeddingsOptions) error {
	if len(embeddings) == 0 {
		return nil
	}

	dims := embeddings[0].Dims
	for _, e := range embeddings {
		if e.Dims != dims {
			return errs.Validation(fmt.Sprintf("embedding batch mixes dims %d and %d", dims, e.Dims), nil)
		}
	}

	if _, err := s.indexFor(dims); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bulk := opts.SemanticReindex || len(embeddings) >= BulkInsertThreshold
	if bulk {
		if err := s.bulkInsertEmbeddingsLocked(ctx, embeddings, dims); err != nil {
			return err
		}
		// The SQL side just amortized its plain lookup indexes by dropping
		// and recreating them around the whole batch. Give the in-memory
		// HNSW graph — the structure that actually answers semantic search —
		// the same treatment: rebuild it wholesale from the table in one
		// pass rather than feeding it one incremental Add per embedding,
		// which is what the small path below does and is also what this
		// path's per-node updates would otherwise carry forward as orphaned
		// lazy-deleted nodes across the batch.
		return s.rebuildVectorIndexLocked(dims)
	}

	if err := s.smallInsertEmbeddingsLocked(ctx, embeddings, dims); err != nil {
		return err
	}

	idx := s.indexes[dims]
	ids := make([]string, len(embeddings))
	vectors := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		ids[i] = e.ChunkID
		vectors[i] = e.Vector
	}
	return idx.Add(ids, vectors)
}

// rebuildVectorIndexLocked discards the in-memory HNSW graph for dims and
// rebuilds it wholesale from the embeddings table's current rows. This is
// the in-memory counterpart of the SQL side's drop/recreate dance: the
// vector_indexes catalog row for dims is untouched (same dims, same
// provider/metric), so the set of provisioned indexes before and after a
// bulk insert is unchanged, but the graph itself is rebuilt fresh instead
// of accumulating incremental updates. Caller must hold s.mu.
func (s *Store) rebuildVectorIndexLocked(dims int) error {
	fresh := newVectorIndex(defaultVectorIndexConfig(dims))
	if err := s.rebuildVectorIndexFromTable(fresh, dims); err != nil {
		return err
	}
	s.indexes[dims] = fresh
	return nil
}

// bulkInsertEmbeddingsLocked implements the four-step SQL fast path: drop
// the table's plain chunk_id/provider_model lookup indexes, split the batch
// into insert/update sets, emit one multi-row INSERT and one multi-row
// INSERT OR REPLACE, then recreate the indexes — all inside one
// transaction. These indexes are ordinary B-tree lookups used by
// existingEmbeddingKeysTx and point lookups elsewhere; they have no
// relationship to the HNSW graph, which the caller rebuilds separately via
// rebuildVectorIndexLocked once this transaction commits.
func (s *Store) bulkInsertEmbeddingsLocked(ctx context.Context, embeddings []*domain.Embedding, dims int) (err error) {
	table := embeddingsTableName(dims)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin bulk embedding transaction", err)
	}

	indexesDropped := true
	defer func() {
		if err != nil && indexesDropped {
			_ = tx.Rollback()
			// The rollback also undoes the DROP INDEX, since SQLite DDL is
			// transactional; this recreation is a best-effort second step.
			if recreateErr := s.recreateEmbeddingIndexes(table); recreateErr != nil {
				_ = recreateErr // best-effort; original err still reported
			}
		}
	}()

	if err = dropEmbeddingIndexesTx(ctx, tx, table); err != nil {
		return err
	}

	existing, err := existingEmbeddingKeysTx(ctx, tx, table, embeddings)
	if err != nil {
		return err
	}

	var inserts, updates []*domain.Embedding
	for _, e := range embeddings {
		if existing[embeddingKey(e)] {
			updates = append(updates, e)
		} else {
			inserts = append(inserts, e)
		}
	}

	if err = multiRowInsertTx(ctx, tx, table, inserts, false); err != nil {
		return err
	}
	if err = multiRowInsertTx(ctx, tx, table, updates, true); err != nil {
		return err
	}

	if err = recreateEmbeddingIndexesTx(ctx, tx, table); err != nil {
		return err
	}
	indexesDropped = false

	if err = tx.Commit(); err != nil {
		return errs.Storage("commit bulk embedding transaction", err)
	}
	return nil
}

func embeddingKey(e *domain.Embedding) string {
	return e.ChunkID + "\x00" + e.Provider + "\x00" + e.Model
}

func existingEmbeddingKeysTx(ctx context.Context, tx *sql.Tx, table string, embeddings []*domain.Embedding) (map[string]bool, error) {
	chunkIDs := make([]string, len(embeddings))
	for i, e := range embeddings {
		chunkIDs[i] = e.ChunkID
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("SELECT chunk_id, provider, model FROM %s WHERE chunk_id IN (%s)", table, strings.Join(placeholders, ","))
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage("query existing embeddings", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var chunkID, provider, model string
		if err := rows.Scan(&chunkID, &provider, &model); err != nil {
			return nil, errs.Storage("scan existing embedding key", err)
		}
		existing[chunkID+"\x00"+provider+"\x00"+model] = true
	}
	return existing, rows.Err()
}

func multiRowInsertTx(ctx context.Context, tx *sql.Tx, table string, embeddings []*domain.Embedding, replace bool) error {
	if len(embeddings) == 0 {
		return nil
	}
	verb := "INSERT"
	if replace {
		verb = "INSERT OR REPLACE"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s INTO %s (id, chunk_id, provider, model, embedding, dims, created_at) VALUES ", verb, table)
	args := make([]any, 0, len(embeddings)*7)
	for i, e := range embeddings {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?,?,?,?)")
		args = append(args, embeddingRowID(e), e.ChunkID, e.Provider, e.Model,
			encodeVector(e.Vector), e.Dims, e.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return errs.Storage(fmt.Sprintf("%s into %s", verb, table), err)
	}
	return nil
}

func embeddingRowID(e *domain.Embedding) string {
	return e.ChunkID + ":" + e.Provider + ":" + e.Model
}

// smallInsertEmbeddingsLocked is the below-threshold path: a single bulk
// INSERT OR REPLACE with no index manipulation.
func (s *Store) smallInsertEmbeddingsLocked(ctx context.Context, embeddings []*domain.Embedding, dims int) error {
	table := embeddingsTableName(dims)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin small embedding insert transaction", err)
	}
	defer tx.Rollback()

	if err := multiRowInsertTx(ctx, tx, table, embeddings, true); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Storage("commit small embedding insert transaction", err)
	}
	return nil
}

func dropEmbeddingIndexesTx(ctx context.Context, tx *sql.Tx, table string) error {
	for _, idxName := range embeddingIndexNames(table) {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s", idxName)); err != nil {
			return errs.Storage(fmt.Sprintf("drop index %s", idxName), err)
		}
	}
	return nil
}

func recreateEmbeddingIndexesTx(ctx context.Context, tx *sql.Tx, table string) error {
	stmts := embeddingIndexDefinitions(table)
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errs.Storage("recreate embedding index", err)
		}
	}
	return nil
}

// recreateEmbeddingIndexes is the best-effort out-of-transaction recreation
// attempt used when a bulk insert rolls back after having dropped indexes.
func (s *Store) recreateEmbeddingIndexes(table string) error {
	for _, stmt := range embeddingIndexDefinitions(table) {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func embeddingIndexNames(table string) []string {
	return []string{"idx_" + table + "_chunk_id", "idx_" + table + "_provider_model"}
}

func embeddingIndexDefinitions(table string) []string {
	names := embeddingIndexNames(table)
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(chunk_id)", names[0], table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(provider, model)", names[1], table),
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		bits := math.Float32bits(x)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}
