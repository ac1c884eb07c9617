package storage

import (
	"context"
	"time"

	"github.com/chunkhound-go/chunkhound/internal/errs"
)

// Stats aggregates counts across the entity tables and every provisioned
// per-dimension embeddings table.
type Stats struct {
	Files      int
	Chunks     int
	Embeddings int
	Providers  []string
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&stats.Files); err != nil {
		return nil, errs.Storage("count files", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.Chunks); err != nil {
		return nil, errs.Storage("count chunks", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT dims FROM vector_indexes`)
	if err != nil {
		return nil, errs.Storage("query vector_indexes catalog", err)
	}
	var dimsList []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return nil, errs.Storage("scan vector_indexes row", err)
		}
		dimsList = append(dimsList, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("iterate vector_indexes catalog", err)
	}

	providerSet := make(map[string]struct{})
	for _, dims := range dimsList {
		table := embeddingsTableName(dims)

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, errs.Storage("count embeddings in "+table, err)
		}
		stats.Embeddings += count

		provRows, err := s.db.QueryContext(ctx, "SELECT DISTINCT provider FROM "+table)
		if err != nil {
			return nil, errs.Storage("query providers from "+table, err)
		}
		for provRows.Next() {
			var p string
			if err := provRows.Scan(&p); err != nil {
				provRows.Close()
				return nil, errs.Storage("scan provider", err)
			}
			providerSet[p] = struct{}{}
		}
		provRows.Close()
	}

	for p := range providerSet {
		stats.Providers = append(stats.Providers, p)
	}
	return &stats, nil
}

// VectorIndexInfo is one row of the vector_indexes catalog: one provisioned
// per-dimension HNSW graph.
type VectorIndexInfo struct {
	Dims      int
	Metric    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VectorIndexes returns the current catalog of provisioned per-dimension
// vector indexes, ordered by dims. Used by get_stats reporting and by
// tests asserting that a bulk embedding insert leaves the catalog's row
// set unchanged (the final set of indexes equals the set present before).
func (s *Store) VectorIndexes(ctx context.Context) ([]VectorIndexInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT dims, metric, created_at, updated_at FROM vector_indexes ORDER BY dims`)
	if err != nil {
		return nil, errs.Storage("query vector_indexes catalog", err)
	}
	defer rows.Close()

	var out []VectorIndexInfo
	for rows.Next() {
		var info VectorIndexInfo
		var createdAt, updatedAt string
		if err := rows.Scan(&info.Dims, &info.Metric, &createdAt, &updatedAt); err != nil {
			return nil, errs.Storage("scan vector_indexes row", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}
