package storage

import (
	"database/sql"
	"fmt"
)

const coreSchema = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	mtime REAL NOT NULL,
	size_bytes INTEGER NOT NULL,
	language TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	symbol TEXT NOT NULL,
	chunk_type TEXT NOT NULL,
	language TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	start_byte INTEGER,
	end_byte INTEGER,
	code TEXT NOT NULL,
	parent_header TEXT
);
CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);

-- vector_indexes is the catalog of provisioned per-dimension embedding
-- tables; a row's presence IS the corresponding in-memory HNSW graph's
-- existence (see storage.vectorIndex and Store.rebuildVectorIndexLocked),
-- so comparing the row set before and after a bulk operation is a literal
-- equality check: the final set of indexes must equal the set present
-- before. Not to be confused with the plain idx_<table>_chunk_id /
-- idx_<table>_provider_model B-tree indexes on each embeddings_<dims>
-- table, which are ordinary SQL lookup indexes unrelated to ANN search.
CREATE TABLE IF NOT EXISTS vector_indexes (
	dims INTEGER PRIMARY KEY,
	metric TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

func embeddingsTableName(dims int) string {
	return fmt.Sprintf("embeddings_%d", dims)
}

// ensureEmbeddingsTable creates the per-dimension embeddings table and its
// supporting indices on first insert of a vector of that width, so
// embeddings are partitioned by dimension.
func ensureEmbeddingsTable(db *sql.DB, dims int) error {
	table := embeddingsTableName(dims)
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	embedding BLOB NOT NULL,
	dims INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(chunk_id, provider, model)
);
CREATE INDEX IF NOT EXISTS idx_%s_chunk_id ON %s(chunk_id);
CREATE INDEX IF NOT EXISTS idx_%s_provider_model ON %s(provider, model);
`, table, table, table, table, table)

	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("storage: create %s: %w", table, err)
	}
	return nil
}
