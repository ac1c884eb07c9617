// Package storage is the storage engine: schema management, the
// transaction-safe modification path, bulk insert fast path, semantic and
// regex search, and per-dimension HNSW vector indexes. Grounded on the
// internal/store package (sqlite_bm25.go's connection/recovery
// pattern, hnsw.go's vector index), generalized from a BM25+USearch pairing
// to a single SQL+per-dimension-HNSW engine.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/errs"
)

// BulkInsertThreshold is the batch size at or above which embedding inserts
// take the drop-index/bulk-load/rebuild-index fast path.
const BulkInsertThreshold = 50

// Store is the embedded storage engine: one SQLite database for files and
// chunks, plus one gob-persisted HNSW vector index per embedding dimension.
type Store struct {
	mu       sync.RWMutex
	db       *sql.DB
	dbPath   string
	indexDir string

	indexes map[int]*vectorIndex
}

// Open connects to the database at dbPath (creating it if absent), applies
// the core schema, and prepares indexDir for per-dimension vector index
// files. On a startup failure that isWALReplayFailure recognizes (a
// malformed disk image, a file that is not a database, a corrupt WAL),
// the -wal and -shm files are deleted and the open is retried exactly once
// as a startup recovery step; any other failure propagates.
func Open(dbPath, indexDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errs.Storage("create database directory", err)
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, errs.Storage("create index directory", err)
	}

	// Pre-flight integrity probe via the cgo sqlite3 driver, mirroring the
	// validateSQLiteIntegrity: catches corruption with a
	// throwaway read-only connection before the real connection (which
	// uses the pure-Go driver) ever opens the file for writing.
	if err := validateIntegrityCGO(dbPath); err != nil {
		slog.Warn("storage pre-open integrity probe failed, proceeding to recovery path",
			slog.String("path", dbPath), slog.String("error", err.Error()))
	}

	db, err := openWithRecovery(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(coreSchema); err != nil {
		db.Close()
		return nil, errs.Storage("apply core schema", err)
	}

	return &Store{
		db:       db,
		dbPath:   dbPath,
		indexDir: indexDir,
		indexes:  make(map[int]*vectorIndex),
	}, nil
}

func openWithRecovery(dbPath string) (*sql.DB, error) {
	db, err := tryOpen(dbPath)
	if err == nil {
		return db, nil
	}
	if !isWALReplayFailure(err) {
		return nil, errs.Storage("open database", err)
	}

	slog.Warn("storage wal replay failure, retrying after wal removal",
		slog.String("path", dbPath), slog.String("error", err.Error()))

	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")

	db, err = tryOpen(dbPath)
	if err != nil {
		return nil, errs.Storage("open database after wal recovery", err)
	}
	return db, nil
}

// validateIntegrityCGO opens dbPath read-only through the cgo sqlite3
// driver and runs PRAGMA integrity_check. A missing file is not an error
// (fresh start); any other failure is returned for the caller to log —
// the authoritative recovery path is openWithRecovery, this is only an
// early warning.
func validateIntegrityCGO(dbPath string) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for integrity probe: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity probe query: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity probe reported: %s", result)
	}
	return nil
}

func tryOpen(dbPath string) (*sql.DB, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, err
		}
	}

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		db.Close()
		return nil, err
	}
	if result != "ok" {
		db.Close()
		return nil, fmt.Errorf("integrity check failed: %s", result)
	}

	return db, nil
}

// isWALReplayFailure recognizes the SQLite startup failures singled out
// for a one-shot WAL-delete retry: messages reporting a malformed disk
// image, a file that is not a database, or a corrupt WAL.
func isWALReplayFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "disk image is malformed") ||
		strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "wal") && strings.Contains(msg, "corrupt")
}

// Close flushes every open vector index and closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for dims, idx := range s.indexes {
		if err := idx.save(s.indexPath(dims)); err != nil {
			slog.Warn("storage failed to flush vector index on close",
				slog.Int("dims", dims), slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}

// Quiesce flushes every open vector index and releases the database
// connection without discarding the Store's configuration, so a sibling
// process can open the same dbPath exclusively. Implements
// coordination.Handoff for ServerCoordinator's SIGUSR1 handling.
func (s *Store) Quiesce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for dims, idx := range s.indexes {
		if err := idx.save(s.indexPath(dims)); err != nil {
			slog.Warn("storage failed to flush vector index on quiesce",
				slog.Int("dims", dims), slog.String("error", err.Error()))
		}
	}
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Reopen restores the database connection after Quiesce, re-applying the
// core schema (a no-op against an existing schema) so the Store is ready
// to serve again. Implements coordination.Handoff for SIGUSR2.
func (s *Store) Reopen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	db, err := openWithRecovery(s.dbPath)
	if err != nil {
		return err
	}
	if _, err := db.Exec(coreSchema); err != nil {
		db.Close()
		return errs.Storage("apply core schema", err)
	}
	s.db = db
	return nil
}

func (s *Store) indexPath(dims int) string {
	return filepath.Join(s.indexDir, fmt.Sprintf("vectors_%d.hnsw", dims))
}

// indexFor returns the vector index for dims, loading it from disk or
// creating it (and provisioning its SQL-side table and catalog row) on
// first use. Caller must hold no lock; indexFor manages its own.
func (s *Store) indexFor(dims int) (*vectorIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[dims]; ok {
		return idx, nil
	}

	if err := ensureEmbeddingsTable(s.db, dims); err != nil {
		return nil, err
	}
	if err := s.upsertVectorIndexCatalogRow(dims); err != nil {
		return nil, err
	}

	idx, err := loadVectorIndex(s.indexPath(dims))
	if err != nil {
		return nil, errs.Storage(fmt.Sprintf("load vector index for dims=%d", dims), err)
	}
	if idx == nil {
		idx = newVectorIndex(defaultVectorIndexConfig(dims))
		// The SQL table may already hold rows from a prior process whose
		// gob sidecar was lost (e.g. deleted between runs); rebuild the
		// in-memory graph from persisted vectors so search isn't silently
		// empty.
		if err := s.rebuildVectorIndexFromTable(idx, dims); err != nil {
			return nil, err
		}
	}
	s.indexes[dims] = idx
	return idx, nil
}

// rebuildVectorIndexFromTable repopulates idx from the embeddings table's
// BLOB column. It runs when no gob sidecar was found on disk, and through
// rebuildVectorIndexLocked after a bulk embedding insert.
func (s *Store) rebuildVectorIndexFromTable(idx *vectorIndex, dims int) error {
	table := embeddingsTableName(dims)
	rows, err := s.db.Query(fmt.Sprintf("SELECT chunk_id, embedding FROM %s", table))
	if err != nil {
		return errs.Storage(fmt.Sprintf("query %s for index rebuild", table), err)
	}
	defer rows.Close()

	var ids []string
	var vectors [][]float32
	for rows.Next() {
		var chunkID string
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return errs.Storage("scan embedding row for index rebuild", err)
		}
		ids = append(ids, chunkID)
		vectors = append(vectors, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return errs.Storage("iterate embeddings for index rebuild", err)
	}
	if len(ids) == 0 {
		return nil
	}
	return idx.Add(ids, vectors)
}

func (s *Store) upsertVectorIndexCatalogRow(dims int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(`
		INSERT INTO vector_indexes (dims, metric, created_at, updated_at)
		VALUES (?, 'cosine', ?, ?)
		ON CONFLICT(dims) DO UPDATE SET updated_at = excluded.updated_at
	`, dims, now, now)
	if err != nil {
		return errs.Storage("upsert vector_indexes catalog row", err)
	}
	return nil
}

// InsertFile upserts a File row by path.
func (s *Store) InsertFile(ctx context.Context, f *domain.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, path, mtime, size_bytes, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime,
			size_bytes = excluded.size_bytes,
			language = excluded.language,
			updated_at = excluded.updated_at
	`, f.ID, f.Path, f.MTime, f.SizeBytes, f.Language,
		f.CreatedAt.UTC().Format(time.RFC3339Nano), f.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errs.Storage("insert file", err)
	}
	return nil
}

// GetFileByPath returns the File row for path, or nil if none exists.
func (s *Store) GetFileByPath(ctx context.Context, path string) (*domain.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, mtime, size_bytes, language, created_at, updated_at
		FROM files WHERE path = ?
	`, path)

	var f domain.File
	var createdAt, updatedAt string
	if err := row.Scan(&f.ID, &f.Path, &f.MTime, &f.SizeBytes, &f.Language, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Storage("get file by path", err)
	}
	f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	f.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &f, nil
}
