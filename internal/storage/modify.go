package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/chunkhound-go/chunkhound/internal/domain"
	"github.com/chunkhound-go/chunkhound/internal/errs"
)

// ReplaceFileChunks implements the indexing coordinator's transaction-safe
// modification path: the caller already knows file is a modification (a
// File row exists with a different mtime). newChunks
// replace file's entire existing chunk set atomically, such that a reader
// never observes a mix of old and new chunks.
//
// Steps: copy existing chunks (and their embeddings, from every provisioned
// per-dimension table) into uniquely named backup tables, committed outside
// the modification transaction so they survive a later rollback of it —
// SQLite's DDL is transactional, so creating the backups inside the same
// transaction that might get rolled back would undo their own creation
// along with everything else; begin the modification transaction; update
// the File row; delete existing chunks (cascading embeddings); insert new
// chunks; commit and drop the backup tables. On any failure after the
// backups are taken, rollback and restore from them, then drop them.
func (s *Store) ReplaceFileChunks(ctx context.Context, file *domain.File, newChunks []*domain.Chunk) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	suffix, err := randomSuffix()
	if err != nil {
		return errs.Storage("generate backup table suffix", err)
	}
	chunksBackup := "chunks_backup_" + suffix

	dimsList, err := provisionedDims(ctx, s.db)
	if err != nil {
		return err
	}
	chunkIDs, err := s.chunkIDsForFileLocked(ctx, s.db, file.ID)
	if err != nil {
		return err
	}

	if err = backupChunks(ctx, s.db, file.ID, chunksBackup); err != nil {
		return err
	}
	embeddingBackups := make(map[int]string)
	for _, dims := range dimsList {
		backupName := fmt.Sprintf("embeddings_%d_backup_%s", dims, suffix)
		if err = backupEmbeddings(ctx, s.db, embeddingsTableName(dims), backupName, chunkIDs); err != nil {
			s.dropBackupTables(ctx, chunksBackup, embeddingBackups)
			return err
		}
		embeddingBackups[dims] = backupName
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.dropBackupTables(ctx, chunksBackup, embeddingBackups)
		return errs.Storage("begin modification transaction", err)
	}

	restoreNeeded := true
	defer func() {
		if restoreNeeded {
			_ = tx.Rollback()
			if restoreErr := s.restoreFromBackups(ctx, chunksBackup, embeddingBackups); restoreErr != nil {
				err = errs.Storage("restore from backup after failed modification", restoreErr)
				return
			}
		}
		s.dropBackupTables(ctx, chunksBackup, embeddingBackups)
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err = tx.ExecContext(ctx, `UPDATE files SET mtime = ?, size_bytes = ?, updated_at = ? WHERE id = ?`,
		file.MTime, file.SizeBytes, now, file.ID); err != nil {
		err = errs.Storage("update file row", err)
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, file.ID); err != nil {
		err = errs.Storage("delete existing chunks", err)
		return err
	}

	if err = insertChunksTx(ctx, tx, newChunks); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		err = errs.Storage("commit modification transaction", err)
		return err
	}
	restoreNeeded = false
	return nil
}

// execer abstracts over *sql.DB and *sql.Tx for the backup-table DDL, which
// must run outside the modification transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func backupChunks(ctx context.Context, db execer, fileID, backupTable string) error {
	stmt := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM chunks WHERE file_id = ?`, backupTable)
	if _, err := db.ExecContext(ctx, stmt, fileID); err != nil {
		return errs.Storage("backup chunks before modification", err)
	}
	return nil
}

func backupEmbeddings(ctx context.Context, db execer, sourceTable, backupTable string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		stmt := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s WHERE 0`, backupTable, sourceTable)
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return errs.Storage("create empty embeddings backup", err)
		}
		return nil
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	stmt := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s WHERE chunk_id IN (%s)`,
		backupTable, sourceTable, joinPlaceholders(placeholders))
	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return errs.Storage(fmt.Sprintf("backup embeddings from %s", sourceTable), err)
	}
	return nil
}

func joinPlaceholders(p []string) string {
	out := ""
	for i, s := range p {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// restoreFromBackups re-inserts chunks and embeddings from their backup
// tables after a failed modification. An error here means the restore
// itself failed: the caller should treat the database as known-bad and
// refuse to keep serving.
func (s *Store) restoreFromBackups(ctx context.Context, chunksBackup string, embeddingBackups map[int]string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type='table' AND name = ?)`, chunksBackup,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return nil
	}

	restoreTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer restoreTx.Rollback()

	if _, err := restoreTx.ExecContext(ctx, fmt.Sprintf(`INSERT OR REPLACE INTO chunks SELECT * FROM %s`, chunksBackup)); err != nil {
		return err
	}
	for dims, backup := range embeddingBackups {
		table := embeddingsTableName(dims)
		if _, err := restoreTx.ExecContext(ctx, fmt.Sprintf(`INSERT OR REPLACE INTO %s SELECT * FROM %s`, table, backup)); err != nil {
			return err
		}
	}
	return restoreTx.Commit()
}

func (s *Store) dropBackupTables(ctx context.Context, chunksBackup string, embeddingBackups map[int]string) {
	_, _ = s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, chunksBackup))
	for _, backup := range embeddingBackups {
		_, _ = s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, backup))
	}
}

func randomSuffix() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
