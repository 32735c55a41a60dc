package world

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ringworld/server/internal/clock"
	"github.com/ringworld/server/internal/ringmap"
)

// SQLiteStore persists chunks in an embedded SQLite database. It is the
// single-node deployment backend and the default test backend.
type SQLiteStore struct {
	db  *sql.DB
	clk clock.Clock
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	floor INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	version INTEGER NOT NULL,
	is_dirty INTEGER NOT NULL DEFAULT 0,
	seed INTEGER NOT NULL DEFAULT 0,
	last_modified INTEGER NOT NULL,
	UNIQUE (floor, chunk_index)
);
CREATE TABLE IF NOT EXISTS chunk_data (
	chunk_id INTEGER PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
	geometry BLOB,
	metadata BLOB
);
`

// OpenSQLiteStore opens (and if necessary creates) a SQLite-backed store.
// Use ":memory:" for a throwaway database.
func OpenSQLiteStore(path string, clk clock.Clock) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent CAS writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, clk: clk}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id ringmap.ChunkID) (*ChunkRecord, error) {
	var (
		version      int64
		isDirty      bool
		seed         int64
		lastModified int64
		geometry     []byte
		metadata     []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT c.version, c.is_dirty, c.seed, c.last_modified, d.geometry, d.metadata
		FROM chunks c
		LEFT JOIN chunk_data d ON d.chunk_id = c.id
		WHERE c.floor = ? AND c.chunk_index = ?
	`, id.Floor, id.Index).Scan(&version, &isDirty, &seed, &lastModified, &geometry, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk %s: %w", id, err)
	}

	return &ChunkRecord{
		ID:           id,
		Version:      uint64(version),
		IsDirty:      isDirty,
		Seed:         uint64(seed),
		Geometry:     geometry,
		Metadata:     metadata,
		LastModified: time.Unix(0, lastModified),
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, req PutRequest) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	now := s.clk.Now().UnixNano()
	newVersion := req.ExpectedVersion + 1

	var chunkID int64
	insert := func() error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO chunks (floor, chunk_index, version, is_dirty, seed, last_modified)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (floor, chunk_index) DO NOTHING
			RETURNING id
		`, req.ID.Floor, req.ID.Index, int64(newVersion), req.Dirty, int64(req.Seed), now).Scan(&chunkID)
	}

	if req.ExpectedVersion == 0 {
		err = insert()
	} else {
		err = tx.QueryRowContext(ctx, `
			UPDATE chunks
			SET version = ?, is_dirty = ?, seed = ?, last_modified = ?
			WHERE floor = ? AND chunk_index = ? AND version = ?
			RETURNING id
		`, int64(newVersion), req.Dirty, int64(req.Seed), now,
			req.ID.Floor, req.ID.Index, int64(req.ExpectedVersion)).Scan(&chunkID)
		if errors.Is(err, sql.ErrNoRows) && req.ExpectedVersion == 1 {
			// An absent row is the version-1 default projection, so an
			// edit at expected version 1 materializes the row.
			err = insert()
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		// Row already exists (first write) or version moved on (update)
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write chunk %s: %w", req.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chunk_data (chunk_id, geometry, metadata)
		VALUES (?, ?, ?)
		ON CONFLICT (chunk_id) DO UPDATE SET geometry = excluded.geometry, metadata = excluded.metadata
	`, chunkID, req.Geometry, req.Metadata); err != nil {
		return 0, fmt.Errorf("failed to write chunk data %s: %w", req.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunk %s: %w", req.ID, err)
	}
	return newVersion, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id ringmap.ChunkID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var chunkID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM chunks WHERE floor = ? AND chunk_index = ?
	`, id.Floor, id.Index).Scan(&chunkID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query chunk %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_data WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("failed to delete chunk data %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, chunkID); err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
