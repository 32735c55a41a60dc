package world

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ringworld/server/internal/clock"
	"github.com/ringworld/server/internal/ringmap"
)

// PostgresStore persists chunks in PostgreSQL. It is the multi-node
// deployment backend.
type PostgresStore struct {
	db  *sql.DB
	clk clock.Clock
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id BIGSERIAL PRIMARY KEY,
	floor INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	version BIGINT NOT NULL,
	is_dirty BOOLEAN NOT NULL DEFAULT FALSE,
	seed BIGINT NOT NULL DEFAULT 0,
	last_modified TIMESTAMPTZ NOT NULL,
	UNIQUE (floor, chunk_index)
);
CREATE TABLE IF NOT EXISTS chunk_data (
	chunk_id BIGINT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
	geometry BYTEA,
	metadata BYTEA
);
CREATE INDEX IF NOT EXISTS idx_chunks_floor_index ON chunks (floor, chunk_index);
`

// OpenPostgresStore connects to PostgreSQL with the given DSN and ensures
// the chunk schema exists.
func OpenPostgresStore(dsn string, clk clock.Clock) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStore{db: db, clk: clk}, nil
}

func (s *PostgresStore) Get(ctx context.Context, id ringmap.ChunkID) (*ChunkRecord, error) {
	var (
		version      int64
		isDirty      bool
		seed         int64
		lastModified time.Time
		geometry     []byte
		metadata     []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT c.version, c.is_dirty, c.seed, c.last_modified, d.geometry, d.metadata
		FROM chunks c
		LEFT JOIN chunk_data d ON d.chunk_id = c.id
		WHERE c.floor = $1 AND c.chunk_index = $2
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
		LastModified: lastModified,
	}, nil
}

func (s *PostgresStore) Put(ctx context.Context, req PutRequest) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := s.clk.Now()
	newVersion := req.ExpectedVersion + 1

	var chunkID int64
	insert := func() error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO chunks (floor, chunk_index, version, is_dirty, seed, last_modified)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (floor, chunk_index) DO NOTHING
			RETURNING id
		`, req.ID.Floor, req.ID.Index, int64(newVersion), req.Dirty, int64(req.Seed), now).Scan(&chunkID)
	}

	if req.ExpectedVersion == 0 {
		err = insert()
	} else {
		err = tx.QueryRowContext(ctx, `
			UPDATE chunks
			SET version = $1, is_dirty = $2, seed = $3, last_modified = $4
			WHERE floor = $5 AND chunk_index = $6 AND version = $7
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
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write chunk %s: %w", req.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chunk_data (chunk_id, geometry, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (chunk_id) DO UPDATE SET geometry = EXCLUDED.geometry, metadata = EXCLUDED.metadata
	`, chunkID, req.Geometry, req.Metadata); err != nil {
		return 0, fmt.Errorf("failed to write chunk data %s: %w", req.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunk %s: %w", req.ID, err)
	}
	return newVersion, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id ringmap.ChunkID) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM chunks WHERE floor = $1 AND chunk_index = $2
	`, id.Floor, id.Index)
	if err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete of %s: %w", id, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
