package world

import (
	"context"
	"errors"
	"time"

	"github.com/ringworld/server/internal/ringmap"
)

var (
	// ErrNotFound reports that no record exists for a chunk id. This is a
	// normal outcome for ungenerated chunks, not a failure.
	ErrNotFound = errors.New("chunk not found")

	// ErrVersionConflict reports that a compare-and-swap write lost the
	// race: the stored version no longer matches the expected version.
	ErrVersionConflict = errors.New("chunk version conflict")
)

// ChunkRecord is the durable per-chunk entity. Geometry and Metadata hold
// the codec's encoded blobs; the store treats them as opaque.
type ChunkRecord struct {
	ID           ringmap.ChunkID
	Version      uint64
	IsDirty      bool
	Seed         uint64
	Geometry     []byte
	Metadata     []byte
	LastModified time.Time
}

// PutRequest describes one versioned write. ExpectedVersion 0 means the
// chunk must not already exist (the generation path, committing version 1).
// ExpectedVersion 1 matches either a stored version-1 row or an absent row,
// since an absent chunk's logical version is the default projection's 1; an
// edit of a never-generated chunk therefore materializes it at version 2.
// Higher values must match the stored version exactly.
type PutRequest struct {
	ID              ringmap.ChunkID
	Geometry        []byte
	Metadata        []byte
	Seed            uint64
	Dirty           bool
	ExpectedVersion uint64
}

// Store is the durable, versioned chunk store. It is the single writer of
// persisted chunk versions; writes to the same id are linearized by the
// compare-and-swap in Put, and there is no cross-id ordering guarantee.
type Store interface {
	// Get returns the stored record for id, or ErrNotFound.
	Get(ctx context.Context, id ringmap.ChunkID) (*ChunkRecord, error)

	// Put commits a versioned write and returns the new version
	// (ExpectedVersion+1), or ErrVersionConflict without any partial write.
	Put(ctx context.Context, req PutRequest) (uint64, error)

	// Delete atomically removes both the metadata and geometry records,
	// reverting the chunk to its ungenerated state. Returns ErrNotFound
	// if no record exists.
	Delete(ctx context.Context, id ringmap.ChunkID) error

	Close() error
}

// DefaultRecord is the well-defined projection served for chunks that were
// never written: version 1, clean, empty payloads. It is never stored.
func DefaultRecord(id ringmap.ChunkID) *ChunkRecord {
	return &ChunkRecord{
		ID:      id,
		Version: 1,
		IsDirty: false,
	}
}
