package coordinator

import (
	"time"

	"github.com/ringworld/server/internal/lock"
	"github.com/ringworld/server/internal/ringmap"
	"github.com/ringworld/server/internal/world"
)

// MaxBatchSize caps how many chunks one batch request may name.
const MaxBatchSize = 10

// Error codes reported per chunk. A missing chunk is never an error: it
// yields the default bundle instead.
const (
	CodeVersionConflict       = "version_conflict"
	CodeCorruptPayload        = "corrupt_payload"
	CodeInvalidGeometry       = "invalid_geometry"
	CodeGenerationUnavailable = "generation_unavailable"
	CodeLockConflict          = "lock_conflict"
	CodeInternal              = "internal"
)

// ChunkError is the per-chunk failure surface handed to the session layer.
type ChunkError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Bundle is a wire-ready chunk payload. Default marks the ungenerated
// projection, which carries no payload bytes. The size fields report the
// encoded payload lengths so clients can budget transfers before decoding.
type Bundle struct {
	Version      uint64 `json:"version"`
	IsDirty      bool   `json:"is_dirty"`
	Default      bool   `json:"default,omitempty"`
	Geometry     []byte `json:"geometry,omitempty"`
	Metadata     []byte `json:"metadata,omitempty"`
	GeometrySize int    `json:"geometry_size"`
	MetadataSize int    `json:"metadata_size"`
}

func newBundle(version uint64, dirty bool, geometry, metadata []byte) *Bundle {
	return &Bundle{
		Version:      version,
		IsDirty:      dirty,
		Geometry:     geometry,
		Metadata:     metadata,
		GeometrySize: len(geometry),
		MetadataSize: len(metadata),
	}
}

// ChunkResult is the outcome for one requested chunk: exactly one of
// Bundle or Err is set.
type ChunkResult struct {
	ID     ringmap.ChunkID `json:"chunk_id"`
	Bundle *Bundle         `json:"bundle,omitempty"`
	Err    *ChunkError     `json:"error,omitempty"`
}

// ChunkEdit is one mutation within an edit request.
type ChunkEdit struct {
	ID              ringmap.ChunkID
	Geometry        *world.ChunkGeometry
	Attributes      *world.ChunkAttributes
	ExpectedVersion uint64
}

// EditRequest mutates the chunks of a section under an exclusive lease.
// With LockID set the caller holds the lease already and keeps it; with
// LockID empty the coordinator acquires and releases one around the edit.
type EditRequest struct {
	Section lock.Section
	Actor   lock.ActorID
	LockID  string
	TTL     time.Duration
	Edits   []ChunkEdit
}

// EditResult is the per-chunk outcome of an edit.
type EditResult struct {
	ID         ringmap.ChunkID `json:"chunk_id"`
	NewVersion uint64          `json:"new_version,omitempty"`
	Err        *ChunkError     `json:"error,omitempty"`
}
