package api

import (
	"fmt"
	"time"

	"github.com/ringworld/server/internal/coordinator"
	"github.com/ringworld/server/internal/lock"
	"github.com/ringworld/server/internal/world"
)

// ChunkMetadata represents metadata for a chunk.
type ChunkMetadata struct {
	ID           string    `json:"id"` // Format: "floor_chunk_index" (e.g., "0_12345")
	Floor        int       `json:"floor"`
	ChunkIndex   int       `json:"chunk_index"` // 0 to 263,999
	Version      uint64    `json:"version"`
	LastModified time.Time `json:"last_modified"`
	IsDirty      bool      `json:"is_dirty"`          // Modified since generation
	Default      bool      `json:"default,omitempty"` // Ungenerated projection
}

// BatchChunkRequest asks for up to ten chunks at one detail level.
// Viewpoint orders delivery; it defaults to the first requested chunk.
type BatchChunkRequest struct {
	ChunkIDs  []string `json:"chunk_ids" validate:"required,min=1,max=10,dive,required"`
	LOD       string   `json:"lod" validate:"omitempty,oneof=low medium high"`
	Viewpoint string   `json:"viewpoint,omitempty"`
}

// BatchChunkResponse carries the per-chunk outcomes in delivery order.
type BatchChunkResponse struct {
	Chunks []coordinator.ChunkResult `json:"chunks"`
}

// SectionPayload names a spatial claim in lock and edit requests.
type SectionPayload struct {
	Kind         string `json:"kind" validate:"required,oneof=chunks station segment sub_segment"`
	Floor        int    `json:"floor"`
	ChunkIndices []int  `json:"chunk_indices,omitempty"`
	Station      int    `json:"station,omitempty"`
	StartIndex   int    `json:"start_index,omitempty"`
	EndIndex     int    `json:"end_index,omitempty"`
}

// Build constructs the section the payload describes.
func (p SectionPayload) Build() (lock.Section, error) {
	switch lock.SectionKind(p.Kind) {
	case lock.SectionChunks:
		return lock.ChunksSection(p.Floor, p.ChunkIndices...)
	case lock.SectionStation:
		return lock.StationSection(p.Floor, p.Station)
	case lock.SectionSegment:
		return lock.SegmentSection(p.Floor, p.Station)
	case lock.SectionSubSegment:
		return lock.SubSegmentSection(p.Floor, p.Station, p.StartIndex, p.EndIndex)
	default:
		return lock.Section{}, fmt.Errorf("unknown section kind %q", p.Kind)
	}
}

// ChunkEditPayload is one mutation within an edit request.
type ChunkEditPayload struct {
	ChunkID         string                      `json:"chunk_id" validate:"required"`
	Geometry        *world.ChunkGeometry   `json:"geometry" validate:"required"`
	Attributes      *world.ChunkAttributes `json:"attributes,omitempty"`
	ExpectedVersion uint64                      `json:"expected_version" validate:"required,min=1"`
}

// EditSectionRequest mutates chunks inside a section. With lock_id set the
// caller's held lease is used and kept; otherwise a lease is acquired for
// the duration of the edit.
type EditSectionRequest struct {
	Section    SectionPayload     `json:"section"`
	Actor      string             `json:"actor" validate:"required,min=1,max=64"`
	LockID     string             `json:"lock_id,omitempty"`
	TTLSeconds int                `json:"ttl_seconds,omitempty" validate:"omitempty,min=1,max=3600"`
	Edits      []ChunkEditPayload `json:"edits" validate:"required,min=1,max=10,dive"`
}

// EditSectionResponse carries the per-chunk edit outcomes.
type EditSectionResponse struct {
	Results []coordinator.EditResult `json:"results"`
}

// AcquireLockRequest claims an exclusive-modification lease on a section.
type AcquireLockRequest struct {
	Section    SectionPayload `json:"section"`
	Actor      string         `json:"actor" validate:"required,min=1,max=64"`
	TTLSeconds int            `json:"ttl_seconds,omitempty" validate:"omitempty,min=1,max=3600"`
}

// RenewLockRequest extends an active lease before it expires.
type RenewLockRequest struct {
	LockID     string `json:"lock_id" validate:"required"`
	Actor      string `json:"actor" validate:"required,min=1,max=64"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" validate:"omitempty,min=1,max=3600"`
}

// ReleaseLockRequest drops a held lease.
type ReleaseLockRequest struct {
	LockID string `json:"lock_id" validate:"required"`
	Actor  string `json:"actor" validate:"required,min=1,max=64"`
}

// LockResponse is the wire form of a granted or renewed lease.
type LockResponse struct {
	LockID     string    `json:"lock_id"`
	Section    string    `json:"section"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func newLockResponse(lk *lock.Lock) LockResponse {
	return LockResponse{
		LockID:     lk.ID,
		Section:    lk.Section.String(),
		Holder:     string(lk.Holder),
		AcquiredAt: lk.AcquiredAt,
		ExpiresAt:  lk.ExpiresAt,
	}
}
