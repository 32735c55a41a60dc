package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ringworld/server/internal/cache"
	"github.com/ringworld/server/internal/codec"
	"github.com/ringworld/server/internal/generation"
	"github.com/ringworld/server/internal/lock"
	"github.com/ringworld/server/internal/performance"
	"github.com/ringworld/server/internal/ringmap"
	"github.com/ringworld/server/internal/world"
)

// DefaultEditTTL is the lease length used when an edit request does not
// name one and does not carry a pre-acquired lock.
const DefaultEditTTL = 30 * time.Second

// Coordinator is the entry point the session layer consumes. It wires the
// cache, store, orchestrator and lock manager into the read and write
// flows, aggregating per-chunk outcomes so a batch partially succeeds.
type Coordinator struct {
	store     world.Store
	chunks    *cache.ChunkCache
	generator generation.Generator
	locks     *lock.Manager
	profiler  *performance.Profiler
}

// New creates a request coordinator. The profiler may be nil.
func New(store world.Store, chunks *cache.ChunkCache, generator generation.Generator, locks *lock.Manager, profiler *performance.Profiler) *Coordinator {
	return &Coordinator{
		store:     store,
		chunks:    chunks,
		generator: generator,
		locks:     locks,
		profiler:  profiler,
	}
}

// GetChunks resolves a batch of up to MaxBatchSize chunks at the given
// detail level. Results come back in delivery-priority order. Each chunk
// resolves independently: one failure never poisons the rest of the batch.
//
// Low-detail requests for ungenerated chunks return the default projection
// without materializing anything; medium and high detail trigger
// generation.
func (c *Coordinator) GetChunks(ctx context.Context, items []cache.BatchItem, viewpoint ringmap.ChunkID) ([]ChunkResult, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("empty chunk batch")
	}
	if len(items) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d chunks exceeds the maximum of %d", len(items), MaxBatchSize)
	}
	for _, item := range items {
		if err := item.LOD.Validate(); err != nil {
			return nil, err
		}
		if err := ringmap.ValidateFloor(item.ID.Floor); err != nil {
			return nil, err
		}
		if _, err := ringmap.ValidateChunkIndex(item.ID.Index); err != nil {
			return nil, err
		}
	}

	ordered := c.chunks.Prioritize(items, viewpoint)
	results := make([]ChunkResult, len(ordered))
	c.profiler.Time(performance.StageBatch, func() {
		for i, item := range ordered {
			results[i] = c.getChunk(ctx, item)
		}
	})
	return results, nil
}

func (c *Coordinator) getChunk(ctx context.Context, item cache.BatchItem) ChunkResult {
	lookupStart := time.Now()
	entry, ok := c.chunks.Get(item.ID)
	c.profiler.Record(performance.StageCacheLookup, time.Since(lookupStart))
	if ok {
		c.profiler.Count("cache.hit")
		return ChunkResult{ID: item.ID, Bundle: newBundle(entry.Version, entry.IsDirty, entry.Geometry, entry.Metadata)}
	}

	c.profiler.Count("cache.miss")
	readStart := time.Now()
	record, err := c.store.Get(ctx, item.ID)
	c.profiler.Record(performance.StageStoreRead, time.Since(readStart))
	switch {
	case err == nil:
		return c.bundleRecord(item.ID, record)
	case errors.Is(err, world.ErrNotFound):
		if item.LOD == generation.LODLow {
			return defaultResult(item.ID)
		}
		return c.generateChunk(ctx, item)
	default:
		log.Printf("[Coordinator] Store read failed for chunk %s: %v", item.ID, err)
		return errorResult(item.ID, CodeInternal, "storage read failed")
	}
}

func (c *Coordinator) generateChunk(ctx context.Context, item cache.BatchItem) ChunkResult {
	start := time.Now()
	record, err := c.generator.Generate(ctx, item.ID, item.LOD)
	c.profiler.Record(performance.StageGenerate, time.Since(start))
	if err != nil {
		if errors.Is(err, generation.ErrGenerationUnavailable) {
			return errorResult(item.ID, CodeGenerationUnavailable,
				"generation service unavailable, retry with backoff")
		}
		log.Printf("[Coordinator] Generation failed for chunk %s: %v", item.ID, err)
		return errorResult(item.ID, CodeInternal, "chunk generation failed")
	}
	return c.bundleRecord(item.ID, record)
}

// bundleRecord validates a stored record's payloads and caches the bundle.
func (c *Coordinator) bundleRecord(id ringmap.ChunkID, record *world.ChunkRecord) ChunkResult {
	decodeStart := time.Now()
	defer func() {
		c.profiler.Record(performance.StageDecodeCheck, time.Since(decodeStart))
	}()
	if len(record.Geometry) > 0 {
		if _, err := codec.DecodeGeometry(record.Geometry); err != nil {
			log.Printf("[Coordinator] Corrupt geometry for chunk %s at version %d: %v", id, record.Version, err)
			return errorResult(id, CodeCorruptPayload, "stored geometry is corrupt")
		}
	}
	if len(record.Metadata) > 0 {
		if _, err := codec.DecodeMetadata(record.Metadata); err != nil {
			log.Printf("[Coordinator] Corrupt metadata for chunk %s at version %d: %v", id, record.Version, err)
			return errorResult(id, CodeCorruptPayload, "stored metadata is corrupt")
		}
	}

	c.chunks.Put(&cache.Entry{
		ID:       id,
		Version:  record.Version,
		IsDirty:  record.IsDirty,
		Geometry: record.Geometry,
		Metadata: record.Metadata,
	})
	return ChunkResult{ID: id, Bundle: newBundle(record.Version, record.IsDirty, record.Geometry, record.Metadata)}
}

// Edit applies mutations to chunks covered by a section under an exclusive
// lease. Lock and version conflicts surface immediately and are never
// retried here: the decision to retry belongs to the caller.
func (c *Coordinator) Edit(ctx context.Context, req EditRequest) ([]EditResult, error) {
	if len(req.Edits) == 0 {
		return nil, fmt.Errorf("edit request carries no mutations")
	}
	for _, edit := range req.Edits {
		if !req.Section.Contains(edit.ID) {
			return nil, fmt.Errorf("chunk %s is outside the claimed section (%s)", edit.ID, req.Section)
		}
	}

	if req.LockID == "" {
		ttl := req.TTL
		if ttl <= 0 {
			ttl = DefaultEditTTL
		}
		lease, err := c.locks.Acquire(req.Section, req.Actor, ttl)
		if err != nil {
			return nil, err
		}
		defer func() {
			if releaseErr := c.locks.Release(lease.ID, req.Actor); releaseErr != nil {
				log.Printf("[Coordinator] Failed to release lock %s: %v", lease.ID, releaseErr)
			}
		}()
	} else {
		lease, err := c.locks.Get(req.LockID)
		if err != nil {
			return nil, err
		}
		if lease.Holder != req.Actor {
			return nil, lock.ErrNotHolder
		}
		for _, edit := range req.Edits {
			if !lease.Section.Contains(edit.ID) {
				return nil, fmt.Errorf("chunk %s is outside the held lease", edit.ID)
			}
		}
	}

	results := make([]EditResult, len(req.Edits))
	for i, edit := range req.Edits {
		results[i] = c.applyEdit(ctx, edit)
	}
	return results, nil
}

func (c *Coordinator) applyEdit(ctx context.Context, edit ChunkEdit) EditResult {
	geometry, err := codec.EncodeGeometry(edit.Geometry)
	if err != nil {
		if errors.Is(err, codec.ErrInvalidGeometry) {
			return EditResult{ID: edit.ID, Err: &ChunkError{Code: CodeInvalidGeometry, Message: err.Error()}}
		}
		log.Printf("[Coordinator] Failed to encode edit for chunk %s: %v", edit.ID, err)
		return EditResult{ID: edit.ID, Err: &ChunkError{Code: CodeInternal, Message: "failed to encode geometry"}}
	}
	metadata, err := codec.EncodeMetadata(edit.Attributes)
	if err != nil {
		log.Printf("[Coordinator] Failed to encode edit metadata for chunk %s: %v", edit.ID, err)
		return EditResult{ID: edit.ID, Err: &ChunkError{Code: CodeInternal, Message: "failed to encode metadata"}}
	}

	seed := uint64(0)
	if record, getErr := c.store.Get(ctx, edit.ID); getErr == nil {
		seed = record.Seed
	}

	writeStart := time.Now()
	version, err := c.store.Put(ctx, world.PutRequest{
		ID:              edit.ID,
		Geometry:        geometry,
		Metadata:        metadata,
		Seed:            seed,
		Dirty:           true,
		ExpectedVersion: edit.ExpectedVersion,
	})
	c.profiler.Record(performance.StageEditWrite, time.Since(writeStart))
	if errors.Is(err, world.ErrVersionConflict) {
		c.profiler.Count("edit.conflict")
		return EditResult{ID: edit.ID, Err: &ChunkError{
			Code:    CodeVersionConflict,
			Message: "someone else changed this chunk, reload and retry",
		}}
	}
	if err != nil {
		log.Printf("[Coordinator] Edit write failed for chunk %s: %v", edit.ID, err)
		return EditResult{ID: edit.ID, Err: &ChunkError{Code: CodeInternal, Message: "storage write failed"}}
	}

	// Invalidate in the same causal step as the committed write.
	c.chunks.Invalidate(edit.ID)
	return EditResult{ID: edit.ID, NewVersion: version}
}

// DeleteChunk removes a chunk's stored record, reverting it to the
// ungenerated state so the next request regenerates it from the same seed.
func (c *Coordinator) DeleteChunk(ctx context.Context, id ringmap.ChunkID) error {
	err := c.store.Delete(ctx, id)
	if err != nil && !errors.Is(err, world.ErrNotFound) {
		return fmt.Errorf("failed to delete chunk %s: %w", id, err)
	}
	c.chunks.Invalidate(id)
	return err
}

func defaultResult(id ringmap.ChunkID) ChunkResult {
	record := world.DefaultRecord(id)
	return ChunkResult{ID: id, Bundle: &Bundle{
		Version: record.Version,
		IsDirty: record.IsDirty,
		Default: true,
	}}
}

func errorResult(id ringmap.ChunkID, code, message string) ChunkResult {
	return ChunkResult{ID: id, Err: &ChunkError{Code: code, Message: message}}
}
