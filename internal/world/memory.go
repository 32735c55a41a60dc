package world

import (
	"context"
	"sync"

	"github.com/ringworld/server/internal/clock"
	"github.com/ringworld/server/internal/ringmap"
)

// memoryShards bounds contention: unrelated chunk ids land on different
// shards, so a write to one chunk never blocks readers of another.
const memoryShards = 64

// MemoryStore is an in-process Store used for development and tests.
type MemoryStore struct {
	clk    clock.Clock
	shards [memoryShards]memoryShard
}

type memoryShard struct {
	mu     sync.RWMutex
	chunks map[ringmap.ChunkID]*ChunkRecord
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	s := &MemoryStore{clk: clk}
	for i := range s.shards {
		s.shards[i].chunks = make(map[ringmap.ChunkID]*ChunkRecord)
	}
	return s
}

func (s *MemoryStore) shard(id ringmap.ChunkID) *memoryShard {
	h := uint32(id.Index)*31 + uint32(id.Floor-ringmap.FloorMin)
	return &s.shards[h%memoryShards]
}

func (s *MemoryStore) Get(ctx context.Context, id ringmap.ChunkID) (*ChunkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sh := s.shard(id)
	sh.mu.RLock()
	record, ok := sh.chunks[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(record), nil
}

func (s *MemoryStore) Put(ctx context.Context, req PutRequest) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sh := s.shard(req.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	existing, ok := sh.chunks[req.ID]
	switch {
	case req.ExpectedVersion == 0:
		if ok {
			return 0, ErrVersionConflict
		}
	case req.ExpectedVersion == 1 && !ok:
		// Editing a never-generated chunk: the absent row is the
		// version-1 default projection, so expected 1 matches.
	default:
		if !ok || existing.Version != req.ExpectedVersion {
			return 0, ErrVersionConflict
		}
	}

	record := &ChunkRecord{
		ID:           req.ID,
		Version:      req.ExpectedVersion + 1,
		IsDirty:      req.Dirty,
		Seed:         req.Seed,
		Geometry:     append([]byte(nil), req.Geometry...),
		Metadata:     append([]byte(nil), req.Metadata...),
		LastModified: s.clk.Now(),
	}
	sh.chunks[req.ID] = record
	return record.Version, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id ringmap.ChunkID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.chunks[id]; !ok {
		return ErrNotFound
	}
	delete(sh.chunks, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func copyRecord(r *ChunkRecord) *ChunkRecord {
	dup := *r
	dup.Geometry = append([]byte(nil), r.Geometry...)
	dup.Metadata = append([]byte(nil), r.Metadata...)
	return &dup
}
