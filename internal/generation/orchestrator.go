package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/ringworld/server/internal/codec"
	"github.com/ringworld/server/internal/ringmap"
	"github.com/ringworld/server/internal/world"
)

// State tracks where a generation request is in its lifecycle.
type State string

const (
	StatePending  State = "pending"
	StateCalling  State = "calling"
	StateRetrying State = "retrying"
	StateSuccess  State = "success"
	StateFailed   State = "failed"
)

// Generator produces chunks on demand. Implemented by Orchestrator;
// declared so tests can substitute a stub.
type Generator interface {
	Generate(ctx context.Context, id ringmap.ChunkID, lod LOD) (*world.ChunkRecord, error)
}

// Orchestrator drives first-time chunk generation: it calls the external
// generation service, encodes the result, and persists it as version 1.
// Concurrent requests for the same chunk are coalesced into one service
// call; losing a persistence race to another node counts as success.
type Orchestrator struct {
	client    *Client
	store     world.Store
	worldSeed uint64

	mu       sync.Mutex
	inFlight map[ringmap.ChunkID]*flight
}

type flight struct {
	done   chan struct{}
	state  State
	record *world.ChunkRecord
	err    error
}

// NewOrchestrator creates a generation orchestrator.
func NewOrchestrator(client *Client, store world.Store, worldSeed uint64) *Orchestrator {
	return &Orchestrator{
		client:    client,
		store:     store,
		worldSeed: worldSeed,
		inFlight:  make(map[ringmap.ChunkID]*flight),
	}
}

// Generate produces and persists a chunk that has never been stored. If
// another request (local or on another node) persists the chunk first, the
// stored record is returned instead of an error. Exhausted retries against
// the generation service surface as ErrGenerationUnavailable.
func (o *Orchestrator) Generate(ctx context.Context, id ringmap.ChunkID, lod LOD) (*world.ChunkRecord, error) {
	o.mu.Lock()
	if f, ok := o.inFlight[id]; ok {
		o.mu.Unlock()
		select {
		case <-f.done:
			return f.record, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{}), state: StatePending}
	o.inFlight[id] = f
	o.mu.Unlock()

	// Generation runs on the leader's context so a follower cancelling
	// does not abort work other callers are waiting on.
	f.record, f.err = o.generate(ctx, id, lod, f)
	if f.err != nil {
		f.state = StateFailed
	} else {
		f.state = StateSuccess
	}

	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
	close(f.done)

	return f.record, f.err
}

func (o *Orchestrator) generate(ctx context.Context, id ringmap.ChunkID, lod LOD, f *flight) (*world.ChunkRecord, error) {
	seed := ChunkSeed(o.worldSeed, id.Floor, id.Index)

	f.state = StateCalling
	response, err := o.client.GenerateChunk(ctx, GenerateChunkRequest{
		Floor:      id.Floor,
		ChunkIndex: id.Index,
		LODLevel:   string(lod),
		WorldSeed:  o.worldSeed,
	})
	if err != nil {
		log.Printf("[Orchestrator] Generation failed for chunk %s: %v", id, err)
		return nil, err
	}

	geometry, err := codec.EncodeGeometry(response.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generated geometry for %s: %w", id, err)
	}
	metadata, err := codec.EncodeMetadata(response.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generated metadata for %s: %w", id, err)
	}

	version, err := o.store.Put(ctx, world.PutRequest{
		ID:              id,
		Geometry:        geometry,
		Metadata:        metadata,
		Seed:            seed,
		Dirty:           false,
		ExpectedVersion: 0,
	})
	if errors.Is(err, world.ErrVersionConflict) {
		// Someone else persisted this chunk first. Their result is as
		// good as ours; adopt it.
		log.Printf("[Orchestrator] Lost persistence race for chunk %s, adopting stored record", id)
		record, getErr := o.store.Get(ctx, id)
		if getErr != nil {
			return nil, fmt.Errorf("failed to read chunk %s after losing generation race: %w", id, getErr)
		}
		return record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist generated chunk %s: %w", id, err)
	}

	record, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read back generated chunk %s: %w", id, err)
	}
	log.Printf("[Orchestrator] Generated chunk %s at version %d (%d geometry bytes)", id, version, len(geometry))
	return record, nil
}

// InFlight reports how many chunk generations are currently running.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight)
}
