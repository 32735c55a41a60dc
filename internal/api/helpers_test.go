package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ringworld/server/internal/cache"
	"github.com/ringworld/server/internal/clock"
	"github.com/ringworld/server/internal/codec"
	"github.com/ringworld/server/internal/coordinator"
	"github.com/ringworld/server/internal/generation"
	"github.com/ringworld/server/internal/lock"
	"github.com/ringworld/server/internal/ringmap"
	"github.com/ringworld/server/internal/testutil"
	"github.com/ringworld/server/internal/world"
)

// stubGenerator persists a fixed quad geometry so handler tests need no
// generation service.
type stubGenerator struct {
	store world.Store
	calls int32
	err   error
}

func (g *stubGenerator) Generate(ctx context.Context, id ringmap.ChunkID, lod generation.LOD) (*world.ChunkRecord, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.err != nil {
		return nil, g.err
	}

	geometry, err := codec.EncodeGeometry(testutil.QuadGeometry(id.Index))
	if err != nil {
		return nil, err
	}
	metadata, err := codec.EncodeMetadata(nil)
	if err != nil {
		return nil, err
	}
	if _, err := g.store.Put(ctx, world.PutRequest{
		ID:              id,
		Geometry:        geometry,
		Metadata:        metadata,
		ExpectedVersion: 0,
	}); err != nil && !errors.Is(err, world.ErrVersionConflict) {
		return nil, err
	}
	return g.store.Get(ctx, id)
}

var _ generation.Generator = (*stubGenerator)(nil)

type testEnv struct {
	store  world.Store
	coord  *coordinator.Coordinator
	locks  *lock.Manager
	gen    *stubGenerator
	helper *testutil.HTTPTestHelper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := testutil.SetupMemoryStore(t)
	chunks, err := cache.New(64)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	gen := &stubGenerator{store: store}
	locks := lock.NewManager(clock.System())
	coord := coordinator.New(store, chunks, gen, locks, nil)

	mux := http.NewServeMux()
	SetupChunkRoutes(mux, coord, store)
	SetupSectionRoutes(mux, locks, 30*time.Second)
	SetupHealthRoutes(mux)

	return &testEnv{
		store:  store,
		coord:  coord,
		locks:  locks,
		gen:    gen,
		helper: testutil.NewHTTPTestHelper(mux),
	}
}
