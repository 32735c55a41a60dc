package cache

import (
	"fmt"
	"testing"

	"github.com/ringworld/server/internal/generation"
	"github.com/ringworld/server/internal/ringmap"
)

func TestCachePutGetInvalidate(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	id := ringmap.NewChunkID(0, 5)
	if _, ok := c.Get(id); ok {
		t.Error("Get(empty cache) should miss")
	}

	c.Put(&Entry{ID: id, Version: 2, Geometry: []byte{1, 2, 3}})
	entry, ok := c.Get(id)
	if !ok {
		t.Fatal("Get() missed after Put()")
	}
	if entry.Version != 2 || len(entry.Geometry) != 3 {
		t.Errorf("entry = %+v, want version 2 with 3 geometry bytes", entry)
	}

	c.Invalidate(id)
	if _, ok := c.Get(id); ok {
		t.Error("Get() should miss after Invalidate()")
	}

	// Invalidating an absent id is a no-op.
	c.Invalidate(ringmap.NewChunkID(0, 99))
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(3)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		c.Put(&Entry{ID: ringmap.NewChunkID(0, i), Version: 1})
	}
	// Touch chunk 0 so chunk 1 becomes the eviction candidate.
	if _, ok := c.Get(ringmap.NewChunkID(0, 0)); !ok {
		t.Fatal("Get(0_0) missed")
	}

	c.Put(&Entry{ID: ringmap.NewChunkID(0, 3), Version: 1})
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if c.Contains(ringmap.NewChunkID(0, 1)) {
		t.Error("chunk 0_1 should have been evicted")
	}
	for _, idx := range []int{0, 2, 3} {
		if !c.Contains(ringmap.NewChunkID(0, idx)) {
			t.Errorf("chunk 0_%d should still be resident", idx)
		}
	}
}

func TestCacheKeysAreFloorScoped(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	c.Put(&Entry{ID: ringmap.NewChunkID(0, 5), Version: 1})
	c.Put(&Entry{ID: ringmap.NewChunkID(1, 5), Version: 4})

	c.Invalidate(ringmap.NewChunkID(0, 5))
	entry, ok := c.Get(ringmap.NewChunkID(1, 5))
	if !ok || entry.Version != 4 {
		t.Errorf("floor 1 entry = %+v ok=%v, want version 4 untouched", entry, ok)
	}
}

func TestPrioritizeOrdering(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	viewpoint := ringmap.NewChunkID(0, 100)
	c.Put(&Entry{ID: ringmap.NewChunkID(0, 500), Version: 1})

	items := []BatchItem{
		{ID: ringmap.NewChunkID(0, 105), LOD: generation.LODHigh},   // near, expensive
		{ID: ringmap.NewChunkID(0, 500), LOD: generation.LODHigh},   // resident
		{ID: ringmap.NewChunkID(0, 300), LOD: generation.LODLow},    // cheap, far
		{ID: ringmap.NewChunkID(0, 101), LOD: generation.LODLow},    // cheap, near
		{ID: ringmap.NewChunkID(0, 200), LOD: generation.LODMedium}, // middle tier
	}

	got := c.Prioritize(items, viewpoint)
	want := []int{500, 101, 300, 200, 105}
	for i, idx := range want {
		if got[i].ID.Index != idx {
			t.Fatalf("order[%d] = %d, want %d (full order %v)", i, got[i].ID.Index, idx, indices(got))
		}
	}

	// Input slice untouched.
	if items[0].ID.Index != 105 {
		t.Error("Prioritize() must not reorder its input")
	}
}

func TestPrioritizeWraparoundDistance(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Viewpoint just west of the seam: a chunk across the seam is nearer
	// than one a thousand chunks back west.
	viewpoint := ringmap.NewChunkID(0, ringmap.ChunkCount-1)
	items := []BatchItem{
		{ID: ringmap.NewChunkID(0, ringmap.ChunkCount-1000), LOD: generation.LODLow},
		{ID: ringmap.NewChunkID(0, 2), LOD: generation.LODLow},
	}

	got := c.Prioritize(items, viewpoint)
	if got[0].ID.Index != 2 {
		t.Errorf("order = %v, want the seam-adjacent chunk 2 first", indices(got))
	}
}

func indices(items []BatchItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprintf("%d", item.ID.Index)
	}
	return out
}
