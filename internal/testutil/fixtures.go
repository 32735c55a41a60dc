package testutil

import (
	"time"

	"github.com/ringworld/server/internal/ringmap"
	"github.com/ringworld/server/internal/world"
)

// TestFixtures provides test data generators
type TestFixtures struct{}

// NewTestFixtures creates a new test fixtures helper
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{}
}

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	seed := time.Now().UnixNano()
	for i := range b {
		seed = seed*1103515245 + 12345 // Simple LCG
		idx := int(seed % int64(len(charset)))
		if idx < 0 {
			idx = -idx
		}
		b[i] = charset[idx]
	}
	return string(b)
}

// RandomActor generates a random actor identifier
func RandomActor() string {
	return "actor_" + RandomString(8)
}

// QuadGeometry builds a minimal valid floor quad covering a chunk's span
// along the ring axis. The result passes codec validation and survives an
// encode/decode round trip within quantization tolerance.
func QuadGeometry(chunkIndex int) *world.ChunkGeometry {
	minPos, maxPos := ringmap.ChunkIndexToPositionRange(chunkIndex)
	x0, x1 := float64(minPos), float64(maxPos)
	return &world.ChunkGeometry{
		Type: "ring_floor",
		Vertices: [][]float64{
			{x0, -100, 0},
			{x1, -100, 0},
			{x1, 100, 0},
			{x0, 100, 0},
		},
		Faces:     [][]int{{0, 1, 2}, {0, 2, 3}},
		Materials: []uint16{1},
		Width:     200,
		Length:    x1 - x0,
	}
}

// TestAttributes builds a small attribute payload for edit and codec tests.
func (f *TestFixtures) TestAttributes() *world.ChunkAttributes {
	return &world.ChunkAttributes{
		StructureIDs: []int64{101, 102},
		ZoneIDs:      []int64{7},
		Tags:         map[string]string{"biome": "plains"},
	}
}
