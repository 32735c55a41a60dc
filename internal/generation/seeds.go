package generation

// ChunkSeed derives a per-chunk seed from the world seed and the chunk's
// coordinates. The same (worldSeed, floor, index) always yields the same
// seed, and nearby chunks get unrelated seeds. Uses a splitmix64-style
// finalizer for avalanche.
func ChunkSeed(worldSeed uint64, floor, index int) uint64 {
	x := worldSeed
	x ^= uint64(int64(floor)) * 0x9E3779B97F4A7C15
	x ^= uint64(int64(index)) * 0xBF58476D1CE4E5B9
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}
