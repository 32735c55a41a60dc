package generation

import "github.com/ringworld/server/internal/world"

// GenerateChunkRequest is the request body sent to the generation service.
// The service derives the per-chunk seed from the world seed itself, so
// the wire contract is stable even if the derivation changes server-side.
type GenerateChunkRequest struct {
	Floor      int    `json:"floor"`
	ChunkIndex int    `json:"chunk_index"`
	LODLevel   string `json:"lod_level"`
	WorldSeed  uint64 `json:"world_seed"`
}

// GenerateChunkResponse is the response from the generation service.
type GenerateChunkResponse struct {
	Success    bool                   `json:"success"`
	Geometry   *world.ChunkGeometry   `json:"geometry,omitempty"`
	Attributes *world.ChunkAttributes `json:"attributes,omitempty"`
	Message    *string                `json:"message,omitempty"`
}

// HealthResponse is the generation service health check body.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
