package world

// ChunkGeometry is the in-memory geometry payload for one chunk.
// Vertices are [x, y, z] triples: x is the absolute ring-axis position in
// meters, y the cross-axis offset from the ring centerline, z the height
// above the chunk floor.
type ChunkGeometry struct {
	Type      string      `json:"type"` // e.g. "ring_floor"
	Vertices  [][]float64 `json:"vertices"`
	Faces     [][]int     `json:"faces"` // [v1, v2, v3] triangle indices
	Materials []uint16    `json:"materials,omitempty"`
	Width     float64     `json:"width"`  // cross-axis extent in meters
	Length    float64     `json:"length"` // ring-axis extent in meters
}

// ChunkAttributes is the structure/zone reference map stored alongside the
// geometry. It round-trips losslessly through the codec.
type ChunkAttributes struct {
	StructureIDs []int64           `json:"structure_ids,omitempty"`
	ZoneIDs      []int64           `json:"zone_ids,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}
