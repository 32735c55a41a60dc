package generation

import "fmt"

// LOD is the discrete quality tier requested for a chunk.
type LOD string

const (
	LODLow    LOD = "low"
	LODMedium LOD = "medium"
	LODHigh   LOD = "high"
)

// Cost ranks tiers by how expensive they are to produce and ship.
func (l LOD) Cost() int {
	switch l {
	case LODLow:
		return 0
	case LODMedium:
		return 1
	case LODHigh:
		return 2
	default:
		return 3
	}
}

// Validate rejects unknown tiers.
func (l LOD) Validate() error {
	switch l {
	case LODLow, LODMedium, LODHigh:
		return nil
	default:
		return fmt.Errorf("invalid lod level: %q", string(l))
	}
}
