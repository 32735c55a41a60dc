package cache

import (
	"sort"

	"github.com/ringworld/server/internal/generation"
	"github.com/ringworld/server/internal/ringmap"
)

// BatchItem is one requested chunk within a batch.
type BatchItem struct {
	ID  ringmap.ChunkID
	LOD generation.LOD
}

// Prioritize orders a batch for delivery: cache-resident chunks first,
// then cheaper detail tiers, then chunks nearer the requesting viewpoint
// by wraparound distance. The sort is stable so equally ranked chunks keep
// their request order. Advisory for latency only.
func (c *ChunkCache) Prioritize(items []BatchItem, viewpoint ringmap.ChunkID) []BatchItem {
	type scored struct {
		item     BatchItem
		resident bool
		distance int
	}

	ranked := make([]scored, len(items))
	for i, item := range items {
		ranked[i] = scored{
			item:     item,
			resident: c.Contains(item.ID),
			distance: ringmap.ChunkDistance(item.ID.Index, viewpoint.Index),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].resident != ranked[j].resident {
			return ranked[i].resident
		}
		if ci, cj := ranked[i].item.LOD.Cost(), ranked[j].item.LOD.Cost(); ci != cj {
			return ci < cj
		}
		return ranked[i].distance < ranked[j].distance
	})

	ordered := make([]BatchItem, len(ranked))
	for i, r := range ranked {
		ordered[i] = r.item
	}
	return ordered
}
