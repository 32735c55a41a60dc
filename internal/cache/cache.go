package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ringworld/server/internal/ringmap"
)

// Entry is a cached, wire-ready chunk bundle. Entries are derived state:
// the store remains the source of truth and the cache may be dropped and
// rebuilt at any time.
type Entry struct {
	ID       ringmap.ChunkID
	Version  uint64
	IsDirty  bool
	Geometry []byte
	Metadata []byte
}

// ChunkCache is an LRU cache of encoded chunk payloads keyed by chunk id.
// The underlying LRU is safe for concurrent use and locks per operation,
// so readers of unrelated chunks never serialize behind each other for
// long.
type ChunkCache struct {
	entries *lru.Cache[string, *Entry]
}

// New creates a chunk cache holding at most maxEntries bundles.
func New(maxEntries int) (*ChunkCache, error) {
	entries, err := lru.New[string, *Entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk cache: %w", err)
	}
	return &ChunkCache{entries: entries}, nil
}

// Get returns the cached bundle for a chunk, marking it recently used.
func (c *ChunkCache) Get(id ringmap.ChunkID) (*Entry, bool) {
	return c.entries.Get(id.String())
}

// Contains reports residency without disturbing recency order.
func (c *ChunkCache) Contains(id ringmap.ChunkID) bool {
	return c.entries.Contains(id.String())
}

// Put stores a bundle, evicting the least-recently-used entry if full.
func (c *ChunkCache) Put(entry *Entry) {
	c.entries.Add(entry.ID.String(), entry)
}

// Invalidate drops a chunk's entry. Called in the same causal step as any
// successful store put or delete so a reader never sees a stale version
// it could have already witnessed replaced.
func (c *ChunkCache) Invalidate(id ringmap.ChunkID) {
	c.entries.Remove(id.String())
}

// Len returns the number of resident entries.
func (c *ChunkCache) Len() int {
	return c.entries.Len()
}

// Purge empties the cache.
func (c *ChunkCache) Purge() {
	c.entries.Purge()
}
