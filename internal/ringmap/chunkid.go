package ringmap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChunkID uniquely identifies a chunk by floor and ring index.
// The wire and storage representation is the string "{floor}_{index}".
type ChunkID struct {
	Floor int
	Index int
}

// NewChunkID builds a ChunkID, wrapping the index onto the ring. The floor
// is taken as-is; callers validate it where untrusted input can reach here.
func NewChunkID(floor, index int) ChunkID {
	return ChunkID{Floor: floor, Index: WrapChunkIndex(index)}
}

// ParseChunkID parses a "{floor}_{index}" identifier string.
// The floor may be negative, so only the last underscore separates the parts.
func ParseChunkID(s string) (ChunkID, error) {
	sep := strings.LastIndex(s, "_")
	if sep <= 0 || sep == len(s)-1 {
		return ChunkID{}, fmt.Errorf("invalid chunk ID format: %q (expected: floor_index)", s)
	}

	floor, err := strconv.Atoi(s[:sep])
	if err != nil {
		return ChunkID{}, fmt.Errorf("invalid floor in chunk ID %q: %w", s, err)
	}
	index, err := strconv.Atoi(s[sep+1:])
	if err != nil {
		return ChunkID{}, fmt.Errorf("invalid chunk_index in chunk ID %q: %w", s, err)
	}

	if err := ValidateFloor(floor); err != nil {
		return ChunkID{}, err
	}
	wrapped, err := ValidateChunkIndex(index)
	if err != nil {
		return ChunkID{}, err
	}
	return ChunkID{Floor: floor, Index: wrapped}, nil
}

// String renders the canonical "{floor}_{index}" form.
func (id ChunkID) String() string {
	return fmt.Sprintf("%d_%d", id.Floor, id.Index)
}

// MarshalJSON renders the id in its canonical "{floor}_{index}" form.
func (id ChunkID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON parses and validates the canonical string form.
func (id *ChunkID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseChunkID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Neighbor returns the chunk offset steps along the ring on the same floor,
// wrapping at the seam.
func (id ChunkID) Neighbor(offset int) ChunkID {
	return ChunkID{Floor: id.Floor, Index: WrapChunkIndex(id.Index + offset)}
}

// DistanceTo returns the wraparound-aware distance in chunks to another id.
// Chunks on different floors are never adjacent; callers that care about
// floors should compare them first.
func (id ChunkID) DistanceTo(other ChunkID) int {
	return ChunkDistance(id.Index, other.Index)
}
