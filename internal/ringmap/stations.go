package ringmap

import "fmt"

const (
	// StationCount is the number of pillar/elevator hub stations on the ring
	StationCount = 12
	// StationSpacing is the arc distance between adjacent stations in meters (22,000 km)
	StationSpacing = RingCircumference / StationCount
	// StationHalfSpanChunks is how many chunks a station extends to each side of its center
	StationHalfSpanChunks = 10
)

// StationChunkIndex returns the chunk index at the center of a station.
// Station 0 sits at ring position 0; stations are evenly spaced eastward.
func StationChunkIndex(station int) (int, error) {
	if station < 0 || station >= StationCount {
		return 0, fmt.Errorf("invalid station index: %d (must be 0-%d)", station, StationCount-1)
	}
	return PositionToChunkIndex(int64(station) * StationSpacing), nil
}

// ChunkInterval is an inclusive, wraparound-aware range of chunk indices.
// Start and End are wrapped to [0, ChunkCount); when Start > End the
// interval crosses the ring seam.
type ChunkInterval struct {
	Start int
	End   int
}

// NewChunkInterval wraps both endpoints onto the ring.
func NewChunkInterval(start, end int) ChunkInterval {
	return ChunkInterval{Start: WrapChunkIndex(start), End: WrapChunkIndex(end)}
}

// Contains reports whether the interval covers a chunk index.
func (iv ChunkInterval) Contains(index int) bool {
	idx := WrapChunkIndex(index)
	if iv.Start <= iv.End {
		return idx >= iv.Start && idx <= iv.End
	}
	// Interval crosses the seam
	return idx >= iv.Start || idx <= iv.End
}

// Overlaps reports whether two intervals share any chunk, accounting for
// the seam on either side.
func (iv ChunkInterval) Overlaps(other ChunkInterval) bool {
	return iv.Contains(other.Start) || iv.Contains(other.End) ||
		other.Contains(iv.Start) || other.Contains(iv.End)
}

// Len returns the number of chunks the interval covers.
func (iv ChunkInterval) Len() int {
	if iv.Start <= iv.End {
		return iv.End - iv.Start + 1
	}
	return (ChunkCount - iv.Start) + iv.End + 1
}

// StationChunkSpan returns the chunk interval a station occupies.
func StationChunkSpan(station int) (ChunkInterval, error) {
	center, err := StationChunkIndex(station)
	if err != nil {
		return ChunkInterval{}, err
	}
	return NewChunkInterval(center-StationHalfSpanChunks, center+StationHalfSpanChunks), nil
}

// SegmentChunkSpan returns the chunk interval of the ring segment between a
// station and its eastward neighbor, exclusive of the stations themselves.
// Segment 11 wraps across the seam back to station 0.
func SegmentChunkSpan(station int) (ChunkInterval, error) {
	west, err := StationChunkSpan(station)
	if err != nil {
		return ChunkInterval{}, err
	}
	east, err := StationChunkSpan((station + 1) % StationCount)
	if err != nil {
		return ChunkInterval{}, err
	}
	return NewChunkInterval(west.End+1, east.Start-1), nil
}

// NearestStation returns the station closest to a chunk index, along with
// its distance in chunks using the wraparound metric.
func NearestStation(chunkIndex int) (station int, distance int) {
	best := ChunkCount
	for i := 0; i < StationCount; i++ {
		center, _ := StationChunkIndex(i)
		d := ChunkDistance(chunkIndex, center)
		if d < best {
			best = d
			station = i
		}
	}
	return station, best
}
