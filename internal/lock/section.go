package lock

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ringworld/server/internal/ringmap"
)

// SectionKind identifies the shape of a spatial claim.
type SectionKind string

const (
	SectionChunks     SectionKind = "chunks"
	SectionStation    SectionKind = "station"
	SectionSegment    SectionKind = "segment"
	SectionSubSegment SectionKind = "sub_segment"
)

// Section is a spatial claim over part of one floor. Every kind normalizes
// to a set of wraparound-aware chunk intervals, so overlap checks are
// uniform regardless of how the section was constructed. A sub-segment's
// interval lies inside its parent segment's interval, which makes a
// sub-segment conflict with a claim on the whole segment.
type Section struct {
	Kind      SectionKind
	Floor     int
	Intervals []ringmap.ChunkInterval

	// Station is set for station and segment kinds; for sub-segments it
	// names the parent segment.
	Station int
}

// ChunksSection claims an explicit set of chunk indices on one floor.
// Runs of consecutive indices are merged into single intervals.
func ChunksSection(floor int, indices ...int) (Section, error) {
	if err := ringmap.ValidateFloor(floor); err != nil {
		return Section{}, err
	}
	if len(indices) == 0 {
		return Section{}, fmt.Errorf("chunks section requires at least one chunk index")
	}

	wrapped := make([]int, len(indices))
	for i, idx := range indices {
		w, err := ringmap.ValidateChunkIndex(idx)
		if err != nil {
			return Section{}, err
		}
		wrapped[i] = w
	}
	sort.Ints(wrapped)

	var intervals []ringmap.ChunkInterval
	start, end := wrapped[0], wrapped[0]
	for _, idx := range wrapped[1:] {
		if idx == end || idx == end+1 {
			end = idx
			continue
		}
		intervals = append(intervals, ringmap.NewChunkInterval(start, end))
		start, end = idx, idx
	}
	intervals = append(intervals, ringmap.NewChunkInterval(start, end))

	return Section{Kind: SectionChunks, Floor: floor, Intervals: intervals}, nil
}

// StationSection claims the chunk span of a station hub.
func StationSection(floor, station int) (Section, error) {
	if err := ringmap.ValidateFloor(floor); err != nil {
		return Section{}, err
	}
	span, err := ringmap.StationChunkSpan(station)
	if err != nil {
		return Section{}, err
	}
	return Section{
		Kind:      SectionStation,
		Floor:     floor,
		Intervals: []ringmap.ChunkInterval{span},
		Station:   station,
	}, nil
}

// SegmentSection claims the full ring segment east of a station.
func SegmentSection(floor, station int) (Section, error) {
	if err := ringmap.ValidateFloor(floor); err != nil {
		return Section{}, err
	}
	span, err := ringmap.SegmentChunkSpan(station)
	if err != nil {
		return Section{}, err
	}
	return Section{
		Kind:      SectionSegment,
		Floor:     floor,
		Intervals: []ringmap.ChunkInterval{span},
		Station:   station,
	}, nil
}

// SubSegmentSection claims a chunk interval inside the segment east of a
// station. The interval must lie entirely within the parent segment.
func SubSegmentSection(floor, station, startIndex, endIndex int) (Section, error) {
	if err := ringmap.ValidateFloor(floor); err != nil {
		return Section{}, err
	}
	parent, err := ringmap.SegmentChunkSpan(station)
	if err != nil {
		return Section{}, err
	}
	sub := ringmap.NewChunkInterval(startIndex, endIndex)
	if !parent.Contains(sub.Start) || !parent.Contains(sub.End) || sub.Len() > parent.Len() {
		return Section{}, fmt.Errorf("sub-segment [%d, %d] is not contained in segment %d [%d, %d]",
			sub.Start, sub.End, station, parent.Start, parent.End)
	}
	return Section{
		Kind:      SectionSubSegment,
		Floor:     floor,
		Intervals: []ringmap.ChunkInterval{sub},
		Station:   station,
	}, nil
}

// Overlaps reports whether two sections share any chunk. Sections on
// different floors never overlap.
func (s Section) Overlaps(other Section) bool {
	if s.Floor != other.Floor {
		return false
	}
	for _, a := range s.Intervals {
		for _, b := range other.Intervals {
			if a.Overlaps(b) {
				return true
			}
		}
	}
	return false
}

// Contains reports whether the section covers a chunk.
func (s Section) Contains(id ringmap.ChunkID) bool {
	if id.Floor != s.Floor {
		return false
	}
	for _, iv := range s.Intervals {
		if iv.Contains(id.Index) {
			return true
		}
	}
	return false
}

// ChunkIDs enumerates every chunk the section covers.
func (s Section) ChunkIDs() []ringmap.ChunkID {
	var ids []ringmap.ChunkID
	for _, iv := range s.Intervals {
		idx := iv.Start
		for i := 0; i < iv.Len(); i++ {
			ids = append(ids, ringmap.ChunkID{Floor: s.Floor, Index: idx})
			idx = ringmap.WrapChunkIndex(idx + 1)
		}
	}
	return ids
}

func (s Section) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s floor=%d", s.Kind, s.Floor)
	for _, iv := range s.Intervals {
		fmt.Fprintf(&b, " [%d-%d]", iv.Start, iv.End)
	}
	return b.String()
}
