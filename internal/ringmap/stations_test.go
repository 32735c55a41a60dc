package ringmap

import "testing"

func TestStationChunkIndex(t *testing.T) {
	tests := []struct {
		name     string
		station  int
		expected int
	}{
		{"station 0 at origin", 0, 0},
		{"station 1", 1, 22000},
		{"station 6 opposite side", 6, 132000},
		{"station 11", 11, 242000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StationChunkIndex(tt.station)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("StationChunkIndex(%d) = %d, expected %d", tt.station, got, tt.expected)
			}
		})
	}

	if _, err := StationChunkIndex(-1); err == nil {
		t.Error("expected error for negative station")
	}
	if _, err := StationChunkIndex(StationCount); err == nil {
		t.Error("expected error for station out of range")
	}
}

func TestChunkIntervalContains(t *testing.T) {
	tests := []struct {
		name     string
		iv       ChunkInterval
		index    int
		expected bool
	}{
		{"inside plain interval", NewChunkInterval(10, 20), 15, true},
		{"at start", NewChunkInterval(10, 20), 10, true},
		{"at end", NewChunkInterval(10, 20), 20, true},
		{"outside plain interval", NewChunkInterval(10, 20), 21, false},
		{"inside seam interval high side", NewChunkInterval(ChunkCount-5, 5), ChunkCount - 1, true},
		{"inside seam interval low side", NewChunkInterval(ChunkCount-5, 5), 3, true},
		{"outside seam interval", NewChunkInterval(ChunkCount-5, 5), 100, false},
		{"single chunk", NewChunkInterval(7, 7), 7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.iv.Contains(tt.index); got != tt.expected {
				t.Errorf("Contains(%d) = %v, expected %v", tt.index, got, tt.expected)
			}
		})
	}
}

func TestChunkIntervalOverlaps(t *testing.T) {
	tests := []struct {
		name     string
		a        ChunkInterval
		b        ChunkInterval
		expected bool
	}{
		{"disjoint", NewChunkInterval(10, 20), NewChunkInterval(30, 40), false},
		{"touching ends", NewChunkInterval(10, 20), NewChunkInterval(20, 30), true},
		{"nested", NewChunkInterval(10, 40), NewChunkInterval(20, 30), true},
		{"seam interval vs low chunks", NewChunkInterval(ChunkCount-5, 5), NewChunkInterval(0, 2), true},
		{"seam interval vs high chunks", NewChunkInterval(ChunkCount-5, 5), NewChunkInterval(ChunkCount-10, ChunkCount-4), true},
		{"seam interval disjoint", NewChunkInterval(ChunkCount-5, 5), NewChunkInterval(100, 200), false},
		{"two seam intervals", NewChunkInterval(ChunkCount-10, 2), NewChunkInterval(ChunkCount-2, 8), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.expected {
				t.Errorf("Overlaps = %v, expected %v", got, tt.expected)
			}
			// Overlap is symmetric
			if got := tt.b.Overlaps(tt.a); got != tt.expected {
				t.Errorf("Overlaps (reversed) = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestChunkIntervalLen(t *testing.T) {
	if got := NewChunkInterval(10, 20).Len(); got != 11 {
		t.Errorf("Len = %d, expected 11", got)
	}
	if got := NewChunkInterval(ChunkCount-5, 4).Len(); got != 10 {
		t.Errorf("seam Len = %d, expected 10", got)
	}
	if got := NewChunkInterval(7, 7).Len(); got != 1 {
		t.Errorf("single chunk Len = %d, expected 1", got)
	}
}

func TestSegmentChunkSpan(t *testing.T) {
	// Segment 0 runs from the east edge of station 0 to the west edge of station 1
	seg, err := SegmentChunkSpan(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.Start != StationHalfSpanChunks+1 {
		t.Errorf("segment 0 start = %d, expected %d", seg.Start, StationHalfSpanChunks+1)
	}
	if seg.End != 22000-StationHalfSpanChunks-1 {
		t.Errorf("segment 0 end = %d, expected %d", seg.End, 22000-StationHalfSpanChunks-1)
	}

	// Segment 11 crosses the ring seam
	seg11, err := SegmentChunkSpan(11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg11.Start <= seg11.End {
		t.Errorf("segment 11 should cross the seam, got [%d, %d]", seg11.Start, seg11.End)
	}
	if !seg11.Contains(ChunkCount - 1) || !seg11.Contains(0) {
		t.Error("segment 11 should contain both sides of the seam")
	}

	// Segments never overlap their bounding stations
	st0, _ := StationChunkSpan(0)
	if seg.Overlaps(st0) {
		t.Error("segment 0 should not overlap station 0")
	}
}

func TestNearestStation(t *testing.T) {
	station, distance := NearestStation(1)
	if station != 0 || distance != 1 {
		t.Errorf("NearestStation(1) = (%d, %d), expected (0, 1)", station, distance)
	}

	// A chunk just west of the seam is nearest to station 0 across the seam
	station, distance = NearestStation(ChunkCount - 2)
	if station != 0 || distance != 2 {
		t.Errorf("NearestStation(%d) = (%d, %d), expected (0, 2)", ChunkCount-2, station, distance)
	}
}
