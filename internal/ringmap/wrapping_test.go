package ringmap

import "testing"

func TestWrapPosition(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected int64
	}{
		{"zero", 0, 0},
		{"within range", 1000000, 1000000},
		{"at circumference", RingCircumference, 0},
		{"just over circumference", RingCircumference + 100, 100},
		{"double circumference", RingCircumference * 2, 0},
		{"negative", -100, RingCircumference - 100},
		{"negative large", -RingCircumference, 0},
		{"negative over circumference", -RingCircumference - 100, RingCircumference - 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WrapPosition(tt.input)
			if result != tt.expected {
				t.Errorf("WrapPosition(%d) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPositionToChunkIndex(t *testing.T) {
	tests := []struct {
		name     string
		position int64
		expected int
	}{
		{"zero", 0, 0},
		{"first chunk", 500, 0},
		{"second chunk", 1500, 1},
		{"chunk 100", 100000, 100},
		{"last chunk start", int64(ChunkCount-1) * ChunkLength, ChunkCount - 1},
		{"last meter before seam", int64(ChunkCount)*ChunkLength - 1, ChunkCount - 1},
		{"wraps to zero at seam", int64(ChunkCount) * ChunkLength, 0},
		{"negative wraps", -500, ChunkCount - 1},
		{"negative large", -RingCircumference, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PositionToChunkIndex(tt.position)
			if result != tt.expected {
				t.Errorf("PositionToChunkIndex(%d) = %d, expected %d", tt.position, result, tt.expected)
			}
		})
	}
}

func TestWrapChunkIndex(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"zero", 0, 0},
		{"within range", 1000, 1000},
		{"at max", ChunkCount - 1, ChunkCount - 1},
		{"at max+1 wraps to zero", ChunkCount, 0},
		{"double wraps", ChunkCount * 2, 0},
		{"negative wraps", -1, ChunkCount - 1},
		{"negative large", -ChunkCount, 0},
		{"negative over", -ChunkCount - 1, ChunkCount - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WrapChunkIndex(tt.input)
			if result != tt.expected {
				t.Errorf("WrapChunkIndex(%d) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestChunkIndexCenterRoundTrip(t *testing.T) {
	// positionFromIndex(indexFromPosition(p)) must land within one chunk length of p
	positions := []int64{0, 499, 500, 999, 1000, 123456789, RingCircumference - 1}
	for _, p := range positions {
		idx := PositionToChunkIndex(p)
		center := ChunkIndexCenter(idx)
		if d := Distance(p, int64(center)); d > ChunkLength {
			t.Errorf("position %d: center of chunk %d is %.1f, distance %d exceeds one chunk length", p, idx, center, d)
		}
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		pos1     int64
		pos2     int64
		expected int64
	}{
		{"same position", 1000, 1000, 0},
		{"close positions", 1000, 2000, 1000},
		{"wrapped shorter", 1000, RingCircumference - 1000, 2000},
		{"wrapped longer", RingCircumference/2 - 1000, RingCircumference/2 + 1000, 2000},
		{"at boundaries", 0, RingCircumference - 1, 1},
		{"negative positions", -1000, 1000, 2000},
		{"half way", 0, RingCircumference / 2, RingCircumference / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Distance(tt.pos1, tt.pos2)
			if result != tt.expected {
				t.Errorf("Distance(%d, %d) = %d, expected %d", tt.pos1, tt.pos2, result, tt.expected)
			}
		})
	}
}

func TestChunkDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        int
		b        int
		expected int
	}{
		{"same chunk", 5, 5, 0},
		{"adjacent", 5, 6, 1},
		{"across seam", ChunkCount - 1, 0, 1},
		{"across seam far side", ChunkCount - 2, 1, 3},
		{"half ring", 0, ChunkCount / 2, ChunkCount / 2},
		{"naive subtraction would be wrong", 100, ChunkCount - 100, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ChunkDistance(tt.a, tt.b)
			if result != tt.expected {
				t.Errorf("ChunkDistance(%d, %d) = %d, expected %d", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestValidateFloor(t *testing.T) {
	if err := ValidateFloor(FloorMin); err != nil {
		t.Errorf("floor %d should be valid: %v", FloorMin, err)
	}
	if err := ValidateFloor(FloorMax); err != nil {
		t.Errorf("floor %d should be valid: %v", FloorMax, err)
	}
	if err := ValidateFloor(FloorMin - 1); err == nil {
		t.Error("expected error for floor below minimum")
	}
	if err := ValidateFloor(FloorMax + 1); err == nil {
		t.Error("expected error for floor above maximum")
	}
}
