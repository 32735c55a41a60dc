package codec

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/ringworld/server/internal/world"
)

func testGeometry() *world.ChunkGeometry {
	return &world.ChunkGeometry{
		Type: "ring_floor",
		Vertices: [][]float64{
			{123456789.124, -250.5013, 0.0},
			{123456790.0, -250.0, 0.02},
			{123457789.999, 250.5, 20.01},
			{123456789.5, 250.0, 20.0},
		},
		Faces:     [][]int{{0, 1, 2}, {0, 2, 3}},
		Materials: []uint16{1, 7},
		Width:     501.0,
		Length:    1000.0,
	}
}

func TestGeometryRoundTrip(t *testing.T) {
	original := testGeometry()

	blob, err := EncodeGeometry(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeGeometry(blob)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(decoded.Vertices) != len(original.Vertices) {
		t.Fatalf("vertex count = %d, expected %d", len(decoded.Vertices), len(original.Vertices))
	}

	bounds := []float64{QuantumX / 2, QuantumY / 2, QuantumZ / 2}
	for i, v := range original.Vertices {
		for axis := 0; axis < 3; axis++ {
			diff := math.Abs(decoded.Vertices[i][axis] - v[axis])
			// Allow for float rounding on top of the quantization bound
			if diff > bounds[axis]*1.001 {
				t.Errorf("vertex %d axis %d: error %g exceeds bound %g", i, axis, diff, bounds[axis])
			}
		}
	}

	if len(decoded.Faces) != len(original.Faces) {
		t.Fatalf("face count = %d, expected %d", len(decoded.Faces), len(original.Faces))
	}
	for i, face := range original.Faces {
		for j := 0; j < 3; j++ {
			if decoded.Faces[i][j] != face[j] {
				t.Errorf("face %d index %d = %d, expected %d", i, j, decoded.Faces[i][j], face[j])
			}
		}
	}

	if len(decoded.Materials) != 2 || decoded.Materials[0] != 1 || decoded.Materials[1] != 7 {
		t.Errorf("materials = %v, expected [1 7]", decoded.Materials)
	}
	if decoded.Type != "ring_floor" {
		t.Errorf("type = %q, expected ring_floor", decoded.Type)
	}
	if decoded.Width != 501.0 || decoded.Length != 1000.0 {
		t.Errorf("extents = (%g, %g), expected (501, 1000)", decoded.Width, decoded.Length)
	}
}

func TestGeometryEncodeDeterministic(t *testing.T) {
	g := testGeometry()

	first, err := EncodeGeometry(g)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	second, err := EncodeGeometry(g)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("encoding the same geometry twice produced different bytes")
	}
}

func TestGeometryDeltaEncodingChosen(t *testing.T) {
	// A dense strip of near-identical vertices compresses far better with
	// deltas; verify the choice round-trips.
	g := &world.ChunkGeometry{Type: "ring_floor", Width: 10, Length: 1000}
	for i := 0; i < 200; i++ {
		g.Vertices = append(g.Vertices, []float64{1000000.0 + float64(i)*0.05, 1.0, 0.5})
	}
	for i := 0; i+2 < 200; i++ {
		g.Faces = append(g.Faces, []int{i, i + 1, i + 2})
	}

	blob, err := EncodeGeometry(g)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeGeometry(blob)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i, v := range g.Vertices {
		if math.Abs(decoded.Vertices[i][0]-v[0]) > QuantumX/2*1.001 {
			t.Fatalf("vertex %d: delta decode out of bound", i)
		}
	}
}

func Test32BitIndicesOverVertexLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("large geometry test skipped in short mode")
	}

	g := &world.ChunkGeometry{Type: "ring_floor", Width: 100, Length: 1000}
	const n = 66000
	for i := 0; i < n; i++ {
		g.Vertices = append(g.Vertices, []float64{500000.0 + float64(i%100000)*0.01, 0, 0})
	}
	for i := 0; i+2 < n; i += 3 {
		g.Faces = append(g.Faces, []int{i, i + 1, i + 2})
	}

	blob, err := EncodeGeometry(g)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeGeometry(blob)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded.Vertices) != n {
		t.Errorf("vertex count = %d, expected %d", len(decoded.Vertices), n)
	}
	last := decoded.Faces[len(decoded.Faces)-1]
	want := g.Faces[len(g.Faces)-1]
	if last[2] != want[2] {
		t.Errorf("last face index = %d, expected %d", last[2], want[2])
	}
}

func TestEncodeRejectsInvalidGeometry(t *testing.T) {
	tests := []struct {
		name     string
		geometry *world.ChunkGeometry
	}{
		{"nil geometry", nil},
		{"NaN coordinate", &world.ChunkGeometry{
			Vertices: [][]float64{{math.NaN(), 0, 0}},
		}},
		{"infinite coordinate", &world.ChunkGeometry{
			Vertices: [][]float64{{0, math.Inf(1), 0}},
		}},
		{"ring position out of bounds", &world.ChunkGeometry{
			Vertices: [][]float64{{-5, 0, 0}},
		}},
		{"cross-axis out of bounds", &world.ChunkGeometry{
			Vertices: [][]float64{{100, 99999, 0}},
		}},
		{"height out of bounds", &world.ChunkGeometry{
			Vertices: [][]float64{{100, 0, -9999}},
		}},
		{"short vertex", &world.ChunkGeometry{
			Vertices: [][]float64{{1, 2}},
		}},
		{"face index out of range", &world.ChunkGeometry{
			Vertices: [][]float64{{100, 0, 0}, {101, 0, 0}, {102, 0, 0}},
			Faces:    [][]int{{0, 1, 3}},
		}},
		{"short face", &world.ChunkGeometry{
			Vertices: [][]float64{{100, 0, 0}, {101, 0, 0}, {102, 0, 0}},
			Faces:    [][]int{{0, 1}},
		}},
		{"quad face", &world.ChunkGeometry{
			Vertices: [][]float64{{100, 0, 0}, {101, 0, 0}, {102, 0, 0}, {103, 0, 0}},
			Faces:    [][]int{{0, 1, 2, 3}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeGeometry(tt.geometry)
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("expected ErrInvalidGeometry, got %v", err)
			}
		})
	}
}

func TestDecodeRejectsCorruptPayload(t *testing.T) {
	valid, err := EncodeGeometry(testGeometry())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	raw, err := zstdDecoder.DecodeAll(valid, nil)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	raw = append([]byte(nil), raw...)
	raw[0] = 'X'
	badMagic := zstdEncoder.EncodeAll(raw, nil)

	raw2, _ := zstdDecoder.DecodeAll(valid, nil)
	raw2 = append([]byte(nil), raw2...)
	raw2[4] = 99 // unknown version
	badVersion := zstdEncoder.EncodeAll(raw2, nil)

	raw3, _ := zstdDecoder.DecodeAll(valid, nil)
	truncated := zstdEncoder.EncodeAll(raw3[:len(raw3)/2], nil)

	tests := []struct {
		name string
		blob []byte
	}{
		{"not zstd", []byte("definitely not a chunk")},
		{"empty", nil},
		{"bad magic", badMagic},
		{"unknown version", badVersion},
		{"truncated", truncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeGeometry(tt.blob)
			if !errors.Is(err, ErrCorruptPayload) {
				t.Errorf("expected ErrCorruptPayload, got %v", err)
			}
		})
	}
}
