package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/ringworld/server/internal/ringmap"
	"github.com/ringworld/server/internal/world"
)

const (
	// GeometryMagic identifies the chunk geometry binary format
	GeometryMagic = "RGCH"
	// GeometryVersion is the current format version
	GeometryVersion = 1

	// Flag bits in the header
	flagIndices32 = 0x01 // 32-bit face indices (16-bit otherwise)
	flagDeltaEnc  = 0x02 // varint delta-encoded vertices (absolute int32 otherwise)
)

// Quantization steps in meters. Decoded vertices land within half a step
// of the original on each axis.
const (
	QuantumX = 0.01  // 1cm along the ring axis
	QuantumY = 0.001 // 1mm across the ring
	QuantumZ = 0.01  // 1cm of height
)

// Valid world bounds for geometry coordinates. Values outside are rejected
// at encode time, never clamped.
const (
	maxCrossAxis = 13000.0 // half the widest chunk plus margin, meters
	minHeight    = -500.0
	maxHeight    = 2000.0
)

// headerSize is the fixed preamble: magic, version, flags, vertex count,
// index count, reserved.
const headerSize = 4 + 1 + 1 + 4 + 4 + 2

func newZstdEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	return enc
}

func newZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return dec
}

var (
	zstdEncoder = newZstdEncoder()
	zstdDecoder = newZstdDecoder()
)

type quantizedVertex struct {
	X, Y, Z int32 // X is relative to the chunk's quantized base
}

// EncodeGeometry converts chunk geometry to its compressed binary form.
// Encoding is deterministic: the same input always produces the same bytes.
func EncodeGeometry(geometry *world.ChunkGeometry) ([]byte, error) {
	if geometry == nil {
		return nil, fmt.Errorf("%w: geometry is nil", ErrInvalidGeometry)
	}

	quantized, baseX, err := quantizeVertices(geometry.Vertices)
	if err != nil {
		return nil, err
	}

	indexCount := len(geometry.Faces) * 3
	use32 := len(quantized) >= 65536

	for i, face := range geometry.Faces {
		if len(face) != 3 {
			return nil, fmt.Errorf("%w: face %d has %d indices (need 3)", ErrInvalidGeometry, i, len(face))
		}
		for _, idx := range face {
			if idx < 0 || idx >= len(quantized) {
				return nil, fmt.Errorf("%w: face %d references vertex %d of %d", ErrInvalidGeometry, i, idx, len(quantized))
			}
		}
	}

	absolute := encodeVerticesAbsolute(quantized)
	delta := encodeVerticesDelta(quantized)
	useDelta := len(delta) < len(absolute)

	vertexData := absolute
	if useDelta {
		vertexData = delta
	}

	var flags uint8
	if use32 {
		flags |= flagIndices32
	}
	if useDelta {
		flags |= flagDeltaEnc
	}

	var buf bytes.Buffer
	buf.WriteString(GeometryMagic)
	buf.WriteByte(GeometryVersion)
	buf.WriteByte(flags)

	var counts [10]byte
	binary.LittleEndian.PutUint32(counts[0:4], uint32(len(quantized)))
	binary.LittleEndian.PutUint32(counts[4:8], uint32(indexCount))
	// counts[8:10] reserved, zero
	buf.Write(counts[:])

	var base [8]byte
	binary.LittleEndian.PutUint64(base[:], uint64(baseX))
	buf.Write(base[:])

	buf.Write(vertexData)

	for _, face := range geometry.Faces {
		for _, idx := range face {
			if use32 {
				var b [4]byte
				binary.LittleEndian.PutUint32(b[:], uint32(idx))
				buf.Write(b[:])
			} else {
				var b [2]byte
				binary.LittleEndian.PutUint16(b[:], uint16(idx))
				buf.Write(b[:])
			}
		}
	}

	if err := writeTrailer(&buf, geometry); err != nil {
		return nil, err
	}

	return zstdEncoder.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeGeometry reverses EncodeGeometry. Vertex positions are reproduced
// within half a quantization step per axis.
func DecodeGeometry(blob []byte) (*world.ChunkGeometry, error) {
	raw, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptPayload, err)
	}

	if len(raw) < headerSize+8 {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", ErrCorruptPayload, len(raw))
	}
	if string(raw[0:4]) != GeometryMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptPayload, raw[0:4])
	}
	if raw[4] != GeometryVersion {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrCorruptPayload, raw[4])
	}
	flags := raw[5]
	if flags&^uint8(flagIndices32|flagDeltaEnc) != 0 {
		return nil, fmt.Errorf("%w: unknown format flags 0x%02x", ErrCorruptPayload, flags)
	}
	vertexCount := int(binary.LittleEndian.Uint32(raw[6:10]))
	indexCount := int(binary.LittleEndian.Uint32(raw[10:14]))
	if indexCount%3 != 0 {
		return nil, fmt.Errorf("%w: index count %d is not a multiple of 3", ErrCorruptPayload, indexCount)
	}

	baseX := int64(binary.LittleEndian.Uint64(raw[headerSize : headerSize+8]))
	rest := raw[headerSize+8:]

	var quantized []quantizedVertex
	if flags&flagDeltaEnc != 0 {
		quantized, rest, err = decodeVerticesDelta(rest, vertexCount)
	} else {
		quantized, rest, err = decodeVerticesAbsolute(rest, vertexCount)
	}
	if err != nil {
		return nil, err
	}

	use32 := flags&flagIndices32 != 0
	indexWidth := 2
	if use32 {
		indexWidth = 4
	}
	if len(rest) < indexCount*indexWidth {
		return nil, fmt.Errorf("%w: truncated index data", ErrCorruptPayload)
	}

	faces := make([][]int, 0, indexCount/3)
	for i := 0; i < indexCount; i += 3 {
		face := make([]int, 3)
		for j := 0; j < 3; j++ {
			off := (i + j) * indexWidth
			if use32 {
				face[j] = int(binary.LittleEndian.Uint32(rest[off : off+4]))
			} else {
				face[j] = int(binary.LittleEndian.Uint16(rest[off : off+2]))
			}
			if face[j] >= vertexCount {
				return nil, fmt.Errorf("%w: face index %d exceeds vertex count %d", ErrCorruptPayload, face[j], vertexCount)
			}
		}
		faces = append(faces, face)
	}
	rest = rest[indexCount*indexWidth:]

	geometry := &world.ChunkGeometry{
		Vertices: make([][]float64, vertexCount),
		Faces:    faces,
	}
	for i, v := range quantized {
		geometry.Vertices[i] = []float64{
			float64(baseX+int64(v.X)) * QuantumX,
			float64(v.Y) * QuantumY,
			float64(v.Z) * QuantumZ,
		}
	}

	if err := readTrailer(rest, geometry); err != nil {
		return nil, err
	}

	return geometry, nil
}

func quantizeVertices(vertices [][]float64) ([]quantizedVertex, int64, error) {
	quantized := make([]quantizedVertex, len(vertices))
	var baseX int64

	for i, vertex := range vertices {
		if len(vertex) < 3 {
			return nil, 0, fmt.Errorf("%w: vertex %d has %d coordinates (need 3)", ErrInvalidGeometry, i, len(vertex))
		}
		x, y, z := vertex[0], vertex[1], vertex[2]

		if !isFinite(x) || !isFinite(y) || !isFinite(z) {
			return nil, 0, fmt.Errorf("%w: vertex %d contains non-finite coordinates", ErrInvalidGeometry, i)
		}
		if x < 0 || x > ringmap.RingCircumference {
			return nil, 0, fmt.Errorf("%w: vertex %d ring position %f outside [0, %d]", ErrInvalidGeometry, i, x, ringmap.RingCircumference)
		}
		if y < -maxCrossAxis || y > maxCrossAxis {
			return nil, 0, fmt.Errorf("%w: vertex %d cross-axis offset %f outside ±%g", ErrInvalidGeometry, i, y, maxCrossAxis)
		}
		if z < minHeight || z > maxHeight {
			return nil, 0, fmt.Errorf("%w: vertex %d height %f outside [%g, %g]", ErrInvalidGeometry, i, z, minHeight, maxHeight)
		}

		// Ring positions quantize beyond int32 range, so X is stored
		// relative to the first vertex's quantized position.
		qx := int64(math.Round(x / QuantumX))
		if i == 0 {
			baseX = qx
		}
		relX := qx - baseX
		if relX < math.MinInt32 || relX > math.MaxInt32 {
			return nil, 0, fmt.Errorf("%w: vertex %d spans too far from chunk base", ErrInvalidGeometry, i)
		}

		quantized[i] = quantizedVertex{
			X: int32(relX),
			Y: int32(math.Round(y / QuantumY)),
			Z: int32(math.Round(z / QuantumZ)),
		}
	}

	return quantized, baseX, nil
}

func encodeVerticesAbsolute(vertices []quantizedVertex) []byte {
	out := make([]byte, 0, len(vertices)*12)
	var b [4]byte
	for _, v := range vertices {
		binary.LittleEndian.PutUint32(b[:], uint32(v.X))
		out = append(out, b[:]...)
		binary.LittleEndian.PutUint32(b[:], uint32(v.Y))
		out = append(out, b[:]...)
		binary.LittleEndian.PutUint32(b[:], uint32(v.Z))
		out = append(out, b[:]...)
	}
	return out
}

func encodeVerticesDelta(vertices []quantizedVertex) []byte {
	out := make([]byte, 0, len(vertices)*6)
	var prev quantizedVertex
	for _, v := range vertices {
		out = binary.AppendVarint(out, int64(v.X)-int64(prev.X))
		out = binary.AppendVarint(out, int64(v.Y)-int64(prev.Y))
		out = binary.AppendVarint(out, int64(v.Z)-int64(prev.Z))
		prev = v
	}
	return out
}

func decodeVerticesAbsolute(data []byte, count int) ([]quantizedVertex, []byte, error) {
	need := count * 12
	if len(data) < need {
		return nil, nil, fmt.Errorf("%w: truncated vertex data", ErrCorruptPayload)
	}
	vertices := make([]quantizedVertex, count)
	for i := 0; i < count; i++ {
		off := i * 12
		vertices[i] = quantizedVertex{
			X: int32(binary.LittleEndian.Uint32(data[off : off+4])),
			Y: int32(binary.LittleEndian.Uint32(data[off+4 : off+8])),
			Z: int32(binary.LittleEndian.Uint32(data[off+8 : off+12])),
		}
	}
	return vertices, data[need:], nil
}

func decodeVerticesDelta(data []byte, count int) ([]quantizedVertex, []byte, error) {
	// Each component takes at least one varint byte
	if len(data) < count*3 {
		return nil, nil, fmt.Errorf("%w: truncated delta vertex data", ErrCorruptPayload)
	}
	vertices := make([]quantizedVertex, count)
	var prev quantizedVertex
	for i := 0; i < count; i++ {
		var comps [3]int32
		for j := 0; j < 3; j++ {
			d, n := binary.Varint(data)
			if n <= 0 {
				return nil, nil, fmt.Errorf("%w: truncated delta vertex data", ErrCorruptPayload)
			}
			data = data[n:]
			switch j {
			case 0:
				comps[0] = int32(int64(prev.X) + d)
			case 1:
				comps[1] = int32(int64(prev.Y) + d)
			case 2:
				comps[2] = int32(int64(prev.Z) + d)
			}
		}
		vertices[i] = quantizedVertex{X: comps[0], Y: comps[1], Z: comps[2]}
		prev = vertices[i]
	}
	return vertices, data, nil
}

// writeTrailer appends the small material/reference metadata after the
// vertex and index sections: material IDs, geometry type, and extents.
func writeTrailer(buf *bytes.Buffer, geometry *world.ChunkGeometry) error {
	if len(geometry.Materials) > math.MaxUint16 {
		return fmt.Errorf("%w: %d materials exceed format limit", ErrInvalidGeometry, len(geometry.Materials))
	}
	var b [8]byte
	binary.LittleEndian.PutUint16(b[:2], uint16(len(geometry.Materials)))
	buf.Write(b[:2])
	for _, m := range geometry.Materials {
		binary.LittleEndian.PutUint16(b[:2], m)
		buf.Write(b[:2])
	}

	if len(geometry.Type) > math.MaxUint8 {
		return fmt.Errorf("%w: geometry type name too long", ErrInvalidGeometry)
	}
	buf.WriteByte(uint8(len(geometry.Type)))
	buf.WriteString(geometry.Type)

	binary.LittleEndian.PutUint64(b[:], math.Float64bits(geometry.Width))
	buf.Write(b[:])
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(geometry.Length))
	buf.Write(b[:])
	return nil
}

func readTrailer(data []byte, geometry *world.ChunkGeometry) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: truncated material data", ErrCorruptPayload)
	}
	materialCount := int(binary.LittleEndian.Uint16(data[:2]))
	data = data[2:]
	if len(data) < materialCount*2 {
		return fmt.Errorf("%w: truncated material data", ErrCorruptPayload)
	}
	if materialCount > 0 {
		geometry.Materials = make([]uint16, materialCount)
		for i := 0; i < materialCount; i++ {
			geometry.Materials[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
		}
	}
	data = data[materialCount*2:]

	if len(data) < 1 {
		return fmt.Errorf("%w: truncated type data", ErrCorruptPayload)
	}
	typeLen := int(data[0])
	data = data[1:]
	if len(data) < typeLen+16 {
		return fmt.Errorf("%w: truncated trailer", ErrCorruptPayload)
	}
	geometry.Type = string(data[:typeLen])
	data = data[typeLen:]

	geometry.Width = math.Float64frombits(binary.LittleEndian.Uint64(data[:8]))
	geometry.Length = math.Float64frombits(binary.LittleEndian.Uint64(data[8:16]))
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
