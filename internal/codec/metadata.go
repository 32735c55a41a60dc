package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ringworld/server/internal/world"
)

// Metadata format bytes. An explicit tag rather than magic-byte sniffing:
// the decoder never has to guess whether compression was applied.
const (
	metadataFormatRaw  = 0x00 // gob, uncompressed
	metadataFormatZstd = 0x01 // gob, zstd-compressed
)

// MetadataCompressThreshold is the serialized size above which the
// metadata blob is compressed.
const MetadataCompressThreshold = 1024

// EncodeMetadata serializes chunk attributes losslessly. Payloads above
// MetadataCompressThreshold are zstd-compressed; the leading format byte
// records which branch was taken.
func EncodeMetadata(attrs *world.ChunkAttributes) ([]byte, error) {
	if attrs == nil {
		attrs = &world.ChunkAttributes{}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(attrs); err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	if buf.Len() > MetadataCompressThreshold {
		compressed := zstdEncoder.EncodeAll(buf.Bytes(), nil)
		out := make([]byte, 0, len(compressed)+1)
		out = append(out, metadataFormatZstd)
		return append(out, compressed...), nil
	}

	out := make([]byte, 0, buf.Len()+1)
	out = append(out, metadataFormatRaw)
	return append(out, buf.Bytes()...), nil
}

// DecodeMetadata reverses EncodeMetadata exactly.
func DecodeMetadata(blob []byte) (*world.ChunkAttributes, error) {
	if len(blob) < 1 {
		return nil, fmt.Errorf("%w: empty metadata blob", ErrCorruptPayload)
	}

	payload := blob[1:]
	switch blob[0] {
	case metadataFormatRaw:
	case metadataFormatZstd:
		raw, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptPayload, err)
		}
		payload = raw
	default:
		return nil, fmt.Errorf("%w: unknown metadata format byte 0x%02x", ErrCorruptPayload, blob[0])
	}

	var attrs world.ChunkAttributes
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&attrs); err != nil {
		return nil, fmt.Errorf("%w: gob: %v", ErrCorruptPayload, err)
	}
	return &attrs, nil
}
