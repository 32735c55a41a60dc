package codec

import "errors"

var (
	// ErrCorruptPayload indicates a blob that cannot be decoded: bad magic,
	// unknown format version or flags, or truncated data.
	ErrCorruptPayload = errors.New("corrupt payload")

	// ErrInvalidGeometry indicates geometry rejected at encode time:
	// non-finite coordinates or values outside the valid world bounds.
	ErrInvalidGeometry = errors.New("invalid geometry")
)
