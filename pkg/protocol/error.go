package protocol

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrIncompleteFrame means more bytes are needed before a frame can be
	// decoded. It is not a corruption error.
	ErrIncompleteFrame = errors.New("protocol: incomplete frame")

	ErrFrameTooLarge      = errors.New("protocol: frame payload too large")
	ErrUnknownMessageType = errors.New("protocol: unknown message type")
	ErrUnknownValueType   = errors.New("protocol: unknown value type")
	ErrValueTooLarge      = errors.New("protocol: value exceeds 16-bit length")
	ErrTrailingBytes      = errors.New("protocol: trailing bytes after payload")
	ErrUnsupportedValue   = errors.New("protocol: unsupported value")
)

// DecodeError reports a complete frame whose payload could not be decoded.
// Deserialize still returns the frame length alongside it so a stream
// reader can drop just that frame.
type DecodeError struct {
	Type MessageType
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode %s: %v", e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
