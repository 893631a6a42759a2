package protocol

import (
	"fmt"
	"io"
)

// Frame constants.
const (
	// FrameHeaderSize is the size of the frame header in bytes.
	FrameHeaderSize = 3

	// MaxPayloadSize is the maximum payload size (2^16 - 1 bytes).
	MaxPayloadSize = 65535

	// ProtocolVersion is the wire revision spoken by this package.
	ProtocolVersion uint16 = 0x0300

	// DefaultPort is the conventional TCP port. Engines take the address
	// as configuration; nothing in this package listens on it.
	DefaultPort = 1735
)

// MessageType identifies the type of frame.
type MessageType uint8

const (
	MsgKeepAlive           MessageType = 0x00
	MsgClientHello         MessageType = 0x01
	MsgProtoUnsupported    MessageType = 0x02
	MsgServerHelloComplete MessageType = 0x03
	MsgServerHello         MessageType = 0x04
	MsgClientHelloComplete MessageType = 0x05
	MsgEntryAssignment     MessageType = 0x10
	MsgEntryUpdate         MessageType = 0x11
	MsgFlagsUpdate         MessageType = 0x12
	MsgEntryDelete         MessageType = 0x13
	MsgClearEntries        MessageType = 0x14
)

// String returns the string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MsgKeepAlive:
		return "KeepAlive"
	case MsgClientHello:
		return "ClientHello"
	case MsgProtoUnsupported:
		return "ProtoUnsupported"
	case MsgServerHelloComplete:
		return "ServerHelloComplete"
	case MsgServerHello:
		return "ServerHello"
	case MsgClientHelloComplete:
		return "ClientHelloComplete"
	case MsgEntryAssignment:
		return "EntryAssignment"
	case MsgEntryUpdate:
		return "EntryUpdate"
	case MsgFlagsUpdate:
		return "FlagsUpdate"
	case MsgEntryDelete:
		return "EntryDelete"
	case MsgClearEntries:
		return "ClearEntries"
	default:
		return fmt.Sprintf("MessageType(0x%02x)", uint8(mt))
	}
}

// Frame is one undecoded message: header type plus raw payload.
//
// Wire format (3 bytes header + variable payload):
//
//	┌─────────────┬───────────────────────────────┐
//	│ Type        │ Payload Length                │
//	│ (1 byte)    │ (2 bytes, big-endian)         │
//	└─────────────┴───────────────────────────────┘
//	│                                             │
//	│  Payload (Length bytes)                     │
//	│                                             │
type Frame struct {
	Type    MessageType
	Payload []byte
}

// Encode serializes the frame to bytes.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, FrameHeaderSize+len(f.Payload))
	buf[0] = byte(f.Type)
	buf[1] = byte(len(f.Payload) >> 8)
	buf[2] = byte(len(f.Payload))
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf, nil
}

// FrameLength reports the total length of the frame starting at data[0].
// It returns ErrIncompleteFrame if the header or payload is not fully present.
func FrameLength(data []byte) (int, error) {
	if len(data) < FrameHeaderSize {
		return 0, ErrIncompleteFrame
	}
	n := FrameHeaderSize + (int(data[1])<<8 | int(data[2]))
	if len(data) < n {
		return 0, ErrIncompleteFrame
	}
	return n, nil
}

// DecodeFrame splits the first frame off data. The payload aliases data.
func DecodeFrame(data []byte) (*Frame, int, error) {
	n, err := FrameLength(data)
	if err != nil {
		return nil, 0, err
	}
	return &Frame{
		Type:    MessageType(data[0]),
		Payload: data[FrameHeaderSize:n],
	}, n, nil
}

// ReadFrame reads one complete frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := int(header[1])<<8 | int(header[2])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &Frame{Type: MessageType(header[0]), Payload: payload}, nil
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
