package protocol

import (
	"io"
)

// Message is one decoded protocol message.
// The set of implementations is closed; see the Msg* constants.
type Message interface {
	Type() MessageType
	encodePayload(e *Encoder)
	decodePayload(d *Decoder) error
}

// newMessage returns an empty message for a wire type.
func newMessage(mt MessageType) Message {
	switch mt {
	case MsgKeepAlive:
		return &KeepAlive{}
	case MsgClientHello:
		return &ClientHello{}
	case MsgProtoUnsupported:
		return &ProtoUnsupported{}
	case MsgServerHelloComplete:
		return &ServerHelloComplete{}
	case MsgServerHello:
		return &ServerHello{}
	case MsgClientHelloComplete:
		return &ClientHelloComplete{}
	case MsgEntryAssignment:
		return &EntryAssignment{}
	case MsgEntryUpdate:
		return &EntryUpdate{}
	case MsgFlagsUpdate:
		return &FlagsUpdate{}
	case MsgEntryDelete:
		return &EntryDelete{}
	case MsgClearEntries:
		return &ClearEntries{}
	}
	return nil
}

// Serialize encodes m as a complete frame.
func Serialize(m Message) ([]byte, error) {
	e := NewEncoder()
	e.WriteByte(byte(m.Type()))
	e.WriteUint16(0) // length, patched below
	m.encodePayload(e)
	if err := e.Err(); err != nil {
		return nil, err
	}
	buf := e.Bytes()
	n := len(buf) - FrameHeaderSize
	if n > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}
	buf[1] = byte(n >> 8)
	buf[2] = byte(n)
	return buf, nil
}

// Deserialize decodes the first frame in data and returns the message and
// the number of bytes it occupied.
//
// If data holds less than one frame, it returns ErrIncompleteFrame and 0.
// If the frame is complete but undecodable, it returns a *DecodeError and
// the full frame length, so the caller can skip it.
func Deserialize(data []byte) (Message, int, error) {
	f, n, err := DecodeFrame(data)
	if err != nil {
		return nil, 0, err
	}
	m := newMessage(f.Type)
	if m == nil {
		return nil, n, &DecodeError{Type: f.Type, Err: ErrUnknownMessageType}
	}
	d := NewDecoder(f.Payload)
	if err := m.decodePayload(d); err != nil {
		return nil, n, &DecodeError{Type: f.Type, Err: err}
	}
	if !d.EOF() {
		return nil, n, &DecodeError{Type: f.Type, Err: ErrTrailingBytes}
	}
	return m, n, nil
}

// WriteMessage serializes m and writes it to w in a single Write call.
func WriteMessage(w io.Writer, m Message) error {
	data, err := Serialize(m)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadMessage reads and decodes one message from r. Undecodable frames are
// consumed and reported as *DecodeError, leaving r positioned at the next frame.
func ReadMessage(r io.Reader) (Message, error) {
	f, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	data, err := f.Encode()
	if err != nil {
		return nil, err
	}
	m, _, err := Deserialize(data)
	return m, err
}
