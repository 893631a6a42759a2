package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameEncodeDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantLen int
	}{
		{
			name:    "empty_payload",
			frame:   Frame{Type: MsgKeepAlive, Payload: []byte{}},
			wantLen: FrameHeaderSize,
		},
		{
			name:    "with_payload",
			frame:   Frame{Type: MsgEntryDelete, Payload: []byte{0x00, 0x07}},
			wantLen: FrameHeaderSize + 2,
		},
		{
			name:    "max_payload",
			frame:   Frame{Type: MsgEntryUpdate, Payload: make([]byte, MaxPayloadSize)},
			wantLen: FrameHeaderSize + MaxPayloadSize,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := tc.frame.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if len(encoded) != tc.wantLen {
				t.Errorf("Encode() length = %d, want %d", len(encoded), tc.wantLen)
			}

			decoded, n, err := DecodeFrame(encoded)
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if n != tc.wantLen {
				t.Errorf("DecodeFrame() n = %d, want %d", n, tc.wantLen)
			}
			if decoded.Type != tc.frame.Type {
				t.Errorf("Decoded type = %v, want %v", decoded.Type, tc.frame.Type)
			}
			if !bytes.Equal(decoded.Payload, tc.frame.Payload) {
				t.Errorf("Decoded payload mismatch")
			}
		})
	}
}

func TestFrameTooLarge(t *testing.T) {
	f := Frame{Type: MsgEntryUpdate, Payload: make([]byte, MaxPayloadSize+1)}
	if _, err := f.Encode(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("Encode() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeFrameIncomplete(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"partial_header", []byte{0x11, 0x00}},
		{"partial_payload", []byte{0x13, 0x00, 0x02, 0x00}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, n, err := DecodeFrame(tc.data)
			if !errors.Is(err, ErrIncompleteFrame) {
				t.Errorf("DecodeFrame() error = %v, want ErrIncompleteFrame", err)
			}
			if n != 0 {
				t.Errorf("DecodeFrame() n = %d, want 0", n)
			}
		})
	}
}

func TestDecodeFrameIgnoresTrailing(t *testing.T) {
	data := []byte{0x13, 0x00, 0x02, 0x00, 0x05, 0xAA, 0xBB}
	f, n, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if n != 5 {
		t.Errorf("n = %d, want 5", n)
	}
	if len(f.Payload) != 2 {
		t.Errorf("payload length = %d, want 2", len(f.Payload))
	}
}

func TestReadWriteFrame(t *testing.T) {
	var buf bytes.Buffer

	frames := []*Frame{
		{Type: MsgKeepAlive},
		{Type: MsgEntryDelete, Payload: []byte{0x00, 0x01}},
	}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}

	for i, want := range frames {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame(%d) error = %v", i, err)
		}
		if got.Type != want.Type || !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("ReadFrame(%d) = %+v, want %+v", i, got, want)
		}
	}

	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
	}
}

func TestMessageTypeString(t *testing.T) {
	if got := MsgEntryAssignment.String(); got != "EntryAssignment" {
		t.Errorf("String() = %q", got)
	}
	if got := MessageType(0x7F).String(); got != "MessageType(0x7f)" {
		t.Errorf("String() = %q", got)
	}
}
