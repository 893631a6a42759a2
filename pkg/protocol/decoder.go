package protocol

import (
	"fmt"
	"io"
	"math"
)

// Decoder reads wire data from a byte buffer.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a new decoder from the given byte slice.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF returns true if all bytes have been read.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes.
// The returned slice references the decoder's buffer; do not modify.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadBool reads a boolean. Any non-zero byte is true.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadUint16 reads a big-endian uint16.
func (d *Decoder) ReadUint16() (uint16, error) {
	if d.pos+2 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := uint16(d.buf[d.pos])<<8 | uint16(d.buf[d.pos+1])
	d.pos += 2
	return v, nil
}

// ReadFloat64 reads a little-endian IEEE 754 float64.
func (d *Decoder) ReadFloat64() (float64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+8]
	u := uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
	d.pos += 8
	return math.Float64frombits(u), nil
}

// ReadString reads a u16 length-prefixed string.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadLenBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadLenBytes reads u16 length-prefixed bytes.
// The returned slice references the decoder's buffer.
func (d *Decoder) ReadLenBytes() ([]byte, error) {
	n, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	return d.ReadBytes(int(n))
}

// ReadValueType reads a value tag and rejects unknown tags.
func (d *Decoder) ReadValueType() (ValueType, error) {
	b, err := d.ReadByte()
	if err != nil {
		return 0, err
	}
	t := ValueType(b)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownValueType, b)
	}
	return t, nil
}

// ReadValue reads a value payload of type t. The result owns its memory.
func (d *Decoder) ReadValue(t ValueType) (Value, error) {
	switch t {
	case TypeBoolean:
		b, err := d.ReadBool()
		return BooleanValue(b), err
	case TypeDouble:
		f, err := d.ReadFloat64()
		return DoubleValue(f), err
	case TypeString:
		s, err := d.ReadString()
		return StringValue(s), err
	case TypeRaw, TypeRPC:
		b, err := d.ReadLenBytes()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Raw: append([]byte{}, b...)}, nil
	case TypeBooleanArray:
		n, err := d.ReadUint16()
		if err != nil {
			return Value{}, err
		}
		out := make([]bool, n)
		for i := range out {
			if out[i], err = d.ReadBool(); err != nil {
				return Value{}, err
			}
		}
		return BooleanArrayValue(out), nil
	case TypeDoubleArray:
		n, err := d.ReadUint16()
		if err != nil {
			return Value{}, err
		}
		if int(n)*8 > d.Remaining() {
			return Value{}, io.ErrUnexpectedEOF
		}
		out := make([]float64, n)
		for i := range out {
			if out[i], err = d.ReadFloat64(); err != nil {
				return Value{}, err
			}
		}
		return DoubleArrayValue(out), nil
	case TypeStringArray:
		n, err := d.ReadUint16()
		if err != nil {
			return Value{}, err
		}
		if int(n)*2 > d.Remaining() {
			return Value{}, io.ErrUnexpectedEOF
		}
		out := make([]string, n)
		for i := range out {
			if out[i], err = d.ReadString(); err != nil {
				return Value{}, err
			}
		}
		return StringArrayValue(out), nil
	}
	return Value{}, fmt.Errorf("%w: 0x%02x", ErrUnknownValueType, uint8(t))
}
