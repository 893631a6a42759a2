package protocol

import "math"

// MaxLength is the largest string, byte slice or array that fits the
// 16-bit length prefix.
const MaxLength = math.MaxUint16

// Encoder appends wire data to an internal buffer.
// The first oversized string or array is recorded and reported by Err;
// later writes still append so offsets stay predictable.
type Encoder struct {
	buf []byte
	err error
}

// NewEncoder creates a new encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{
		buf: make([]byte, 0, 64),
	}
}

// Reset empties the encoder, reusing the underlying buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
	e.err = nil
}

// Bytes returns the encoded bytes. The returned slice is valid until
// the next call to Reset or any Write method.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes currently encoded.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Err returns the first error recorded while encoding.
func (e *Encoder) Err() error {
	return e.err
}

// WriteByte appends a single byte. It implements io.ByteWriter and
// never fails.
func (e *Encoder) WriteByte(b byte) error {
	e.buf = append(e.buf, b)
	return nil
}

// WriteBytes appends raw bytes.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteBool appends a boolean as 0x00 or 0x01.
func (e *Encoder) WriteBool(b bool) {
	if b {
		e.buf = append(e.buf, 0x01)
	} else {
		e.buf = append(e.buf, 0x00)
	}
}

// WriteUint16 appends a uint16 in big-endian byte order.
func (e *Encoder) WriteUint16(v uint16) {
	e.buf = append(e.buf, byte(v>>8), byte(v))
}

// WriteFloat64 appends a float64 in IEEE 754 format, little-endian.
// Doubles are the only little-endian quantity on the wire.
func (e *Encoder) WriteFloat64(v float64) {
	u := math.Float64bits(v)
	e.buf = append(e.buf,
		byte(u), byte(u>>8), byte(u>>16), byte(u>>24),
		byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56))
}

func (e *Encoder) writeLen(n int) {
	if n > MaxLength {
		if e.err == nil {
			e.err = ErrValueTooLarge
		}
		n = MaxLength
	}
	e.WriteUint16(uint16(n))
}

// WriteString appends a u16 length-prefixed UTF-8 string.
func (e *Encoder) WriteString(s string) {
	e.writeLen(len(s))
	if len(s) > MaxLength {
		s = s[:MaxLength]
	}
	e.buf = append(e.buf, s...)
}

// WriteLenBytes appends u16 length-prefixed bytes.
func (e *Encoder) WriteLenBytes(b []byte) {
	e.writeLen(len(b))
	if len(b) > MaxLength {
		b = b[:MaxLength]
	}
	e.buf = append(e.buf, b...)
}

// WriteValue appends the payload of v without its type tag.
func (e *Encoder) WriteValue(v Value) {
	switch v.Type {
	case TypeBoolean:
		e.WriteBool(v.Bool)
	case TypeDouble:
		e.WriteFloat64(v.Double)
	case TypeString:
		e.WriteString(v.Str)
	case TypeRaw, TypeRPC:
		e.WriteLenBytes(v.Raw)
	case TypeBooleanArray:
		n := e.arrayLen(len(v.Bools))
		for _, b := range v.Bools[:n] {
			e.WriteBool(b)
		}
	case TypeDoubleArray:
		n := e.arrayLen(len(v.Doubles))
		for _, f := range v.Doubles[:n] {
			e.WriteFloat64(f)
		}
	case TypeStringArray:
		n := e.arrayLen(len(v.Strings))
		for _, s := range v.Strings[:n] {
			e.WriteString(s)
		}
	default:
		if e.err == nil {
			e.err = ErrUnknownValueType
		}
	}
}

func (e *Encoder) arrayLen(n int) int {
	e.writeLen(n)
	if n > MaxLength {
		return MaxLength
	}
	return n
}
