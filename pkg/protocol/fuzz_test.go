package protocol

import (
	"errors"
	"testing"
)

// FuzzDeserialize checks that arbitrary input never panics and that a
// reported length never exceeds the input.
func FuzzDeserialize(f *testing.F) {
	for _, m := range []Message{
		&KeepAlive{},
		&ClientHello{Version: ProtocolVersion, Name: "c"},
		&ServerHello{ServerID: "s", ClientID: "c"},
		&EntryAssignment{Name: "a", Value: DoubleArrayValue([]float64{1})},
		&EntryUpdate{ID: 1, Seq: 2, Value: StringArrayValue([]string{"x"})},
	} {
		data, err := Serialize(m)
		if err != nil {
			f.Fatalf("Serialize() error = %v", err)
		}
		f.Add(data)
	}
	f.Add([]byte{0x11, 0x00, 0x06, 0x00, 0x01, 0x00, 0x01, 0x07, 0x00})

	f.Fuzz(func(t *testing.T, data []byte) {
		m, n, err := Deserialize(data)
		if n > len(data) {
			t.Fatalf("n = %d exceeds input %d", n, len(data))
		}
		if errors.Is(err, ErrIncompleteFrame) && n != 0 {
			t.Fatalf("incomplete frame reported n = %d", n)
		}
		if err == nil {
			if _, err := Serialize(m); err != nil {
				t.Fatalf("re-Serialize() error = %v", err)
			}
		}
	})
}
