package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType is the wire tag of an entry value.
type ValueType uint8

const (
	TypeBoolean      ValueType = 0x00
	TypeDouble       ValueType = 0x01
	TypeString       ValueType = 0x02
	TypeRaw          ValueType = 0x03
	TypeBooleanArray ValueType = 0x10
	TypeDoubleArray  ValueType = 0x11
	TypeStringArray  ValueType = 0x12
	TypeRPC          ValueType = 0x20 // Reserved, carried as raw bytes
)

// String returns the string representation of the value type.
func (t ValueType) String() string {
	switch t {
	case TypeBoolean:
		return "Boolean"
	case TypeDouble:
		return "Double"
	case TypeString:
		return "String"
	case TypeRaw:
		return "Raw"
	case TypeBooleanArray:
		return "BooleanArray"
	case TypeDoubleArray:
		return "DoubleArray"
	case TypeStringArray:
		return "StringArray"
	case TypeRPC:
		return "RPC"
	default:
		return fmt.Sprintf("ValueType(0x%02x)", uint8(t))
	}
}

// Valid reports whether t is a known value tag.
func (t ValueType) Valid() bool {
	switch t {
	case TypeBoolean, TypeDouble, TypeString, TypeRaw,
		TypeBooleanArray, TypeDoubleArray, TypeStringArray, TypeRPC:
		return true
	}
	return false
}

// ParseValueType parses the name produced by ValueType.String, case-insensitively.
func ParseValueType(s string) (ValueType, error) {
	for _, t := range []ValueType{TypeBoolean, TypeDouble, TypeString, TypeRaw,
		TypeBooleanArray, TypeDoubleArray, TypeStringArray, TypeRPC} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownValueType, s)
}

// Value is a tagged union over the supported entry value shapes.
// Only the field matching Type is meaningful.
type Value struct {
	Type    ValueType
	Bool    bool
	Double  float64
	Str     string
	Raw     []byte // Raw and RPC
	Bools   []bool
	Doubles []float64
	Strings []string
}

func BooleanValue(b bool) Value          { return Value{Type: TypeBoolean, Bool: b} }
func DoubleValue(f float64) Value        { return Value{Type: TypeDouble, Double: f} }
func StringValue(s string) Value         { return Value{Type: TypeString, Str: s} }
func RawValue(b []byte) Value            { return Value{Type: TypeRaw, Raw: b} }
func RPCValue(b []byte) Value            { return Value{Type: TypeRPC, Raw: b} }
func BooleanArrayValue(b []bool) Value   { return Value{Type: TypeBooleanArray, Bools: b} }
func DoubleArrayValue(f []float64) Value { return Value{Type: TypeDoubleArray, Doubles: f} }
func StringArrayValue(s []string) Value  { return Value{Type: TypeStringArray, Strings: s} }

// Equal reports whether v and o carry the same tag and contents.
// Doubles compare by bit pattern so NaN equals itself.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeBoolean:
		return v.Bool == o.Bool
	case TypeDouble:
		return math.Float64bits(v.Double) == math.Float64bits(o.Double)
	case TypeString:
		return v.Str == o.Str
	case TypeRaw, TypeRPC:
		return string(v.Raw) == string(o.Raw)
	case TypeBooleanArray:
		if len(v.Bools) != len(o.Bools) {
			return false
		}
		for i := range v.Bools {
			if v.Bools[i] != o.Bools[i] {
				return false
			}
		}
		return true
	case TypeDoubleArray:
		if len(v.Doubles) != len(o.Doubles) {
			return false
		}
		for i := range v.Doubles {
			if math.Float64bits(v.Doubles[i]) != math.Float64bits(o.Doubles[i]) {
				return false
			}
		}
		return true
	case TypeStringArray:
		if len(v.Strings) != len(o.Strings) {
			return false
		}
		for i := range v.Strings {
			if v.Strings[i] != o.Strings[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	c := v
	if v.Raw != nil {
		c.Raw = append([]byte(nil), v.Raw...)
	}
	if v.Bools != nil {
		c.Bools = append([]bool(nil), v.Bools...)
	}
	if v.Doubles != nil {
		c.Doubles = append([]float64(nil), v.Doubles...)
	}
	if v.Strings != nil {
		c.Strings = append([]string(nil), v.Strings...)
	}
	return c
}

// Interface returns the Go value held by v.
func (v Value) Interface() any {
	switch v.Type {
	case TypeBoolean:
		return v.Bool
	case TypeDouble:
		return v.Double
	case TypeString:
		return v.Str
	case TypeRaw, TypeRPC:
		return v.Raw
	case TypeBooleanArray:
		return v.Bools
	case TypeDoubleArray:
		return v.Doubles
	case TypeStringArray:
		return v.Strings
	}
	return nil
}

// String formats v for logs and the CLI.
func (v Value) String() string {
	switch v.Type {
	case TypeBoolean:
		return strconv.FormatBool(v.Bool)
	case TypeDouble:
		return strconv.FormatFloat(v.Double, 'g', -1, 64)
	case TypeString:
		return strconv.Quote(v.Str)
	case TypeRaw, TypeRPC:
		return fmt.Sprintf("%x", v.Raw)
	default:
		return fmt.Sprint(v.Interface())
	}
}

// ValueOf infers a Value from a Go value. An empty []any has no element
// to infer from and becomes an empty BooleanArray.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case bool:
		return BooleanValue(t), nil
	case float64:
		return DoubleValue(t), nil
	case float32:
		return DoubleValue(float64(t)), nil
	case int:
		return DoubleValue(float64(t)), nil
	case int32:
		return DoubleValue(float64(t)), nil
	case int64:
		return DoubleValue(float64(t)), nil
	case uint32:
		return DoubleValue(float64(t)), nil
	case string:
		return StringValue(t), nil
	case []byte:
		return RawValue(t), nil
	case []bool:
		return BooleanArrayValue(t), nil
	case []float64:
		return DoubleArrayValue(t), nil
	case []string:
		return StringArrayValue(t), nil
	case []any:
		return valueOfSlice(t)
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
}

func valueOfSlice(items []any) (Value, error) {
	if len(items) == 0 {
		return BooleanArrayValue([]bool{}), nil
	}
	switch items[0].(type) {
	case bool:
		out := make([]bool, len(items))
		for i, it := range items {
			b, ok := it.(bool)
			if !ok {
				return Value{}, fmt.Errorf("%w: mixed array element %T", ErrUnsupportedValue, it)
			}
			out[i] = b
		}
		return BooleanArrayValue(out), nil
	case float64, int:
		out := make([]float64, len(items))
		for i, it := range items {
			switch n := it.(type) {
			case float64:
				out[i] = n
			case int:
				out[i] = float64(n)
			default:
				return Value{}, fmt.Errorf("%w: mixed array element %T", ErrUnsupportedValue, it)
			}
		}
		return DoubleArrayValue(out), nil
	case string:
		out := make([]string, len(items))
		for i, it := range items {
			s, ok := it.(string)
			if !ok {
				return Value{}, fmt.Errorf("%w: mixed array element %T", ErrUnsupportedValue, it)
			}
			out[i] = s
		}
		return StringArrayValue(out), nil
	}
	return Value{}, fmt.Errorf("%w: array of %T", ErrUnsupportedValue, items[0])
}
