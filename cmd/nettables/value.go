package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/vango-dev/nettables/pkg/protocol"
)

// parseValue turns a command-line argument into a value. Without typ
// the argument is a boolean if it parses as one, then a double, and
// otherwise a string. Array types take comma-separated elements and raw
// takes hex.
func parseValue(typ, arg string) (protocol.Value, error) {
	if typ == "" {
		if arg == "true" || arg == "false" {
			return protocol.BooleanValue(arg == "true"), nil
		}
		if f, err := strconv.ParseFloat(arg, 64); err == nil {
			return protocol.DoubleValue(f), nil
		}
		return protocol.StringValue(arg), nil
	}

	t, err := protocol.ParseValueType(typ)
	if err != nil {
		return protocol.Value{}, err
	}
	switch t {
	case protocol.TypeBoolean:
		b, err := strconv.ParseBool(arg)
		return protocol.BooleanValue(b), err
	case protocol.TypeDouble:
		f, err := strconv.ParseFloat(arg, 64)
		return protocol.DoubleValue(f), err
	case protocol.TypeString:
		return protocol.StringValue(arg), nil
	case protocol.TypeRaw, protocol.TypeRPC:
		b, err := hex.DecodeString(arg)
		if err != nil {
			return protocol.Value{}, fmt.Errorf("raw value: %w", err)
		}
		if t == protocol.TypeRPC {
			return protocol.RPCValue(b), nil
		}
		return protocol.RawValue(b), nil
	case protocol.TypeBooleanArray:
		parts := splitList(arg)
		out := make([]bool, len(parts))
		for i, p := range parts {
			if out[i], err = strconv.ParseBool(p); err != nil {
				return protocol.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
		}
		return protocol.BooleanArrayValue(out), nil
	case protocol.TypeDoubleArray:
		parts := splitList(arg)
		out := make([]float64, len(parts))
		for i, p := range parts {
			if out[i], err = strconv.ParseFloat(p, 64); err != nil {
				return protocol.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
		}
		return protocol.DoubleArrayValue(out), nil
	case protocol.TypeStringArray:
		return protocol.StringArrayValue(splitList(arg)), nil
	}
	return protocol.Value{}, protocol.ErrUnsupportedValue
}

// splitList splits a comma-separated list. An empty argument is an
// empty list.
func splitList(arg string) []string {
	if strings.TrimSpace(arg) == "" {
		return []string{}
	}
	parts := strings.Split(arg, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
