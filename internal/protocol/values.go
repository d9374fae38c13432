package protocol

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/goccy/go-json"
)

// ToInt converts any numeric wire value to int.
// Floats are accepted only when integral.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		if float32(math.Trunc(float64(n))) == n {
			return int(n), true
		}
	case float64:
		if math.Trunc(n) == n {
			return int(n), true
		}
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// ToString converts a wire value to a string. Numbers are not stringified.
func ToString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// ToStrings converts a JSON array of strings.
func ToStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// ToInts converts a JSON array of numbers.
func ToInts(v any) ([]int, bool) {
	list, ok := v.([]any)
	if !ok {
		if ints, ok := v.([]int); ok {
			return ints, true
		}
		return nil, false
	}
	out := make([]int, 0, len(list))
	for _, e := range list {
		n, ok := ToInt(e)
		if !ok {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

// DecodeValue parses JSON into the canonical in-memory form: objects become
// map[string]any, arrays []any, integral numbers int64 and the rest float64.
//
// Postcondition: Returns the decoded value or a non-nil error.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return canonical(v), nil
}

func canonical(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = canonical(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = canonical(e)
		}
		return t
	case json.Number:
		if i, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(string(t), 64); err == nil {
			return f
		}
		return string(t)
	default:
		return v
	}
}

// Normalize round-trips v through JSON so locally applied values compare
// equal to the same values later echoed by the server.
//
// Postcondition: Returns the canonical form of v, or an error if v cannot be encoded.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return DecodeValue(data)
}

// Equal compares two canonical values.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
