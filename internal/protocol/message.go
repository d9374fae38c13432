package protocol

import (
	"errors"
	"fmt"
)

// ErrOddPairs is returned when an alternating key/value list has a dangling key.
var ErrOddPairs = errors.New("key/value list has odd length")

// ErrBadKey is returned when a parameter key is not a small integer.
var ErrBadKey = errors.New("parameter key must be an integer in [0, 255]")

// Param is one key/value entry of an outbound operation.
type Param struct {
	Key   byte
	Value any
}

// P builds a Param.
func P(key byte, value any) Param {
	return Param{Key: key, Value: value}
}

// Pairs converts an alternating key/value list into Params.
//
// Postcondition: Returns the ordered parameters, or ErrOddPairs / ErrBadKey.
func Pairs(kv ...any) ([]Param, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("%w: %d entries", ErrOddPairs, len(kv))
	}
	out := make([]Param, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := ToInt(kv[i])
		if !ok || k < 0 || k > 255 {
			return nil, fmt.Errorf("%w: %v at index %d", ErrBadKey, kv[i], i)
		}
		out = append(out, Param{Key: byte(k), Value: kv[i+1]})
	}
	return out, nil
}

// Flatten returns the alternating wire form of params.
func Flatten(params []Param) []any {
	out := make([]any, 0, len(params)*2)
	for _, p := range params {
		out = append(out, int(p.Key), p.Value)
	}
	return out
}

// Params is a decoded key/value table from a response or event.
type Params map[byte]any

// ParamsFromPairs rebuilds a table from the alternating wire form.
//
// Postcondition: Returns the table, or ErrOddPairs / ErrBadKey.
func ParamsFromPairs(vals []any) (Params, error) {
	list, err := Pairs(vals...)
	if err != nil {
		return nil, err
	}
	out := make(Params, len(list))
	for _, p := range list {
		out[p.Key] = p.Value
	}
	return out, nil
}

// Has reports whether key is present.
func (p Params) Has(key byte) bool {
	_, ok := p[key]
	return ok
}

// String returns the value at key as a string.
func (p Params) String(key byte) (string, bool) {
	return ToString(p[key])
}

// Int returns the value at key as an int.
func (p Params) Int(key byte) (int, bool) {
	return ToInt(p[key])
}

// Bool returns the value at key as a bool.
func (p Params) Bool(key byte) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

// Map returns the value at key as a JSON object.
func (p Params) Map(key byte) (map[string]any, bool) {
	v, ok := p[key].(map[string]any)
	return v, ok
}

// Slice returns the value at key as a JSON array.
func (p Params) Slice(key byte) ([]any, bool) {
	v, ok := p[key].([]any)
	return v, ok
}

// Operation is a client to server request.
type Operation struct {
	Code     byte
	Params   []Param
	Reliable bool
	Channel  int
}

// Param returns the value of the first parameter with key.
func (o Operation) Param(key byte) (any, bool) {
	for _, p := range o.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Response is the server's answer to an Operation.
type Response struct {
	Code    byte
	ErrCode int
	ErrMsg  string
	Params  Params
}

// OK reports whether the server accepted the operation.
func (r Response) OK() bool {
	return r.ErrCode == ErrOk
}

// Event is a server push.
type Event struct {
	Code   byte
	Params Params
}
