// Package codec encodes ordered argument lists for transport between the
// scheduling service and this SDK.
//
// The wire form is a single msgpack array. Arguments are decoded lazily:
// DecodeArgs returns one raw message per argument so callers can check the
// argument count before materializing values into handler parameter types.
package codec

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// RawArg is a single still-encoded argument.
type RawArg = msgpack.RawMessage

// EncodeArgs serializes args in order. A nil slice encodes as an empty list
// so both ends agree on "no arguments".
func EncodeArgs(args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	b, err := msgpack.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("codec: encode args: %w", err)
	}
	return b, nil
}

// DecodeArgs splits an encoded argument list without decoding the elements.
func DecodeArgs(b []byte) ([]RawArg, error) {
	var raws []msgpack.RawMessage
	if err := msgpack.Unmarshal(b, &raws); err != nil {
		return nil, fmt.Errorf("codec: decode args: %w", err)
	}
	return raws, nil
}

// DecodeInto materializes one raw argument as a value of type t.
func DecodeInto(raw RawArg, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t)
	if err := msgpack.Unmarshal(raw, v.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("codec: decode arg as %s: %w", t, err)
	}
	return v.Elem(), nil
}
