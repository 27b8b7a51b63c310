package store

import (
	"fmt"

	"github.com/roach88/rulefire/internal/ir"
)

// marshalValue converts a fact snapshot to canonical JSON TEXT.
func marshalValue(v ir.Value) (string, error) {
	if v == nil {
		v = ir.Null{}
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses canonical JSON TEXT back into a Value. Integers
// above 2^53 keep their precision.
func unmarshalValue(data string) (ir.Value, error) {
	if data == "" {
		return ir.Null{}, nil
	}
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// marshalTuple stores handles as a canonical JSON array of integers.
func marshalTuple(tuple []ir.FactHandle) (string, error) {
	list := make(ir.List, len(tuple))
	for i, h := range tuple {
		list[i] = ir.Int(h)
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal tuple: %w", err)
	}
	return string(data), nil
}

func unmarshalTuple(data string) ([]ir.FactHandle, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal tuple: %w", err)
	}
	list, ok := v.(ir.List)
	if !ok {
		return nil, fmt.Errorf("unmarshal tuple: expected array, got %s", ir.Kind(v))
	}
	out := make([]ir.FactHandle, len(list))
	for i, elem := range list {
		n, ok := elem.(ir.Int)
		if !ok {
			return nil, fmt.Errorf("unmarshal tuple: [%d] is %s, not int", i, ir.Kind(elem))
		}
		out[i] = ir.FactHandle(n)
	}
	return out, nil
}
