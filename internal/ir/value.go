package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the value shapes a fact can take.
// Only Null, String, Int, Bool, List and Record implement it.
// There is no float variant: floats break deterministic hashing.
type Value interface {
	value() // Sealed
}

// Null is an explicit absent value (e.g. an unset Result field).
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string value.
type String string

func (String) value() {}

// Int is an integer value. Always int64, never float64.
type Int int64

func (Int) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// List is an ordered sequence of values.
type List []Value

func (List) value() {}

// Record is a map of field names to values.
//
// Record has reference semantics: working memory hands the same map to every
// firing that binds the fact, so an action body that assigns a field changes
// the fact in place. A declared update (or Mutator.Update) then tells working
// memory about the change.
type Record map[string]Value

func (Record) value() {}

// Field returns the value at a dotted path ("address.city").
// An empty path returns the record itself.
func (r Record) Field(path string) (Value, bool) {
	if path == "" {
		return r, true
	}
	var cur Value = r
	for _, part := range strings.Split(path, ".") {
		rec, ok := cur.(Record)
		if !ok {
			return nil, false
		}
		next, ok := rec[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// TypeName returns the conventional "type" field of a record fact,
// or "" when the record carries none.
func (r Record) TypeName() string {
	if s, ok := r["type"].(String); ok {
		return string(s)
	}
	return ""
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which orders some keys differently.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Kind returns a short name for the value's shape, used in error messages.
func Kind(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Record:
		return "record"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Equal reports whether two values are structurally equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Record:
		bv, ok := b.(Record)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Clone returns a deep copy of v. Records and lists are copied; scalars are
// returned as is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Record:
		out := make(Record, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// FromAny converts a decoded Go value (from YAML, JSON or CUE) into a Value.
// Floats are rejected; nil becomes Null.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed in fact values: %s", val)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not allowed in fact values: %v", val)
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		out := make(Record, len(val))
		for k, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = conv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToAny converts a Value into plain Go values (map[string]any, []any, ...)
// suitable for encoding/json or yaml output.
func ToAny(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Record:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler for Record with RFC 8785 key order.
// Not canonical (HTML escaping is left on); use MarshalCanonical for hashing.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(r[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for List.
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalValue marshals any Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		return val.MarshalJSON()
	case Record:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalJSON implements json.Unmarshaler for Record.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	rec, ok := v.(Record)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", Kind(v))
	}
	*r = rec
	return nil
}

// UnmarshalValue decodes JSON into a Value. Numbers are decoded with
// UseNumber so integers above 2^53 keep their precision; floats are rejected.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}
