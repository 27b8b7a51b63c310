package ir

import (
	"fmt"
	"slices"
	"strings"
)

// FactHandle is an opaque identity token for one fact inside working memory.
//
// Handles are issued by working memory on insert and are the only way to
// address a fact for update or retraction. The zero handle is never issued.
// Handles are never reused, so a handle kept past its fact's retraction is
// detectably stale rather than silently pointing at another fact.
type FactHandle int64

// IsZero reports whether h is the zero (unbound) handle.
func (h FactHandle) IsZero() bool {
	return h == 0
}

// String implements fmt.Stringer.
func (h FactHandle) String() string {
	return fmt.Sprintf("#%d", int64(h))
}

// Fact is one slot of a match tuple: a handle and the value it carried when
// the match was read.
type Fact struct {
	Handle FactHandle `json:"handle"`
	Value  Value      `json:"value"`
}

// Variable is a symbolic name an action refers to, e.g. "$p1".
type Variable string

// Declaration identifies one required pattern variable of a rule.
//
// Index is the tuple position of the pattern the declaration reads. Field is
// an optional dotted projection applied to that fact's value; empty means
// the declaration binds the whole fact.
type Declaration struct {
	Name  Variable `json:"name"`
	Index int      `json:"index"`
	Field string   `json:"field,omitempty"`
}

// Extract applies the declaration's value-extraction rule to a fact value.
func (d Declaration) Extract(v Value) (Value, error) {
	if d.Field == "" {
		return v, nil
	}
	rec, ok := v.(Record)
	if !ok {
		return nil, fmt.Errorf("declaration %s: cannot project field %q from %s", d.Name, d.Field, Kind(v))
	}
	field, ok := rec.Field(d.Field)
	if !ok {
		return nil, fmt.Errorf("declaration %s: field %q not present", d.Name, d.Field)
	}
	return field, nil
}

// FieldMask describes which fields of a fact an update touched.
// The zero FieldMask means "unknown": every field is treated as changed.
type FieldMask struct {
	fields []string
}

// AllFields is the conservative mask: the whole fact changed.
var AllFields = FieldMask{}

// NewFieldMask returns a mask over the given field names.
// An empty list yields AllFields.
func NewFieldMask(fields ...string) FieldMask {
	if len(fields) == 0 {
		return AllFields
	}
	fs := slices.Clone(fields)
	slices.Sort(fs)
	return FieldMask{fields: slices.Compact(fs)}
}

// IsAll reports whether the mask covers the whole fact.
func (m FieldMask) IsAll() bool {
	return len(m.fields) == 0
}

// Fields returns the masked field names in sorted order, or nil for AllFields.
func (m FieldMask) Fields() []string {
	return slices.Clone(m.fields)
}

// Contains reports whether field is covered by the mask.
func (m FieldMask) Contains(field string) bool {
	if m.IsAll() {
		return true
	}
	_, found := slices.BinarySearch(m.fields, field)
	return found
}

// String implements fmt.Stringer.
func (m FieldMask) String() string {
	if m.IsAll() {
		return "*"
	}
	return strings.Join(m.fields, ",")
}

// Update is one declared update effect: the target variable and, when the
// rule compiler knows it, the set of fields the action changes.
type Update struct {
	Variable Variable  `json:"variable"`
	Mask     FieldMask `json:"-"`
}
