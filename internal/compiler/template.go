package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/rulefire/internal/ir"
)

// placeholderPattern matches ${$var} and ${$var.field.path}.
var placeholderPattern = regexp.MustCompile(`\$\{(\$?[A-Za-z_][A-Za-z0-9_]*)((?:\.[A-Za-z_][A-Za-z0-9_]*)*)\}`)

// template builds a value from the resolved declaration values of a firing.
type template interface {
	eval(values []ir.Value) (ir.Value, error)
}

type constTemplate struct{ v ir.Value }

// eval clones so that two firings never insert the same Record.
func (t constTemplate) eval([]ir.Value) (ir.Value, error) {
	return ir.Clone(t.v), nil
}

type refTemplate struct {
	name  ir.Variable
	index int
	path  string
}

func (t refTemplate) eval(values []ir.Value) (ir.Value, error) {
	v := values[t.index]
	if t.path == "" {
		return ir.Clone(v), nil
	}
	rec, ok := v.(ir.Record)
	if !ok {
		return nil, fmt.Errorf("${%s.%s}: %s is %s, not a record", t.name, t.path, t.name, ir.Kind(v))
	}
	field, ok := rec.Field(t.path)
	if !ok {
		return nil, fmt.Errorf("${%s.%s}: field not present", t.name, t.path)
	}
	return ir.Clone(field), nil
}

// concatTemplate renders literal text and references into one string.
type concatTemplate struct {
	literals []string // len(refs)+1
	refs     []refTemplate
}

func (t concatTemplate) eval(values []ir.Value) (ir.Value, error) {
	var b strings.Builder
	for i, ref := range t.refs {
		b.WriteString(t.literals[i])
		v, err := ref.eval(values)
		if err != nil {
			return nil, err
		}
		s, err := render(v)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	b.WriteString(t.literals[len(t.refs)])
	return ir.String(b.String()), nil
}

type listTemplate []template

func (t listTemplate) eval(values []ir.Value) (ir.Value, error) {
	out := make(ir.List, len(t))
	for i, elem := range t {
		v, err := elem.eval(values)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type recordTemplate map[string]template

func (t recordTemplate) eval(values []ir.Value) (ir.Value, error) {
	out := make(ir.Record, len(t))
	for k, elem := range t {
		v, err := elem.eval(values)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// render formats a value for string interpolation.
func render(v ir.Value) (string, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return strconv.FormatInt(int64(val), 10), nil
	case ir.Bool:
		return strconv.FormatBool(bool(val)), nil
	case ir.Null:
		return "null", nil
	default:
		b, err := ir.MarshalCanonical(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// compileTemplate turns a concrete CUE value into a template. Strings may
// reference declarations with ${$name} or ${$name.field}; a string that is
// exactly one reference keeps the referenced value's type.
func compileTemplate(v cue.Value, scope map[ir.Variable]int) (template, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return constTemplate{ir.Null{}}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return constTemplate{ir.Bool(b)}, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return constTemplate{ir.Int(n)}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t, err := compileString(s, scope)
		if err != nil {
			return nil, &CompileError{Field: "template", Message: err.Error(), Pos: v.Pos()}
		}
		return t, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var out listTemplate
		for iter.Next() {
			elem, err := compileTemplate(iter.Value(), scope)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		if out == nil {
			out = listTemplate{}
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := recordTemplate{}
		for iter.Next() {
			elem, err := compileTemplate(iter.Value(), scope)
			if err != nil {
				return nil, err
			}
			out[iter.Label()] = elem
		}
		return out, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "type",
			Message: "float values are not allowed in facts - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func compileString(s string, scope map[ir.Variable]int) (template, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return constTemplate{ir.String(s)}, nil
	}

	var t concatTemplate
	last := 0
	for _, m := range matches {
		name := ir.Variable(s[m[2]:m[3]])
		index, ok := scope[name]
		if !ok {
			return nil, fmt.Errorf("%s is not a declaration of this rule", name)
		}
		t.literals = append(t.literals, s[last:m[0]])
		t.refs = append(t.refs, refTemplate{
			name:  name,
			index: index,
			path:  strings.TrimPrefix(s[m[4]:m[5]], "."),
		})
		last = m[1]
	}
	t.literals = append(t.literals, s[last:])

	if len(t.refs) == 1 && t.literals[0] == "" && t.literals[1] == "" {
		return t.refs[0], nil
	}
	return t, nil
}
