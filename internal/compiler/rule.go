package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rulefire/internal/consequence"
	"github.com/roach88/rulefire/internal/ir"
)

// CompileRule parses a CUE value into a consequence.Rule.
// Named blocks referenced by the rule are looked up in reg, which may be nil
// for rules that do not use one.
//
// The CUE value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: "older": { ... }`)
//	r, err := CompileRule(v.LookupPath(cue.ParsePath(`rule."older"`)), nil)
//
// A rule looks like:
//
//	rule: "birthday": {
//		bind: ["$p"]                      // tuple order of the match
//		declarations: ["$p"]              // action arguments (default: bind)
//		then: {
//			set:    [{var: "$p", field: "age", incr: 1}]
//			update: [{var: "$p", fields: ["age"]}]
//			insert: [{type: "Card", to: "${$p.name}"}]
//			delete: []
//		}
//	}
func CompileRule(v cue.Value, reg Registry) (*consequence.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rule := &consequence.Rule{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		rule.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	vars, err := parseBind(v)
	if err != nil {
		return nil, withRule(err, rule.ID)
	}
	rule.Context, err = ir.NewRuleContext(rule.ID, vars)
	if err != nil {
		return nil, withRule(&CompileError{Field: "bind", Message: err.Error(), Pos: v.Pos()}, rule.ID)
	}

	rule.Declarations, err = parseDeclarations(v, rule.Context)
	if err != nil {
		return nil, withRule(err, rule.ID)
	}

	prVal := v.LookupPath(cue.ParsePath("property_reactive"))
	if prVal.Exists() {
		rule.PropertyReactive, err = prVal.Bool()
		if err != nil {
			return nil, withRule(formatCUEError(err), rule.ID)
		}
	}

	rule.Consequence, err = parseThen(v, rule, reg)
	if err != nil {
		return nil, withRule(err, rule.ID)
	}

	if err := rule.Validate(); err != nil {
		return nil, &CompileError{Rule: rule.ID, Field: "rule", Message: err.Error(), Pos: v.Pos()}
	}

	return rule, nil
}

func withRule(err error, id string) error {
	if ce, ok := err.(*CompileError); ok && ce.Rule == "" {
		ce.Rule = id
	}
	return err
}

// parseBind reads the rule context: the pattern variables in tuple order.
func parseBind(v cue.Value) ([]ir.Variable, error) {
	bindVal := v.LookupPath(cue.ParsePath("bind"))
	if !bindVal.Exists() {
		return nil, &CompileError{
			Field:   "bind",
			Message: "bind is required",
			Pos:     v.Pos(),
		}
	}
	names, err := stringList(bindVal, "bind")
	if err != nil {
		return nil, err
	}
	vars := make([]ir.Variable, len(names))
	for i, n := range names {
		vars[i] = ir.Variable(n)
	}
	return vars, nil
}

// parseDeclarations reads the action's positional arguments. Without an
// explicit list every bound variable is passed whole, in bind order.
func parseDeclarations(v cue.Value, rc *ir.RuleContext) ([]ir.Declaration, error) {
	declVal := v.LookupPath(cue.ParsePath("declarations"))
	if !declVal.Exists() {
		decls := make([]ir.Declaration, rc.Len())
		for i, name := range rc.Variables() {
			decls[i] = ir.Declaration{Name: name, Index: i}
		}
		return decls, nil
	}

	iter, err := declVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.Declaration
	seen := make(map[ir.Variable]bool)
	for i := 0; iter.Next(); i++ {
		elem := iter.Value()
		d, err := parseDeclaration(elem, rc)
		if err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, &CompileError{
				Field:   fmt.Sprintf("declarations[%d]", i),
				Message: fmt.Sprintf("duplicate declaration %s", d.Name),
				Pos:     elem.Pos(),
			}
		}
		seen[d.Name] = true
		decls = append(decls, d)
	}
	return decls, nil
}

// parseDeclaration accepts "$p" or {name: "$age", from: "$p", field: "age"}.
func parseDeclaration(v cue.Value, rc *ir.RuleContext) (ir.Declaration, error) {
	if s, err := v.String(); err == nil {
		return declarationFor(ir.Variable(s), ir.Variable(s), "", rc, v.Pos())
	}

	name, err := requiredString(v, "name", "declarations")
	if err != nil {
		return ir.Declaration{}, err
	}
	from := name
	if fromVal := v.LookupPath(cue.ParsePath("from")); fromVal.Exists() {
		if from, err = fromVal.String(); err != nil {
			return ir.Declaration{}, formatCUEError(err)
		}
	}
	var field string
	if fieldVal := v.LookupPath(cue.ParsePath("field")); fieldVal.Exists() {
		if field, err = fieldVal.String(); err != nil {
			return ir.Declaration{}, formatCUEError(err)
		}
	}
	return declarationFor(ir.Variable(name), ir.Variable(from), field, rc, v.Pos())
}

func declarationFor(name, from ir.Variable, field string, rc *ir.RuleContext, pos token.Pos) (ir.Declaration, error) {
	index, ok := rc.Position(from)
	if !ok {
		return ir.Declaration{}, &CompileError{
			Field:   "declarations",
			Message: fmt.Sprintf("%s reads %s, which is not bound", name, from),
			Pos:     pos,
		}
	}
	return ir.Declaration{Name: name, Index: index, Field: field}, nil
}

// parseThen compiles the action: block, set statements and declared effects.
func parseThen(v cue.Value, rule *consequence.Rule, reg Registry) (*consequence.Spec, error) {
	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return nil, &CompileError{
			Field:   "then",
			Message: "then clause is required",
			Pos:     v.Pos(),
		}
	}

	scope := make(map[ir.Variable]int, len(rule.Declarations))
	for i, d := range rule.Declarations {
		scope[d.Name] = i
	}

	spec := &consequence.Spec{}
	block := &ruleBlock{arity: len(rule.Declarations)}

	if nameVal := thenVal.LookupPath(cue.ParsePath("block")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		named, ok := reg[name]
		if !ok {
			return nil, &CompileError{
				Field:   "then.block",
				Message: fmt.Sprintf("unknown block %q", name),
				Pos:     nameVal.Pos(),
			}
		}
		block.named = named
	}

	sets, err := parseSets(thenVal, rule.Declarations, scope)
	if err != nil {
		return nil, err
	}
	block.sets = sets
	if len(block.sets) > 0 || block.named != nil {
		spec.Block = block
	}

	spec.Updates, err = parseUpdates(thenVal, sets)
	if err != nil {
		return nil, err
	}

	if insVal := thenVal.LookupPath(cue.ParsePath("insert")); insVal.Exists() {
		iter, err := insVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			t, err := compileTemplate(iter.Value(), scope)
			if err != nil {
				return nil, err
			}
			spec.Inserts = append(spec.Inserts, t.eval)
		}
	}

	if delVal := thenVal.LookupPath(cue.ParsePath("delete")); delVal.Exists() {
		names, err := stringList(delVal, "then.delete")
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			spec.Deletes = append(spec.Deletes, ir.Variable(n))
		}
	}

	return spec, nil
}

// parseSets reads {var, field, value} or {var, field, incr} statements.
// The target must be a whole-fact declaration so the edit lands on the fact.
func parseSets(thenVal cue.Value, decls []ir.Declaration, scope map[ir.Variable]int) ([]setStmt, error) {
	setVal := thenVal.LookupPath(cue.ParsePath("set"))
	if !setVal.Exists() {
		return nil, nil
	}
	iter, err := setVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var sets []setStmt
	for iter.Next() {
		elem := iter.Value()
		target, err := requiredString(elem, "var", "then.set")
		if err != nil {
			return nil, err
		}
		field, err := requiredString(elem, "field", "then.set")
		if err != nil {
			return nil, err
		}
		index, ok := scope[ir.Variable(target)]
		if !ok || decls[index].Field != "" {
			return nil, &CompileError{
				Field:   "then.set",
				Message: fmt.Sprintf("%s must be a whole-fact declaration", target),
				Pos:     elem.Pos(),
			}
		}
		if strings.Contains(field, ".") {
			return nil, &CompileError{
				Field:   "then.set",
				Message: fmt.Sprintf("field %q must be a top-level field", field),
				Pos:     elem.Pos(),
			}
		}

		s := setStmt{target: ir.Variable(target), index: index, field: field}
		valueVal := elem.LookupPath(cue.ParsePath("value"))
		incrVal := elem.LookupPath(cue.ParsePath("incr"))
		switch {
		case valueVal.Exists() && incrVal.Exists():
			return nil, &CompileError{Field: "then.set", Message: "value and incr are exclusive", Pos: elem.Pos()}
		case valueVal.Exists():
			s.value, err = compileTemplate(valueVal, scope)
			if err != nil {
				return nil, err
			}
		case incrVal.Exists():
			s.incr, err = incrVal.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
		default:
			return nil, &CompileError{Field: "then.set", Message: "value or incr is required", Pos: elem.Pos()}
		}
		sets = append(sets, s)
	}
	return sets, nil
}

// parseUpdates accepts "$p" or {var: "$p", fields: [...]}. Without explicit
// fields the mask is the set of fields the rule's set statements write to
// that variable, or the whole fact when there are none.
func parseUpdates(thenVal cue.Value, sets []setStmt) ([]ir.Update, error) {
	updVal := thenVal.LookupPath(cue.ParsePath("update"))
	if !updVal.Exists() {
		return nil, nil
	}
	iter, err := updVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var updates []ir.Update
	for iter.Next() {
		elem := iter.Value()
		var (
			target string
			fields []string
		)
		if s, err := elem.String(); err == nil {
			target = s
		} else {
			target, err = requiredString(elem, "var", "then.update")
			if err != nil {
				return nil, err
			}
			if fieldsVal := elem.LookupPath(cue.ParsePath("fields")); fieldsVal.Exists() {
				fields, err = stringList(fieldsVal, "then.update.fields")
				if err != nil {
					return nil, err
				}
			}
		}
		if fields == nil {
			for _, s := range sets {
				if string(s.target) == target {
					fields = append(fields, s.field)
				}
			}
		}
		updates = append(updates, ir.Update{
			Variable: ir.Variable(target),
			Mask:     ir.NewFieldMask(fields...),
		})
	}
	return updates, nil
}

func requiredString(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", name),
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a string", name),
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "must be a list of strings",
			Pos:     v.Pos(),
		}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: "must be a list of strings",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}
