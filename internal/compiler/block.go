package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/rulefire/internal/consequence"
	"github.com/roach88/rulefire/internal/ir"
)

// Registry maps block names used in rule files to Go implementations.
type Registry map[string]consequence.Block

// Names returns the registered block names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// setStmt writes one top-level field of a whole-fact declaration.
type setStmt struct {
	target ir.Variable
	index  int
	field  string
	value  template // nil when incr is used
	incr   int64
}

func (s setStmt) exec(values []ir.Value) error {
	rec, ok := values[s.index].(ir.Record)
	if !ok {
		return fmt.Errorf("set %s.%s: %s is %s, not a record", s.target, s.field, s.target, ir.Kind(values[s.index]))
	}
	if s.value == nil {
		cur, ok := rec[s.field].(ir.Int)
		if !ok {
			return fmt.Errorf("set %s.%s: incr needs an int field", s.target, s.field)
		}
		rec[s.field] = cur + ir.Int(s.incr)
		return nil
	}
	v, err := s.value.eval(values)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", s.target, s.field, err)
	}
	rec[s.field] = v
	return nil
}

// ruleBlock is the compiled action body: set statements first, then the
// named Go block, if any. Set statements edit the bound facts in place;
// making the edit visible is the job of the rule's declared updates.
type ruleBlock struct {
	arity int
	sets  []setStmt
	named consequence.Block
}

func (b *ruleBlock) Arity() int { return b.arity }

func (b *ruleBlock) Execute(mut consequence.Mutator, values []ir.Value) error {
	for _, s := range b.sets {
		if err := s.exec(values); err != nil {
			return err
		}
	}
	if b.named != nil {
		return b.named.Execute(mut, values)
	}
	return nil
}
