package consequence

import (
	"fmt"

	"github.com/roach88/rulefire/internal/ir"
)

// Match is the runtime witness that a rule's conditions hold.
// It is consumed by exactly one firing and not retained afterwards.
type Match interface {
	// Get returns the handle bound to d, or false if d has no binding.
	Get(d ir.Declaration) (ir.FactHandle, bool)

	// Tuple returns every bound fact in rule-context order.
	Tuple() []ir.Fact
}

// WorkingMemory is the entire surface a firing needs from fact storage.
type WorkingMemory interface {
	Lookup(h ir.FactHandle) (ir.Value, error)
	MarkChanged(h ir.FactHandle, mask ir.FieldMask) error
	Insert(v ir.Value) (ir.FactHandle, error)
	Retract(h ir.FactHandle) error
}

// Block is a rule's compiled action body.
type Block interface {
	Execute(mut Mutator, values []ir.Value) error
}

// BlockFunc adapts an ordinary function to Block.
type BlockFunc func(mut Mutator, values []ir.Value) error

// Execute implements Block.
func (f BlockFunc) Execute(mut Mutator, values []ir.Value) error {
	return f(mut, values)
}

// Arity is implemented by blocks that know how many positional values they
// were compiled against. Invoke rejects a mismatch before running the body.
type Arity interface {
	Arity() int
}

// Producer computes a fact to insert from the resolved declaration values.
type Producer func(values []ir.Value) (ir.Value, error)

// Spec is the compiled description of a rule's action. One Spec exists per
// rule and it is shared, read-only, by every firing of that rule.
type Spec struct {
	Block   Block
	Updates []ir.Update
	Inserts []Producer
	Deletes []ir.Variable
}

// Rule bundles what a firing needs to know about one compiled rule.
type Rule struct {
	ID           string
	Declarations []ir.Declaration
	Context      *ir.RuleContext
	Consequence  *Spec

	// PropertyReactive forwards declared update masks to working memory.
	// When false every update is reported as a whole-fact change, which is
	// a safe superset of whatever the action actually touched.
	PropertyReactive bool
}

// Validate checks the compile-time invariants Fire relies on: a context is
// present, every declaration reads a valid tuple position, and every
// declared effect names a variable the context knows.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule has no id")
	}
	if r.Context == nil {
		return fmt.Errorf("rule %s: missing rule context", r.ID)
	}
	if r.Consequence == nil {
		return fmt.Errorf("rule %s: missing consequence", r.ID)
	}
	for i, d := range r.Declarations {
		if d.Index < 0 || d.Index >= r.Context.Len() {
			return fmt.Errorf("rule %s: declaration %d (%s) reads tuple position %d of %d",
				r.ID, i, d.Name, d.Index, r.Context.Len())
		}
	}
	if a, ok := r.Consequence.Block.(Arity); ok && a.Arity() != len(r.Declarations) {
		return fmt.Errorf("rule %s: block expects %d values but rule declares %d",
			r.ID, a.Arity(), len(r.Declarations))
	}
	for _, u := range r.Consequence.Updates {
		if _, ok := r.Context.Position(u.Variable); !ok {
			return fmt.Errorf("rule %s: update of unknown variable %s", r.ID, u.Variable)
		}
	}
	for _, d := range r.Consequence.Deletes {
		if _, ok := r.Context.Position(d); !ok {
			return fmt.Errorf("rule %s: delete of unknown variable %s", r.ID, d)
		}
	}
	for i, p := range r.Consequence.Inserts {
		if p == nil {
			return fmt.Errorf("rule %s: insert %d has no producer", r.ID, i)
		}
	}
	return nil
}

// TupleMatch is a Match over a positional tuple. A declaration's Index
// selects its slot; a zero handle in a slot means "unbound".
type TupleMatch []ir.Fact

// Get implements Match.
func (t TupleMatch) Get(d ir.Declaration) (ir.FactHandle, bool) {
	if d.Index < 0 || d.Index >= len(t) || t[d.Index].Handle.IsZero() {
		return 0, false
	}
	return t[d.Index].Handle, true
}

// Tuple implements Match.
func (t TupleMatch) Tuple() []ir.Fact {
	return t
}
