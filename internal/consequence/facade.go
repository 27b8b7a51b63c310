package consequence

import (
	"fmt"

	"github.com/roach88/rulefire/internal/ir"
)

// Mutator is what a rule block sees of working memory.
//
// Every call acts on working memory immediately, before any of the rule's
// declared effects. Handle resolves a rule variable to the fact it is bound
// to in the current match, so a block can update or delete it.
type Mutator interface {
	Insert(v ir.Value) (ir.FactHandle, error)
	Update(h ir.FactHandle) error
	Delete(h ir.FactHandle) error
	Handle(v ir.Variable) (ir.FactHandle, error)
}

// Facade is the Mutator handed to a block for the span of one firing.
// It holds no state of its own beyond the firing it belongs to.
type Facade struct {
	wm    WorkingMemory
	rule  *Rule
	match Match
}

// NewFacade binds a facade to one firing of rule against m.
func NewFacade(wm WorkingMemory, rule *Rule, m Match) *Facade {
	return &Facade{wm: wm, rule: rule, match: m}
}

// Insert adds v to working memory and returns its handle.
func (f *Facade) Insert(v ir.Value) (ir.FactHandle, error) {
	h, err := f.wm.Insert(v)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	return h, nil
}

// Update reports the fact behind h as changed in all fields.
func (f *Facade) Update(h ir.FactHandle) error {
	if err := f.wm.MarkChanged(h, ir.AllFields); err != nil {
		return fmt.Errorf("update %s: %w", h, err)
	}
	return nil
}

// Delete retracts the fact behind h.
func (f *Facade) Delete(h ir.FactHandle) error {
	if err := f.wm.Retract(h); err != nil {
		return fmt.Errorf("delete %s: %w", h, err)
	}
	return nil
}

// Handle returns the handle bound to variable v in the current match.
func (f *Facade) Handle(v ir.Variable) (ir.FactHandle, error) {
	fact, err := bound(f.rule, v, f.match.Tuple())
	if err != nil {
		return 0, err
	}
	return fact.Handle, nil
}
