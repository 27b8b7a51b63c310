package consequence

import (
	"errors"
	"fmt"

	"github.com/roach88/rulefire/internal/ir"
)

// Apply performs the declared effects of rule's consequence against the
// match, in phase order: updates, inserts, deletes.
//
// The first failure stops the firing. Effects already applied stay applied.
func Apply(wm WorkingMemory, rule *Rule, m Match, values []ir.Value) error {
	spec := rule.Consequence
	if spec == nil {
		return nil
	}
	tuple := m.Tuple()

	for _, u := range spec.Updates {
		f, err := bound(rule, u.Variable, tuple)
		if err != nil {
			return err
		}
		mask := ir.AllFields
		if rule.PropertyReactive {
			mask = u.Mask
		}
		if err := wm.MarkChanged(f.Handle, mask); err != nil {
			return fmt.Errorf("update %s: %w", u.Variable, err)
		}
	}

	for i, produce := range spec.Inserts {
		v, err := produce(values)
		if err != nil {
			return fmt.Errorf("insert %d: %w", i, err)
		}
		if v == nil {
			return fmt.Errorf("insert %d: producer returned no value", i)
		}
		if _, err := wm.Insert(v); err != nil {
			return fmt.Errorf("insert %d: %w", i, err)
		}
	}

	for _, d := range spec.Deletes {
		f, err := bound(rule, d, tuple)
		if err != nil {
			return err
		}
		if err := wm.Retract(f.Handle); err != nil {
			return fmt.Errorf("delete %s: %w", d, err)
		}
	}

	return nil
}

func bound(rule *Rule, v ir.Variable, tuple []ir.Fact) (ir.Fact, error) {
	if rule.Context == nil {
		return ir.Fact{}, newBindingError(rule.ID, v, errors.New("rule has no context"))
	}
	f, err := rule.Context.BoundFact(v, tuple)
	if err != nil {
		return ir.Fact{}, newBindingError(rule.ID, v, err)
	}
	return f, nil
}
