package consequence

import (
	"errors"
	"fmt"
)

// Fire executes rule's consequence for match m.
//
// It resolves the declarations, runs the block with a fresh Facade and then
// applies the declared effects. Fire returns nil only when every step
// succeeded; on error the effects applied before the failure remain.
func Fire(wm WorkingMemory, rule *Rule, m Match) error {
	if rule == nil {
		return errors.New("fire: nil rule")
	}
	if rule.Consequence == nil {
		return fmt.Errorf("fire %s: rule has no consequence", rule.ID)
	}

	values, err := Resolve(wm, m, rule.Declarations)
	if err != nil {
		var be *BindingError
		if errors.As(err, &be) && be.Rule == "" {
			be.Rule = rule.ID
		}
		return err
	}

	if err := Invoke(rule.Consequence.Block, NewFacade(wm, rule, m), values); err != nil {
		return err
	}

	return Apply(wm, rule, m, values)
}
