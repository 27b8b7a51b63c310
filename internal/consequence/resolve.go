package consequence

import (
	"errors"

	"github.com/roach88/rulefire/internal/ir"
)

var errUnbound = errors.New("no fact bound in match")

// Resolve produces the positional values for one firing.
//
// The result has the same length and order as decls. Each declaration is
// read from the match exactly once. An unbound declaration, or one whose
// projection does not apply to the bound fact, is a *BindingError.
// Resolve has no side effects on working memory.
func Resolve(wm WorkingMemory, m Match, decls []ir.Declaration) ([]ir.Value, error) {
	values := make([]ir.Value, len(decls))
	for i, d := range decls {
		h, ok := m.Get(d)
		if !ok {
			return nil, newBindingError("", d.Name, errUnbound)
		}
		fact, err := wm.Lookup(h)
		if err != nil {
			return nil, newBindingError("", d.Name, err)
		}
		v, err := d.Extract(fact)
		if err != nil {
			return nil, newBindingError("", d.Name, err)
		}
		values[i] = v
	}
	return values, nil
}
