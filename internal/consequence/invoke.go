package consequence

import (
	"fmt"

	"github.com/roach88/rulefire/internal/ir"
)

// Invoke runs block with the resolved values and the facade for this firing.
//
// A nil block is a rule whose action is entirely declarative and does
// nothing here. Any error the block returns is passed back unchanged.
func Invoke(block Block, mut Mutator, values []ir.Value) error {
	if block == nil {
		return nil
	}
	if a, ok := block.(Arity); ok && a.Arity() != len(values) {
		return fmt.Errorf("block expects %d values, got %d", a.Arity(), len(values))
	}
	return block.Execute(mut, values)
}
