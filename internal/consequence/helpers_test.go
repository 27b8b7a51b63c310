package consequence

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rulefire/internal/ir"
	"github.com/roach88/rulefire/internal/memory"
)

// recordingMemory wraps memory.Memory and logs every call in order.
type recordingMemory struct {
	*memory.Memory
	calls   []string
	lookups map[ir.FactHandle]int
}

func newRecordingMemory() *recordingMemory {
	return &recordingMemory{Memory: memory.New(), lookups: make(map[ir.FactHandle]int)}
}

func (r *recordingMemory) Lookup(h ir.FactHandle) (ir.Value, error) {
	r.lookups[h]++
	r.calls = append(r.calls, "lookup "+h.String())
	return r.Memory.Lookup(h)
}

func (r *recordingMemory) MarkChanged(h ir.FactHandle, mask ir.FieldMask) error {
	r.calls = append(r.calls, fmt.Sprintf("update %s %s", h, mask))
	return r.Memory.MarkChanged(h, mask)
}

func (r *recordingMemory) Insert(v ir.Value) (ir.FactHandle, error) {
	h, err := r.Memory.Insert(v)
	r.calls = append(r.calls, "insert "+h.String())
	return h, err
}

func (r *recordingMemory) Retract(h ir.FactHandle) error {
	r.calls = append(r.calls, "retract "+h.String())
	return r.Memory.Retract(h)
}

// mutations returns the recorded calls without lookups.
func (r *recordingMemory) mutations() []string {
	var out []string
	for _, c := range r.calls {
		if !strings.HasPrefix(c, "lookup ") {
			out = append(out, c)
		}
	}
	return out
}

// countingMatch counts Get calls per declaration name.
type countingMatch struct {
	TupleMatch
	gets map[ir.Variable]int
}

func (c *countingMatch) Get(d ir.Declaration) (ir.FactHandle, bool) {
	if c.gets == nil {
		c.gets = make(map[ir.Variable]int)
	}
	c.gets[d.Name]++
	return c.TupleMatch.Get(d)
}

func person(name string, age int64) ir.Record {
	return ir.Record{"type": ir.String("Person"), "name": ir.String(name), "age": ir.Int(age)}
}

// insertAll loads values into wm and returns the tuple in the same order.
func insertAll(t *testing.T, wm WorkingMemory, values ...ir.Value) TupleMatch {
	t.Helper()
	tuple := make(TupleMatch, len(values))
	for i, v := range values {
		h, err := wm.Insert(v)
		require.NoError(t, err)
		tuple[i] = ir.Fact{Handle: h, Value: v}
	}
	return tuple
}

// decls declares each variable as a whole-fact binding at its own position.
func decls(vars ...ir.Variable) []ir.Declaration {
	out := make([]ir.Declaration, len(vars))
	for i, v := range vars {
		out[i] = ir.Declaration{Name: v, Index: i}
	}
	return out
}

func newRule(id string, vars []ir.Variable, spec *Spec) *Rule {
	return &Rule{
		ID:           id,
		Declarations: decls(vars...),
		Context:      ir.MustRuleContext(id, vars...),
		Consequence:  spec,
	}
}

func constProducer(v ir.Value) Producer {
	return func([]ir.Value) (ir.Value, error) { return v, nil }
}
