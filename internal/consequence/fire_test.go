package consequence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulefire/internal/ir"
	"github.com/roach88/rulefire/internal/memory"
)

func TestFirePhaseOrder(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm,
		person("a", 1), person("b", 2), person("c", 3), person("d", 4))
	wm.calls = nil

	rule := newRule("phases", []ir.Variable{"$a", "$b", "$c", "$d"}, &Spec{
		// Declared lists deliberately interleave the variables so that
		// phase order and declaration order are both visible.
		Deletes: []ir.Variable{"$d", "$c"},
		Updates: []ir.Update{{Variable: "$b"}, {Variable: "$a"}},
		Inserts: []Producer{
			constProducer(ir.String("first")),
			constProducer(ir.String("second")),
		},
	})
	require.NoError(t, rule.Validate())

	require.NoError(t, Fire(wm, rule, tuple))

	assert.Equal(t, []string{
		"update #2 *",
		"update #1 *",
		"insert #5",
		"insert #6",
		"retract #4",
		"retract #3",
	}, wm.mutations())
}

func TestFireOlderPersonScenario(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm, person("Mark", 37), person("Mario", 40))
	wm.calls = nil

	rule := newRule("older", []ir.Variable{"$p1", "$p2"}, &Spec{
		Block: BlockFunc(func(_ Mutator, vs []ir.Value) error {
			p1 := vs[0].(ir.Record)
			p1["age"] = p1["age"].(ir.Int) + 1
			return nil
		}),
		Updates: []ir.Update{{Variable: "$p1"}},
		Inserts: []Producer{func(vs []ir.Value) (ir.Value, error) {
			older := vs[1].(ir.Record)["name"].(ir.String)
			younger := vs[0].(ir.Record)["name"].(ir.String)
			return ir.String(string(older) + " is older than " + string(younger)), nil
		}},
	})

	require.NoError(t, Fire(wm, rule, tuple))

	assert.Equal(t, []string{"update #1 *", "insert #3"}, wm.mutations())

	mark, err := wm.Lookup(tuple[0].Handle)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(38), mark.(ir.Record)["age"])

	msgs := wm.Find(func(v ir.Value) bool { _, ok := v.(ir.String); return ok })
	require.Len(t, msgs, 1)
	assert.Equal(t, ir.String("Mario is older than Mark"), msgs[0].Value)
	assert.Equal(t, 3, wm.Len())
}

func TestFireDeleteAfterInsertReadsOldFact(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm, person("Edson", 35))
	wm.calls = nil

	rule := newRule("archive", []ir.Variable{"$p"}, &Spec{
		Inserts: []Producer{func(vs []ir.Value) (ir.Value, error) {
			p := vs[0].(ir.Record)
			return ir.Record{"type": ir.String("Archived"), "name": p["name"]}, nil
		}},
		Deletes: []ir.Variable{"$p"},
	})

	require.NoError(t, Fire(wm, rule, tuple))

	assert.Equal(t, []string{"insert #2", "retract #1"}, wm.mutations())
	assert.False(t, wm.Contains(tuple[0].Handle))

	v, err := wm.Memory.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, ir.String("Edson"), v.(ir.Record)["name"])
}

func TestFireFacadeOnly(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm, person("Mark", 37))
	wm.calls = nil

	rule := newRule("facade", []ir.Variable{"$p"}, &Spec{
		Block: BlockFunc(func(mut Mutator, _ []ir.Value) error {
			if _, err := mut.Insert(ir.String("one")); err != nil {
				return err
			}
			_, err := mut.Insert(ir.String("two"))
			return err
		}),
	})

	require.NoError(t, Fire(wm, rule, tuple))
	assert.Equal(t, []string{"insert #2", "insert #3"}, wm.mutations())
	assert.Equal(t, 3, wm.Len())
}

func TestFireFacadeCallsPrecedeDeclaredEffects(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm, person("Mark", 37))
	wm.calls = nil

	rule := newRule("birthday", []ir.Variable{"$p"}, &Spec{
		Block: BlockFunc(func(mut Mutator, vs []ir.Value) error {
			p := vs[0].(ir.Record)
			p["age"] = p["age"].(ir.Int) + 1
			_, err := mut.Insert(ir.String("happy birthday"))
			return err
		}),
		Updates: []ir.Update{{Variable: "$p", Mask: ir.NewFieldMask("age")}},
	})

	require.NoError(t, Fire(wm, rule, tuple))

	assert.Equal(t, []string{"insert #2", "update #1 *"}, wm.mutations())
	v, err := wm.Memory.Lookup(tuple[0].Handle)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(38), v.(ir.Record)["age"], "in-place edit is visible")
}

func TestFireActionErrorAppliesNothing(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm, person("Mark", 37))
	wm.calls = nil

	boom := errors.New("boom")
	produced := false
	rule := newRule("fails", []ir.Variable{"$p"}, &Spec{
		Block:   BlockFunc(func(Mutator, []ir.Value) error { return boom }),
		Updates: []ir.Update{{Variable: "$p"}},
		Inserts: []Producer{func([]ir.Value) (ir.Value, error) {
			produced = true
			return ir.String("x"), nil
		}},
		Deletes: []ir.Variable{"$p"},
	})

	err := Fire(wm, rule, tuple)
	require.Error(t, err)
	assert.Same(t, boom, err, "action error is returned unchanged")
	assert.Empty(t, wm.mutations())
	assert.False(t, produced)
}

func TestFireBindingErrorCarriesRule(t *testing.T) {
	wm := newRecordingMemory()
	rule := newRule("r1", []ir.Variable{"$p"}, &Spec{})

	err := Fire(wm, rule, TupleMatch{{}})
	require.Error(t, err)

	var be *BindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "r1", be.Rule)
	assert.Equal(t, ir.Variable("$p"), be.Variable)
	assert.Contains(t, err.Error(), "rule r1")
}

func TestFireUpdateOfUnboundVariable(t *testing.T) {
	wm := newRecordingMemory()
	// The update target is in the context but not required by the block,
	// so only Apply notices that its slot is empty.
	rule := &Rule{
		ID:          "r",
		Context:     ir.MustRuleContext("r", "$p"),
		Consequence: &Spec{Updates: []ir.Update{{Variable: "$p"}}},
	}

	err := Fire(wm, rule, TupleMatch{{}})
	require.Error(t, err)
	assert.True(t, IsBindingError(err))
	assert.Empty(t, wm.mutations())
}

func TestFireDeleteOfFactAlreadyRetractedByBlock(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm, person("Mark", 37))
	wm.calls = nil

	rule := newRule("double-delete", []ir.Variable{"$p"}, &Spec{
		Block: BlockFunc(func(mut Mutator, _ []ir.Value) error {
			h, err := mut.Handle("$p")
			if err != nil {
				return err
			}
			return mut.Delete(h)
		}),
		Deletes: []ir.Variable{"$p"},
	})

	err := Fire(wm, rule, tuple)
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrUnknownHandle)
	assert.False(t, IsBindingError(err))
	assert.Equal(t, []string{"retract #1", "retract #1"}, wm.mutations())
}

func TestFireReorderWithinPhaseSameEndState(t *testing.T) {
	run := func(updates []ir.Update, inserts []Producer) []ir.Fact {
		wm := memory.New()
		tuple := insertAll(t, wm, person("a", 1), person("b", 2))
		rule := newRule("r", []ir.Variable{"$a", "$b"}, &Spec{
			Block: BlockFunc(func(_ Mutator, vs []ir.Value) error {
				for _, v := range vs {
					r := v.(ir.Record)
					r["age"] = r["age"].(ir.Int) * 10
				}
				return nil
			}),
			Updates: updates,
			Inserts: inserts,
		})
		require.NoError(t, Fire(wm, rule, tuple))
		return wm.Facts()
	}

	x, y := constProducer(ir.String("x")), constProducer(ir.String("y"))
	forward := run([]ir.Update{{Variable: "$a"}, {Variable: "$b"}}, []Producer{x, y})
	reverse := run([]ir.Update{{Variable: "$b"}, {Variable: "$a"}}, []Producer{y, x})

	values := func(fs []ir.Fact) []ir.Value {
		out := make([]ir.Value, len(fs))
		for i, f := range fs {
			out[i] = f.Value
		}
		return out
	}
	assert.ElementsMatch(t, values(forward), values(reverse))
}

func TestFirePhaseOrderIsObservable(t *testing.T) {
	// A subscriber that reacts to inserts by reading the updated fact sees
	// the post-update state because updates are announced first.
	wm := memory.New()
	tuple := insertAll(t, wm, person("Mark", 37))

	updated := false
	var sawUpdateBeforeInsert bool
	wm.Subscribe(func(ev memory.Event) {
		switch ev.Kind {
		case memory.EventUpdated:
			updated = true
		case memory.EventInserted:
			sawUpdateBeforeInsert = updated
		}
	})

	rule := newRule("r", []ir.Variable{"$p"}, &Spec{
		Updates: []ir.Update{{Variable: "$p"}},
		Inserts: []Producer{constProducer(ir.String("note"))},
	})
	require.NoError(t, Fire(wm, rule, tuple))
	assert.True(t, sawUpdateBeforeInsert)
}

func TestFireForwardsMaskWhenPropertyReactive(t *testing.T) {
	for _, tc := range []struct {
		name     string
		reactive bool
		want     string
	}{
		{"conservative", false, "update #1 *"},
		{"property reactive", true, "update #1 age,name"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			wm := newRecordingMemory()
			tuple := insertAll(t, wm, person("Mark", 37))
			wm.calls = nil

			rule := newRule("r", []ir.Variable{"$p"}, &Spec{
				Updates: []ir.Update{{Variable: "$p", Mask: ir.NewFieldMask("name", "age")}},
			})
			rule.PropertyReactive = tc.reactive

			require.NoError(t, Fire(wm, rule, tuple))
			assert.Equal(t, []string{tc.want}, wm.mutations())
		})
	}
}

func TestFireProducerError(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm, person("Mark", 37))
	wm.calls = nil

	bad := errors.New("cannot produce")
	rule := newRule("r", []ir.Variable{"$p"}, &Spec{
		Updates: []ir.Update{{Variable: "$p"}},
		Inserts: []Producer{func([]ir.Value) (ir.Value, error) { return nil, bad }},
		Deletes: []ir.Variable{"$p"},
	})

	err := Fire(wm, rule, tuple)
	require.Error(t, err)
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, []string{"update #1 *"}, wm.mutations(), "update stays applied, delete never runs")
}

func TestFireProducerReturnsNil(t *testing.T) {
	wm := newRecordingMemory()
	rule := newRule("r", nil, &Spec{
		Inserts: []Producer{func([]ir.Value) (ir.Value, error) { return nil, nil }},
	})
	err := Fire(wm, rule, TupleMatch{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no value")
}

func TestFireNilRule(t *testing.T) {
	require.Error(t, Fire(newRecordingMemory(), nil, TupleMatch{}))
	require.Error(t, Fire(newRecordingMemory(), &Rule{ID: "x"}, TupleMatch{}))
}
