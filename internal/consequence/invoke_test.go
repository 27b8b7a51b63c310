package consequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulefire/internal/ir"
)

type fixedArity struct {
	n   int
	ran bool
}

func (f *fixedArity) Arity() int { return f.n }

func (f *fixedArity) Execute(Mutator, []ir.Value) error {
	f.ran = true
	return nil
}

func TestInvokePassesValuesInOrder(t *testing.T) {
	var got []ir.Value
	block := BlockFunc(func(_ Mutator, vs []ir.Value) error {
		got = vs
		return nil
	})
	values := []ir.Value{ir.Int(1), ir.String("two")}

	require.NoError(t, Invoke(block, nil, values))
	assert.Equal(t, values, got)
}

func TestInvokeNilBlock(t *testing.T) {
	assert.NoError(t, Invoke(nil, nil, []ir.Value{ir.Int(1)}))
}

func TestInvokeArityMismatch(t *testing.T) {
	b := &fixedArity{n: 2}
	err := Invoke(b, nil, []ir.Value{ir.Int(1)})
	require.Error(t, err)
	assert.False(t, b.ran)

	require.NoError(t, Invoke(b, nil, []ir.Value{ir.Int(1), ir.Int(2)}))
	assert.True(t, b.ran)
}

func TestFacadeHandle(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm, person("Mark", 37), person("Mario", 40))
	rule := newRule("r", []ir.Variable{"$p1", "$p2"}, &Spec{})
	f := NewFacade(wm, rule, tuple)

	h, err := f.Handle("$p2")
	require.NoError(t, err)
	assert.Equal(t, tuple[1].Handle, h)

	_, err = f.Handle("$nope")
	require.Error(t, err)
	assert.True(t, IsBindingError(err))
}

func TestFacadeUpdateUsesAllFields(t *testing.T) {
	wm := newRecordingMemory()
	tuple := insertAll(t, wm, person("Mark", 37))
	wm.calls = nil
	f := NewFacade(wm, newRule("r", []ir.Variable{"$p"}, &Spec{}), tuple)

	require.NoError(t, f.Update(tuple[0].Handle))
	require.NoError(t, f.Delete(tuple[0].Handle))
	assert.Error(t, f.Update(tuple[0].Handle))
	assert.Equal(t, []string{"update #1 *", "retract #1", "update #1 *"}, wm.mutations())
}

func TestRuleValidate(t *testing.T) {
	ok := newRule("ok", []ir.Variable{"$p"}, &Spec{
		Updates: []ir.Update{{Variable: "$p"}},
		Deletes: []ir.Variable{"$p"},
	})
	require.NoError(t, ok.Validate())

	tests := []struct {
		name string
		rule *Rule
		msg  string
	}{
		{"no id", &Rule{}, "no id"},
		{"no context", &Rule{ID: "r"}, "missing rule context"},
		{"no consequence", &Rule{ID: "r", Context: ir.MustRuleContext("r")}, "missing consequence"},
		{"bad index", &Rule{
			ID: "r", Context: ir.MustRuleContext("r", "$p"), Consequence: &Spec{},
			Declarations: []ir.Declaration{{Name: "$p", Index: 3}},
		}, "tuple position 3"},
		{"arity", &Rule{
			ID: "r", Context: ir.MustRuleContext("r", "$p"),
			Declarations: decls("$p"), Consequence: &Spec{Block: &fixedArity{n: 2}},
		}, "block expects 2"},
		{"unknown update", newRule("r", []ir.Variable{"$p"}, &Spec{
			Updates: []ir.Update{{Variable: "$q"}},
		}), "update of unknown variable $q"},
		{"unknown delete", newRule("r", []ir.Variable{"$p"}, &Spec{
			Deletes: []ir.Variable{"$q"},
		}), "delete of unknown variable $q"},
		{"nil producer", newRule("r", nil, &Spec{Inserts: []Producer{nil}}), "no producer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
