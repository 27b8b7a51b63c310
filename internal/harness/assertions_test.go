package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulefire/internal/ir"
	"github.com/roach88/rulefire/internal/store"
)

func sampleResult() *Result {
	r := NewResult()
	r.Facts = []FactSnapshot{
		{Handle: "#1", Value: ir.Record{"type": ir.String("Person"), "name": ir.String("Mark"), "age": ir.Int(37)}},
		{Handle: "#2", Value: ir.Record{"type": ir.String("Person"), "name": ir.String("Mario"), "age": ir.Int(40),
			"address": ir.Record{"city": ir.String("Milan")}}},
		{Handle: "#3", Value: ir.String("Mario is older than Mark")},
	}
	r.Trace = []TraceEvent{
		{Seq: 1, Rule: "older-than", Status: "applied", Tuple: []string{"#1", "#2"}},
		{Seq: 2, Rule: "birthday", Status: "applied", Tuple: []string{"#1"}},
		{Seq: 3, Rule: "older-than", Status: "failed", Tuple: []string{"#1", "#0"}, Error: "BINDING_INCONSISTENCY"},
	}
	return r
}

func TestAssertFactPresent(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertFactPresent(r, Assertion{Type: AssertFactPresent, Value: "Mario is older than Mark"}))
	assert.NoError(t, assertFactPresent(r, Assertion{Type: AssertFactPresent, Match: map[string]any{"name": "Mark", "age": 37}}))
	assert.NoError(t, assertFactPresent(r, Assertion{Type: AssertFactPresent, Match: map[string]any{"address.city": "Milan"}}))

	err := assertFactPresent(r, Assertion{Type: AssertFactPresent, Match: map[string]any{"name": "Edson"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertFactPresent, ae.Type)
	assert.Contains(t, ae.Expected, `name="Edson"`)
	assert.Contains(t, err.Error(), "Full trace")
}

func TestAssertFactAbsent(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertFactAbsent(r, Assertion{Type: AssertFactAbsent, Match: map[string]any{"name": "Edson"}}))

	err := assertFactAbsent(r, Assertion{Type: AssertFactAbsent, Value: "Mario is older than Mark"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 matching facts")
}

func TestAssertFactCount(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertFactCount(r, Assertion{Type: AssertFactCount, Match: map[string]any{"type": "Person"}, Count: 2}))
	assert.NoError(t, assertFactCount(r, Assertion{Type: AssertFactCount, Match: map[string]any{"type": "Dog"}, Count: 0}))

	err := assertFactCount(r, Assertion{Type: AssertFactCount, Match: map[string]any{"type": "Person"}, Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 facts")
}

func TestAssertFact_ValueTypesMustMatch(t *testing.T) {
	r := sampleResult()

	// "37" the string is not 37 the int.
	err := assertFactPresent(r, Assertion{Type: AssertFactPresent, Match: map[string]any{"age": "37"}})
	assert.Error(t, err)
}

func TestAssertFact_FloatRejected(t *testing.T) {
	r := sampleResult()

	err := assertFactPresent(r, Assertion{Type: AssertFactPresent, Match: map[string]any{"age": 37.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are not allowed")
}

func TestAssertTraceOrder(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertTraceOrder(r.Trace, Assertion{Rules: []string{"older-than", "birthday"}}))

	err := assertTraceOrder(r.Trace, Assertion{Rules: []string{"birthday", "older-than"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(r.Trace, Assertion{Rules: []string{"older-than", "forget"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing rule: forget")
}

func TestAssertTraceCount(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertTraceCount(r.Trace, Assertion{Rule: "older-than", Count: 2}))
	assert.NoError(t, assertTraceCount(r.Trace, Assertion{Rule: "forget", Count: 0}))

	err := assertTraceCount(r.Trace, Assertion{Rule: "birthday", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 firings")
}

func TestAssertJournalCount(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	for seq, status := range []string{store.StatusApplied, store.StatusFailed, store.StatusApplied} {
		tupleHash, err := ir.TupleHash([]ir.Fact{{Handle: 1}})
		require.NoError(t, err)
		_, err = st.WriteFiring(ctx, store.Firing{
			ID:            ir.MustFiringID("s", "r", tupleHash, int64(seq+1)),
			Session:       "s",
			RuleID:        "r",
			TupleHash:     tupleHash,
			Tuple:         []ir.FactHandle{1},
			Seq:           int64(seq + 1),
			Status:        status,
			EngineVersion: ir.EngineVersion,
			IRVersion:     ir.IRVersion,
		})
		require.NoError(t, err)
	}

	assert.NoError(t, assertJournalCount(ctx, st, "s", Assertion{Rule: "r", Count: 3}))
	assert.NoError(t, assertJournalCount(ctx, st, "s", Assertion{Rule: "r", Status: "applied", Count: 2}))
	assert.NoError(t, assertJournalCount(ctx, st, "other", Assertion{Rule: "r", Count: 0}))

	err = assertJournalCount(ctx, st, "s", Assertion{Rule: "r", Status: "failed", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "r (failed)")
}

func TestEvaluateAssertions(t *testing.T) {
	r := sampleResult()

	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceCount, Rule: "older-than", Count: 2},
		{Type: AssertFactPresent, Match: map[string]any{"name": "Nobody"}},
		{Type: AssertJournalCount, Rule: "older-than", Count: 1},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "fact_present")
	assert.Contains(t, errs[1], "requires journal context")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}
