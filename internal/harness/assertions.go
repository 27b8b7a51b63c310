package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/rulefire/internal/ir"
	"github.com/roach88/rulefire/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %v\n", event.Seq, event.Rule, event.Status, event.Tuple)
		}
	}

	return buf.String()
}

// factMatcher decides whether a fact satisfies a fact_* assertion.
type factMatcher struct {
	value ir.Value            // exact match, or nil
	match map[string]ir.Value // field subset match, or nil
}

func newFactMatcher(a Assertion) (factMatcher, error) {
	var m factMatcher
	if a.Value != nil {
		v, err := ir.FromAny(a.Value)
		if err != nil {
			return m, fmt.Errorf("%s: value: %w", a.Type, err)
		}
		m.value = v
		return m, nil
	}
	m.match = make(map[string]ir.Value, len(a.Match))
	for path, raw := range a.Match {
		v, err := ir.FromAny(raw)
		if err != nil {
			return m, fmt.Errorf("%s: match %q: %w", a.Type, path, err)
		}
		m.match[path] = v
	}
	return m, nil
}

func (m factMatcher) matches(v ir.Value) bool {
	if m.value != nil {
		return ir.Equal(m.value, v)
	}
	rec, ok := v.(ir.Record)
	if !ok {
		return false
	}
	for path, want := range m.match {
		got, ok := rec.Field(path)
		if !ok || !ir.Equal(want, got) {
			return false
		}
	}
	return true
}

func (m factMatcher) String() string {
	if m.value != nil {
		b, err := ir.MarshalCanonical(m.value)
		if err != nil {
			return fmt.Sprintf("%v", m.value)
		}
		return string(b)
	}
	keys := make([]string, 0, len(m.match))
	for k := range m.match {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		b, err := ir.MarshalCanonical(m.match[k])
		if err != nil {
			parts = append(parts, fmt.Sprintf("%s=%v", k, m.match[k]))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, b))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// countFacts returns how many facts satisfy the assertion.
func countFacts(facts []FactSnapshot, a Assertion) (int, factMatcher, error) {
	m, err := newFactMatcher(a)
	if err != nil {
		return 0, m, err
	}
	n := 0
	for _, f := range facts {
		if m.matches(f.Value) {
			n++
		}
	}
	return n, m, nil
}

// assertFactPresent checks that at least one fact matches.
func assertFactPresent(result *Result, a Assertion) error {
	n, m, err := countFacts(result.Facts, a)
	if err != nil {
		return err
	}
	if n == 0 {
		return &AssertionError{
			Type:     AssertFactPresent,
			Expected: fmt.Sprintf("a fact matching %s", m),
			Actual:   fmt.Sprintf("none among %d facts", len(result.Facts)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFactAbsent checks that no fact matches.
func assertFactAbsent(result *Result, a Assertion) error {
	n, m, err := countFacts(result.Facts, a)
	if err != nil {
		return err
	}
	if n > 0 {
		return &AssertionError{
			Type:     AssertFactAbsent,
			Expected: fmt.Sprintf("no fact matching %s", m),
			Actual:   fmt.Sprintf("%d matching facts", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFactCount checks that exactly a.Count facts match.
func assertFactCount(result *Result, a Assertion) error {
	n, m, err := countFacts(result.Facts, a)
	if err != nil {
		return err
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertFactCount,
			Expected: fmt.Sprintf("%d facts matching %s", a.Count, m),
			Actual:   fmt.Sprintf("%d facts", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTraceOrder checks that rules first fired in the specified order.
// Firings don't need to be consecutive (intervening firings are allowed).
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		for _, rule := range a.Rules {
			if event.Rule == rule && positions[rule] == 0 {
				positions[rule] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, rule := range a.Rules {
		if positions[rule] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all rules fired: %v", a.Rules),
				Actual:   fmt.Sprintf("missing rule: %s", rule),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Rules); i++ {
		prev := a.Rules[i-1]
		curr := a.Rules[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("rules in order: %v", a.Rules),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that the rule fired exactly a.Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Rule == a.Rule {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d firings of %s", a.Count, a.Rule),
			Actual:   fmt.Sprintf("%d firings", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertJournalCount reads the session back from the journal and counts
// firings of a.Rule, optionally filtered by status.
func assertJournalCount(ctx context.Context, st *store.Store, sessionToken string, a Assertion) error {
	firings, err := st.ReadSession(ctx, sessionToken)
	if err != nil {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("journal for session %s", sessionToken),
			Actual:   fmt.Sprintf("read error: %v", err),
		}
	}

	count := 0
	for _, f := range firings {
		if f.RuleID == a.Rule && (a.Status == "" || f.Status == a.Status) {
			count++
		}
	}

	if count != a.Count {
		what := a.Rule
		if a.Status != "" {
			what = fmt.Sprintf("%s (%s)", a.Rule, a.Status)
		}
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d journaled firings of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store   *store.Store
	Session string
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for journal_count assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFactPresent:
			err = assertFactPresent(result, assertion)
		case AssertFactAbsent:
			err = assertFactAbsent(result, assertion)
		case AssertFactCount:
			err = assertFactCount(result, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertJournalCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: journal_count requires journal context", i)
			} else {
				err = assertJournalCount(actx.Ctx, actx.Store, actx.Session, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
