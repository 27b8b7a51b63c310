package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rulefire/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Session      string       `json:"session,omitempty"`
	Trace        []TraceEvent `json:"firings"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	firings := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		tuple := make([]any, len(event.Tuple))
		for j, h := range event.Tuple {
			tuple[j] = h
		}
		effects := make([]any, len(event.Effects))
		for j, e := range event.Effects {
			effects[j] = map[string]any{
				"seq":    e.Seq,
				"kind":   e.Kind,
				"handle": e.Handle,
				"mask":   e.Mask,
				"value":  e.Value,
			}
		}
		eventMap := map[string]any{
			"seq":     event.Seq,
			"rule":    event.Rule,
			"status":  event.Status,
			"tuple":   tuple,
			"effects": effects,
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		firings[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"firings":       firings,
	}
	if s.Session != "" {
		result["session"] = s.Session
	}
	return result
}

// Marshal returns the canonical JSON form used for golden comparison.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...RunOption) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}

	if err := assertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	return assertGolden(t, scenarioName, result)
}

func assertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: name,
		Session:      result.Session,
		Trace:        result.Trace,
	}
	traceJSON, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)

	return nil
}
