package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes a scenario YAML next to an empty rules directory.
func writeScenario(t *testing.T, yamlSrc string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "rules"), 0755))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlSrc), 0644))
	return path
}

const validScenario = `
name: valid
description: "A valid scenario"
rules:
  - rules
session: test-session-valid
facts:
  - id: mark
    value: { type: Person, name: Mark, age: 37 }
steps:
  - fire: forget
    bind: { $p: mark }
  - insert:
      id: note
      value: "hello"
  - retract: note
  - fire: forget
    bind: { $p: mark }
    expect: { error: STALE_HANDLE }
assertions:
  - type: fact_absent
    match: { name: Mark }
  - type: trace_count
    rule: forget
    count: 2
`

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, validScenario)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, "test-session-valid", s.Session)
	assert.Equal(t, []string{filepath.Join(filepath.Dir(path), "rules")}, s.Rules)
	require.Len(t, s.Facts, 1)
	assert.Equal(t, "mark", s.Facts[0].ID)
	assert.Equal(t, map[string]any{"type": "Person", "name": "Mark", "age": 37}, s.Facts[0].Value)

	require.Len(t, s.Steps, 4)
	assert.Equal(t, map[string]string{"$p": "mark"}, s.Steps[0].Bind)
	require.NotNil(t, s.Steps[1].Insert)
	assert.Equal(t, "hello", s.Steps[1].Insert.Value)
	assert.Equal(t, "note", s.Steps[2].Retract)
	require.NotNil(t, s.Steps[3].Expect)
	assert.Equal(t, "STALE_HANDLE", s.Steps[3].Expect.Error)

	require.Len(t, s.Assertions, 2)
	assert.Equal(t, AssertFactAbsent, s.Assertions[0].Type)
	assert.Equal(t, 2, s.Assertions[1].Count)
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := writeScenario(t, validScenario+"assertion: []\n")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	path := writeScenario(t, validScenario)
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "rules"), 0755))

	s, err := LoadScenarioWithBasePath(path, base)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(base, "rules")}, s.Rules)
}

func TestValidateScenario(t *testing.T) {
	rulesDir := t.TempDir()
	base := func() *Scenario {
		return &Scenario{
			Name:        "s",
			Description: "d",
			Rules:       []string{rulesDir},
			Facts:       []FactStep{{ID: "a", Value: "x"}},
			Steps:       []Step{{Fire: "r", Bind: map[string]string{"$p": "a"}}},
			Assertions:  []Assertion{{Type: AssertTraceCount, Rule: "r", Count: 1}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		errMsg string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"missing name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"missing description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"missing rules", func(s *Scenario) { s.Rules = nil }, "rules list is required"},
		{"rules dir not found", func(s *Scenario) { s.Rules = []string{"/nonexistent/rules"} }, "rules directory not found"},
		{"missing steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"missing assertions", func(s *Scenario) { s.Assertions = nil }, "assertions list is required"},
		{"fact without id", func(s *Scenario) { s.Facts[0].ID = "" }, "facts[0]: id is required"},
		{"fact without value", func(s *Scenario) { s.Facts[0].Value = nil }, "facts[0]: value is required"},
		{"duplicate fact", func(s *Scenario) {
			s.Facts = append(s.Facts, FactStep{ID: "a", Value: "y"})
		}, `duplicate fact id "a"`},
		{"empty step", func(s *Scenario) { s.Steps = []Step{{}} }, "exactly one of fire, insert or retract"},
		{"two actions in one step", func(s *Scenario) {
			s.Steps = []Step{{Fire: "r", Retract: "a"}}
		}, "exactly one of fire, insert or retract"},
		{"bind to unknown fact", func(s *Scenario) {
			s.Steps[0].Bind = map[string]string{"$p": "zzz"}
		}, `unknown fact "zzz"`},
		{"fact used before insert", func(s *Scenario) {
			s.Steps = []Step{
				{Retract: "b"},
				{Insert: &FactStep{ID: "b", Value: "y"}},
			}
		}, `retract of unknown fact "b"`},
		{"bind on retract", func(s *Scenario) {
			s.Steps = []Step{{Retract: "a", Bind: map[string]string{"$p": "a"}}}
		}, "bind is only valid with fire"},
		{"expect without error", func(s *Scenario) {
			s.Steps[0].Expect = &ExpectClause{}
		}, "steps[0].expect: error is required"},
		{"assertion without type", func(s *Scenario) {
			s.Assertions = []Assertion{{}}
		}, "type is required"},
		{"unknown assertion", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: "final_state"}}
		}, `unknown assertion type "final_state"`},
		{"fact assertion needs value or match", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertFactPresent}}
		}, "exactly one of value or match"},
		{"fact assertion with both", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertFactPresent, Value: "x", Match: map[string]any{"a": 1}}}
		}, "exactly one of value or match"},
		{"trace_order without rules", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertTraceOrder}}
		}, "rules list is required for trace_order"},
		{"trace_count without rule", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertTraceCount}}
		}, "rule is required for trace_count"},
		{"negative count", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertTraceCount, Rule: "r", Count: -1}}
		}, "count must be non-negative"},
		{"journal_count bad status", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertJournalCount, Rule: "r", Status: "done"}}
		}, "status must be applied or failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateScenario(s)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(validScenario))
	require.NoError(t, err)
	assert.Equal(t, []string{"rules"}, s.Rules, "paths are not resolved")
}
