package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a rule firing scenario.
// A scenario seeds working memory, fires rules against named facts in a
// fixed order, and asserts on the resulting trace and final facts.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules lists directories of CUE rule files to compile and load.
	// Relative paths are resolved against the scenario file location.
	Rules []string `yaml:"rules"`

	// Session is a fixed session token for deterministic firing ids.
	// If empty, defaults to "test-session-default".
	Session string `yaml:"session,omitempty"`

	// MaxFirings overrides the session firing quota when positive.
	MaxFirings int `yaml:"max_firings,omitempty"`

	// NoLoop enables the session no-loop guard.
	NoLoop bool `yaml:"no_loop,omitempty"`

	// Facts are inserted in order before the first step. Each gets a name
	// that steps use to refer to its handle.
	Facts []FactStep `yaml:"facts,omitempty"`

	// Steps run in order. Each step fires a rule, inserts a fact or
	// retracts one.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and facts.
	// Supported types: fact_present, fact_absent, fact_count, trace_order,
	// trace_count, journal_count.
	Assertions []Assertion `yaml:"assertions"`
}

// FactStep names a fact to insert.
type FactStep struct {
	// ID is the name steps use to refer to the fact.
	ID string `yaml:"id"`

	// Value is the fact itself. Maps become records; floats are rejected.
	Value any `yaml:"value"`
}

// Step is one action against the session. Exactly one of Fire, Insert and
// Retract is set.
type Step struct {
	// Fire is the id of the rule to fire.
	Fire string `yaml:"fire,omitempty"`

	// Bind maps the rule's pattern variables to fact ids (used by fire).
	Bind map[string]string `yaml:"bind,omitempty"`

	// Insert adds a named fact between firings.
	Insert *FactStep `yaml:"insert,omitempty"`

	// Retract removes a named fact between firings.
	Retract string `yaml:"retract,omitempty"`

	// Expect describes the expected outcome. Without it the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies an expected failure.
type ExpectClause struct {
	// Error is the expected runtime error code, e.g. "STALE_HANDLE".
	Error string `yaml:"error"`
}

// Assertion validates the trace or the final facts.
type Assertion struct {
	// Type specifies the assertion type:
	// - "fact_present": some fact matches
	// - "fact_absent": no fact matches
	// - "fact_count": exactly Count facts match
	// - "trace_order": rules fired in this relative order
	// - "trace_count": rule fired exactly Count times
	// - "journal_count": the journal holds Count firings of Rule with Status
	Type string `yaml:"type"`

	// Value matches a fact exactly (fact_present, fact_absent, fact_count).
	Value any `yaml:"value,omitempty"`

	// Match matches record facts by field subset (fact_present, fact_absent,
	// fact_count). Keys may be dotted paths.
	Match map[string]any `yaml:"match,omitempty"`

	// Rule is the rule id (trace_count, journal_count).
	Rule string `yaml:"rule,omitempty"`

	// Rules is the expected firing order (trace_order).
	Rules []string `yaml:"rules,omitempty"`

	// Status filters journal rows (journal_count): "applied" or "failed".
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of matches.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFactPresent  = "fact_present"
	AssertFactAbsent   = "fact_absent"
	AssertFactCount    = "fact_count"
	AssertTraceOrder   = "trace_order"
	AssertTraceCount   = "trace_count"
	AssertJournalCount = "journal_count"
)

// LoadScenario reads and parses a scenario YAML file. Rule directories are
// resolved relative to the file's own directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving rule directories relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, dir := range scenario.Rules {
		if !filepath.IsAbs(dir) && basePath != "" {
			scenario.Rules[i] = filepath.Join(basePath, dir)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without touching the filesystem.
// Rule paths are left as written and not checked.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Rules) == 0 {
		return fmt.Errorf("rules list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, dir := range s.Rules {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("rules directory not found: %s", dir)
		}
	}

	ids := make(map[string]bool)
	for i, f := range s.Facts {
		if err := validateFact(fmt.Sprintf("facts[%d]", i), f, ids); err != nil {
			return err
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, ids); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateFact(where string, f FactStep, ids map[string]bool) error {
	if f.ID == "" {
		return fmt.Errorf("%s: id is required", where)
	}
	if ids[f.ID] {
		return fmt.Errorf("%s: duplicate fact id %q", where, f.ID)
	}
	if f.Value == nil {
		return fmt.Errorf("%s: value is required", where)
	}
	ids[f.ID] = true
	return nil
}

// validateStep checks one step. ids accumulates fact names so a step can
// only refer to facts declared before it.
func validateStep(index int, step Step, ids map[string]bool) error {
	set := 0
	if step.Fire != "" {
		set++
	}
	if step.Insert != nil {
		set++
	}
	if step.Retract != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of fire, insert or retract is required", index)
	}

	switch {
	case step.Fire != "":
		for v, id := range step.Bind {
			if !ids[id] {
				return fmt.Errorf("steps[%d]: %s is bound to unknown fact %q", index, v, id)
			}
		}
	case step.Insert != nil:
		if len(step.Bind) > 0 {
			return fmt.Errorf("steps[%d]: bind is only valid with fire", index)
		}
		if err := validateFact(fmt.Sprintf("steps[%d].insert", index), *step.Insert, ids); err != nil {
			return err
		}
	case step.Retract != "":
		if len(step.Bind) > 0 {
			return fmt.Errorf("steps[%d]: bind is only valid with fire", index)
		}
		if !ids[step.Retract] {
			return fmt.Errorf("steps[%d]: retract of unknown fact %q", index, step.Retract)
		}
	}

	if step.Expect != nil && step.Expect.Error == "" {
		return fmt.Errorf("steps[%d].expect: error is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFactPresent, AssertFactAbsent, AssertFactCount:
		if (a.Value == nil) == (len(a.Match) == 0) {
			return fmt.Errorf("assertions[%d]: exactly one of value or match is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Rules) == 0 {
			return fmt.Errorf("assertions[%d]: rules list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertJournalCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for journal_count", index)
		}
		if a.Status != "" && a.Status != "applied" && a.Status != "failed" {
			return fmt.Errorf("assertions[%d]: status must be applied or failed", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for journal_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
