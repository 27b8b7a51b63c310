package ir

import "fmt"

// RuleContext maps a rule's variables to their positions in the match tuple.
//
// It is built once when the rule is compiled and shared by every firing of
// the rule. Nothing mutates it after NewRuleContext returns.
type RuleContext struct {
	ruleID    string
	variables []Variable
	positions map[Variable]int
}

// NewRuleContext builds the variable table for a rule. vars lists the
// pattern variables in tuple order. Duplicate names are rejected.
func NewRuleContext(ruleID string, vars []Variable) (*RuleContext, error) {
	positions := make(map[Variable]int, len(vars))
	for i, v := range vars {
		if v == "" {
			return nil, fmt.Errorf("rule %s: empty variable name at position %d", ruleID, i)
		}
		if _, dup := positions[v]; dup {
			return nil, fmt.Errorf("rule %s: duplicate variable %s", ruleID, v)
		}
		positions[v] = i
	}
	return &RuleContext{
		ruleID:    ruleID,
		variables: append([]Variable(nil), vars...),
		positions: positions,
	}, nil
}

// MustRuleContext is like NewRuleContext but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRuleContext(ruleID string, vars ...Variable) *RuleContext {
	rc, err := NewRuleContext(ruleID, vars)
	if err != nil {
		panic(err)
	}
	return rc
}

// RuleID returns the rule the table belongs to.
func (c *RuleContext) RuleID() string {
	return c.ruleID
}

// Variables returns the pattern variables in tuple order.
func (c *RuleContext) Variables() []Variable {
	return append([]Variable(nil), c.variables...)
}

// Len returns the tuple width the rule expects.
func (c *RuleContext) Len() int {
	return len(c.variables)
}

// Position returns the tuple index of v.
func (c *RuleContext) Position(v Variable) (int, bool) {
	i, ok := c.positions[v]
	return i, ok
}

// BoundFact resolves v against a match tuple.
// The error cases (unknown variable, short tuple, empty slot) all mean the
// match does not carry a fact the rule was compiled to expect.
func (c *RuleContext) BoundFact(v Variable, tuple []Fact) (Fact, error) {
	i, ok := c.positions[v]
	if !ok {
		return Fact{}, fmt.Errorf("variable %s is not declared by rule %s", v, c.ruleID)
	}
	if i >= len(tuple) {
		return Fact{}, fmt.Errorf("variable %s at position %d: tuple has only %d facts", v, i, len(tuple))
	}
	f := tuple[i]
	if f.Handle.IsZero() {
		return Fact{}, fmt.Errorf("variable %s at position %d is unbound", v, i)
	}
	return f, nil
}
