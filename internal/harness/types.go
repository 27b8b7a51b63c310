package harness

import "github.com/roach88/rulefire/internal/ir"

// TraceEvent is one recorded firing. Rejected firings (unknown rule, quota,
// no-loop) never reach the trace.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Rule   string `json:"rule"`
	Status string `json:"status"`

	// Tuple lists the bound handles in rule-context order.
	Tuple []string `json:"tuple"`

	// Effects are in the order working memory saw them.
	Effects []TraceEffect `json:"effects"`

	// Error is the runtime error code of a failed firing.
	Error string `json:"error,omitempty"`
}

// TraceEffect is one working memory change made during a firing.
type TraceEffect struct {
	Seq    int64    `json:"seq"`
	Kind   string   `json:"kind"`
	Handle string   `json:"handle"`
	Mask   string   `json:"mask"`
	Value  ir.Value `json:"value"`
}

// FactSnapshot is one fact left in working memory after the last step.
type FactSnapshot struct {
	Handle string   `json:"handle"`
	Value  ir.Value `json:"value"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as expected and
	// every assertion held.
	Pass bool `json:"pass"`

	// Session is the session token the scenario ran under.
	Session string `json:"session"`

	// Trace contains all recorded firings in order.
	Trace []TraceEvent `json:"trace"`

	// Facts is the final working memory in handle order.
	Facts []FactSnapshot `json:"facts"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Facts:  []FactSnapshot{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
