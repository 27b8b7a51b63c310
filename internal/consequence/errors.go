package consequence

import (
	"errors"
	"fmt"

	"github.com/roach88/rulefire/internal/ir"
)

// BindingError reports a declaration or variable that has no bound fact in
// the match. It is an internal-consistency failure, never a normal outcome.
type BindingError struct {
	Rule     string
	Variable ir.Variable
	Reason   string
	Err      error
}

// Error implements the error interface.
func (e *BindingError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("binding inconsistency in rule %s: %s: %s", e.Rule, e.Variable, e.Reason)
	}
	return fmt.Sprintf("binding inconsistency: %s: %s", e.Variable, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *BindingError) Unwrap() error {
	return e.Err
}

// IsBindingError reports whether err is, or wraps, a *BindingError.
func IsBindingError(err error) bool {
	var be *BindingError
	return errors.As(err, &be)
}

func newBindingError(rule string, v ir.Variable, cause error) *BindingError {
	return &BindingError{Rule: rule, Variable: v, Reason: cause.Error(), Err: cause}
}
