package session

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while a session fires a rule.
//
// RuntimeError wraps the underlying cause, so errors.Is and errors.As still
// reach the error the consequence core or the action body returned.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Session identifies the affected session.
	Session string

	// RuleID identifies the rule being fired.
	RuleID string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownRule indicates the rule id is not registered.
	ErrCodeUnknownRule RuntimeErrorCode = "UNKNOWN_RULE"

	// ErrCodeInvalidRule indicates the registered rule failed validation.
	ErrCodeInvalidRule RuntimeErrorCode = "INVALID_RULE"

	// ErrCodeBindingInconsistency indicates the match did not carry a fact
	// the rule requires.
	ErrCodeBindingInconsistency RuntimeErrorCode = "BINDING_INCONSISTENCY"

	// ErrCodeActionFailed indicates the action body or an insert producer
	// returned an error.
	ErrCodeActionFailed RuntimeErrorCode = "ACTION_FAILED"

	// ErrCodeStaleHandle indicates an effect targeted a fact that is no
	// longer in working memory.
	ErrCodeStaleHandle RuntimeErrorCode = "STALE_HANDLE"

	// ErrCodeQuotaExceeded indicates the session exceeded max firings.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeCycleDetected indicates a no-loop session was asked to fire
	// the same rule on the same tuple twice.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeJournal indicates the firing was applied but could not be
	// journaled.
	ErrCodeJournal RuntimeErrorCode = "JOURNAL_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Session != "" && e.RuleID != "" {
		return fmt.Sprintf("%s: %s (session=%s, rule=%s)", e.Code, e.Message, e.Session, e.RuleID)
	}
	if e.Session != "" {
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Message, e.Session)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// CodeOf returns the RuntimeErrorCode carried by err, or "" if err is not a
// RuntimeError. Uses errors.As to handle wrapped errors.
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and FiringsExceededError.
func IsQuotaError(err error) bool {
	if CodeOf(err) == ErrCodeQuotaExceeded {
		return true
	}
	var fe *FiringsExceededError
	return errors.As(err, &fe)
}

// IsCycleError returns true if the error is a cycle detection error.
func IsCycleError(err error) bool {
	return CodeOf(err) == ErrCodeCycleDetected
}
