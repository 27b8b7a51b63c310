package session

import (
	"errors"
	"fmt"
)

// QuotaEnforcer tracks the number of firings in a session and enforces a
// maximum. It stops runaway callers that keep firing rules whose inserts
// feed more firings.
type QuotaEnforcer struct {
	maxFirings int
	current    int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxFirings int) *QuotaEnforcer {
	return &QuotaEnforcer{maxFirings: maxFirings}
}

// Check increments the firing counter and validates against the limit.
// Returns FiringsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(session string) error {
	q.current++
	if q.current > q.maxFirings {
		return &FiringsExceededError{
			Session: session,
			Firings: q.current,
			Limit:   q.maxFirings,
		}
	}
	return nil
}

// Current returns the current firing count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxFirings returns the limit.
func (q *QuotaEnforcer) MaxFirings() int {
	return q.maxFirings
}

// FiringsExceededError is returned when a session exceeds its firing quota.
type FiringsExceededError struct {
	Session string
	Firings int
	Limit   int
}

// Error implements the error interface.
func (e *FiringsExceededError) Error() string {
	return fmt.Sprintf("session %s exceeded max firings quota: %d firings > %d limit",
		e.Session, e.Firings, e.Limit)
}

// IsFiringsExceededError returns true if the error is a FiringsExceededError.
func IsFiringsExceededError(err error) bool {
	var fe *FiringsExceededError
	return errors.As(err, &fe)
}
