package scheduler

import (
	"errors"
	"fmt"
)

// DefaultMaxSteps bounds the callbacks one execution group may start. A
// cycle that survived validation would otherwise run forever.
const DefaultMaxSteps = 1000

// QuotaEnforcer counts the callbacks started in one execution group.
//
// Each group has its own enforcer, created when the group starts its first
// callback and checked before every start. Static cycles are caught at
// hydration by graph.OverallOrder; the quota catches what only the live
// layout produces, such as a callback that keeps re-triggering itself
// through a wildcard.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates an enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check counts one step and fails once the limit is exceeded.
//
// Returns *StepsExceededError for the step that crossed the limit and
// every step after it.
func (q *QuotaEnforcer) Check(group string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Group: group,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Current returns the step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// StepsExceededError is reported for each callback dropped because its
// group ran out of steps.
type StepsExceededError struct {
	Group string
	Steps int
	Limit int
}

// Error names the group and the limit it crossed.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("execution group %s exceeded max steps quota: %d steps > %d limit",
		e.Group, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err is or wraps a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
