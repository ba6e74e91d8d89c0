// internal/browser/dom/errors.go
package dom

import (
	"fmt"
	"time"
)

// TimeoutError is returned when a bounded wait exceeds its budget. It is the
// only error WaitFor produces apart from context cancellation.
type TimeoutError struct {
	Locator string
	Elapsed time.Duration
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for %s (budget %v)", e.Elapsed.Round(time.Millisecond), e.Locator, e.Timeout)
}

// ElementNotFoundError reports that an action could not resolve its target in time.
type ElementNotFoundError struct {
	Locator string
	Cause   error
}

func (e *ElementNotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("element not found: %s: %v", e.Locator, e.Cause)
	}
	return fmt.Sprintf("element not found: %s", e.Locator)
}

func (e *ElementNotFoundError) Unwrap() error { return e.Cause }

// ElementNotVisibleError reports that the target exists but never passed the
// visibility predicate.
type ElementNotVisibleError struct {
	Locator string
	Cause   error
}

func (e *ElementNotVisibleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("element not visible: %s: %v", e.Locator, e.Cause)
	}
	return fmt.Sprintf("element not visible: %s", e.Locator)
}

func (e *ElementNotVisibleError) Unwrap() error { return e.Cause }
