// internal/browser/errors.go
package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/chatbridge/api/schemas"
)

// OpError is the typed outcome of a failed controller operation. Every
// error crossing the controller boundary is one of these; the facade maps
// the class to a distinct caller-visible signal.
type OpError struct {
	Class schemas.FailureClass
	// Role names the selector role that failed to resolve, when the class
	// is selector_unresolved or structural_failure.
	Role string
	// Wait is the admission retry hint, when the class is rate_limited.
	Wait time.Duration
	// Partial carries the last observed response text, when the class is
	// timeout and the configuration allows surfacing it.
	Partial string
	Err     error
}

func (e *OpError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	case e.Role != "":
		return fmt.Sprintf("%s: role %q", e.Class, e.Role)
	default:
		return string(e.Class)
	}
}

func (e *OpError) Unwrap() error { return e.Err }

// ClassOf extracts the failure class from an error chain. The second
// return is false when the error carries no classification.
func ClassOf(err error) (schemas.FailureClass, bool) {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Class, true
	}
	return "", false
}

// opError builds a classified error wrapping a cause.
func opError(class schemas.FailureClass, err error) *OpError {
	return &OpError{Class: class, Err: err}
}

// roleError builds a selector-drift error naming the unresolved role.
func roleError(class schemas.FailureClass, role string) *OpError {
	return &OpError{Class: class, Role: role}
}
