package reminder

import "fmt"

// Error taxonomy for reminder operations. All types are errors.As-able so
// callers can branch on the class without string matching.

// ValidationError reports rejected reminder input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an operation against an unknown reminder id.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("reminder %s not found", e.ID)
}

// ProcessingError wraps a failure inside a lifecycle operation
// (e.g. recurrence chaining).
type ProcessingError struct {
	Op  string
	Err error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e ProcessingError) Unwrap() error { return e.Err }

// ServiceUnavailableError is raised when infrastructure-level failure
// prevents even attempting an operation (e.g. the store is unreachable).
type ServiceUnavailableError struct {
	Op  string
	Err error
}

func (e ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Op, e.Err)
}

func (e ServiceUnavailableError) Unwrap() error { return e.Err }
