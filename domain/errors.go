package domain

import "fmt"

// NotFoundError reports a mutation whose target task does not exist.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string { return "task not found: " + e.ID }

// NotFound marks the error for interface-based matching in callers that do
// not import this package directly.
func (NotFoundError) NotFound() {}

// PersistenceError wraps a failure of the underlying store. The mutation it
// interrupted is guaranteed not to have been partially applied.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// AuthorizationError reports denied calendar consent or a provider failure
// while requesting it.
type AuthorizationError struct {
	Reason string
}

func (e AuthorizationError) Error() string { return "calendar authorization: " + e.Reason }

// ValidationError reports input rejected before it reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string { return "invalid " + e.Field + ": " + e.Reason }
