package ats

import (
	"errors"
	"fmt"
)

// AuthError indicates a step of the token exchange failed. No records can be
// fetched; the orchestrator treats it as fatal for the cycle.
type AuthError struct {
	Step    string
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth failed at %s step: %s: %v", e.Step, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth failed at %s step: %s", e.Step, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// ErrPaginationInconsistency marks a collection whose association surface
// could not be fully paginated against its own reported total. The
// cross-check is aborted for that collection rather than risking removal of
// valid records; the cycle continues.
var ErrPaginationInconsistency = errors.New("association surface under-collected against its reported total")

// TransientFetchError wraps a single page request failure. Pagination stops
// early and the partial set already collected is returned.
type TransientFetchError struct {
	Surface string
	Start   int
	Cause   error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure on %s surface at offset %d: %v", e.Surface, e.Start, e.Cause)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Cause
}
