package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrStaleQuotes       = errors.New("quotes are stale")
	ErrNoRoute           = errors.New("no route satisfies constraints")
	ErrEmptyLeaves       = errors.New("merkle tree requires at least one leaf")
	ErrPlanNotActive     = errors.New("plan is not active")
	ErrBadTransition     = errors.New("illegal status transition")
	ErrLockHeld          = errors.New("lock already held")
	ErrSnapshotImmutable = errors.New("snapshot is immutable")
)

// ValidationError carries the complete list of violated rules for one
// request, so operators can fix everything in one pass rather than
// discovering failures one at a time.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

// NewValidationError builds a ValidationError from the given reasons.
func NewValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}
