package engine

import (
	"errors"
	"fmt"
	"time"
)

// Workflow outcomes that callers are expected to branch on. Everything else
// coming out of the engine is a wrapped store failure.
var (
	// ErrRateLimited rejects a submission inside the submitter's cooldown.
	ErrRateLimited = errors.New("rate limited")

	// ErrBanned rejects a submission for a blacklisted video.
	ErrBanned = errors.New("video is banned")

	// ErrDuplicateContribution rejects a second contribution by the same
	// submitter to the same request.
	ErrDuplicateContribution = errors.New("duplicate contribution")

	// ErrNotFound reports a missing target row.
	ErrNotFound = errors.New("not found")

	// ErrEmptySelection reports an archival sweep that selected nothing.
	ErrEmptySelection = errors.New("nothing to archive")

	// ErrInvariantViolation reports a state the workflow guarantees cannot
	// happen. Reaching it is a bug and is logged at error severity.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrNotPermitted rejects a moderator-management action by an identity
	// without can-add-mods.
	ErrNotPermitted = errors.New("not permitted")

	// ErrAlreadyEnrolled rejects enrolling an identity that is already a
	// moderator.
	ErrAlreadyEnrolled = errors.New("already a moderator")

	// ErrUpstreamUnavailable reports a failed call to an external
	// collaborator (metadata or membership lookup).
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// AlreadyViewedError rejects a submission for a request a moderator has
// already marked viewed; it carries the timestamp for the caller's message.
type AlreadyViewedError struct {
	ViewedAt time.Time
}

func (e *AlreadyViewedError) Error() string {
	return fmt.Sprintf("request already viewed at %s", e.ViewedAt.Format("2006-01-02 15:04:05"))
}

// StoreError wraps an underlying persistence failure with the operation
// that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
