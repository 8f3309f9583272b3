package feature

import (
	"errors"
	"fmt"
)

// Sentinel errors let callers map failures onto the right response
// class without string matching. Precondition and guard errors mean no
// state was mutated and no log row was written.
var (
	// ErrNotFound indicates the feature id does not exist.
	ErrNotFound = errors.New("feature not found")

	// ErrAlreadyPassing indicates the feature is already passing.
	ErrAlreadyPassing = errors.New("feature is already passing")

	// ErrAlreadyInProgress indicates another agent holds the claim.
	ErrAlreadyInProgress = errors.New("feature is already in-progress")

	// ErrNotInProgress indicates mark-passing was called without a claim.
	ErrNotInProgress = errors.New("feature is NOT in-progress")

	// ErrRateLimited indicates the mark-passing window is exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrEvidenceTooShort indicates the verification evidence did not
	// meet the minimum length after whitespace stripping.
	ErrEvidenceTooShort = errors.New("verification evidence too short")

	// ErrVerificationFailed indicates the verification command exited
	// non-zero.
	ErrVerificationFailed = errors.New("verification command failed")

	// ErrVerificationTimeout indicates the verification command hit the
	// execution deadline.
	ErrVerificationTimeout = errors.New("verification command timed out")

	// ErrDependencyCycle indicates an edge insert would close a cycle.
	ErrDependencyCycle = errors.New("dependency cycle detected")

	// ErrDependencyExists indicates the edge is already present.
	ErrDependencyExists = errors.New("dependency already exists")

	// ErrSelfDependency indicates a feature cannot depend on itself.
	ErrSelfDependency = errors.New("feature cannot depend on itself")
)

// NotFoundError wraps ErrNotFound with the offending id.
func NotFoundError(id int64) error {
	return fmt.Errorf("feature with ID %d: %w", id, ErrNotFound)
}

// VerificationError carries the failing command and its truncated
// output streams for user-visible reporting.
type VerificationError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("verification command timed out (120s limit): %s", e.Command)
	}
	return fmt.Sprintf("verification command FAILED (exit code %d): fix the issues and try again", e.ExitCode)
}

// Unwrap maps the error onto its guard sentinel.
func (e *VerificationError) Unwrap() error {
	if e.TimedOut {
		return ErrVerificationTimeout
	}
	return ErrVerificationFailed
}
