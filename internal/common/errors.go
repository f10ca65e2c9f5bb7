// Package common provides shared utilities and types used across the engine.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Matching errors.
	// ErrEmptyCandidateSet is a normal terminal state, not a failure: the
	// transaction simply stays unmatched pending manual review.
	ErrEmptyCandidateSet = errors.New("no candidates within tolerance")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// NormalizationError indicates a malformed source record that was excluded
// from matching. It is reported back to the ingestion collaborator, never
// silently dropped.
type NormalizationError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("record %s: invalid %s: %s", e.RecordID, e.Field, e.Reason)
}

// StaleCandidateError indicates an optimistic-concurrency conflict: a record
// referenced by a candidate changed status between generation and apply. The
// caller must regenerate candidates rather than retry blindly.
type StaleCandidateError struct {
	CandidateID string
	RecordID    string
	Status      string
}

func (e *StaleCandidateError) Error() string {
	return fmt.Sprintf("candidate %s is stale: record %s is now %s",
		e.CandidateID, e.RecordID, e.Status)
}

// AllocationInvariantError reports an allocation sum that drifted beyond
// tolerance. The apply is aborted and nothing is written.
type AllocationInvariantError struct {
	GroupID string
	Want    int64
	Got     int64
}

func (e *AllocationInvariantError) Error() string {
	return fmt.Sprintf("allocation invariant violated for group %s: want %d minor units, got %d",
		e.GroupID, e.Want, e.Got)
}

// ToleranceConfigError rejects an invalid matching configuration at job
// start, before any batch work runs.
type ToleranceConfigError struct {
	Field string
	Value string
}

func (e *ToleranceConfigError) Error() string {
	return fmt.Sprintf("invalid matching configuration: %s = %s", e.Field, e.Value)
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsStale reports whether err is a stale-candidate conflict.
func IsStale(err error) bool {
	var stale *StaleCandidateError
	return errors.As(err, &stale)
}
