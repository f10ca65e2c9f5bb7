package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("database is locked")

func fastRetry() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}
}

func TestWithRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errFlaky
		}
		return nil
	}, fastRetry())

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryKeepsErrorIdentityAfterExhaustion(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		return errFlaky
	}, fastRetry())

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, errors.Is(err, ErrMaxRetries))
	assert.True(t, errors.Is(err, errFlaky))
}

func TestWithRetryDoesNotRetryStaleCandidates(t *testing.T) {
	attempts := 0
	stale := &StaleCandidateError{CandidateID: "c1", RecordID: "e1", Status: "matched"}
	err := WithRetry(context.Background(), func() error {
		attempts++
		return stale
	}, fastRetry())

	assert.Equal(t, 1, attempts)
	assert.True(t, IsStale(err))
}

func TestWithRetryDoesNotRetryInvariantViolations(t *testing.T) {
	attempts := 0
	violation := &AllocationInvariantError{GroupID: "g1", Want: 100000, Got: 90000}
	err := WithRetry(context.Background(), func() error {
		attempts++
		return violation
	}, fastRetry())

	assert.Equal(t, 1, attempts)
	var invariantErr *AllocationInvariantError
	require.ErrorAs(t, err, &invariantErr)
	assert.Equal(t, "g1", invariantErr.GroupID)
}

func TestWithRetryHonorsNonRetryableWrapper(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), func() error {
		attempts++
		return &RetryableError{Err: errFlaky, Retryable: false}
	}, fastRetry())

	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, errFlaky))
}
