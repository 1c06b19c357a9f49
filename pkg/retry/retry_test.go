package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "certpipe/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return apperrors.ErrServiceUnavailable
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return apperrors.ErrServiceUnavailable
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsImmediatelyOnFatalError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		return apperrors.ErrValidation
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNotifyReportsEachRetry(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := Notify(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return apperrors.ErrTimeout
		}
		return nil
	}, func(err error, next time.Duration) {
		delays = append(delays, next)
	})

	require.NoError(t, err)
	assert.Len(t, delays, 2)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(5), func() error {
		calls++
		return apperrors.ErrServiceUnavailable
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
