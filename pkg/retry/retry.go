package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "certpipe/pkg/errors"
)

// Policy bounds a retried operation. A zero MaxElapsedTime means the
// attempt count alone decides when to give up.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  5 * time.Minute,
	}
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime

	var b backoff.BackOff = exp
	b = backoff.WithContext(b, ctx)
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}

// Retry runs fn under the policy. Errors marked fatal via the errors
// package stop immediately; everything else is retried.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	return Notify(ctx, policy, fn, nil)
}

// Notify is Retry with a callback invoked before each sleep, used to
// log connection retries during startup.
func Notify(ctx context.Context, policy Policy, fn func() error, onRetry func(err error, nextDelay time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if apperrors.IsFatal(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		if onRetry != nil {
			onRetry(err, next)
		}
	}

	return backoff.RetryNotify(operation, policy.backoff(ctx), notify)
}

// Perpetual returns a backoff that never gives up, for long-lived
// reconnect loops. The caller is expected to stop via context.
func Perpetual(ctx context.Context, initialInterval, maxInterval time.Duration) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(exp, ctx)
}
