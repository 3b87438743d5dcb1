package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groundedqa/internal/contextutil"
)

// CallPolicy bounds a capability call.
type CallPolicy struct {
	// Timeout applies to each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
	// Retry allows one more attempt after a failure.
	Retry bool
}

// permanentError marks failures a second attempt cannot fix (bad response shape).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// withRetry runs fn under the policy. The parent context is never retried
// past: once ctx is done the last error is returned immediately.
func withRetry[T any](ctx context.Context, policy CallPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := 1
	if policy.Retry {
		attempts = 2
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		result, err := fn(attemptCtx)
		timedOut := attemptCtx.Err() != nil
		cancel()
		if err == nil {
			return result, nil
		}

		if timedOut && ctx.Err() == nil {
			err = fmt.Errorf("%s timed out after %s: %w", op, policy.Timeout, err)
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s cancelled: %w", op, errors.Join(ctx.Err(), err))
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempt < attempts {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "capability call failed, retrying",
				"operation", op,
				"attempt", attempt,
				"error", err,
			)
		}
	}
	return zero, lastErr
}
