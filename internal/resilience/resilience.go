// Package resilience bounds collaborator calls with a per-attempt timeout and
// a limited number of retries with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"askdocs/internal/domain"
	"askdocs/internal/logging"
	"askdocs/internal/metrics"
	"askdocs/internal/tracing"
)

// Policy configures how a collaborator call is attempted.
type Policy struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout:     120 * time.Second,
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Call runs fn until it succeeds, attempts are exhausted or ctx is done.
// Final failures are returned as *domain.ExternalCallError.
func Call[T any](ctx context.Context, p Policy, collaborator, op string, fn func(context.Context) (T, error)) (T, error) {
	attempts := max(p.MaxAttempts, 1)
	ctx, span := tracing.Start(ctx, collaborator+"."+op,
		attribute.String("collaborator", collaborator),
		attribute.String("op", op),
	)
	start := time.Now()

	var zero T
	var lastErr error
	tried := 0
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		tried++
		out, err := callOnce(ctx, p.Timeout, fn)
		if err == nil {
			metrics.RecordExternalCall(collaborator, op, nil, time.Since(start))
			span.SetAttributes(attribute.Int("attempts", tried))
			tracing.End(span, nil)
			return out, nil
		}
		lastErr = err
		logging.FromContext(ctx).Warn("collaborator call failed",
			"collaborator", collaborator, "op", op, "attempt", tried, "error", err)
		if attempt == attempts-1 || ctx.Err() != nil {
			break
		}
		if sleepErr := sleep(ctx, p.backoff(attempt)); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	callErr := &domain.ExternalCallError{Collaborator: collaborator, Op: op, Attempts: tried, Err: lastErr}
	metrics.RecordExternalCall(collaborator, op, callErr, time.Since(start))
	tracing.End(span, callErr)
	return zero, callErr
}

func callOnce[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := fn(attemptCtx)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		var zero T
		return zero, &TimeoutError{After: timeout, Err: err}
	}
	return out, err
}

// TimeoutError reports an attempt that exceeded its per-call deadline.
type TimeoutError struct {
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return "timed out after " + e.After.String() + ": " + e.Err.Error()
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (p Policy) backoff(attempt int) time.Duration {
	return retryDelay(attempt, p.BaseBackoff, p.MaxBackoff)
}

// retryDelay doubles base per attempt, capped at limit.
func retryDelay(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if limit <= 0 {
		limit = 5 * time.Second
	}
	if attempt > 30 {
		return limit
	}
	d := base << attempt
	if d > limit || d <= 0 {
		d = limit
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
