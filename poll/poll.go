// Package poll implements the generic status-polling primitive used by every
// asynchronous job tracker in the SDK: call a function repeatedly until a
// condition holds, or give up after a timeout or a number of attempts.
package poll

import (
	"context"
	"time"
)

// Options configures a single Poll run. The zero value of Timeout and
// MaxAttempts means the corresponding bound is not applied; with both unset
// the poll runs until the condition is satisfied or ctx is cancelled.
type Options[T any] struct {
	// Interval is the sleep between attempts.
	Interval time.Duration
	// Timeout bounds the total elapsed time. Zero means no time bound.
	Timeout time.Duration
	// MaxAttempts bounds the number of calls. Zero means no attempt bound.
	MaxAttempts int
	// OnSuccess is invoked with the result that satisfied the condition.
	OnSuccess func(result T)
	// OnGiveUp is invoked when the timeout or attempt bound fires first.
	OnGiveUp func(attempts int, last T)
	// OnError is invoked when fn returns an error. The error is not
	// terminal: the poll continues with the next attempt.
	OnError func(err error)
}

// Outcome is the final state of a Poll run.
type Outcome[T any] struct {
	// Value is the last result returned by fn.
	Value T
	// Satisfied reports whether the condition was ever met. When false the
	// poll ended via timeout, attempt exhaustion or context cancellation.
	Satisfied bool
	// Attempts is the number of times fn was called.
	Attempts int
}

// Poll calls fn every opts.Interval until condition returns true for its
// result, a bound fires, or ctx is cancelled. Errors from fn are treated as
// non-terminal attempts. The last result is always returned; the only error
// Poll itself returns is the context's.
func Poll[T any](ctx context.Context, fn func(ctx context.Context) (T, error), condition func(T) bool, opts Options[T]) (Outcome[T], error) {
	var outcome Outcome[T]

	start := time.Now()
	for {
		outcome.Attempts++

		result, err := fn(ctx)
		if err != nil {
			if opts.OnError != nil {
				opts.OnError(err)
			}
		} else {
			outcome.Value = result
			if condition(result) {
				outcome.Satisfied = true
				if opts.OnSuccess != nil {
					opts.OnSuccess(result)
				}
				return outcome, nil
			}
		}

		if opts.Timeout > 0 && time.Since(start) > opts.Timeout {
			if opts.OnGiveUp != nil {
				opts.OnGiveUp(outcome.Attempts, outcome.Value)
			}
			return outcome, nil
		}
		if opts.MaxAttempts > 0 && outcome.Attempts >= opts.MaxAttempts {
			if opts.OnGiveUp != nil {
				opts.OnGiveUp(outcome.Attempts, outcome.Value)
			}
			return outcome, nil
		}

		if err := sleep(ctx, opts.Interval); err != nil {
			return outcome, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		// Still yield to cancellation between attempts.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
