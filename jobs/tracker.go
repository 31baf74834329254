// Package jobs tracks long-running server-side operations (preannotation
// ingestion, dataset readiness, export generation) by polling a status
// endpoint until a terminal state or a bound is reached.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/labellerr/labellerr-go/config"
	"github.com/labellerr/labellerr-go/poll"
)

// Terminal job states as the platform reports them.
const (
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Status is one observation of a tracked job.
type Status struct {
	// State is the server-reported status string. The tracker only
	// distinguishes terminal success, terminal failure and "still running".
	State string
	// Payload is the full response body of the status endpoint.
	Payload json.RawMessage
}

// StatusFunc fetches the current job status from the gateway.
type StatusFunc func(ctx context.Context) (Status, error)

// FailedError means the server reported a terminal failure state; polling
// stops immediately.
type FailedError struct {
	Status Status
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("job reported terminal state %q", e.Status.State)
}

// ExhaustedError means polling gave up via timeout or max attempts before
// the job reached a terminal state.
type ExhaustedError struct {
	Attempts int
	Last     Status
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up tracking job after %d attempts (last state %q)", e.Attempts, e.Last.State)
}

// Options bounds one tracking call. Zero values fall back to the platform's
// job poll interval and to unbounded polling (ctx remains the escape hatch).
type Options struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxAttempts int
	// IsSuccess and IsFailure classify terminal states. They default to
	// matching StateCompleted and StateFailed.
	IsSuccess func(Status) bool
	IsFailure func(Status) bool
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = config.JobPollInterval
	}
	if o.IsSuccess == nil {
		o.IsSuccess = func(s Status) bool { return s.State == StateCompleted }
	}
	if o.IsFailure == nil {
		o.IsFailure = func(s Status) bool { return s.State == StateFailed }
	}
	return o
}

// Tracker polls job status endpoints. It is safe for concurrent use.
type Tracker struct {
	logger log.Logger
}

// NewTracker ...
func NewTracker(logger log.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// observation lets fetch errors flow through the poll condition so the
// tracker can abort on them instead of silently retrying.
type observation struct {
	status Status
	err    error
}

// Track polls fetch until the job reaches a terminal state. It returns the
// final status on success, a *FailedError when the server reports failure,
// and an *ExhaustedError when a bound fires first. A fetch error aborts
// tracking after being logged.
func (t *Tracker) Track(ctx context.Context, fetch StatusFunc, opts Options) (Status, error) {
	opts = opts.withDefaults()

	fn := func(ctx context.Context) (observation, error) {
		status, err := fetch(ctx)
		return observation{status: status, err: err}, nil
	}
	terminal := func(o observation) bool {
		return o.err != nil || opts.IsSuccess(o.status) || opts.IsFailure(o.status)
	}

	outcome, err := poll.Poll(ctx, fn, terminal, poll.Options[observation]{
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		MaxAttempts: opts.MaxAttempts,
		OnGiveUp: func(attempts int, last observation) {
			t.logger.Warnf("Giving up job tracking after %d attempts", attempts)
		},
	})
	if err != nil {
		return outcome.Value.status, err
	}

	last := outcome.Value
	switch {
	case last.err != nil:
		t.logger.Errorf("Failed to get job status: %s", last.err)
		return last.status, fmt.Errorf("get job status: %w", last.err)
	case !outcome.Satisfied:
		return last.status, &ExhaustedError{Attempts: outcome.Attempts, Last: last.status}
	case opts.IsFailure(last.status):
		return last.status, &FailedError{Status: last.status}
	default:
		return last.status, nil
	}
}

// Result pairs the final status with the tracking error, for async callers.
type Result struct {
	Status Status
	Err    error
}

// TrackAsync runs Track on its own goroutine and delivers the result on the
// returned channel. Cancelling ctx stops the polling loop; it does not stop
// a status request already in flight.
func (t *Tracker) TrackAsync(ctx context.Context, fetch StatusFunc, opts Options) <-chan Result {
	done := make(chan Result, 1)
	go func() {
		status, err := t.Track(ctx, fetch, opts)
		done <- Result{Status: status, Err: err}
	}()
	return done
}
