// Package retry implements fixed-delay retries driven by an immutable Policy.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/internal"
	"github.com/aponysus/courier/observe"
	"github.com/aponysus/courier/result"
)

// Retrier carries the collaborators of the retry algorithm. It holds no
// per-run state and is safe for concurrent use.
type Retrier struct {
	name     string
	observer observe.Observer
	logger   *slog.Logger
	clock    func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithName labels attempts reported to the observer and the logs.
func WithName(name string) Option {
	return func(r *Retrier) { r.name = name }
}

func WithObserver(o observe.Observer) Option {
	return func(r *Retrier) { r.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Retrier) { r.logger = l }
}

func WithClock(f func() time.Time) Option {
	return func(r *Retrier) { r.clock = f }
}

// WithSleep replaces the delay function, primarily for tests. fn must return
// a non-nil error once ctx is done.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(r *Retrier) { r.sleep = fn }
}

// NewRetrier creates a Retrier with a no-op observer and slog.Default.
func NewRetrier(opts ...Option) *Retrier {
	r := &Retrier{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if internal.IsTypedNil(r.observer) {
		r.observer = observe.NoopObserver{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.sleep == nil {
		r.sleep = sleepWithContext
	}
	return r
}

// AttemptHook receives every retry attempt after it finishes.
type AttemptHook func(rec observe.AttemptRecord)

// Do retries op after it already failed once with cause.
//
// A cause of an unrecognized kind is returned as-is without retrying. Each
// retry waits pol.Delay first; a cancelled ctx ends the loop with a
// RetryInterrupted failure. A recognized failure on the last allowed retry
// yields RetriesExhausted wrapping that failure's cause.
func Do[T any](ctx context.Context, r *Retrier, pol *Policy, op result.Operation[T], payload T, cause error, hooks ...AttemptHook) result.Result[T] {
	if r == nil {
		r = NewRetrier()
	}
	if pol == nil || !pol.Recognizes(cause) {
		return result.Fail(payload, cause)
	}

	last := cause
	for attempt := 1; pol.Forever() || attempt <= pol.maxRetries; attempt++ {
		if err := r.sleep(ctx, pol.delay); err != nil {
			r.logger.Warn("retry interrupted", "name", r.name, "attempt", attempt, "error", err)
			return result.Fail(payload, fault.Newf(fault.KindRetryInterrupted, "retry policy delay: %w", err))
		}

		rec := observe.AttemptRecord{Stage: observe.StageRetry, Index: attempt, Delay: pol.delay, StartTime: r.clock()}
		attemptCtx := observe.WithAttemptInfo(ctx, observe.AttemptInfo{Name: r.name, Stage: observe.StageRetry, Index: attempt})
		res := op(attemptCtx, payload)
		rec.EndTime = r.clock()

		switch v := res.(type) {
		case result.Success[T]:
			r.report(ctx, rec, hooks)
			r.logger.Debug("retry succeeded", "name", r.name, "attempt", attempt)
			return v
		case result.Failure[T]:
			rec.Err = v.Cause
			rec.Kind = pol.Classify(v.Cause)
			r.report(ctx, rec, hooks)
			r.logger.Error("retry attempt failed", "name", r.name, "attempt", attempt, "kind", rec.Kind, "error", v.Cause)
			if !pol.recognized.Contains(rec.Kind) {
				return v
			}
			last = v.Cause
		default:
			panic(fault.Unrecoverable("retry: operation returned %T", res))
		}
	}

	return result.Fail(payload, fault.Newf(fault.KindRetriesExhausted, "max retries (%d) reached: %w", pol.maxRetries, last))
}

func (r *Retrier) report(ctx context.Context, rec observe.AttemptRecord, hooks []AttemptHook) {
	r.observer.OnAttempt(ctx, r.name, rec)
	for _, h := range hooks {
		if h != nil {
			h(rec)
		}
	}
}

// sleepWithContext waits for d or until ctx is done. Cancellation is reported
// even for d <= 0 so an unbounded retry loop stays interruptible.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
