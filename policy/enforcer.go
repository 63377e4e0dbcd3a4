// Package policy composes validation, retry and fallback around a send
// capability.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aponysus/courier/circuit"
	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/observe"
	"github.com/aponysus/courier/result"
	"github.com/aponysus/courier/retry"
	"github.com/aponysus/courier/validate"
)

// Enforcer runs an operation through the validation chain, the primary
// attempt, the retry policy and the fallback chain, in that order.
//
// An Enforcer is immutable and safe for concurrent use.
type Enforcer[T any] struct {
	name        string
	validations []validate.Policy[T]
	retry       *retry.Policy
	retrier     *retry.Retrier
	fallbacks   []result.Operation[T]
	breaker     circuit.CircuitBreaker
	observer    observe.Observer
	logger      *slog.Logger
	clock       func() time.Time
}

// Name returns the label given with Builder.WithName.
func (e *Enforcer[T]) Name() string { return e.name }

// Run enforces the policy around op for payload.
//
// Expected failures come back as result.Failure tagged with a fault.Kind. A
// Result that is neither variant panics with a KindUnrecoverableState fault.
func (e *Enforcer[T]) Run(ctx context.Context, op result.Operation[T], payload T) result.Result[T] {
	capture, _ := observe.TimelineCaptureFromContext(ctx)
	ctx = observe.WithoutTimelineCapture(ctx)

	r := &run[T]{
		e:       e,
		payload: payload,
		tl: observe.Timeline{
			Name:       e.name,
			Start:      e.clock(),
			Attributes: e.attributes(),
		},
	}
	e.observer.OnStart(ctx, e.name)

	res := r.execute(ctx, op)

	r.tl.End = e.clock()
	switch v := res.(type) {
	case result.Success[T]:
		e.observer.OnSuccess(ctx, e.name, r.tl)
	case result.Failure[T]:
		r.tl.FinalErr = v.Cause
		r.tl.FinalKind = fault.KindOf(v.Cause)
		e.observer.OnFailure(ctx, e.name, r.tl)
	}
	observe.StoreTimelineCapture(capture, &r.tl)
	return res
}

// Operation returns op wrapped by the enforcer, e.g. for a delivery queue.
func (e *Enforcer[T]) Operation(op result.Operation[T]) result.Operation[T] {
	return func(ctx context.Context, payload T) result.Result[T] {
		return e.Run(ctx, op, payload)
	}
}

func (e *Enforcer[T]) attributes() map[string]string {
	attrs := map[string]string{
		"validations": strconv.Itoa(len(e.validations)),
		"fallbacks":   strconv.Itoa(len(e.fallbacks)),
	}
	if e.retry != nil {
		attrs["retry"] = e.retry.String()
	}
	return attrs
}

// run holds the state of a single Run call.
type run[T any] struct {
	e       *Enforcer[T]
	payload T
	tl      observe.Timeline
	// admitted is set while the breaker is owed an outcome for this run.
	admitted bool
}

func (r *run[T]) execute(ctx context.Context, op result.Operation[T]) result.Result[T] {
	e := r.e

	if len(e.validations) > 0 {
		start := e.clock()
		res := validate.Chain(ctx, e.validations, r.payload)
		switch v := res.(type) {
		case result.Success[T]:
		case result.Failure[T]:
			r.record(ctx, observe.AttemptRecord{Stage: observe.StageValidation, StartTime: start, EndTime: e.clock(), Kind: fault.KindOf(v.Cause), Err: v.Cause})
			e.logger.Info("payload rejected by validation", "error", v.Cause)
			return v
		default:
			panic(fault.Unrecoverable("enforcer %s: validation returned %T", e.name, res))
		}
	}

	var failed result.Failure[T]
	if e.allowPrimary(ctx, r) {
		// A panicking primary or retry still settles the breaker, otherwise a
		// half-open probe slot would never be released.
		defer r.releaseBreaker(ctx)
		res := r.attempt(ctx, op, observe.StagePrimary, 0)
		switch v := res.(type) {
		case result.Success[T]:
			r.recordBreaker(ctx, true)
			return v
		case result.Failure[T]:
			if e.retry == nil {
				r.recordBreaker(ctx, false)
				return v
			}
			e.logger.Warn("operation failed, applying retry policy", "kind", fault.KindOf(v.Cause), "error", v.Cause)
			res = retry.Do(ctx, e.retrier, e.retry, op, r.payload, v.Cause, func(rec observe.AttemptRecord) {
				r.record(ctx, rec)
			})
		default:
			panic(fault.Unrecoverable("enforcer %s: operation returned %T", e.name, res))
		}

		switch v := res.(type) {
		case result.Success[T]:
			r.recordBreaker(ctx, true)
			return v
		case result.Failure[T]:
			r.recordBreaker(ctx, false)
			failed = v
		default:
			panic(fault.Unrecoverable("enforcer %s: retry returned %T", e.name, res))
		}
	} else {
		failed = result.Failure[T]{Value: r.payload, Cause: fault.Newf(fault.KindCircuitOpen, "enforcer %s: primary operation skipped", e.name)}
	}

	if len(e.fallbacks) == 0 {
		return failed
	}
	return r.fallback(ctx, failed.Cause)
}

func (e *Enforcer[T]) allowPrimary(ctx context.Context, r *run[T]) bool {
	if e.breaker == nil {
		return true
	}
	d := e.breaker.Allow(ctx)
	r.admitted = d.Allowed
	r.tl.Attributes["circuit"] = d.State.String()
	if !d.Allowed {
		e.logger.Warn("circuit open, skipping primary operation", "state", d.State, "reason", d.Reason)
	}
	return d.Allowed
}

func (r *run[T]) recordBreaker(ctx context.Context, ok bool) {
	if r.e.breaker == nil || !r.admitted {
		return
	}
	r.admitted = false
	if ok {
		r.e.breaker.RecordSuccess(ctx)
	} else {
		r.e.breaker.RecordFailure(ctx)
	}
}

// releaseBreaker counts an admitted run that never reported an outcome as a
// failure.
func (r *run[T]) releaseBreaker(ctx context.Context) {
	if r.admitted {
		r.e.logger.Warn("primary operation did not complete, recording breaker failure")
		r.recordBreaker(ctx, false)
	}
}

// fallback tries each fallback with the original payload. The first success
// wins; otherwise every cause is joined under AllFallbacksFailed.
func (r *run[T]) fallback(ctx context.Context, cause error) result.Result[T] {
	e := r.e
	e.logger.Info("running fallbacks", "count", len(e.fallbacks), "cause", cause)

	errs := make([]error, 0, len(e.fallbacks))
	for i, fb := range e.fallbacks {
		res := r.attempt(ctx, fb, observe.StageFallback, i)
		switch v := res.(type) {
		case result.Success[T]:
			e.logger.Info("fallback succeeded", "index", i)
			return v
		case result.Failure[T]:
			e.logger.Error("fallback failed", "index", i, "kind", fault.KindOf(v.Cause), "error", v.Cause)
			errs = append(errs, fmt.Errorf("fallback %d: %w", i, v.Cause))
		default:
			panic(fault.Unrecoverable("enforcer %s: fallback %d returned %T", e.name, i, res))
		}
	}
	return result.Fail(r.payload, fault.Newf(fault.KindAllFallbacksFailed, "all %d fallbacks failed: %w", len(e.fallbacks), errors.Join(errs...)))
}

func (r *run[T]) attempt(ctx context.Context, op result.Operation[T], stage observe.Stage, index int) result.Result[T] {
	rec := observe.AttemptRecord{Stage: stage, Index: index, StartTime: r.e.clock()}
	res := op(observe.WithAttemptInfo(ctx, observe.AttemptInfo{Name: r.e.name, Stage: stage, Index: index}), r.payload)
	rec.EndTime = r.e.clock()
	if f, ok := res.(result.Failure[T]); ok {
		rec.Err = f.Cause
		rec.Kind = fault.KindOf(f.Cause)
	}
	r.record(ctx, rec)
	return res
}

func (r *run[T]) record(ctx context.Context, rec observe.AttemptRecord) {
	r.tl.Attempts = append(r.tl.Attempts, rec)
	r.e.observer.OnAttempt(ctx, r.e.name, rec)
}
