// Package result holds the two-variant outcome type returned by every
// delivery operation.
package result

import (
	"context"
	"errors"

	"github.com/aponysus/courier/fault"
)

// Result is either a Success or a Failure. The interface is sealed; consume it
// with a type switch over both variants or with Match. The marker mentions T so
// a Result[int] never satisfies Result[string].
type Result[T any] interface {
	isResult(T)
}

// Success carries the value produced by a successful operation.
type Success[T any] struct {
	Value T
}

// Failure carries the (possibly partially processed) value and the cause.
type Failure[T any] struct {
	Value T
	Cause error
}

func (Success[T]) isResult(T) {}
func (Failure[T]) isResult(T) {}

var errNoCause = errors.New("failure without cause")

// Ok returns a Success holding v.
func Ok[T any](v T) Result[T] {
	return Success[T]{Value: v}
}

// Fail returns a Failure holding v. A nil cause is replaced with an
// OperationFailed error so Failure.Cause is never nil.
func Fail[T any](v T, cause error) Result[T] {
	if cause == nil {
		cause = fault.New(fault.KindOperationFailed, errNoCause)
	}
	return Failure[T]{Value: v, Cause: cause}
}

// Match dispatches r to onSuccess or onFailure.
//
// A nil or foreign Result panics with an UnrecoverableState fault.
func Match[T, R any](r Result[T], onSuccess func(T) R, onFailure func(T, error) R) R {
	switch v := r.(type) {
	case Success[T]:
		return onSuccess(v.Value)
	case Failure[T]:
		return onFailure(v.Value, v.Cause)
	default:
		panic(fault.Unrecoverable("result: unexpected variant %T", r))
	}
}

// Unwrap returns the carried value and the failure cause (nil on success).
func Unwrap[T any](r Result[T]) (T, error) {
	switch v := r.(type) {
	case Success[T]:
		return v.Value, nil
	case Failure[T]:
		return v.Value, v.Cause
	default:
		panic(fault.Unrecoverable("result: unexpected variant %T", r))
	}
}

// IsSuccess reports whether r is a Success.
func IsSuccess[T any](r Result[T]) bool {
	_, ok := r.(Success[T])
	return ok
}

// Operation is a send capability: it attempts delivery of payload and reports
// the outcome. Expected failures are returned, never panicked.
type Operation[T any] func(ctx context.Context, payload T) Result[T]

// Lift adapts an error-returning function into an Operation. The payload is
// carried unchanged in both variants.
func Lift[T any](fn func(ctx context.Context, payload T) error) Operation[T] {
	return func(ctx context.Context, payload T) Result[T] {
		if err := fn(ctx, payload); err != nil {
			return Fail(payload, err)
		}
		return Ok(payload)
	}
}
