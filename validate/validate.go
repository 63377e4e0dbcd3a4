// Package validate holds the pre-delivery checks an enforcer runs before the
// primary send capability. A failing check is terminal for the run.
package validate

import (
	"context"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/result"
)

// Policy is a validation capability. Expected rejections are returned as a
// Failure tagged KindValidationRejected.
type Policy[T any] interface {
	Validate(ctx context.Context, payload T) result.Result[T]
}

// Func adapts a function into a Policy.
type Func[T any] func(ctx context.Context, payload T) result.Result[T]

func (f Func[T]) Validate(ctx context.Context, payload T) result.Result[T] {
	return f(ctx, payload)
}

// Predicate builds a Policy from a boolean check. reason is wrapped into the
// rejection cause.
func Predicate[T any](reason string, ok func(T) bool) Policy[T] {
	return Func[T](func(_ context.Context, payload T) result.Result[T] {
		if ok(payload) {
			return result.Ok(payload)
		}
		return Reject(payload, fault.Newf(fault.KindValidationRejected, "%s", reason))
	})
}

// Reject tags err as a validation rejection for payload.
func Reject[T any](payload T, err error) result.Result[T] {
	if fault.KindOf(err) != fault.KindValidationRejected {
		err = fault.New(fault.KindValidationRejected, err)
	}
	return result.Fail(payload, err)
}

// Chain runs policies in order. The first Failure is returned as-is; when
// every policy passes the original payload proceeds, not a policy's copy.
func Chain[T any](ctx context.Context, policies []Policy[T], payload T) result.Result[T] {
	for _, p := range policies {
		if p == nil {
			continue
		}
		r := p.Validate(ctx, payload)
		if _, ok := r.(result.Success[T]); ok {
			continue
		}
		return r
	}
	return result.Ok(payload)
}
