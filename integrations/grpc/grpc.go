// Package grpc runs unary gRPC calls through an enforcer and maps status
// codes onto fault kinds.
package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/policy"
	"github.com/aponysus/courier/result"
)

// Call is the payload an enforcer sees for an intercepted unary call.
type Call struct {
	Method string
	Req    any
	Reply  any
}

// Classify maps a gRPC status onto a fault kind. Errors that do not carry a
// status fall back to fault.KindOf.
func Classify(err error) fault.Kind {
	if err == nil {
		return fault.KindNone
	}
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Kind != fault.KindNone {
		return fe.Kind
	}
	st, ok := status.FromError(err)
	if !ok {
		return fault.KindOf(err)
	}

	switch st.Code() {
	case codes.OK:
		return fault.KindNone
	case codes.Unavailable, codes.Aborted:
		return fault.KindTransient
	case codes.ResourceExhausted:
		return fault.KindThrottled
	case codes.DeadlineExceeded:
		return fault.KindTimeout
	case codes.Canceled:
		return fault.KindRetryInterrupted
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition,
		codes.OutOfRange, codes.Unimplemented:
		return fault.KindPermanent
	default:
		// Unknown, Internal and DataLoss are application failures.
		return fault.KindOperationFailed
	}
}

// Tag wraps err with the kind Classify assigns to it. Status is preserved
// for status.FromError and status.Code.
func Tag(err error) error {
	if err == nil {
		return nil
	}
	return &fault.Error{Kind: Classify(err), Op: "grpc", Err: err}
}

// Operation adapts a gRPC call into an Operation whose failures are tagged.
func Operation[T any](call func(ctx context.Context, payload T) error) result.Operation[T] {
	return result.Lift(func(ctx context.Context, payload T) error {
		return Tag(call(ctx, payload))
	})
}

// UnaryClientInterceptor runs every unary call through e. The primary,
// retry and fallback stages all see the same Call.
func UnaryClientInterceptor(e *policy.Enforcer[Call]) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		op := Operation(func(ctx context.Context, c Call) error {
			return invoker(ctx, c.Method, c.Req, c.Reply, cc, opts...)
		})
		_, err := result.Unwrap(e.Run(ctx, op, Call{Method: method, Req: req, Reply: reply}))
		return err
	}
}
