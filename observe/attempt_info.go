package observe

import "context"

type attemptInfoKey struct{}

// AttemptInfo is per-invocation metadata attached to the context handed to an
// operation, so a send capability can tell a retry from a first attempt.
type AttemptInfo struct {
	Name  string
	Stage Stage
	// Index mirrors AttemptRecord.Index.
	Index int
}

// WithAttemptInfo returns a context derived from ctx that carries info.
func WithAttemptInfo(ctx context.Context, info AttemptInfo) context.Context {
	return context.WithValue(ctx, attemptInfoKey{}, info)
}

// AttemptFromContext returns the AttemptInfo from ctx, if present.
func AttemptFromContext(ctx context.Context) (AttemptInfo, bool) {
	info, ok := ctx.Value(attemptInfoKey{}).(AttemptInfo)
	return info, ok
}
