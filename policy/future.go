package policy

import (
	"context"

	"github.com/aponysus/courier/result"
)

// Future is the handle returned by RunAsync.
type Future[T any] struct {
	done     chan struct{}
	res      result.Result[T]
	panicked bool
	panicVal any
}

// RunAsync runs Run on a new goroutine. ctx governs the run, not the wait.
func (e *Enforcer[T]) RunAsync(ctx context.Context, op result.Operation[T], payload T) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if rec := recover(); rec != nil {
				f.panicked = true
				f.panicVal = rec
			}
		}()
		f.res = e.Run(ctx, op, payload)
	}()
	return f
}

// Done is closed once the run has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await waits for the run or for ctx, whichever comes first. A panic raised
// by the run is re-raised here.
func (f *Future[T]) Await(ctx context.Context) (result.Result[T], error) {
	select {
	case <-f.done:
		return f.get(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the run has finished.
func (f *Future[T]) Result() result.Result[T] {
	<-f.done
	return f.get()
}

func (f *Future[T]) get() result.Result[T] {
	if f.panicked {
		panic(f.panicVal)
	}
	return f.res
}
