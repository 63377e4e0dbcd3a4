package observe

import "context"

// NoopObserver implements Observer and QueueObserver with no-op methods.
type NoopObserver struct{}

func (NoopObserver) OnStart(context.Context, string)                 {}
func (NoopObserver) OnAttempt(context.Context, string, AttemptRecord) {}
func (NoopObserver) OnSuccess(context.Context, string, Timeline)      {}
func (NoopObserver) OnFailure(context.Context, string, Timeline)      {}

func (NoopObserver) OnEnqueue(context.Context, string, int) {}
func (NoopObserver) OnItem(context.Context, ItemRecord)     {}
func (NoopObserver) OnDiscard(context.Context, int)         {}
