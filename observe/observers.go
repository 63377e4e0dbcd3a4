package observe

import (
	"context"

	"github.com/aponysus/courier/internal"
)

// BaseObserver implements Observer and QueueObserver with no-op methods.
//
// Users can embed BaseObserver to implement only the callbacks they need.
type BaseObserver struct{}

func (BaseObserver) OnStart(context.Context, string)                 {}
func (BaseObserver) OnAttempt(context.Context, string, AttemptRecord) {}
func (BaseObserver) OnSuccess(context.Context, string, Timeline)      {}
func (BaseObserver) OnFailure(context.Context, string, Timeline)      {}
func (BaseObserver) OnEnqueue(context.Context, string, int)           {}
func (BaseObserver) OnItem(context.Context, ItemRecord)               {}
func (BaseObserver) OnDiscard(context.Context, int)                   {}

// MultiObserver fans out run events to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnStart(ctx context.Context, name string) {
	for _, o := range m.Observers {
		if !internal.IsTypedNil(o) {
			o.OnStart(ctx, name)
		}
	}
}

func (m MultiObserver) OnAttempt(ctx context.Context, name string, rec AttemptRecord) {
	for _, o := range m.Observers {
		if !internal.IsTypedNil(o) {
			o.OnAttempt(ctx, name, rec)
		}
	}
}

func (m MultiObserver) OnSuccess(ctx context.Context, name string, tl Timeline) {
	for _, o := range m.Observers {
		if !internal.IsTypedNil(o) {
			o.OnSuccess(ctx, name, tl)
		}
	}
}

func (m MultiObserver) OnFailure(ctx context.Context, name string, tl Timeline) {
	for _, o := range m.Observers {
		if !internal.IsTypedNil(o) {
			o.OnFailure(ctx, name, tl)
		}
	}
}

// MultiQueueObserver fans out queue events to multiple observers.
type MultiQueueObserver struct {
	Observers []QueueObserver
}

func (m MultiQueueObserver) OnEnqueue(ctx context.Context, id string, depth int) {
	for _, o := range m.Observers {
		if !internal.IsTypedNil(o) {
			o.OnEnqueue(ctx, id, depth)
		}
	}
}

func (m MultiQueueObserver) OnItem(ctx context.Context, rec ItemRecord) {
	for _, o := range m.Observers {
		if !internal.IsTypedNil(o) {
			o.OnItem(ctx, rec)
		}
	}
}

func (m MultiQueueObserver) OnDiscard(ctx context.Context, count int) {
	for _, o := range m.Observers {
		if !internal.IsTypedNil(o) {
			o.OnDiscard(ctx, count)
		}
	}
}
