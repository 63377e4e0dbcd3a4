package observe

import (
	"context"
	"sync"
)

// TimelineCapture receives the timeline of the next enforced run started
// with the context returned by RecordTimeline. Runs nested inside that run's
// operations do not see it.
type TimelineCapture struct {
	once sync.Once
	done chan struct{}
	tl   *Timeline
}

// Done is closed once the run has finished and its timeline is available.
func (c *TimelineCapture) Done() <-chan struct{} { return c.done }

// Timeline returns the captured timeline, or nil while the run is going.
func (c *TimelineCapture) Timeline() *Timeline {
	if c == nil {
		return nil
	}
	select {
	case <-c.done:
		return c.tl
	default:
		return nil
	}
}

type captureKey struct{}

// captureSlot is the context value. A zero slot disables capture.
type captureSlot struct {
	c *TimelineCapture
}

// RecordTimeline requests a timeline for the next run started with the
// returned context.
func RecordTimeline(ctx context.Context) (context.Context, *TimelineCapture) {
	c := &TimelineCapture{done: make(chan struct{})}
	return context.WithValue(ctx, captureKey{}, captureSlot{c: c}), c
}

// TimelineCaptureFromContext returns the capture requested on ctx, if any.
func TimelineCaptureFromContext(ctx context.Context) (*TimelineCapture, bool) {
	slot, _ := ctx.Value(captureKey{}).(captureSlot)
	return slot.c, slot.c != nil
}

// WithoutTimelineCapture hides any capture on ctx from derived contexts.
func WithoutTimelineCapture(ctx context.Context) context.Context {
	if _, ok := TimelineCaptureFromContext(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, captureKey{}, captureSlot{})
}

// StoreTimelineCapture publishes tl. Only the first call has an effect.
func StoreTimelineCapture(c *TimelineCapture, tl *Timeline) {
	if c == nil || tl == nil {
		return
	}
	c.once.Do(func() {
		c.tl = tl
		close(c.done)
	})
}
