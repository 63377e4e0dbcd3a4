package observe

import (
	"context"
	"time"

	"github.com/aponysus/courier/fault"
)

// Stage identifies which step of an enforced run produced an attempt.
type Stage int

const (
	StageValidation Stage = iota
	StagePrimary
	StageRetry
	StageFallback
)

func (s Stage) String() string {
	switch s {
	case StageValidation:
		return "validation"
	case StagePrimary:
		return "primary"
	case StageRetry:
		return "retry"
	case StageFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// AttemptRecord describes a single invocation inside an enforced run.
type AttemptRecord struct {
	Stage Stage
	// Index is the retry number (1-based) for StageRetry and the fallback
	// position (0-based) for StageFallback. Zero otherwise.
	Index     int
	StartTime time.Time
	EndTime   time.Time

	// Delay is the suspension that preceded a retry.
	Delay time.Duration

	Kind fault.Kind
	Err  error
}

// Success reports whether the attempt succeeded.
func (r AttemptRecord) Success() bool { return r.Err == nil }

// Timeline is the structured record of a single enforced run.
type Timeline struct {
	Name  string
	Start time.Time
	End   time.Time

	// Attributes holds run-level metadata (circuit state, configured stages).
	Attributes map[string]string

	Attempts  []AttemptRecord
	FinalKind fault.Kind
	FinalErr  error
}

// Observer receives lifecycle callbacks for a single enforced run.
type Observer interface {
	OnStart(ctx context.Context, name string)
	OnAttempt(ctx context.Context, name string, rec AttemptRecord)
	OnSuccess(ctx context.Context, name string, tl Timeline)
	OnFailure(ctx context.Context, name string, tl Timeline)
}

// ItemRecord describes a queue item after the worker finished with it.
type ItemRecord struct {
	ID         string
	Payload    any
	EnqueuedAt time.Time
	StartTime  time.Time
	EndTime    time.Time

	Kind fault.Kind
	Err  error
	// Panicked is set when the item's operation panicked and was recovered.
	Panicked bool
}

// QueueObserver receives delivery queue events.
type QueueObserver interface {
	OnEnqueue(ctx context.Context, id string, depth int)
	OnItem(ctx context.Context, rec ItemRecord)
	OnDiscard(ctx context.Context, count int)
}
