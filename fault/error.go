package fault

import (
	"context"
	"errors"
	"fmt"
)

// Sentinels let callers test a kind with errors.Is.
var (
	ErrValidationRejected = errors.New("validation rejected")
	ErrOperationFailed    = errors.New("operation failed")
	ErrRetryInterrupted   = errors.New("retry interrupted")
	ErrRetriesExhausted   = errors.New("retries exhausted")
	ErrAllFallbacksFailed = errors.New("all fallbacks failed")
	ErrUnrecoverableState = errors.New("unrecoverable enforcer state")
	ErrCircuitOpen        = errors.New("circuit open")
	ErrTransient          = errors.New("transient failure")
	ErrThrottled          = errors.New("throttled")
	ErrTimeout            = errors.New("timeout")
	ErrPermanent          = errors.New("permanent failure")
)

var sentinels = map[Kind]error{
	KindValidationRejected: ErrValidationRejected,
	KindOperationFailed:    ErrOperationFailed,
	KindRetryInterrupted:   ErrRetryInterrupted,
	KindRetriesExhausted:   ErrRetriesExhausted,
	KindAllFallbacksFailed: ErrAllFallbacksFailed,
	KindUnrecoverableState: ErrUnrecoverableState,
	KindCircuitOpen:        ErrCircuitOpen,
	KindTransient:          ErrTransient,
	KindThrottled:          ErrThrottled,
	KindTimeout:            ErrTimeout,
	KindPermanent:          ErrPermanent,
}

// Error is a failure tagged with a Kind.
type Error struct {
	Kind Kind
	// Op optionally names the component or step that failed.
	Op  string
	Err error
}

// New tags err with kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf tags a formatted error with kind. %w verbs are honoured.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the outermost Kind tagged on err.
//
// Untagged errors are OperationFailed, except context errors which map to
// RetryInterrupted (cancellation) and Timeout (deadline).
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != KindNone {
		return fe.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindRetryInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindOperationFailed
}

// Classifier maps an error onto a Kind.
type Classifier func(err error) Kind

// Classify applies c, falling back to KindOf when c is nil.
func (c Classifier) Classify(err error) Kind {
	if c == nil {
		return KindOf(err)
	}
	return c(err)
}

// Unrecoverable builds the error used to signal a broken internal invariant.
func Unrecoverable(format string, args ...any) *Error {
	return Newf(KindUnrecoverableState, format, args...)
}
