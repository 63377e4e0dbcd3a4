package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/aponysus/courier/circuit"
	"github.com/aponysus/courier/internal"
	"github.com/aponysus/courier/observe"
	"github.com/aponysus/courier/result"
	"github.com/aponysus/courier/retry"
	"github.com/aponysus/courier/validate"
)

const defaultName = "enforcer"

// Builder assembles an Enforcer. A Builder is not safe for concurrent use;
// the Enforcer it builds is.
type Builder[T any] struct {
	name        string
	validations []validate.Policy[T]
	retry       *retry.Policy
	fallbacks   []result.Operation[T]
	breaker     circuit.CircuitBreaker
	observer    observe.Observer
	logger      *slog.Logger
	clock       func() time.Time
	sleep       func(context.Context, time.Duration) error
}

func NewBuilder[T any]() *Builder[T] {
	return &Builder[T]{name: defaultName}
}

// WithName labels logs, metrics and traces produced by the enforcer.
func (b *Builder[T]) WithName(name string) *Builder[T] {
	if name != "" {
		b.name = name
	}
	return b
}

// WithValidations appends policies to the validation chain, in order.
func (b *Builder[T]) WithValidations(policies ...validate.Policy[T]) *Builder[T] {
	for _, p := range policies {
		if !internal.IsTypedNil(p) {
			b.validations = append(b.validations, p)
		}
	}
	return b
}

func (b *Builder[T]) WithRetry(p *retry.Policy) *Builder[T] {
	b.retry = p
	return b
}

// WithFallbacks appends fallback operations, tried in order after retries fail.
func (b *Builder[T]) WithFallbacks(ops ...result.Operation[T]) *Builder[T] {
	for _, op := range ops {
		if op != nil {
			b.fallbacks = append(b.fallbacks, op)
		}
	}
	return b
}

// WithBreaker guards the primary operation with cb.
func (b *Builder[T]) WithBreaker(cb circuit.CircuitBreaker) *Builder[T] {
	b.breaker = cb
	return b
}

func (b *Builder[T]) WithObserver(o observe.Observer) *Builder[T] {
	b.observer = o
	return b
}

func (b *Builder[T]) WithLogger(l *slog.Logger) *Builder[T] {
	b.logger = l
	return b
}

func (b *Builder[T]) WithClock(f func() time.Time) *Builder[T] {
	b.clock = f
	return b
}

// WithSleep replaces the retry delay function, primarily for tests.
func (b *Builder[T]) WithSleep(fn func(context.Context, time.Duration) error) *Builder[T] {
	b.sleep = fn
	return b
}

// Build returns an immutable Enforcer.
func (b *Builder[T]) Build() *Enforcer[T] {
	e := &Enforcer[T]{
		name:        b.name,
		validations: append([]validate.Policy[T](nil), b.validations...),
		retry:       b.retry,
		fallbacks:   append([]result.Operation[T](nil), b.fallbacks...),
		breaker:     b.breaker,
		observer:    b.observer,
		logger:      b.logger,
		clock:       b.clock,
	}
	if internal.IsTypedNil(e.breaker) {
		e.breaker = nil
	}
	if internal.IsTypedNil(e.observer) {
		e.observer = observe.NoopObserver{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("enforcer", e.name)
	if e.clock == nil {
		e.clock = time.Now
	}

	opts := []retry.Option{
		retry.WithName(e.name),
		retry.WithLogger(e.logger),
		retry.WithClock(e.clock),
	}
	if b.sleep != nil {
		opts = append(opts, retry.WithSleep(b.sleep))
	}
	// Attempts reach the observer through the run's hook, not the retrier.
	e.retrier = retry.NewRetrier(opts...)
	return e
}
