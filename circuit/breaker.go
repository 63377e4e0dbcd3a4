package circuit

import (
	"context"
	"sync"
	"time"
)

const (
	defaultThreshold = 5
	defaultCooldown  = 10 * time.Second
)

// Option configures a ConsecutiveFailureBreaker.
type Option func(*ConsecutiveFailureBreaker)

// WithProbes sets how many consecutive half-open successes close the circuit.
func WithProbes(n int) Option {
	return func(cb *ConsecutiveFailureBreaker) {
		if n > 0 {
			cb.probesRequired = n
		}
	}
}

// WithStateHook registers fn to be called on every transition. fn runs with
// the breaker lock held and must not call back into the breaker.
func WithStateHook(fn func(from, to State)) Option {
	return func(cb *ConsecutiveFailureBreaker) { cb.onTransition = fn }
}

// ConsecutiveFailureBreaker opens after threshold consecutive failures and
// half-opens once cooldown has elapsed. Probes are admitted one at a time.
type ConsecutiveFailureBreaker struct {
	mu sync.Mutex

	state State

	threshold      int
	cooldown       time.Duration
	probesRequired int

	failures       int
	openedAt       time.Time
	probeInFlight  bool
	probeSuccesses int

	onTransition func(from, to State)
	nowFn        func() time.Time
}

// NewConsecutiveFailureBreaker creates a closed breaker. Non-positive
// threshold or cooldown fall back to 5 failures and 10s.
func NewConsecutiveFailureBreaker(threshold int, cooldown time.Duration, opts ...Option) *ConsecutiveFailureBreaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	cb := &ConsecutiveFailureBreaker{
		state:          StateClosed,
		threshold:      threshold,
		cooldown:       cooldown,
		probesRequired: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cb)
		}
	}
	return cb
}

// New builds a breaker from cfg, or returns nil when cfg is disabled.
func New(cfg Config, opts ...Option) CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Probes > 0 {
		opts = append([]Option{WithProbes(cfg.Probes)}, opts...)
	}
	return NewConsecutiveFailureBreaker(cfg.Threshold, cfg.Cooldown, opts...)
}

func (cb *ConsecutiveFailureBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refreshLocked()
}

func (cb *ConsecutiveFailureBreaker) Allow(context.Context) Decision {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch state := cb.refreshLocked(); state {
	case StateOpen:
		return Decision{Allowed: false, State: state, Reason: ReasonCircuitOpen}
	case StateHalfOpen:
		if cb.probeInFlight {
			return Decision{Allowed: false, State: state, Reason: ReasonCircuitHalfOpenProbeLimit}
		}
		cb.probeInFlight = true
		return Decision{Allowed: true, State: state}
	default:
		return Decision{Allowed: true, State: state}
	}
}

func (cb *ConsecutiveFailureBreaker) RecordSuccess(context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refreshLocked() {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.probeInFlight = false
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.probesRequired {
			cb.transitionLocked(StateClosed)
		}
	}
}

func (cb *ConsecutiveFailureBreaker) RecordFailure(context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refreshLocked() {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	}
}

func (cb *ConsecutiveFailureBreaker) refreshLocked() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.transitionLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *ConsecutiveFailureBreaker) transitionLocked(to State) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.probeInFlight = false
	cb.probeSuccesses = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.onTransition != nil && from != to {
		cb.onTransition(from, to)
	}
}

func (cb *ConsecutiveFailureBreaker) now() time.Time {
	if cb.nowFn != nil {
		return cb.nowFn()
	}
	return time.Now()
}

// SetClock overrides the breaker clock, primarily for tests.
func (cb *ConsecutiveFailureBreaker) SetClock(f func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.nowFn = f
}
