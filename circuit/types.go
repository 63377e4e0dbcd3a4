// Package circuit stops an enforcer from hammering a primary send capability
// that keeps failing, routing runs straight to the fallbacks until it cools down.
package circuit

import (
	"context"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // Primary allowed.
	StateOpen                  // Primary skipped.
	StateHalfOpen              // A limited number of probes allowed.
)

const (
	ReasonCircuitOpen               = "circuit_open"
	ReasonCircuitHalfOpenProbeLimit = "circuit_half_open_probe_limit"
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Decision represents the result of checking a circuit breaker.
type Decision struct {
	Allowed bool
	State   State
	Reason  string
}

// CircuitBreaker is consulted by the enforcer before the primary operation.
type CircuitBreaker interface {
	Allow(ctx context.Context) Decision
	RecordSuccess(ctx context.Context)
	RecordFailure(ctx context.Context)
	State() State
}

// Config describes a consecutive-failure breaker.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Threshold is the number of consecutive failed runs that opens the circuit.
	Threshold int `yaml:"threshold"`
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration `yaml:"cooldown"`
	// Probes is the number of successful half-open runs needed to close.
	Probes int `yaml:"probes"`
}
