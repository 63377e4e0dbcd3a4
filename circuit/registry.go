package circuit

import (
	"strings"
	"sync"
)

// Registry shares breakers by name, so enforcers wrapping the same primary
// trip together.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]CircuitBreaker
}

func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]CircuitBreaker)}
}

// Get returns the breaker registered under name, creating it from cfg on
// first use. Disabled configs yield nil.
func (r *Registry) Get(name string, cfg Config, opts ...Option) CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	name = strings.TrimSpace(name)

	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb = New(cfg, opts...)
	r.breakers[name] = cb
	return cb
}
