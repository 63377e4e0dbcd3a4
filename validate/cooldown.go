package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/result"
)

// ErrRateLimited is the cause of a cooldown rejection.
var ErrRateLimited = errors.New("rate limited")

// KeyFunc derives the cooldown key for a payload.
type KeyFunc[T any] func(payload T) string

// Store remembers the last accepted time per key. Implementations must be
// safe for concurrent use.
type Store interface {
	Last(ctx context.Context, key string) (time.Time, bool, error)
	Touch(ctx context.Context, key string, at time.Time) error
}

// Cooldown rejects a payload whose key was accepted less than window ago.
//
// The check and the update are separate store calls, so two concurrent
// payloads with the same key may both pass at the boundary.
type Cooldown[T any] struct {
	window   time.Duration
	key      KeyFunc[T]
	store    Store
	failOpen bool
	logger   *slog.Logger
	nowFn    func() time.Time
}

// CooldownOption configures a Cooldown.
type CooldownOption func(*cooldownConfig)

type cooldownConfig struct {
	store    Store
	failOpen bool
	logger   *slog.Logger
	now      func() time.Time
}

// WithStore replaces the default in-memory store. Passing the same store to
// several guards shares their history.
func WithStore(s Store) CooldownOption {
	return func(c *cooldownConfig) { c.store = s }
}

// WithFailOpen accepts payloads when the store errors. By default a store
// error rejects the payload.
func WithFailOpen() CooldownOption {
	return func(c *cooldownConfig) { c.failOpen = true }
}

func WithCooldownLogger(l *slog.Logger) CooldownOption {
	return func(c *cooldownConfig) { c.logger = l }
}

// WithCooldownClock overrides the time source.
func WithCooldownClock(now func() time.Time) CooldownOption {
	return func(c *cooldownConfig) { c.now = now }
}

// NewCooldown builds a guard that lets one payload per key through every window.
func NewCooldown[T any](window time.Duration, key KeyFunc[T], opts ...CooldownOption) *Cooldown[T] {
	cfg := cooldownConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.store == nil {
		cfg.store = NewMemoryStore()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Cooldown[T]{
		window:   window,
		key:      key,
		store:    cfg.store,
		failOpen: cfg.failOpen,
		logger:   cfg.logger,
		nowFn:    cfg.now,
	}
}

func (c *Cooldown[T]) Validate(ctx context.Context, payload T) result.Result[T] {
	key := c.key(payload)
	now := c.nowFn()

	last, seen, err := c.store.Last(ctx, key)
	if err != nil {
		return c.storeFailure(payload, key, err)
	}
	if seen && now.Before(last.Add(c.window)) {
		c.logger.Debug("cooldown rejected payload", "key", key, "retry_in", last.Add(c.window).Sub(now))
		return Reject(payload, fmt.Errorf("%w: key %q within %s", ErrRateLimited, key, c.window))
	}
	if err := c.store.Touch(ctx, key, now); err != nil {
		return c.storeFailure(payload, key, err)
	}
	return result.Ok(payload)
}

func (c *Cooldown[T]) storeFailure(payload T, key string, err error) result.Result[T] {
	if c.failOpen {
		c.logger.Warn("cooldown store unavailable, accepting payload", "key", key, "error", err)
		return result.Ok(payload)
	}
	return Reject(payload, fault.Newf(fault.KindValidationRejected, "cooldown store: %w", err))
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]time.Time)}
}

func (s *MemoryStore) Last(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.last[key]
	return t, ok, nil
}

func (s *MemoryStore) Touch(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[key] = at
	return nil
}

// Prune drops keys last touched before cutoff and reports how many went.
func (s *MemoryStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, t := range s.last {
		if t.Before(cutoff) {
			delete(s.last, k)
			n++
		}
	}
	return n
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.last)
}
