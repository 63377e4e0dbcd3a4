package budget

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket is a single bucket shared by every key.
//
// It starts full (capacity tokens) and refills at refillPerSecond tokens/second.
type TokenBucket struct {
	mu sync.Mutex

	capacity        float64
	refillPerSecond float64

	tokens float64
	last   time.Time

	nowFn func() time.Time
}

func NewTokenBucket(capacity int, refillPerSecond float64) *TokenBucket {
	if capacity < 0 {
		capacity = 0
	}
	if refillPerSecond < 0 || math.IsNaN(refillPerSecond) || math.IsInf(refillPerSecond, 0) {
		refillPerSecond = 0
	}
	return &TokenBucket{
		capacity:        float64(capacity),
		refillPerSecond: refillPerSecond,
		tokens:          float64(capacity),
	}
}

func (b *TokenBucket) Allow(_ context.Context, _ string, cost int) Decision {
	if b == nil {
		return Decision{Allowed: false, Reason: ReasonBudgetNil}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(b.now())

	need := float64(max(cost, 1))
	if b.tokens >= need {
		b.tokens -= need
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	return Decision{Allowed: false, Reason: ReasonBudgetDenied}
}

// Tokens reports the tokens currently available.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.now())
	return b.tokens
}

func (b *TokenBucket) full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.now())
	return b.tokens >= b.capacity
}

func (b *TokenBucket) refillLocked(now time.Time) {
	if math.IsNaN(b.tokens) || math.IsInf(b.tokens, 0) {
		b.tokens = 0
	}
	if b.last.IsZero() {
		b.last = now
		return
	}
	if b.refillPerSecond > 0 && now.After(b.last) {
		added := now.Sub(b.last).Seconds() * b.refillPerSecond
		if !math.IsNaN(added) && !math.IsInf(added, 0) && added > 0 {
			b.tokens = math.Min(b.tokens+added, b.capacity)
		}
	}
	// Clock skew also lands here; last only moves forward.
	if now.After(b.last) {
		b.last = now
	}
}

func (b *TokenBucket) now() time.Time {
	if b.nowFn != nil {
		return b.nowFn()
	}
	return time.Now()
}

// SetClock overrides the bucket clock, primarily for tests.
func (b *TokenBucket) SetClock(f func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nowFn = f
}
