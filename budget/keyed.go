package budget

import (
	"context"
	"sync"
	"time"
)

// Keyed keeps one TokenBucket per key, created full on first use.
type Keyed struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket

	capacity        int
	refillPerSecond float64
	nowFn           func() time.Time
}

func NewKeyed(capacity int, refillPerSecond float64) *Keyed {
	return &Keyed{
		buckets:         make(map[string]*TokenBucket),
		capacity:        capacity,
		refillPerSecond: refillPerSecond,
	}
}

func (k *Keyed) Allow(ctx context.Context, key string, cost int) Decision {
	if k == nil {
		return Decision{Allowed: false, Reason: ReasonBudgetNil}
	}

	// The bucket is charged under k.mu so Prune cannot drop it mid-charge.
	k.mu.RLock()
	if b, ok := k.buckets[key]; ok {
		defer k.mu.RUnlock()
		return b.Allow(ctx, key, cost)
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.buckets[key]
	if !ok {
		b = NewTokenBucket(k.capacity, k.refillPerSecond)
		b.nowFn = k.nowFn
		k.buckets[key] = b
	}
	return b.Allow(ctx, key, cost)
}

// Prune drops buckets that have refilled to capacity and reports how many
// went. A dropped key gets a full bucket on next use, so pruning never
// changes a decision.
func (k *Keyed) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for key, b := range k.buckets {
		if b.full() {
			delete(k.buckets, key)
			n++
		}
	}
	return n
}

// Len reports how many keys hold a bucket.
func (k *Keyed) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.buckets)
}

// SetClock overrides the clock for buckets created after the call.
func (k *Keyed) SetClock(f func() time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.nowFn = f
}
