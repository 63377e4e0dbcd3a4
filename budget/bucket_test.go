package budget

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenBucket_ConcurrentUsage(t *testing.T) {
	// Capacity 1000, no refill.
	b := NewTokenBucket(1000, 0)

	var allowed, denied int32
	var wg sync.WaitGroup
	workers := 10
	perWorker := 200

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				time.Sleep(time.Duration(rand.Intn(100)) * time.Microsecond)
				if b.Allow(context.Background(), "", 1).Allowed {
					atomic.AddInt32(&allowed, 1)
				} else {
					atomic.AddInt32(&denied, 1)
				}
			}
		}()
	}
	wg.Wait()

	if allowed != 1000 {
		t.Errorf("allowed=%d, want 1000", allowed)
	}
	if denied != 1000 {
		t.Errorf("denied=%d, want 1000", denied)
	}
}

func TestUnlimited_Allows(t *testing.T) {
	d := Unlimited{}.Allow(context.Background(), "k", 10)
	if !d.Allowed || d.Reason != ReasonAllowed {
		t.Fatalf("decision=%+v, want allowed with reason %q", d, ReasonAllowed)
	}
}

func TestTokenBucket_NilReceiver(t *testing.T) {
	var b *TokenBucket
	d := b.Allow(context.Background(), "", 1)
	if d.Allowed || d.Reason != ReasonBudgetNil {
		t.Fatalf("decision=%+v, want denied with reason %q", d, ReasonBudgetNil)
	}
}

func TestTokenBucket_RefillAndCost(t *testing.T) {
	clock := time.Unix(100, 0)
	b := NewTokenBucket(2, 1)
	b.SetClock(func() time.Time { return clock })
	ctx := context.Background()

	if !b.Allow(ctx, "", 2).Allowed {
		t.Fatalf("expected full bucket to allow cost 2")
	}
	if d := b.Allow(ctx, "", 1); d.Allowed || d.Reason != ReasonBudgetDenied {
		t.Fatalf("decision=%+v, want denied", d)
	}

	clock = clock.Add(time.Second)
	if !b.Allow(ctx, "", 0).Allowed {
		t.Fatalf("expected allowed after 1s refill")
	}
	if got := b.Tokens(); got != 0 {
		t.Fatalf("tokens=%v, want 0", got)
	}

	clock = clock.Add(time.Hour)
	if got := b.Tokens(); got != 2 {
		t.Fatalf("tokens=%v, want capped at 2", got)
	}
}

func TestTokenBucket_InvalidConfig(t *testing.T) {
	b := NewTokenBucket(-1, math.NaN())
	if b.capacity != 0 || b.refillPerSecond != 0 {
		t.Fatalf("capacity=%v refill=%v, want 0,0", b.capacity, b.refillPerSecond)
	}
	if b.Allow(context.Background(), "", 1).Allowed {
		t.Fatalf("expected denied with zero capacity")
	}
}

func TestKeyed_IsolatesKeys(t *testing.T) {
	k := NewKeyed(1, 0)
	ctx := context.Background()

	if !k.Allow(ctx, "a", 1).Allowed {
		t.Fatalf("expected first a allowed")
	}
	if k.Allow(ctx, "a", 1).Allowed {
		t.Fatalf("expected second a denied")
	}
	if !k.Allow(ctx, "b", 1).Allowed {
		t.Fatalf("expected b unaffected by a")
	}
	if k.Len() != 2 {
		t.Fatalf("Len=%d, want 2", k.Len())
	}

	var nilKeyed *Keyed
	if nilKeyed.Allow(ctx, "a", 1).Allowed {
		t.Fatalf("nil Keyed must deny")
	}
}

func TestKeyed_PruneDropsRefilledBuckets(t *testing.T) {
	now := time.Unix(0, 0)
	k := NewKeyed(2, 1)
	k.SetClock(func() time.Time { return now })
	ctx := context.Background()

	k.Allow(ctx, "a", 1)
	k.Allow(ctx, "b", 2)
	if n := k.Prune(); n != 0 {
		t.Fatalf("Prune=%d before refill, want 0", n)
	}

	now = now.Add(time.Second)
	if n := k.Prune(); n != 1 {
		t.Fatalf("Prune=%d, want 1", n)
	}
	if k.Len() != 1 {
		t.Fatalf("Len=%d, want 1", k.Len())
	}

	// b kept its debt: one token left after a second of refill.
	if !k.Allow(ctx, "b", 1).Allowed || k.Allow(ctx, "b", 1).Allowed {
		t.Fatalf("b should allow exactly one more")
	}
	if !k.Allow(ctx, "a", 2).Allowed {
		t.Fatalf("pruned a should start full")
	}
}
