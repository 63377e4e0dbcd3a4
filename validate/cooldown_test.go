package validate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/result"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func subject(s string) string { return s }

func TestCooldown_RejectsWithinWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := NewCooldown(time.Minute, subject, WithCooldownClock(clock.Now))
	ctx := context.Background()

	if !result.IsSuccess(c.Validate(ctx, "welcome")) {
		t.Fatalf("first occurrence should pass")
	}

	clock.Advance(30 * time.Second)
	_, err := result.Unwrap(c.Validate(ctx, "welcome"))
	if !errors.Is(err, ErrRateLimited) || !errors.Is(err, fault.ErrValidationRejected) {
		t.Fatalf("err=%v, want rate limited validation rejection", err)
	}

	if !result.IsSuccess(c.Validate(ctx, "other")) {
		t.Fatalf("distinct key should pass")
	}
}

func TestCooldown_PassesAtWindowBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := NewCooldown(time.Minute, subject, WithCooldownClock(clock.Now))
	ctx := context.Background()

	c.Validate(ctx, "k")
	clock.Advance(time.Minute)
	if !result.IsSuccess(c.Validate(ctx, "k")) {
		t.Fatalf("now == last+window should pass")
	}

	// The accepted occurrence restarted the window.
	clock.Advance(time.Minute - time.Nanosecond)
	if result.IsSuccess(c.Validate(ctx, "k")) {
		t.Fatalf("expected rejection inside the restarted window")
	}
}

func TestCooldown_RejectionDoesNotExtendWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := NewCooldown(10*time.Second, subject, WithCooldownClock(clock.Now))
	ctx := context.Background()

	c.Validate(ctx, "k")
	clock.Advance(9 * time.Second)
	if result.IsSuccess(c.Validate(ctx, "k")) {
		t.Fatalf("expected rejection at 9s")
	}
	clock.Advance(time.Second)
	if !result.IsSuccess(c.Validate(ctx, "k")) {
		t.Fatalf("expected pass at 10s since first acceptance")
	}
}

func TestCooldown_SharedStore(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Unix(0, 0)}
	a := NewCooldown(time.Hour, subject, WithStore(store), WithCooldownClock(clock.Now))
	b := NewCooldown(time.Hour, subject, WithStore(store), WithCooldownClock(clock.Now))

	a.Validate(context.Background(), "k")
	if result.IsSuccess(b.Validate(context.Background(), "k")) {
		t.Fatalf("guards sharing a store should share history")
	}
}

type errStore struct{ err error }

func (s errStore) Last(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, s.err
}
func (s errStore) Touch(context.Context, string, time.Time) error { return s.err }

func TestCooldown_StoreErrors(t *testing.T) {
	boom := errors.New("store down")

	closed := NewCooldown(time.Minute, subject, WithStore(errStore{err: boom}))
	_, err := result.Unwrap(closed.Validate(context.Background(), "k"))
	if !errors.Is(err, boom) || fault.KindOf(err) != fault.KindValidationRejected {
		t.Fatalf("err=%v, want rejection wrapping store error", err)
	}

	open := NewCooldown(time.Minute, subject, WithStore(errStore{err: boom}), WithFailOpen())
	if !result.IsSuccess(open.Validate(context.Background(), "k")) {
		t.Fatalf("fail-open guard should accept")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	c := NewCooldown(time.Hour, subject, WithStore(store))
	ctx := context.Background()

	var wg sync.WaitGroup
	keys := []string{"a", "b", "c", "d"}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Validate(ctx, keys[i%len(keys)])
		}(i)
	}
	wg.Wait()

	if store.Len() != len(keys) {
		t.Fatalf("Len=%d, want %d", store.Len(), len(keys))
	}
}

func TestMemoryStore_Prune(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(100, 0)
	_ = store.Touch(ctx, "old", base)
	_ = store.Touch(ctx, "new", base.Add(time.Hour))

	if n := store.Prune(base.Add(time.Minute)); n != 1 {
		t.Fatalf("Prune=%d, want 1", n)
	}
	if _, ok, _ := store.Last(ctx, "old"); ok {
		t.Fatalf("old key should be gone")
	}
	if _, ok, _ := store.Last(ctx, "new"); !ok {
		t.Fatalf("new key should remain")
	}
}
