package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/observe"
	"github.com/aponysus/courier/result"
)

type recorder struct {
	mu        sync.Mutex
	seen      []string
	items     []observe.ItemRecord
	discarded int
	enqueued  int
	ch        chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 64)}
}

func (r *recorder) op(_ context.Context, p string) result.Result[string] {
	r.mu.Lock()
	r.seen = append(r.seen, p)
	r.mu.Unlock()
	r.ch <- p
	return result.Ok(p)
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func (r *recorder) OnEnqueue(context.Context, string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued++
}

func (r *recorder) OnItem(_ context.Context, rec observe.ItemRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, rec)
}

func (r *recorder) OnDiscard(_ context.Context, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discarded += n
}

func (r *recorder) records() []observe.ItemRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observe.ItemRecord(nil), r.items...)
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("processed %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func expectNothing(t *testing.T, ch <-chan string, d time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected item %q processed", got)
	case <-time.After(d):
	}
}

func shutdown(t *testing.T, q *Queue[string]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown err=%v", err)
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	rec := newRecorder()
	q := New[string]()
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	defer shutdown(t, q)

	for _, p := range []string{"A", "B", "C"} {
		if err := q.Add(rec.op, p); err != nil {
			t.Fatalf("Add(%s) err=%v", p, err)
		}
	}
	for _, p := range []string{"A", "B", "C"} {
		waitFor(t, rec.ch, p)
	}
}

func TestQueue_ItemsAddedBeforeStart(t *testing.T) {
	rec := newRecorder()
	q := New[string]()
	_ = q.Add(rec.op, "A")
	_ = q.Add(rec.op, "B")
	if q.Len() != 2 {
		t.Fatalf("Len=%d, want 2", q.Len())
	}

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	defer shutdown(t, q)
	waitFor(t, rec.ch, "A")
	waitFor(t, rec.ch, "B")
}

func TestQueue_PauseAndResume(t *testing.T) {
	rec := newRecorder()
	q := New[string]()
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	defer shutdown(t, q)

	_ = q.Add(rec.op, "A")
	waitFor(t, rec.ch, "A")

	q.Pause()
	if !q.Paused() {
		t.Fatalf("expected paused")
	}
	_ = q.Add(rec.op, "B")
	_ = q.Add(rec.op, "C")
	expectNothing(t, rec.ch, 50*time.Millisecond)
	if q.Len() != 2 {
		t.Fatalf("Len=%d while paused, want 2", q.Len())
	}

	q.Resume()
	waitFor(t, rec.ch, "B")
	waitFor(t, rec.ch, "C")

	got := rec.order()
	want := []string{"A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order=%v, want %v", got, want)
		}
	}
}

func TestQueue_PauseBeforeStart(t *testing.T) {
	rec := newRecorder()
	q := New[string]()
	q.Pause()
	_ = q.Add(rec.op, "A")
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	defer shutdown(t, q)

	expectNothing(t, rec.ch, 30*time.Millisecond)
	q.Resume()
	waitFor(t, rec.ch, "A")
}

func TestQueue_ShutdownWhileIdle(t *testing.T) {
	q := New[string]()
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	time.Sleep(10 * time.Millisecond)
	shutdown(t, q)

	select {
	case <-q.Done():
	default:
		t.Fatalf("Done should be closed after Shutdown")
	}
	// Idempotent.
	shutdown(t, q)
}

func TestQueue_ShutdownWhilePaused(t *testing.T) {
	q := New[string]()
	_ = q.Start(context.Background())
	q.Pause()
	shutdown(t, q)
}

func TestQueue_ShutdownWithoutStart(t *testing.T) {
	q := New[string]()
	shutdown(t, q)
	if !q.Closed() {
		t.Fatalf("expected closed")
	}
}

func TestQueue_AddAfterShutdown(t *testing.T) {
	rec := newRecorder()
	q := New[string]()
	_ = q.Start(context.Background())
	shutdown(t, q)

	if err := q.Add(rec.op, "late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Add err=%v, want ErrClosed", err)
	}
	if err := q.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start err=%v, want ErrClosed", err)
	}
}

func TestQueue_StartTwice(t *testing.T) {
	q := New[string]()
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	defer shutdown(t, q)
	if err := q.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start err=%v, want ErrAlreadyStarted", err)
	}
}

func TestQueue_AddNilOperation(t *testing.T) {
	q := New[string]()
	if err := q.Add(nil, "x"); !errors.Is(err, ErrNilOperation) {
		t.Fatalf("err=%v, want ErrNilOperation", err)
	}
}

func TestQueue_FailuresAreIsolated(t *testing.T) {
	rec := newRecorder()
	q := New[string](WithObserver(rec))
	_ = q.Start(context.Background())
	defer shutdown(t, q)

	failing := func(_ context.Context, p string) result.Result[string] {
		return result.Fail(p, fault.New(fault.KindPermanent, errors.New("rejected")))
	}
	panicking := func(context.Context, string) result.Result[string] {
		panic("boom")
	}
	invalid := func(context.Context, string) result.Result[string] { return nil }

	_ = q.Add(failing, "A")
	_ = q.Add(panicking, "B")
	_ = q.Add(invalid, "C")
	_ = q.Add(rec.op, "D")
	waitFor(t, rec.ch, "D")

	recs := rec.records()
	if len(recs) < 3 {
		t.Fatalf("records=%d, want at least 3", len(recs))
	}
	if recs[0].Kind != fault.KindPermanent || recs[0].Payload != "A" {
		t.Fatalf("record A=%+v", recs[0])
	}
	if !recs[1].Panicked || recs[1].Err == nil {
		t.Fatalf("record B=%+v, want panicked", recs[1])
	}
	if recs[2].Kind != fault.KindUnrecoverableState {
		t.Fatalf("record C=%+v, want unrecoverable", recs[2])
	}
}

func TestQueue_ParentContextCancelShutsDown(t *testing.T) {
	rec := newRecorder()
	q := New[string](WithObserver(rec))
	ctx, cancel := context.WithCancel(context.Background())
	_ = q.Start(ctx)

	q.Pause()
	_ = q.Add(rec.op, "A")
	_ = q.Add(rec.op, "B")
	cancel()

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not exit after parent context cancel")
	}
	if err := q.Add(rec.op, "C"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Add err=%v, want ErrClosed", err)
	}
	rec.mu.Lock()
	discarded := rec.discarded
	rec.mu.Unlock()
	if discarded != 2 {
		t.Fatalf("discarded=%d, want 2", discarded)
	}
}

func TestQueue_ShutdownCancelsInFlightOperation(t *testing.T) {
	q := New[string]()
	_ = q.Start(context.Background())

	started := make(chan struct{})
	var opErr error
	blocking := func(ctx context.Context, p string) result.Result[string] {
		close(started)
		<-ctx.Done()
		opErr = ctx.Err()
		return result.Fail(p, fault.Newf(fault.KindRetryInterrupted, "interrupted: %w", ctx.Err()))
	}
	_ = q.Add(blocking, "A")
	<-started

	shutdown(t, q)
	if !errors.Is(opErr, context.Canceled) {
		t.Fatalf("op ctx err=%v, want canceled", opErr)
	}
}

func TestQueue_ItemIDInContext(t *testing.T) {
	q := New[string]()
	_ = q.Start(context.Background())
	defer shutdown(t, q)

	ids := make(chan string, 1)
	_ = q.Add(func(ctx context.Context, p string) result.Result[string] {
		id, _ := ItemIDFromContext(ctx)
		ids <- id
		return result.Ok(p)
	}, "A")

	select {
	case id := <-ids:
		if id == "" {
			t.Fatalf("expected item id in context")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int]()
	var mu sync.Mutex
	seen := map[int]bool{}
	done := make(chan struct{})
	const producers, perProducer = 8, 50

	op := func(_ context.Context, p int) result.Result[int] {
		mu.Lock()
		seen[p] = true
		if len(seen) == producers*perProducer {
			close(done)
		}
		mu.Unlock()
		return result.Ok(p)
	}

	_ = q.Start(context.Background())
	defer func() { _ = q.Shutdown(context.Background()) }()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if err := q.Add(op, base*perProducer+j); err != nil {
					t.Errorf("Add err=%v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("not every item was processed")
	}
}

func TestQueue_DetachedStartStopsOnlyOnShutdown(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	q := New[string]()
	_ = q.Start(context.WithoutCancel(parent))

	started := make(chan struct{})
	finished := make(chan error, 1)
	_ = q.Add(func(ctx context.Context, p string) result.Result[string] {
		close(started)
		<-ctx.Done()
		finished <- ctx.Err()
		return result.Fail(p, ctx.Err())
	}, "A")
	<-started

	cancelParent()
	select {
	case err := <-finished:
		t.Fatalf("in-flight item stopped by parent cancel: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if q.Closed() {
		t.Fatalf("queue closed by parent cancel")
	}

	shutdown(t, q)
	if err := <-finished; !errors.Is(err, context.Canceled) {
		t.Fatalf("in-flight ctx err=%v, want canceled", err)
	}
}
