// Package queue provides an in-memory FIFO delivery queue drained by a
// single worker goroutine.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/internal"
	"github.com/aponysus/courier/observe"
	"github.com/aponysus/courier/result"
)

var (
	ErrClosed         = errors.New("queue: closed")
	ErrAlreadyStarted = errors.New("queue: already started")
	ErrNilOperation   = errors.New("queue: nil operation")
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateClosed
)

type item[T any] struct {
	id         string
	op         result.Operation[T]
	payload    T
	enqueuedAt time.Time
}

// Queue is an unbounded FIFO of (operation, payload) items. Items run one at
// a time, in insertion order, on the goroutine spawned by Start.
//
// Nothing is persisted: items still queued at shutdown are discarded.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []item[T]
	paused bool
	state  state

	cancel   context.CancelFunc
	stopHook func() bool
	done     chan struct{}

	name     string
	logger   *slog.Logger
	observer observe.QueueObserver
	clock    func() time.Time
}

// Option configures a Queue.
type Option func(*config)

type config struct {
	name     string
	logger   *slog.Logger
	observer observe.QueueObserver
	clock    func() time.Time
}

func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithObserver receives enqueue, per-item and discard events.
func WithObserver(o observe.QueueObserver) Option {
	return func(c *config) { c.observer = o }
}

func WithClock(f func() time.Time) Option {
	return func(c *config) { c.clock = f }
}

// New returns an idle queue. Items may be added before Start.
func New[T any](opts ...Option) *Queue[T] {
	cfg := config{name: "delivery"}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if internal.IsTypedNil(cfg.observer) {
		cfg.observer = observe.NoopObserver{}
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}

	q := &Queue[T]{
		done:     make(chan struct{}),
		name:     cfg.name,
		logger:   cfg.logger.With("queue", cfg.name),
		observer: cfg.observer,
		clock:    cfg.clock,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add enqueues op for payload. It never blocks on capacity and fails with
// ErrClosed once the queue has shut down.
func (q *Queue[T]) Add(op result.Operation[T], payload T) error {
	if op == nil {
		return ErrNilOperation
	}
	it := item[T]{id: uuid.NewString(), op: op, payload: payload, enqueuedAt: q.clock()}

	q.mu.Lock()
	if q.state == stateClosed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, it)
	depth := len(q.items)
	q.cond.Broadcast()
	q.mu.Unlock()

	q.observer.OnEnqueue(context.Background(), it.id, depth)
	return nil
}

// Start spawns the worker. Cancelling ctx shuts the queue down as if
// Shutdown had been called; the worker and any in-flight operation see the
// cancellation.
func (q *Queue[T]) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateClosed:
		return ErrClosed
	}

	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.state = stateRunning
	q.stopHook = context.AfterFunc(ctx, func() {
		q.close("context done")
	})

	go q.work(workerCtx)
	q.logger.Info("delivery queue started", "pending", len(q.items))
	return nil
}

// Pause stops the worker from taking new items. The item in flight, if any,
// runs to completion. Items keep their order and new items are accepted.
func (q *Queue[T]) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused || q.state == stateClosed {
		return
	}
	q.paused = true
	q.logger.Info("delivery queue paused", "pending", len(q.items))
}

// Resume lets a paused worker continue from the oldest queued item.
func (q *Queue[T]) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		return
	}
	q.paused = false
	q.cond.Broadcast()
	q.logger.Info("delivery queue resumed", "pending", len(q.items))
}

// Shutdown stops the worker, cancels the in-flight operation's context and
// discards queued items. It waits for the worker to exit or for ctx.
//
// Shutdown is idempotent. It must not be called from an operation running
// on this queue.
func (q *Queue[T]) Shutdown(ctx context.Context) error {
	q.close("shutdown")
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue %s: waiting for worker: %w", q.name, ctx.Err())
	}
}

// Done is closed once the queue is shut down and its worker has exited.
func (q *Queue[T]) Done() <-chan struct{} { return q.done }

// Len reports the number of items waiting.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Closed reports whether the queue has shut down.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == stateClosed
}

func (q *Queue[T]) close(reason string) {
	q.mu.Lock()
	if q.state == stateClosed {
		q.mu.Unlock()
		return
	}
	wasRunning := q.state == stateRunning
	q.state = stateClosed
	discarded := len(q.items)
	q.items = nil
	if q.cancel != nil {
		q.cancel()
	}
	if q.stopHook != nil {
		q.stopHook()
	}
	q.cond.Broadcast()
	if !wasRunning {
		close(q.done)
	}
	q.mu.Unlock()

	q.logger.Info("delivery queue shut down", "reason", reason, "discarded", discarded)
	if discarded > 0 {
		q.observer.OnDiscard(context.Background(), discarded)
	}
}

func (q *Queue[T]) work(ctx context.Context) {
	defer close(q.done)
	for {
		it, ok := q.next()
		if !ok {
			return
		}
		q.process(ctx, it)
	}
}

// next blocks until an item is available and the queue is not paused. It
// returns false once the queue is closed.
func (q *Queue[T]) next() (item[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.state != stateClosed && (q.paused || len(q.items) == 0) {
		q.cond.Wait()
	}
	if q.state == stateClosed {
		return item[T]{}, false
	}
	it := q.items[0]
	q.items[0] = item[T]{}
	q.items = q.items[1:]
	return it, true
}

func (q *Queue[T]) process(ctx context.Context, it item[T]) {
	rec := observe.ItemRecord{
		ID:         it.id,
		Payload:    it.payload,
		EnqueuedAt: it.enqueuedAt,
		StartTime:  q.clock(),
	}

	res, panicErr := q.invoke(withItemID(ctx, it.id), it)
	switch v := res.(type) {
	case result.Success[T]:
	case result.Failure[T]:
		rec.Err = v.Cause
		rec.Kind = fault.KindOf(v.Cause)
	default:
		if panicErr != nil {
			rec.Err = panicErr
			rec.Panicked = true
		} else {
			rec.Err = fault.Unrecoverable("queue %s: item %s returned %T", q.name, it.id, res)
		}
		rec.Kind = fault.KindOf(rec.Err)
	}
	rec.EndTime = q.clock()

	if rec.Err != nil {
		q.logger.Error("delivery failed",
			"id", it.id,
			"kind", rec.Kind,
			"panicked", rec.Panicked,
			"duration", rec.EndTime.Sub(rec.StartTime),
			"error", rec.Err)
	} else {
		q.logger.Debug("delivered", "id", it.id, "waited", rec.StartTime.Sub(rec.EnqueuedAt))
	}

	// Sinks must still be able to record failures caused by shutdown.
	q.observer.OnItem(context.WithoutCancel(ctx), rec)
}

func (q *Queue[T]) invoke(ctx context.Context, it item[T]) (res result.Result[T], panicErr error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panic in queued operation",
				"id", it.id,
				"panic", r,
				"stack_trace", string(debug.Stack()))
			if err, ok := r.(error); ok {
				panicErr = fmt.Errorf("queue %s: item %s panicked: %w", q.name, it.id, err)
			} else {
				panicErr = fmt.Errorf("queue %s: item %s panicked: %v", q.name, it.id, r)
			}
			res = nil
		}
	}()
	return it.op(ctx, it.payload), nil
}

type itemIDKey struct{}

func withItemID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, itemIDKey{}, id)
}

// ItemIDFromContext returns the id of the queue item an operation runs for.
func ItemIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(itemIDKey{}).(string)
	return id, ok
}
