// Package deadletter persists queue items that finished in failure.
package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aponysus/courier/observe"
)

// DB is the subset of *sqlx.DB used by Store.
type DB interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// Entry is one dead-lettered item.
type Entry struct {
	ID         string    `db:"id"`
	Queue      string    `db:"queue"`
	Payload    string    `db:"payload"`
	Kind       string    `db:"kind"`
	Error      string    `db:"error_msg"`
	Panicked   bool      `db:"panicked"`
	Status     Status    `db:"status"`
	EnqueuedAt time.Time `db:"enqueued_at"`
	FailedAt   time.Time `db:"failed_at"`
}

// ErrNotFound is returned when an entry id is unknown or already resolved.
var ErrNotFound = errors.New("deadletter: entry not found")

// Store records failed queue items. It implements observe.QueueObserver so
// it can be attached to a queue directly.
type Store struct {
	observe.BaseObserver

	db           DB
	queue        string
	logger       *slog.Logger
	writeTimeout time.Duration
}

// DefaultWriteTimeout bounds OnItem inserts when no timeout is configured.
const DefaultWriteTimeout = 5 * time.Second

// Option configures a Store.
type Option func(*Store)

// WithWriteTimeout bounds each insert made by OnItem. Non-positive values keep
// DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

func New(db DB, queue string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:           db,
		queue:        queue,
		logger:       logger.With("component", "deadletter"),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Record inserts e. Re-recording an id is a no-op.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Queue == "" {
		e.Queue = s.queue
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.Payload == "" {
		e.Payload = "null"
	}
	query := `
		INSERT INTO dead_letters (id, queue, payload, kind, error_msg, panicked, status, enqueued_at, failed_at)
		VALUES (:id, :queue, :payload, :kind, :error_msg, :panicked, :status, :enqueued_at, :failed_at)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

// List returns up to limit pending entries for the store's queue, oldest
// failure first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, queue, payload, kind, error_msg, panicked, status, enqueued_at, failed_at
		FROM dead_letters
		WHERE queue = $1 AND status = 'pending'
		ORDER BY failed_at ASC
		LIMIT $2
	`
	var rows []Entry
	if err := s.db.SelectContext(ctx, &rows, query, s.queue, limit); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return rows, nil
}

// Count returns the number of pending entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM dead_letters
		WHERE queue = $1 AND status = 'pending'
	`
	var count int
	if err := s.db.GetContext(ctx, &count, query, s.queue); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}

// Resolve marks a pending entry as handled.
func (s *Store) Resolve(ctx context.Context, id string) error {
	query := `
		UPDATE dead_letters
		SET status = 'resolved'
		WHERE id = $1 AND status = 'pending'
	`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// OnItem records failed items. Successes are ignored. It runs on the queue
// worker, so the insert is bounded by the store's write timeout.
func (s *Store) OnItem(ctx context.Context, rec observe.ItemRecord) {
	if rec.Err == nil {
		return
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		payload, _ = json.Marshal(fmt.Sprintf("%v", rec.Payload))
	}
	e := Entry{
		ID:         rec.ID,
		Payload:    string(payload),
		Kind:       rec.Kind.String(),
		Error:      rec.Err.Error(),
		Panicked:   rec.Panicked,
		EnqueuedAt: rec.EnqueuedAt,
		FailedAt:   rec.EndTime,
	}
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.Record(ctx, e); err != nil {
		s.logger.Error("dead letter lost", "id", rec.ID, "kind", e.Kind, "error", err)
	}
}

var _ observe.QueueObserver = (*Store)(nil)
