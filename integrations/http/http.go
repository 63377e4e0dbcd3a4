// Package http delivers payloads as JSON over HTTP.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/queue"
	"github.com/aponysus/courier/result"
)

// IdempotencyHeader carries the queue item id when the send runs inside a
// delivery queue.
const IdempotencyHeader = "Idempotency-Key"

type settings struct {
	client *http.Client
	method string
	header http.Header
	logger *slog.Logger
}

type Option func(*settings)

// WithClient sets the client used for requests. Defaults to a client with a
// 10s timeout.
func WithClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.client = c
		}
	}
}

// WithMethod overrides POST.
func WithMethod(m string) Option {
	return func(s *settings) { s.method = m }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(s *settings) { s.header.Add(key, value) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// Sender posts payloads of type T to a fixed URL.
type Sender[T any] struct {
	url string
	settings
}

func NewSender[T any](url string, opts ...Option) *Sender[T] {
	s := &Sender[T]{
		url: url,
		settings: settings{
			client: &http.Client{Timeout: 10 * time.Second},
			method: http.MethodPost,
			header: make(http.Header),
			logger: slog.Default(),
		},
	}
	for _, o := range opts {
		o(&s.settings)
	}
	return s
}

// Send encodes payload as JSON and delivers it. Non-2xx responses and
// transport errors come back as *StatusError tagged with a fault.Kind.
func (s *Sender[T]) Send(ctx context.Context, payload T) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fault.New(fault.KindPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(body))
	if err != nil {
		return fault.New(fault.KindPermanent, err)
	}
	for k, vs := range s.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if id, ok := queue.ItemIDFromContext(ctx); ok {
		req.Header.Set(IdempotencyHeader, id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return tag(&StatusError{Err: err, Method: req.Method, URL: s.url})
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	se := &StatusError{
		Code:   resp.StatusCode,
		Method: req.Method,
		URL:    s.url,
		Header: resp.Header,
	}
	s.logger.Debug("http delivery rejected",
		"url", s.url,
		"status", resp.StatusCode,
	)
	return tag(se)
}

// Operation adapts Send for use with an enforcer or queue.
func (s *Sender[T]) Operation() result.Operation[T] {
	return result.Lift(s.Send)
}

func tag(se *StatusError) error {
	return &fault.Error{Kind: se.Kind(), Op: "http " + se.Method, Err: se}
}

// Classify maps errors produced by Sender onto fault kinds. Other errors
// fall back to fault.KindOf.
func Classify(err error) fault.Kind {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Kind()
	}
	return fault.KindOf(err)
}

// StatusError describes a failed HTTP delivery.
type StatusError struct {
	Code   int
	Method string
	URL    string
	Header http.Header
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "http status " + strconv.Itoa(e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) HTTPStatusCode() int { return e.Code }

// Kind classifies the failure. Transport errors, 408 and 5xx are transient;
// 429 is throttled; any other status is permanent.
func (e *StatusError) Kind() fault.Kind {
	switch {
	case e.Code == 0:
		return fault.KindTransient
	case e.Code == http.StatusTooManyRequests:
		return fault.KindThrottled
	case e.Code == http.StatusRequestTimeout, e.Code >= 500:
		return fault.KindTransient
	default:
		return fault.KindPermanent
	}
}

// RetryAfter parses the Retry-After header as seconds or an HTTP date.
func (e *StatusError) RetryAfter() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	s := e.Header.Get("Retry-After")
	if s == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}

	if t, err := http.ParseTime(s); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
