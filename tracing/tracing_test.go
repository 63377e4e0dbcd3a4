package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/observe"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp
}

func TestObserver_SuccessSpan(t *testing.T) {
	sr, tp := newRecorder()
	o := New(tp)
	start := time.Unix(1000, 0)

	o.OnSuccess(context.Background(), "mail", observe.Timeline{
		Start:      start,
		End:        start.Add(50 * time.Millisecond),
		Attributes: map[string]string{"circuit": "closed"},
		Attempts: []observe.AttemptRecord{
			{Stage: observe.StagePrimary, EndTime: start.Add(10 * time.Millisecond), Err: errors.New("boom"), Kind: fault.KindTransient},
			{Stage: observe.StageRetry, Index: 1, Delay: 5 * time.Millisecond, EndTime: start.Add(50 * time.Millisecond)},
		},
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans=%d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "mail" {
		t.Fatalf("name=%q, want mail", s.Name())
	}
	if !s.StartTime().Equal(start) {
		t.Fatalf("start=%v, want %v", s.StartTime(), start)
	}
	if got := s.EndTime().Sub(s.StartTime()); got != 50*time.Millisecond {
		t.Fatalf("duration=%v, want 50ms", got)
	}
	if len(s.Events()) != 2 {
		t.Fatalf("events=%d, want 2", len(s.Events()))
	}
	if s.Status().Code != codes.Ok {
		t.Fatalf("status=%v, want Ok", s.Status().Code)
	}
}

func TestObserver_FailureSpan(t *testing.T) {
	sr, tp := newRecorder()
	o := New(tp)
	start := time.Unix(1000, 0)
	err := fault.New(fault.KindAllFallbacksFailed, errors.New("nope"))

	o.OnFailure(context.Background(), "mail", observe.Timeline{
		Start:     start,
		End:       start.Add(time.Second),
		FinalKind: fault.KindAllFallbacksFailed,
		FinalErr:  err,
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans=%d, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("status=%v, want Error", spans[0].Status().Code)
	}
	var found bool
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "courier.kind" && kv.Value.AsString() == "all_fallbacks_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing courier.kind attribute: %v", spans[0].Attributes())
	}
}
