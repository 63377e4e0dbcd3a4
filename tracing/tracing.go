// Package tracing records enforced runs as OpenTelemetry spans.
//
// Spans are emitted after the run completes with timestamps taken from the
// timeline, so an enforcer never holds a live span across retries.
package tracing

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aponysus/courier/observe"
)

const instrumentation = "github.com/aponysus/courier/tracing"

// Observer implements observe.Observer.
type Observer struct {
	observe.BaseObserver
	tracer trace.Tracer
}

// New returns an observer that records spans on tp.
func New(tp trace.TracerProvider) *Observer {
	return &Observer{tracer: tp.Tracer(instrumentation)}
}

func (o *Observer) OnSuccess(ctx context.Context, name string, tl observe.Timeline) {
	o.record(ctx, name, tl)
}

func (o *Observer) OnFailure(ctx context.Context, name string, tl observe.Timeline) {
	o.record(ctx, name, tl)
}

func (o *Observer) record(ctx context.Context, name string, tl observe.Timeline) {
	attrs := []attribute.KeyValue{
		attribute.String("courier.enforcer", name),
		attribute.Int("courier.attempts", len(tl.Attempts)),
	}
	for k, v := range tl.Attributes {
		attrs = append(attrs, attribute.String("courier."+k, v))
	}

	_, span := o.tracer.Start(ctx, name,
		trace.WithTimestamp(tl.Start),
		trace.WithAttributes(attrs...),
	)

	for _, rec := range tl.Attempts {
		evAttrs := []attribute.KeyValue{
			attribute.String("stage", rec.Stage.String()),
			attribute.Int("index", rec.Index),
			attribute.Bool("success", rec.Success()),
		}
		if rec.Delay > 0 {
			evAttrs = append(evAttrs, attribute.String("delay", rec.Delay.String()))
		}
		if rec.Err != nil {
			evAttrs = append(evAttrs,
				attribute.String("kind", rec.Kind.String()),
				attribute.String("error", rec.Err.Error()),
			)
		}
		span.AddEvent("attempt "+rec.Stage.String()+"#"+strconv.Itoa(rec.Index),
			trace.WithTimestamp(rec.EndTime),
			trace.WithAttributes(evAttrs...),
		)
	}

	if tl.FinalErr != nil {
		span.SetAttributes(attribute.String("courier.kind", tl.FinalKind.String()))
		span.RecordError(tl.FinalErr, trace.WithTimestamp(tl.End))
		span.SetStatus(codes.Error, tl.FinalErr.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(tl.End))
}

var _ observe.Observer = (*Observer)(nil)
