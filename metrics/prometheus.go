// Package metrics exports enforcer and delivery queue activity to Prometheus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aponysus/courier/observe"
)

const namespace = "courier"

// Observer implements observe.Observer and observe.QueueObserver.
type Observer struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	attempts    *prometheus.CounterVec

	enqueued  prometheus.Counter
	items     *prometheus.CounterVec
	itemWait  prometheus.Histogram
	itemTime  prometheus.Histogram
	discarded prometheus.Counter
	depth     prometheus.Gauge
}

// New registers the courier collectors with reg.
func New(reg prometheus.Registerer) *Observer {
	f := promauto.With(reg)
	return &Observer{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Enforced runs by final outcome and fault kind",
			},
			[]string{"enforcer", "outcome", "kind"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of enforced runs including retries and fallbacks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"enforcer"},
		),
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Operation invocations by stage and outcome",
			},
			[]string{"enforcer", "stage", "outcome"},
		),
		enqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Items added to the delivery queue",
		}),
		items: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "items_total",
				Help:      "Items processed by the delivery queue worker",
			},
			[]string{"outcome", "kind"},
		),
		itemWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "wait_seconds",
			Help:      "Time items spent queued before the worker took them",
			Buckets:   prometheus.DefBuckets,
		}),
		itemTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "processing_seconds",
			Help:      "Time the worker spent on an item",
			Buckets:   prometheus.DefBuckets,
		}),
		discarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "discarded_total",
			Help:      "Items dropped at shutdown",
		}),
		depth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Items waiting as of the last enqueue",
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (o *Observer) OnStart(context.Context, string) {}

func (o *Observer) OnAttempt(_ context.Context, name string, rec observe.AttemptRecord) {
	o.attempts.WithLabelValues(name, rec.Stage.String(), outcome(rec.Err)).Inc()
}

func (o *Observer) OnSuccess(_ context.Context, name string, tl observe.Timeline) {
	o.runs.WithLabelValues(name, "success", "none").Inc()
	o.runDuration.WithLabelValues(name).Observe(tl.End.Sub(tl.Start).Seconds())
}

func (o *Observer) OnFailure(_ context.Context, name string, tl observe.Timeline) {
	o.runs.WithLabelValues(name, "failure", tl.FinalKind.String()).Inc()
	o.runDuration.WithLabelValues(name).Observe(tl.End.Sub(tl.Start).Seconds())
}

func (o *Observer) OnEnqueue(_ context.Context, _ string, depth int) {
	o.enqueued.Inc()
	o.depth.Set(float64(depth))
}

func (o *Observer) OnItem(_ context.Context, rec observe.ItemRecord) {
	o.items.WithLabelValues(outcome(rec.Err), rec.Kind.String()).Inc()
	o.itemWait.Observe(rec.StartTime.Sub(rec.EnqueuedAt).Seconds())
	o.itemTime.Observe(rec.EndTime.Sub(rec.StartTime).Seconds())
}

func (o *Observer) OnDiscard(_ context.Context, count int) {
	o.discarded.Add(float64(count))
	o.depth.Set(0)
}

var (
	_ observe.Observer      = (*Observer)(nil)
	_ observe.QueueObserver = (*Observer)(nil)
)
