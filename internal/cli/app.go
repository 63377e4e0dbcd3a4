package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/aponysus/courier/circuit"
	"github.com/aponysus/courier/config"
	"github.com/aponysus/courier/deadletter"
	httpsender "github.com/aponysus/courier/integrations/http"
	sqssender "github.com/aponysus/courier/integrations/sqs"
	"github.com/aponysus/courier/internal/notify"
	"github.com/aponysus/courier/metrics"
	"github.com/aponysus/courier/observe"
	"github.com/aponysus/courier/policy"
	"github.com/aponysus/courier/queue"
	"github.com/aponysus/courier/result"
	"github.com/aponysus/courier/tracing"
	"github.com/aponysus/courier/validate"
)

const (
	maxLineSize   = 1 << 20
	sweepInterval = time.Minute
)

// app holds the wired delivery pipeline.
type app struct {
	cfg      *config.AppConfig
	logger   *slog.Logger
	reg      *prometheus.Registry
	enforcer *policy.Enforcer[notify.Notification]
	queue    *queue.Queue[notify.Notification]
	deliver  result.Operation[notify.Notification]

	pending sync.WaitGroup
	closers []func() error
	// prunes evict idle per-key state from in-process validators.
	prunes []func(now time.Time) int
}

func newApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.reg)

	validations, err := a.validations(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	primary, err := a.primary(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	pol, err := cfg.Retry.Build()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("retry policy: %w", err)
	}

	b := policy.NewBuilder[notify.Notification]().
		WithName("notify").
		WithValidations(validations...).
		WithRetry(pol).
		WithObserver(observe.MultiObserver{Observers: []observe.Observer{
			m,
			tracing.New(otel.GetTracerProvider()),
		}}).
		WithLogger(logger)

	if cfg.Fallback.URL != "" {
		fb := httpsender.NewSender[notify.Notification](cfg.Fallback.URL,
			httpsender.WithClient(&http.Client{Timeout: cfg.Fallback.Timeout}),
			httpsender.WithLogger(logger),
		)
		b.WithFallbacks(fb.Operation())
	}

	if cb := circuit.New(cfg.Circuit, circuit.WithStateHook(func(from, to circuit.State) {
		logger.Warn("circuit state changed", "from", from, "to", to)
	})); cb != nil {
		b.WithBreaker(cb)
	}

	a.enforcer = b.Build()
	a.deliver = a.enforcer.Operation(primary)

	queueObservers := []observe.QueueObserver{m}
	if cfg.DeadLetter.URL != "" {
		db, err := deadletter.Open(ctx, cfg.DeadLetter)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("dead letter store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		queueObservers = append(queueObservers, deadletter.New(db, cfg.Queue.Name, logger,
			deadletter.WithWriteTimeout(cfg.DeadLetter.WriteTimeout)))
	}

	a.queue = queue.New[notify.Notification](
		queue.WithName(cfg.Queue.Name),
		queue.WithLogger(logger),
		queue.WithObserver(observe.MultiQueueObserver{Observers: queueObservers}),
	)

	logger.Info("Delivery pipeline ready",
		"sender", cfg.Sender.Type,
		"retry", pol.String(),
		"validations", len(validations),
		"fallback", cfg.Fallback.URL != "",
		"circuit", cfg.Circuit.Enabled,
	)
	return a, nil
}

func (a *app) validations(ctx context.Context) ([]validate.Policy[notify.Notification], error) {
	schema, err := notify.Schema()
	if err != nil {
		return nil, err
	}
	out := []validate.Policy[notify.Notification]{schema}

	if a.cfg.Cooldown.Window > 0 {
		opts := []validate.CooldownOption{validate.WithCooldownLogger(a.logger)}
		if a.cfg.Cooldown.FailOpen {
			opts = append(opts, validate.WithFailOpen())
		}
		if a.cfg.Cooldown.Store == config.StoreRedis {
			rdb, err := validate.DialRedis(ctx, a.cfg.Redis)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, rdb.Close)
			opts = append(opts, validate.WithStore(validate.NewRedisStore(rdb, a.cfg.Redis.Prefix, a.cfg.Cooldown.Window)))
		} else {
			mem := validate.NewMemoryStore()
			window := a.cfg.Cooldown.Window
			a.prunes = append(a.prunes, func(now time.Time) int { return mem.Prune(now.Add(-window)) })
			opts = append(opts, validate.WithStore(mem))
		}
		out = append(out, validate.NewCooldown(a.cfg.Cooldown.Window, notify.BySubject, opts...))
	}

	if bucket := a.cfg.Throttle.Budget(); bucket != nil {
		a.prunes = append(a.prunes, func(time.Time) int { return bucket.Prune() })
		out = append(out, validate.NewThrottle(bucket, notify.ByRecipient))
	}
	return out, nil
}

func (a *app) primary(ctx context.Context) (result.Operation[notify.Notification], error) {
	switch strings.ToLower(a.cfg.Sender.Type) {
	case config.SenderSQS:
		var opts []func(*awsconfig.LoadOptions) error
		if a.cfg.Sender.Region != "" {
			opts = append(opts, awsconfig.WithRegion(a.cfg.Sender.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		s := sqssender.NewSender(awssqs.NewFromConfig(awsCfg), a.cfg.Sender.QueueURL,
			sqssender.WithGroupID(notify.BySubject),
			sqssender.WithLogger[notify.Notification](a.logger),
		)
		return s.Operation(), nil
	default:
		s := httpsender.NewSender[notify.Notification](a.cfg.Sender.URL,
			httpsender.WithClient(&http.Client{Timeout: a.cfg.Sender.Timeout}),
			httpsender.WithLogger(a.logger),
		)
		return s.Operation(), nil
	}
}

// enqueue adds n to the queue and tracks it until the worker is done with it.
func (a *app) enqueue(n notify.Notification) error {
	a.pending.Add(1)
	err := a.queue.Add(func(ctx context.Context, n notify.Notification) result.Result[notify.Notification] {
		defer a.pending.Done()
		return a.deliver(ctx, n)
	}, n)
	if err != nil {
		a.pending.Done()
	}
	return err
}

// feed enqueues one notification per non-blank line of r. Lines that fail
// to decode are logged and skipped.
func (a *app) feed(ctx context.Context, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	count := 0
	line := 0
	for sc.Scan() {
		line++
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		n, err := notify.Decode([]byte(raw))
		if err != nil {
			a.logger.Error("Skipping input line", "line", line, "error", err)
			continue
		}
		if err := a.enqueue(n); err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return count, err
			}
			a.logger.Error("Failed to enqueue notification", "id", n.ID, "error", err)
			continue
		}
		count++
	}
	return count, sc.Err()
}

// sweep evicts idle cooldown and throttle keys once and reports how many went.
func (a *app) sweep(now time.Time) int {
	n := 0
	for _, prune := range a.prunes {
		n += prune(now)
	}
	return n
}

// sweepEvery runs sweep on a ticker until ctx is done.
func (a *app) sweepEvery(ctx context.Context, every time.Duration) {
	if len(a.prunes) == 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := a.sweep(now); n > 0 {
				a.logger.Debug("Pruned idle keys", "count", n)
			}
		}
	}
}

// idle is closed once every enqueued notification has been handled.
func (a *app) idle() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		a.pending.Wait()
		close(ch)
	}()
	return ch
}

func (a *app) metricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Close releases external connections. Safe to call more than once.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing resource", "error", err)
		}
	}
	a.closers = nil
}
