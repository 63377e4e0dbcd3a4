package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/aponysus/courier/config"
)

func runCourier(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return err
	}

	slogLevel := cfg.Logging.SlogLevel()
	if isDebug {
		slogLevel = slog.LevelDebug
	}
	slog.SetDefault(newLogger(cfg.Logging, slogLevel, os.Stderr))
	slog.Info("Logger initialized", "level", slogLevel.String(), "format", cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize courier", "error", err)
		return err
	}
	defer a.Close()

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		srv = a.metricsServer()
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		slog.Info("Metrics server listening", "addr", cfg.Metrics.Addr)
	}

	// The worker is stopped only through Shutdown below. It cancels the
	// in-flight delivery at once and waits up to ShutdownTimeout for it to
	// unwind.
	if err := a.queue.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	go a.sweepEvery(ctx, sweepInterval)

	in, err := openInput(inputPath)
	if err != nil {
		slog.Error("Failed to open input", "error", err)
		return err
	}
	defer in.Close()

	fed := make(chan error, 1)
	go func() {
		n, err := a.feed(ctx, in)
		slog.Info("Input consumed", "notifications", n)
		fed <- err
	}()

	ctl := make(chan os.Signal, 1)
	signal.Notify(ctl, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(ctl)

	var idle <-chan struct{}
loop:
	for {
		select {
		case <-ctx.Done():
			slog.Info("Received signal, shutting down...")
			break loop
		case sig := <-ctl:
			if sig == syscall.SIGUSR1 {
				a.queue.Pause()
			} else {
				a.queue.Resume()
			}
		case err := <-fed:
			fed = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Reading input failed", "error", err)
			}
			if drain {
				idle = a.idle()
			}
		case <-idle:
			slog.Info("All notifications handled")
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout)
	defer cancel()

	if err := a.queue.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		return err
	}
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	slog.Info("Courier stopped gracefully")
	return nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
