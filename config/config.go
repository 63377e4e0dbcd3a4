// Package config loads the courier service configuration.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/aponysus/courier/budget"
	"github.com/aponysus/courier/circuit"
	"github.com/aponysus/courier/deadletter"
	"github.com/aponysus/courier/retry"
	"github.com/aponysus/courier/validate"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Logging    LoggingConfig        `yaml:"logging"`
	Retry      retry.Config         `yaml:"retry"`
	Cooldown   CooldownConfig       `yaml:"cooldown"`
	Circuit    circuit.Config       `yaml:"circuit"`
	Throttle   ThrottleConfig       `yaml:"throttle"`
	Queue      QueueConfig          `yaml:"queue"`
	Redis      validate.RedisConfig `yaml:"redis"`
	DeadLetter deadletter.Config    `yaml:"dead_letter"`
	Metrics    MetricsConfig        `yaml:"metrics"`
	Sender     SenderConfig         `yaml:"sender"`
	Fallback   FallbackConfig       `yaml:"fallback"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// SlogLevel maps Level onto slog. Unknown values are Info.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	FormatText = "text"
	FormatJSON = "json"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// CooldownConfig configures the per-subject cooldown guard. A zero window
// disables it.
type CooldownConfig struct {
	Window time.Duration `yaml:"window"`
	Store  string        `yaml:"store"` // memory, redis
	// FailOpen lets payloads through when the store is unreachable.
	FailOpen bool `yaml:"fail_open"`
}

// ThrottleConfig configures a per-recipient token bucket. A zero capacity
// disables it.
type ThrottleConfig struct {
	Capacity        int     `yaml:"capacity"`
	RefillPerSecond float64 `yaml:"refill_per_second"`
}

// Budget returns the keyed bucket, or nil when throttling is disabled.
func (c ThrottleConfig) Budget() *budget.Keyed {
	if c.Capacity <= 0 {
		return nil
	}
	return budget.NewKeyed(c.Capacity, c.RefillPerSecond)
}

type QueueConfig struct {
	Name            string        `yaml:"name"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

const (
	SenderHTTP = "http"
	SenderSQS  = "sqs"
)

// SenderConfig selects the primary delivery channel.
type SenderConfig struct {
	Type     string        `yaml:"type"`
	URL      string        `yaml:"url"`
	QueueURL string        `yaml:"queue_url"`
	Region   string        `yaml:"region"`
	Timeout  time.Duration `yaml:"timeout"`
}

// FallbackConfig configures an optional HTTP fallback endpoint.
type FallbackConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}
