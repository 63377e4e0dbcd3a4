package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. Variables from a .env file in
// the working directory are loaded first and ${VAR} references expanded.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = FormatText
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = time.Second
	}
	if len(c.Retry.Recognized) == 0 {
		c.Retry.Recognized = []string{"transient", "throttled", "timeout"}
	}
	if c.Cooldown.Store == "" {
		c.Cooldown.Store = StoreMemory
	}
	if c.Circuit.Enabled {
		if c.Circuit.Threshold == 0 {
			c.Circuit.Threshold = 5
		}
		if c.Circuit.Cooldown == 0 {
			c.Circuit.Cooldown = 30 * time.Second
		}
	}
	if c.Queue.Name == "" {
		c.Queue.Name = "delivery"
	}
	if c.Queue.ShutdownTimeout == 0 {
		c.Queue.ShutdownTimeout = 15 * time.Second
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "courier:"
	}
	if c.Sender.Type == "" {
		c.Sender.Type = SenderHTTP
	}
	if c.Sender.Timeout == 0 {
		c.Sender.Timeout = 10 * time.Second
	}
	if c.Fallback.Timeout == 0 {
		c.Fallback.Timeout = c.Sender.Timeout
	}
}

// Validate reports every problem found, joined.
func (c *AppConfig) Validate() error {
	var errs []error

	switch strings.ToLower(c.Logging.Format) {
	case FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want text or json", c.Logging.Format))
	}

	if _, err := c.Retry.Build(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}

	if c.Cooldown.Window < 0 {
		errs = append(errs, errors.New("cooldown.window must not be negative"))
	}
	switch c.Cooldown.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("cooldown.store redis requires redis.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("cooldown.store %q: want memory or redis", c.Cooldown.Store))
	}

	if c.Circuit.Threshold < 0 || c.Circuit.Cooldown < 0 {
		errs = append(errs, errors.New("circuit threshold and cooldown must not be negative"))
	}
	if c.Throttle.Capacity < 0 || c.Throttle.RefillPerSecond < 0 {
		errs = append(errs, errors.New("throttle capacity and refill_per_second must not be negative"))
	}

	switch strings.ToLower(c.Sender.Type) {
	case SenderHTTP:
		if c.Sender.URL == "" {
			errs = append(errs, errors.New("sender.url is required for http"))
		}
	case SenderSQS:
		if c.Sender.QueueURL == "" {
			errs = append(errs, errors.New("sender.queue_url is required for sqs"))
		}
	default:
		errs = append(errs, fmt.Errorf("sender.type %q: want http or sqs", c.Sender.Type))
	}

	return errors.Join(errs...)
}
