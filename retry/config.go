package retry

import (
	"time"

	"github.com/aponysus/courier/fault"
)

// Config is the file form of a Policy.
type Config struct {
	Delay      time.Duration `yaml:"delay"`
	MaxRetries int           `yaml:"max_retries"`
	// Recognized lists fault kind names, e.g. ["transient", "throttled"].
	Recognized []string `yaml:"recognized"`
}

// Build converts c into a Policy.
func (c Config) Build() (*Policy, error) {
	kinds, err := fault.ParseKinds(c.Recognized)
	if err != nil {
		return nil, &ConfigError{Field: "recognized", Value: err.Error()}
	}
	return NewBuilder().
		WithDelay(time.Nanosecond, int64(c.Delay)).
		WithMaxRetries(c.MaxRetries).
		Handle(kinds...).
		Build()
}
