package retry

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aponysus/courier/fault"
)

// ConfigError indicates a fundamentally invalid retry policy configuration.
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("courier: invalid retry policy: %s=%q", e.Field, e.Value)
}

// Policy is an immutable fixed-delay retry policy. Build one with NewBuilder.
// A Policy may be shared by any number of enforcers.
type Policy struct {
	delay      time.Duration
	maxRetries int
	recognized fault.Set
	classifier fault.Classifier
}

// Delay is the fixed suspension before every retry.
func (p *Policy) Delay() time.Duration { return p.delay }

// MaxRetries is the retry bound; zero means retry forever.
func (p *Policy) MaxRetries() int { return p.maxRetries }

// Forever reports whether the policy retries without bound.
func (p *Policy) Forever() bool { return p.maxRetries == 0 }

// Recognized returns the kinds that trigger a retry.
func (p *Policy) Recognized() fault.Set { return p.recognized }

// Recognizes reports whether err is of a kind that triggers a retry.
func (p *Policy) Recognizes(err error) bool {
	return p.recognized.Contains(p.Classify(err))
}

// Classify maps err onto a kind with the policy's classifier.
func (p *Policy) Classify(err error) fault.Kind {
	return p.classifier.Classify(err)
}

func (p *Policy) String() string {
	bound := strconv.Itoa(p.maxRetries)
	if p.Forever() {
		bound = "forever"
	}
	return fmt.Sprintf("retry(delay=%s, max=%s, on=%s)", p.delay, bound, p.recognized)
}

// Builder accumulates retry settings. The zero delay unit is milliseconds.
type Builder struct {
	unit       time.Duration
	amount     int64
	maxRetries int
	kinds      []fault.Kind
	classifier fault.Classifier
}

func NewBuilder() *Builder {
	return &Builder{unit: time.Millisecond}
}

// WithDelay sets the fixed delay to amount units, e.g. WithDelay(time.Second, 3).
func (b *Builder) WithDelay(unit time.Duration, amount int64) *Builder {
	b.unit = unit
	b.amount = amount
	return b
}

// WithMaxRetries bounds the number of retries. Zero retries forever.
func (b *Builder) WithMaxRetries(n int) *Builder {
	b.maxRetries = n
	return b
}

// Handle adds kinds to the recognized set. Repeated calls accumulate.
func (b *Builder) Handle(kinds ...fault.Kind) *Builder {
	b.kinds = append(b.kinds, kinds...)
	return b
}

// WithClassifier replaces fault.KindOf for mapping errors onto kinds.
func (b *Builder) WithClassifier(c fault.Classifier) *Builder {
	b.classifier = c
	return b
}

// Build validates the settings and returns an immutable Policy.
func (b *Builder) Build() (*Policy, error) {
	if b.maxRetries < 0 {
		return nil, &ConfigError{Field: "max_retries", Value: strconv.Itoa(b.maxRetries)}
	}
	if b.unit < 0 {
		return nil, &ConfigError{Field: "delay_unit", Value: b.unit.String()}
	}
	if b.amount < 0 {
		return nil, &ConfigError{Field: "delay", Value: strconv.FormatInt(b.amount, 10)}
	}
	if b.unit > 0 && b.amount > math.MaxInt64/int64(b.unit) {
		return nil, &ConfigError{Field: "delay", Value: strconv.FormatInt(b.amount, 10)}
	}
	return &Policy{
		delay:      b.unit * time.Duration(b.amount),
		maxRetries: b.maxRetries,
		recognized: fault.NewSet(b.kinds...),
		classifier: b.classifier,
	}, nil
}
