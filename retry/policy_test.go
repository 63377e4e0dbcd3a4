package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/aponysus/courier/fault"
)

func TestBuilder_Build(t *testing.T) {
	pol, err := NewBuilder().
		WithDelay(time.Second, 3).
		WithMaxRetries(4).
		Handle(fault.KindTransient).
		Handle(fault.KindThrottled).
		Build()
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	if pol.Delay() != 3*time.Second {
		t.Fatalf("Delay=%v, want 3s", pol.Delay())
	}
	if pol.MaxRetries() != 4 || pol.Forever() {
		t.Fatalf("MaxRetries=%d Forever=%v", pol.MaxRetries(), pol.Forever())
	}
	if pol.Recognized().Len() != 2 {
		t.Fatalf("Recognized=%v", pol.Recognized())
	}
	if !pol.Recognizes(fault.New(fault.KindThrottled, errors.New("429"))) {
		t.Fatalf("expected throttled to be recognized")
	}
	if pol.Recognizes(errors.New("plain")) {
		t.Fatalf("untagged errors are operation_failed and not recognized")
	}
}

func TestBuilder_Defaults(t *testing.T) {
	pol, err := NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	if pol.Delay() != 0 || !pol.Forever() || pol.Recognized().Len() != 0 {
		t.Fatalf("unexpected defaults: %v", pol)
	}
}

func TestBuilder_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		b     *Builder
		field string
	}{
		{name: "negative_retries", b: NewBuilder().WithMaxRetries(-1), field: "max_retries"},
		{name: "negative_amount", b: NewBuilder().WithDelay(time.Second, -1), field: "delay"},
		{name: "negative_unit", b: NewBuilder().WithDelay(-time.Second, 1), field: "delay_unit"},
		{name: "overflow", b: NewBuilder().WithDelay(time.Hour, 1<<62), field: "delay"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.b.Build()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err=%v, want *ConfigError", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("field=%q, want %q", cfgErr.Field, tc.field)
			}
		})
	}
}

func TestBuilder_Classifier(t *testing.T) {
	pol, err := NewBuilder().
		Handle(fault.KindTransient).
		WithClassifier(func(error) fault.Kind { return fault.KindTransient }).
		Build()
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	if !pol.Recognizes(errors.New("anything")) {
		t.Fatalf("custom classifier should mark every error transient")
	}
}

func TestPolicyString(t *testing.T) {
	pol, _ := NewBuilder().WithDelay(time.Millisecond, 5).Handle(fault.KindTimeout).Build()
	if got, want := pol.String(), "retry(delay=5ms, max=forever, on=[timeout])"; got != want {
		t.Fatalf("String()=%q, want %q", got, want)
	}
}

func TestConfig_Build(t *testing.T) {
	pol, err := Config{Delay: 250 * time.Millisecond, MaxRetries: 3, Recognized: []string{"transient", "timeout"}}.Build()
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	if pol.Delay() != 250*time.Millisecond || pol.MaxRetries() != 3 {
		t.Fatalf("policy=%v", pol)
	}
	if !pol.Recognized().Contains(fault.KindTimeout) {
		t.Fatalf("expected timeout recognized")
	}

	if _, err := (Config{Recognized: []string{"nope"}}).Build(); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := (Config{MaxRetries: -2}).Build(); err == nil {
		t.Fatalf("expected error for negative retries")
	}
}
