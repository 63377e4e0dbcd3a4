// Package fault defines the closed error taxonomy shared by every delivery
// component. Failures are tagged with a Kind so retry allow-lists match on
// kinds instead of concrete error types.
package fault

import (
	"fmt"
	"strings"
)

// Kind tags a failure. The set of kinds is closed.
type Kind int

const (
	KindNone Kind = iota

	// Outcomes produced by the delivery policy layer.
	KindValidationRejected
	KindOperationFailed
	KindRetryInterrupted
	KindRetriesExhausted
	KindAllFallbacksFailed
	KindUnrecoverableState
	KindCircuitOpen

	// Kinds reported by send capabilities.
	KindTransient
	KindThrottled
	KindTimeout
	KindPermanent
)

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindValidationRejected: "validation_rejected",
	KindOperationFailed:    "operation_failed",
	KindRetryInterrupted:   "retry_interrupted",
	KindRetriesExhausted:   "retries_exhausted",
	KindAllFallbacksFailed: "all_fallbacks_failed",
	KindUnrecoverableState: "unrecoverable_state",
	KindCircuitOpen:        "circuit_open",
	KindTransient:          "transient",
	KindThrottled:          "throttled",
	KindTimeout:            "timeout",
	KindPermanent:          "permanent",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind resolves a kind by its String form. Matching ignores case and
// surrounding whitespace; dashes are accepted in place of underscores.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	for k, s := range kindNames {
		if s == n && k != KindNone {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("fault: unknown kind %q", name)
}

// ParseKinds resolves every name, failing on the first unknown one.
func ParseKinds(names []string) ([]Kind, error) {
	out := make([]Kind, 0, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
