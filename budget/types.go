// Package budget rate-limits deliveries with token buckets.
package budget

import "context"

// Standard Decision.Reason strings.
const (
	ReasonAllowed      = "allowed"
	ReasonBudgetNil    = "budget_nil"
	ReasonBudgetDenied = "budget_denied"
)

// Decision is the result of a budget check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Budget decides whether a delivery keyed by key may proceed. cost values
// below 1 count as 1.
type Budget interface {
	Allow(ctx context.Context, key string, cost int) Decision
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string, int) Decision {
	return Decision{Allowed: true, Reason: ReasonAllowed}
}
