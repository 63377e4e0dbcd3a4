package validate

import (
	"context"
	"fmt"

	"github.com/aponysus/courier/budget"
	"github.com/aponysus/courier/result"
)

// Throttle rejects payloads once the budget for their key is spent. A nil key
// function charges every payload to one shared key.
type Throttle[T any] struct {
	budget budget.Budget
	key    KeyFunc[T]
}

func NewThrottle[T any](b budget.Budget, key KeyFunc[T]) *Throttle[T] {
	return &Throttle[T]{budget: b, key: key}
}

func (t *Throttle[T]) Validate(ctx context.Context, payload T) result.Result[T] {
	key := ""
	if t.key != nil {
		key = t.key(payload)
	}
	d := t.budget.Allow(ctx, key, 1)
	if d.Allowed {
		return result.Ok(payload)
	}
	return Reject(payload, fmt.Errorf("%w: %s", ErrRateLimited, d.Reason))
}
