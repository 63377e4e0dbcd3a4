package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/result"
)

func TestChain_NoPoliciesPassesPayload(t *testing.T) {
	v, err := result.Unwrap(Chain[string](context.Background(), nil, "p"))
	if err != nil || v != "p" {
		t.Fatalf("Chain(nil)=%q,%v", v, err)
	}
}

func TestChain_FirstFailureShortCircuits(t *testing.T) {
	var calls []string
	record := func(name string, ok bool) Policy[int] {
		return Func[int](func(_ context.Context, p int) result.Result[int] {
			calls = append(calls, name)
			if ok {
				return result.Ok(p)
			}
			return Reject(p, errors.New(name+" rejected"))
		})
	}

	r := Chain(context.Background(), []Policy[int]{record("a", true), record("b", false), record("c", true)}, 7)
	_, err := result.Unwrap(r)
	if !errors.Is(err, fault.ErrValidationRejected) {
		t.Fatalf("err=%v, want validation rejected", err)
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("calls=%v, want [a b]", calls)
	}
}

func TestChain_ProceedsWithOriginalPayload(t *testing.T) {
	mutating := Func[int](func(_ context.Context, p int) result.Result[int] {
		return result.Ok(p * 100)
	})
	v, err := result.Unwrap(Chain(context.Background(), []Policy[int]{mutating, nil}, 3))
	if err != nil || v != 3 {
		t.Fatalf("Chain=%d,%v, want original payload 3", v, err)
	}
}

func TestPredicate(t *testing.T) {
	nonEmpty := Predicate("empty payload", func(s string) bool { return s != "" })

	if !result.IsSuccess(nonEmpty.Validate(context.Background(), "x")) {
		t.Fatalf("expected success for non-empty")
	}
	_, err := result.Unwrap(nonEmpty.Validate(context.Background(), ""))
	if fault.KindOf(err) != fault.KindValidationRejected {
		t.Fatalf("kind=%v, want validation_rejected", fault.KindOf(err))
	}
}
