package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/result"
)

type message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
}

const messageSchema = `{
  "type": "object",
  "properties": {
    "to": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "subject": {"type": "string", "minLength": 1}
  },
  "required": ["to", "subject"]
}`

func TestSchema_Validate(t *testing.T) {
	s, err := NewSchema[message](messageSchema)
	if err != nil {
		t.Fatalf("NewSchema err=%v", err)
	}
	ctx := context.Background()

	if !result.IsSuccess(s.Validate(ctx, message{To: []string{"a@example.com"}, Subject: "hi"})) {
		t.Fatalf("expected valid message to pass")
	}

	_, err = result.Unwrap(s.Validate(ctx, message{Subject: ""}))
	if !errors.Is(err, ErrSchemaFailed) || fault.KindOf(err) != fault.KindValidationRejected {
		t.Fatalf("err=%v, want schema rejection", err)
	}
}

func TestNewSchema_Invalid(t *testing.T) {
	if _, err := NewSchema[message](`{"type": 12}`); !errors.Is(err, ErrInvalidSchema) {
		t.Fatalf("err=%v, want ErrInvalidSchema", err)
	}
}
