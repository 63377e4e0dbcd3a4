package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/result"
)

var (
	ErrInvalidSchema = errors.New("invalid json schema")
	ErrSchemaFailed  = errors.New("schema validation failed")
)

// Schema validates the JSON encoding of a payload against a JSON schema.
type Schema[T any] struct {
	schema *gojsonschema.Schema
}

// NewSchema compiles schemaJSON.
func NewSchema[T any](schemaJSON string) (*Schema[T], error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &Schema[T]{schema: s}, nil
}

func (s *Schema[T]) Validate(_ context.Context, payload T) result.Result[T] {
	doc, err := json.Marshal(payload)
	if err != nil {
		return Reject(payload, fmt.Errorf("encode payload: %w", err))
	}
	res, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return result.Fail(payload, fault.Newf(fault.KindValidationRejected, "schema validation system error: %w", err))
	}
	if res.Valid() {
		return result.Ok(payload)
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, desc := range res.Errors() {
		msgs = append(msgs, desc.String())
	}
	return Reject(payload, fmt.Errorf("%w: %s", ErrSchemaFailed, strings.Join(msgs, "; ")))
}
