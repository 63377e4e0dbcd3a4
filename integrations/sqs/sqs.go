// Package sqs delivers payloads as JSON messages on an Amazon SQS queue.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/aponysus/courier/fault"
	"github.com/aponysus/courier/queue"
	"github.com/aponysus/courier/result"
)

// ItemIDAttribute is the message attribute carrying the delivery queue item id.
const ItemIDAttribute = "courier-item-id"

// Client is the subset of *sqs.Client used by Sender.
type Client interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type Option[T any] func(*Sender[T])

// WithGroupID sets the message group for FIFO queues. Defaults to "courier".
func WithGroupID[T any](fn func(T) string) Option[T] {
	return func(s *Sender[T]) { s.groupID = fn }
}

func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(s *Sender[T]) { s.logger = l }
}

// Sender publishes payloads of type T to one queue.
type Sender[T any] struct {
	client   Client
	queueURL string
	fifo     bool
	groupID  func(T) string
	logger   *slog.Logger
}

func NewSender[T any](client Client, queueURL string, opts ...Option[T]) *Sender[T] {
	s := &Sender[T]{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		groupID:  func(T) string { return "courier" },
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sender[T]) Send(ctx context.Context, payload T) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fault.New(fault.KindPermanent, err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	}
	id, hasID := queue.ItemIDFromContext(ctx)
	if hasID {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			ItemIDAttribute: {DataType: aws.String("String"), StringValue: aws.String(id)},
		}
	}
	if s.fifo {
		input.MessageGroupId = aws.String(s.groupID(payload))
		if hasID {
			input.MessageDeduplicationId = aws.String(id)
		}
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &fault.Error{Kind: Classify(err), Op: "sqs send", Err: err}
	}
	s.logger.Debug("sqs message sent", "queue_url", s.queueURL, "message_id", aws.ToString(out.MessageId))
	return nil
}

// Operation adapts Send for use with an enforcer or queue.
func (s *Sender[T]) Operation() result.Operation[T] {
	return result.Lift(s.Send)
}

var throttleCodes = map[string]bool{
	"RequestThrottled":          true,
	"RequestThrottledException": true,
	"ThrottlingException":       true,
	"KmsThrottled":              true,
}

// Classify maps SQS API errors onto fault kinds. Throttling codes are
// Throttled, other client faults are Permanent, everything else Transient.
func Classify(err error) fault.Kind {
	if err == nil {
		return fault.KindNone
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if throttleCodes[apiErr.ErrorCode()] {
			return fault.KindThrottled
		}
		if apiErr.ErrorFault() == smithy.FaultClient {
			return fault.KindPermanent
		}
		return fault.KindTransient
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return fault.KindTransient
}
