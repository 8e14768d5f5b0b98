package queue

import (
	"context"
	"errors"
	"fmt"
)

// Queue names consumed by out-of-process workers.
const (
	QueueOCR            = "ocr"
	QueueClassification = "classification"
	QueueLedgerPosting  = "ledger_posting"
	QueueResults        = "results"
)

var (
	ErrUnknownQueue = errors.New("unknown queue")
	ErrPermanent    = errors.New("permanent message failure")
)

// Publisher hands a payload to a named queue with at-least-once delivery.
type Publisher interface {
	Publish(ctx context.Context, queueName string, payload []byte) error
}

// Handler processes one delivered payload. Returning an error wrapping
// ErrPermanent drops the message instead of redelivering it.
type Handler func(ctx context.Context, payload []byte) error

// Permanent marks err as not worth redelivering.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// ValidQueue reports whether name is one of the known queues.
func ValidQueue(name string) bool {
	switch name {
	case QueueOCR, QueueClassification, QueueLedgerPosting, QueueResults:
		return true
	}
	return false
}

// PublishJSON encodes v and publishes it to queueName.
func PublishJSON(ctx context.Context, p Publisher, queueName string, v any) error {
	payload, err := EncodeMessage(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", queueName, err)
	}
	return p.Publish(ctx, queueName, payload)
}
