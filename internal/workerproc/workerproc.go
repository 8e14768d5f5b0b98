package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"intake-backend/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates the payload is not a usable result message.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrProcess indicates applying the result failed after successful parsing.
type ErrProcess struct {
	DocumentID string
	TenantID   string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "apply result"
	}
	return "apply result: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ResultApplier records a worker outcome against its document.
type ResultApplier interface {
	ApplyResult(ctx context.Context, msg queue.ResultMessage) error
}

// ParseMessage validates and decodes a results-queue payload.
func ParseMessage(body string) (queue.ResultMessage, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.ResultMessage{}, meta, ErrEmptyBody{Meta: meta}
	}
	msg, err := queue.DecodeResult([]byte(body))
	if err != nil {
		return msg, meta, ErrDecode{Meta: meta, Err: err}
	}
	return msg, meta, nil
}

// IsPoison reports whether redelivering the message can never succeed.
func IsPoison(err error) bool {
	var empty ErrEmptyBody
	var decode ErrDecode
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.Is(err, queue.ErrPermanent)
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.ResultMessage) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.ResultMessage, bool) {
	if ctx == nil {
		return queue.ResultMessage{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.ResultMessage)
	return msg, ok
}

// HandleMessage parses, validates, and applies a result payload.
func HandleMessage(ctx context.Context, applier ResultApplier, body string) error {
	if applier == nil {
		return errors.New("result applier not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	if err := applier.ApplyResult(ctx, msg); err != nil {
		return ErrProcess{DocumentID: msg.DocumentID, TenantID: msg.TenantID, Err: err}
	}
	return nil
}

// Handler adapts HandleMessage to a queue consumer callback. Poison payloads
// are marked permanent so the broker drops them instead of redelivering.
func Handler(applier ResultApplier) queue.Handler {
	return func(ctx context.Context, payload []byte) error {
		err := HandleMessage(ctx, applier, string(payload))
		if err != nil && IsPoison(err) && !errors.Is(err, queue.ErrPermanent) {
			return queue.Permanent(err)
		}
		return err
	}
}
