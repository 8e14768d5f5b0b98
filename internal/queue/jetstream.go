package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"intake-backend/internal/shared/telemetry"
)

// SubjectPrefix namespaces every queue subject in the stream.
const SubjectPrefix = "intake.jobs."

// Subject maps a queue name onto its JetStream subject.
func Subject(queueName string) string {
	return SubjectPrefix + queueName
}

// JetStreamPublisher publishes to and consumes from a NATS JetStream stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

// NewJetStreamPublisher connects to url and ensures the stream exists.
func NewJetStreamPublisher(ctx context.Context, url, stream string) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("intake-backend"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{SubjectPrefix + ">"},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}
	p := NewJetStreamPublisherWithJS(js, stream)
	p.nc = nc
	return p, nil
}

// NewJetStreamPublisherWithJS wires an existing JetStream context.
func NewJetStreamPublisherWithJS(js jetstream.JetStream, stream string) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, stream: stream}
}

// Publish waits for the stream to acknowledge the message.
func (p *JetStreamPublisher) Publish(ctx context.Context, queueName string, payload []byte) error {
	if !ValidQueue(queueName) {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	if _, err := p.js.Publish(ctx, Subject(queueName), payload); err != nil {
		return fmt.Errorf("jetstream publish %s: %w", queueName, err)
	}
	return nil
}

// Consume pulls messages for queueName with a durable consumer until ctx is
// cancelled. Handler errors nak the message unless they wrap ErrPermanent.
func (p *JetStreamPublisher) Consume(ctx context.Context, queueName, durable string, batch int, h Handler) error {
	stream, err := p.js.Stream(ctx, p.stream)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", p.stream, err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: Subject(queueName),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", durable, err)
	}
	if batch <= 0 {
		batch = 1
	}

	for ctx.Err() == nil {
		msgs, err := consumer.Fetch(batch, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			telemetry.Warn("queue.fetch_failed", map[string]any{"queue": queueName, "error": err.Error()})
			continue
		}
		for msg := range msgs.Messages() {
			settle(ctx, queueName, msg, h(ctx, msg.Data()))
		}
		if err := msgs.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) && ctx.Err() == nil {
			telemetry.Warn("queue.fetch_failed", map[string]any{"queue": queueName, "error": err.Error()})
		}
	}
	return ctx.Err()
}

func settle(ctx context.Context, queueName string, msg jetstream.Msg, err error) {
	var ackErr error
	switch {
	case err == nil:
		ackErr = msg.Ack()
	case errors.Is(err, ErrPermanent):
		telemetry.Error("queue.message_dropped", map[string]any{"queue": queueName, "error": err.Error()})
		ackErr = msg.Term()
	default:
		telemetry.Warn("queue.message_retry", map[string]any{"queue": queueName, "error": err.Error()})
		ackErr = msg.Nak()
	}
	if ackErr != nil && ctx.Err() == nil {
		telemetry.Warn("queue.ack_failed", map[string]any{"queue": queueName, "error": ackErr.Error()})
	}
}

// Close drains the underlying connection when this publisher owns it.
func (p *JetStreamPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

var _ Publisher = (*JetStreamPublisher)(nil)
