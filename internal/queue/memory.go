package queue

import (
	"context"
	"fmt"
	"sync"
)

// Published is one recorded publish call.
type Published struct {
	Queue   string
	Payload []byte
}

// MemoryPublisher records messages in process. Fail, when set, is consulted
// before each publish and its error is returned as-is.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Published
	Fail     func(queueName string, payload []byte) error
}

// NewMemoryPublisher constructs an empty recorder.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records payload under queueName.
func (m *MemoryPublisher) Publish(ctx context.Context, queueName string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidQueue(queueName) {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	if m.Fail != nil {
		if err := m.Fail(queueName, payload); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Published{Queue: queueName, Payload: append([]byte(nil), payload...)})
	return nil
}

// Messages returns a copy of everything published so far.
func (m *MemoryPublisher) Messages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.messages))
	copy(out, m.messages)
	return out
}

// ByQueue returns the payloads published to queueName in order.
func (m *MemoryPublisher) ByQueue(queueName string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, msg := range m.messages {
		if msg.Queue == queueName {
			out = append(out, msg.Payload)
		}
	}
	return out
}

var _ Publisher = (*MemoryPublisher)(nil)
