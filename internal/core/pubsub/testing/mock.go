// Package testing provides in-process fakes of the pubsub interfaces for
// worker and pipeline tests.
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

// PublishedMessage represents a message that was published.
type PublishedMessage struct {
	Subject string
	Data    []byte
}

// MockPublisher records published messages. FailNext makes the following
// publishes fail without recording.
type MockPublisher struct {
	mu       sync.Mutex
	messages []PublishedMessage
	failures []error
	closed   bool
	notify   chan struct{}
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{notify: make(chan struct{}, 1)}
}

// Publish records the message.
func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}

	m.messages = append(m.messages, PublishedMessage{
		Subject: subject,
		Data:    append([]byte(nil), data...),
	})
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// FailNext queues errors returned by the next publishes, in order.
func (m *MockPublisher) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed returns whether Close was called.
func (m *MockPublisher) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Messages returns all published messages.
func (m *MockPublisher) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.messages...)
}

// WaitFor blocks until at least n messages were published or timeout passes.
func (m *MockPublisher) WaitFor(n int, timeout time.Duration) []PublishedMessage {
	deadline := time.After(timeout)
	for {
		msgs := m.Messages()
		if len(msgs) >= n {
			return msgs
		}
		select {
		case <-m.notify:
		case <-deadline:
			return msgs
		}
	}
}

// Outcome is how a MockMessage was settled.
type Outcome int

const (
	Pending Outcome = iota
	Acked
	Naked
	Termed
)

func (o Outcome) String() string {
	switch o {
	case Acked:
		return "ack"
	case Naked:
		return "nak"
	case Termed:
		return "term"
	default:
		return "pending"
	}
}

// MockMessage is a pubsub.Message that records its settlement.
type MockMessage struct {
	mu       sync.Mutex
	data     []byte
	subject  string
	metadata pubsub.MessageMetadata
	outcome  Outcome
	nakDelay time.Duration
	settled  chan struct{}
	once     sync.Once
}

// NewMockMessage creates a message on its first delivery.
func NewMockMessage(subject string, data []byte) *MockMessage {
	return NewMockMessageDelivered(subject, data, 1)
}

// NewMockMessageDelivered creates a message that has been delivered n times.
func NewMockMessageDelivered(subject string, data []byte, n uint64) *MockMessage {
	return &MockMessage{
		subject: subject,
		data:    data,
		metadata: pubsub.MessageMetadata{
			NumDelivered: n,
			Timestamp:    time.Now(),
			Subject:      subject,
		},
		settled: make(chan struct{}),
	}
}

func (m *MockMessage) settle(o Outcome, delay time.Duration) {
	m.mu.Lock()
	if m.outcome == Pending {
		m.outcome = o
		m.nakDelay = delay
	}
	m.mu.Unlock()
	m.once.Do(func() { close(m.settled) })
}

func (m *MockMessage) Data() []byte    { return m.data }
func (m *MockMessage) Subject() string { return m.subject }

func (m *MockMessage) Ack() error {
	m.settle(Acked, 0)
	return nil
}

func (m *MockMessage) Nak() error {
	m.settle(Naked, 0)
	return nil
}

func (m *MockMessage) NakWithDelay(delay time.Duration) error {
	m.settle(Naked, delay)
	return nil
}

func (m *MockMessage) Term() error {
	m.settle(Termed, 0)
	return nil
}

func (m *MockMessage) Metadata() (pubsub.MessageMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadata, nil
}

// Outcome returns the first settlement applied to the message.
func (m *MockMessage) Outcome() Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome
}

// NakDelay returns the delay passed to NakWithDelay.
func (m *MockMessage) NakDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nakDelay
}

// Wait blocks until the message is settled or timeout passes and returns the outcome.
func (m *MockMessage) Wait(timeout time.Duration) Outcome {
	select {
	case <-m.settled:
	case <-time.After(timeout):
	}
	return m.Outcome()
}

// MockConsumer hands out a channel fed by Send.
type MockConsumer struct {
	mu    sync.Mutex
	msgCh chan pubsub.Message
	err   error
}

// NewMockConsumer creates a new MockConsumer.
func NewMockConsumer() *MockConsumer {
	return &MockConsumer{msgCh: make(chan pubsub.Message, 100)}
}

// Subscribe returns the message channel. It is closed when ctx is done.
func (c *MockConsumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}

	in := c.msgCh
	out := make(chan pubsub.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-in:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Send queues msg for delivery.
func (c *MockConsumer) Send(msgs ...pubsub.Message) {
	for _, msg := range msgs {
		c.msgCh <- msg
	}
}

// SetError sets an error to return from Subscribe.
func (c *MockConsumer) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// MockProvider returns fixed publishers and consumers and records the options.
type MockProvider struct {
	mu            sync.Mutex
	Publisher     *MockPublisher
	Consumer      *MockConsumer
	closed        bool
	publisherOpts []pubsub.PublisherOptions
	consumerOpts  []pubsub.ConsumerOptions
}

// NewMockProvider creates a MockProvider with a fresh publisher and consumer.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Publisher: NewMockPublisher(),
		Consumer:  NewMockConsumer(),
	}
}

func (p *MockProvider) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publisherOpts = append(p.publisherOpts, opts)
	return p.Publisher, nil
}

func (p *MockProvider) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumerOpts = append(p.consumerOpts, opts)
	return p.Consumer, nil
}

func (p *MockProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// IsClosed returns whether Close was called.
func (p *MockProvider) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// ConsumerOpts returns all options passed to NewConsumer.
func (p *MockProvider) ConsumerOpts() []pubsub.ConsumerOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pubsub.ConsumerOptions(nil), p.consumerOpts...)
}

// PublisherOpts returns all options passed to NewPublisher.
func (p *MockProvider) PublisherOpts() []pubsub.PublisherOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pubsub.PublisherOptions(nil), p.publisherOpts...)
}
