// Package pubsub is the queue abstraction under the change, upsert and
// dead-letter streams. NATS JetStream backs it in distributed mode and the
// in-process engine in standalone mode and tests.
//
// Subjects are "<stream>.<token>": change events use the partition key as the
// token and upsert messages the entity id, both passed through SubjectToken.
package pubsub

import (
	"context"
	"io"
	"time"
)

// Message is one delivery. Exactly one of Ack, Nak, NakWithDelay or Term
// should be called for it.
type Message interface {
	Data() []byte
	Subject() string

	Ack() error
	// Nak asks for immediate redelivery.
	Nak() error
	NakWithDelay(delay time.Duration) error
	// Term drops the message for good.
	Term() error

	Metadata() (MessageMetadata, error)
}

// MessageMetadata describes a delivery. NumDelivered starts at 1.
type MessageMetadata struct {
	NumDelivered uint64
	Timestamp    time.Time
	Subject      string
	Stream       string
	Consumer     string
}

// Publisher writes to one stream. Subjects passed to Publish are relative to
// the publisher's SubjectPrefix.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Consumer reads one durable consumer. The channel returned by Subscribe is
// closed once ctx is done; unsettled messages are redelivered later.
type Consumer interface {
	Subscribe(ctx context.Context) (<-chan Message, error)
}

// Provider creates publishers and consumers on one broker.
type Provider interface {
	io.Closer

	NewPublisher(opts PublisherOptions) (Publisher, error)
	NewConsumer(opts ConsumerOptions) (Consumer, error)
}

// Connectable is implemented by providers that dial a broker before use.
type Connectable interface {
	Connect(ctx context.Context) error
}
