package pubsub

import "time"

// StorageType selects where a stream keeps its messages.
type StorageType int

const (
	MemoryStorage StorageType = iota
	FileStorage
)

// PublisherOptions configures a publisher and, for JetStream, the stream it
// creates on first use.
type PublisherOptions struct {
	StreamName    string
	SubjectPrefix string

	// RetryAttempts is how often a failed publish is retried. 0 disables retries.
	RetryAttempts int

	Storage StorageType
	// MaxAge bounds retention. 0 keeps messages until acked.
	MaxAge time.Duration

	// OnPublish observes every publish attempt.
	OnPublish func(subject string, err error, latency time.Duration)
}

// ConsumerOptions configures a durable consumer.
type ConsumerOptions struct {
	StreamName   string
	ConsumerName string

	// FilterSubject defaults to "<StreamName>.>".
	FilterSubject string

	ChannelBufSize int
	Storage        StorageType

	// MaxDeliver caps deliveries per message. 0 means unlimited.
	MaxDeliver int
	// AckWait is how long an unsettled delivery stays invisible.
	AckWait time.Duration
}

// DefaultConsumerOptions returns the buffer size and ack wait used when a
// caller leaves them unset.
func DefaultConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		ChannelBufSize: 100,
		AckWait:        30 * time.Second,
	}
}
