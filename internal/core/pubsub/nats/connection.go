package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

// JetStream is the subset of jetstream.JetStream used by publishers and consumers.
type JetStream interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// conn is the part of *nats.Conn the provider owns.
type conn interface {
	Close()
}

// dialFunc opens a connection and its JetStream context.
type dialFunc func(url string, opts []nats.Option) (conn, JetStream, error)

func dialJetStream(url string, opts []nats.Option) (conn, JetStream, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, err
	}
	js, err := NewJetStream(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream: %w", err)
	}
	return nc, js, nil
}

// NewJetStream creates a JetStream context on nc.
func NewJetStream(nc *nats.Conn) (JetStream, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	return jetstream.New(nc)
}

// streamSubjects is the subject space a stream owns. Publishers and consumers
// must agree on it, otherwise CreateOrUpdateStream rewrites the stream.
func streamSubjects(streamName, subjectPrefix string) []string {
	if subjectPrefix != "" && subjectPrefix != streamName {
		return []string{subjectPrefix + ".>"}
	}
	return []string{streamName + ".>"}
}

func storageType(s pubsub.StorageType) jetstream.StorageType {
	if s == pubsub.FileStorage {
		return jetstream.FileStorage
	}
	return jetstream.MemoryStorage
}
