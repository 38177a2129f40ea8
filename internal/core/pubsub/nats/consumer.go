package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

// jetStreamConsumer implements pubsub.Consumer using a durable pull consumer.
type jetStreamConsumer struct {
	js   JetStream
	opts pubsub.ConsumerOptions
}

// NewConsumer creates a new Consumer backed by NATS JetStream.
func NewConsumer(js JetStream, opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}
	if opts.StreamName == "" {
		return nil, fmt.Errorf("stream name is required")
	}

	defaults := pubsub.DefaultConsumerOptions()
	if opts.ChannelBufSize <= 0 {
		opts.ChannelBufSize = defaults.ChannelBufSize
	}
	if opts.AckWait <= 0 {
		opts.AckWait = defaults.AckWait
	}
	if opts.ConsumerName == "" {
		opts.ConsumerName = "consumer"
	}

	return &jetStreamConsumer{js: js, opts: opts}, nil
}

func (c *jetStreamConsumer) consumerConfig(filterSubject string) jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		Durable:       c.opts.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: filterSubject,
		AckWait:       c.opts.AckWait,
	}
	if c.opts.MaxDeliver > 0 {
		cfg.MaxDeliver = c.opts.MaxDeliver
	}
	return cfg
}

// Subscribe starts consuming messages and returns a channel. The channel is
// closed after ctx is done; messages arriving during shutdown are Nak'ed.
func (c *jetStreamConsumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	filterSubject := c.opts.FilterSubject
	if filterSubject == "" {
		filterSubject = c.opts.StreamName + ".>"
	}

	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.opts.StreamName,
		Subjects: streamSubjects(c.opts.StreamName, ""),
		Storage:  storageType(c.opts.Storage),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.opts.StreamName, c.consumerConfig(filterSubject))
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	msgCh := make(chan pubsub.Message, c.opts.ChannelBufSize)
	var closing atomic.Bool

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if closing.Load() {
			_ = msg.Nak()
			return
		}
		select {
		case msgCh <- WrapMessage(msg):
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		close(msgCh)
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	slog.Info("pubsub consumer subscribed", "stream", c.opts.StreamName, "consumer", c.opts.ConsumerName, "filter", filterSubject)

	go func() {
		<-ctx.Done()
		closing.Store(true)
		// Stop waits for the in-progress handler, so closing msgCh afterwards is safe.
		cc.Stop()
		<-cc.Closed()
		close(msgCh)
		slog.Info("pubsub consumer stopped", "stream", c.opts.StreamName, "consumer", c.opts.ConsumerName)
	}()

	return msgCh, nil
}
