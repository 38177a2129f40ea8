package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

type publisher struct {
	js      JetStream
	opts    pubsub.PublisherOptions
	pubOpts []jetstream.PublishOpt
}

// NewPublisher returns a JetStream publisher, creating or updating
// opts.StreamName first when it is set.
func NewPublisher(js JetStream, opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}
	if opts.StreamName != "" {
		stream := jetstream.StreamConfig{
			Name:     opts.StreamName,
			Subjects: streamSubjects(opts.StreamName, opts.SubjectPrefix),
			Storage:  storageType(opts.Storage),
			MaxAge:   opts.MaxAge,
		}
		if _, err := js.CreateOrUpdateStream(context.Background(), stream); err != nil {
			return nil, fmt.Errorf("failed to ensure stream: %w", err)
		}
	}

	p := &publisher{js: js, opts: opts}
	if opts.RetryAttempts > 0 {
		p.pubOpts = append(p.pubOpts, jetstream.WithRetryAttempts(opts.RetryAttempts))
	}
	return p, nil
}

// Publish returns nil only once the broker has acked the message.
func (p *publisher) Publish(ctx context.Context, subject string, data []byte) error {
	if p.opts.SubjectPrefix != "" {
		subject = p.opts.SubjectPrefix + "." + subject
	}

	start := time.Now()
	_, err := p.js.Publish(ctx, subject, data, p.pubOpts...)
	if p.opts.OnPublish != nil {
		p.opts.OnPublish(subject, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close is a no-op; the provider owns the connection.
func (p *publisher) Close() error { return nil }
