// Package memory is the in-process queue used in standalone mode and tests.
// Messages published before any subscriber exists are kept in a bounded
// backlog and replayed to the first matching subscriber.
package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

var (
	ErrEngineClosed = errors.New("engine is closed")

	// ErrPatternSubscribed means a filter already has a consumer; the engine
	// does not load-balance between consumers.
	ErrPatternSubscribed = errors.New("pattern already has a subscriber")
)

var _ pubsub.Provider = (*Engine)(nil)

// Engine is a pubsub.Provider backed by one in-process broker.
type Engine struct {
	broker *broker
}

func New() *Engine {
	return &Engine{broker: newBroker()}
}

func (e *Engine) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &publisher{broker: e.broker, opts: opts}, nil
}

func (e *Engine) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &consumer{broker: e.broker, opts: opts}, nil
}

// Close stops every subscription and drops the backlog.
func (e *Engine) Close() error {
	return e.broker.close()
}

func (e *Engine) IsClosed() bool {
	return e.broker.isClosed()
}

type publisher struct {
	broker *broker
	opts   pubsub.PublisherOptions
	closed atomic.Bool
}

func (p *publisher) Publish(ctx context.Context, subject string, data []byte) error {
	if p.closed.Load() {
		return ErrEngineClosed
	}
	if p.opts.SubjectPrefix != "" {
		subject = p.opts.SubjectPrefix + "." + subject
	}

	start := time.Now()
	err := p.broker.publish(ctx, subject, data)
	if p.opts.OnPublish != nil {
		p.opts.OnPublish(subject, err, time.Since(start))
	}
	return err
}

func (p *publisher) Close() error {
	p.closed.Store(true)
	return nil
}

type consumer struct {
	broker *broker
	opts   pubsub.ConsumerOptions
}

// filter is the subject pattern this consumer reads: FilterSubject, else
// everything in its stream, else everything.
func (c *consumer) filter() string {
	switch {
	case c.opts.FilterSubject != "":
		return c.opts.FilterSubject
	case c.opts.StreamName != "":
		return c.opts.StreamName + ".>"
	default:
		return ">"
	}
}

// Subscribe delivers until ctx ends, then closes the channel.
func (c *consumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	if c.broker.isClosed() {
		return nil, ErrEngineClosed
	}
	bufSize := c.opts.ChannelBufSize
	if bufSize <= 0 {
		bufSize = pubsub.DefaultConsumerOptions().ChannelBufSize
	}

	ch, unsubscribe, err := c.broker.subscribe(ctx, c.filter(), c.opts, bufSize)
	if err != nil {
		return nil, err
	}
	context.AfterFunc(ctx, unsubscribe)
	return ch, nil
}
