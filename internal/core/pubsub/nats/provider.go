package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

var errNotConnected = errors.New("NATS not connected, call Connect first")

var (
	_ pubsub.Provider    = (*Provider)(nil)
	_ pubsub.Connectable = (*Provider)(nil)
)

// Options tunes the NATS connection.
type Options struct {
	// Name identifies the connection in server monitoring.
	Name string
	// MaxReconnects is -1 for unlimited.
	MaxReconnects int
	ReconnectWait time.Duration
}

// Provider owns one NATS connection and hands out JetStream publishers and
// consumers on it.
type Provider struct {
	url    string
	opts   Options
	dial   dialFunc
	logger *slog.Logger

	mu sync.Mutex
	nc conn
	js JetStream
}

// NewProvider validates url; Connect does the dialing.
func NewProvider(url string, opts Options) (*Provider, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	return &Provider{
		url:    url,
		opts:   opts,
		dial:   dialJetStream,
		logger: slog.Default().With("component", "nats"),
	}, nil
}

func (p *Provider) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.logger.Warn("NATS disconnected", "url", p.url, "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if p.opts.Name != "" {
		opts = append(opts, nats.Name(p.opts.Name))
	}
	if p.opts.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(p.opts.MaxReconnects))
	}
	if p.opts.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(p.opts.ReconnectWait))
	}
	return opts
}

func (p *Provider) Connect(_ context.Context) error {
	nc, js, err := p.dial(p.url, p.natsOptions())
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	p.mu.Lock()
	p.nc, p.js = nc, js
	p.mu.Unlock()
	p.logger.Info("Connected to NATS", "url", p.url)
	return nil
}

func (p *Provider) jetStream() (JetStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.js == nil {
		return nil, errNotConnected
	}
	return p.js, nil
}

func (p *Provider) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	js, err := p.jetStream()
	if err != nil {
		return nil, err
	}
	return NewPublisher(js, opts)
}

func (p *Provider) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	js, err := p.jetStream()
	if err != nil {
		return nil, err
	}
	return NewConsumer(js, opts)
}

// Close is idempotent.
func (p *Provider) Close() error {
	p.mu.Lock()
	nc := p.nc
	p.nc, p.js = nil, nil
	p.mu.Unlock()
	if nc != nil {
		p.logger.Info("Closing NATS connection")
		nc.Close()
	}
	return nil
}
