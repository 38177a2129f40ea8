package services

import (
	"context"
	"fmt"

	"github.com/syntrixbase/inkwell/internal/config"
	"github.com/syntrixbase/inkwell/internal/core/flowcontrol"
	"github.com/syntrixbase/inkwell/internal/core/pubsub"
	"github.com/syntrixbase/inkwell/internal/core/pubsub/memory"
	"github.com/syntrixbase/inkwell/internal/core/pubsub/nats"
	"github.com/syntrixbase/inkwell/internal/core/storage"
	"github.com/syntrixbase/inkwell/internal/gateway"
	"github.com/syntrixbase/inkwell/internal/gateway/rest"
	"github.com/syntrixbase/inkwell/internal/idempotency"
	"github.com/syntrixbase/inkwell/internal/puller"
	"github.com/syntrixbase/inkwell/internal/search"
	"github.com/syntrixbase/inkwell/internal/search/clientcache"
	searchconfig "github.com/syntrixbase/inkwell/internal/search/config"
	searchmemory "github.com/syntrixbase/inkwell/internal/search/memory"
	searchweaviate "github.com/syntrixbase/inkwell/internal/search/weaviate"
	"github.com/syntrixbase/inkwell/internal/secrets"
	"github.com/syntrixbase/inkwell/internal/server"
	"github.com/syntrixbase/inkwell/internal/syncer"
	"github.com/syntrixbase/inkwell/internal/upsert"
)

// Dependency injection for testing
var storageFactoryFactory = func(ctx context.Context, cfg *config.Config) (storage.StorageFactory, error) {
	return storage.NewFactory(ctx, cfg.Deployment.Mode, cfg.Storage)
}

var pubsubProviderFactory = func(ctx context.Context, cfg *config.Config) (pubsub.Provider, error) {
	if cfg.Deployment.Mode.IsStandalone() {
		return memory.New(), nil
	}
	p, err := nats.NewProvider(cfg.PubSub.NATS.URL, nats.Options{
		Name:          cfg.PubSub.NATS.Name,
		MaxReconnects: cfg.PubSub.NATS.MaxReconnects,
		ReconnectWait: cfg.PubSub.NATS.ReconnectWait,
	})
	if err != nil {
		return nil, err
	}
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

var searchIndexFactory = func(cfg *config.Config, m *Manager) (search.Index, error) {
	if cfg.Deployment.Mode.IsStandalone() || cfg.Search.Backend == searchconfig.BackendMemory {
		return searchmemory.New(), nil
	}
	provider, err := secrets.NewProvider(cfg.Search.Secrets)
	if err != nil {
		return nil, err
	}
	clients := clientcache.New(provider, cfg.Search.SecretRef, searchweaviate.NewClientFactory(cfg.Search.Weaviate), m.logger)
	return searchweaviate.New(clients, cfg.Search.Weaviate.ClassName, m.logger), nil
}

// Init connects the backends the selected roles need and builds each role.
// Nothing is started until Start.
func (m *Manager) Init(ctx context.Context) error {
	mode := m.cfg.Deployment.Mode
	m.logger.Info("Initializing services", "mode", mode,
		"api", m.opts.RunAPI, "puller", m.opts.RunPuller, "syncer", m.opts.RunSyncer, "upsert", m.opts.RunUpsert)

	if err := m.initBackends(ctx); err != nil {
		return err
	}

	if m.opts.RunAPI {
		if err := m.initAPIServer(); err != nil {
			return err
		}
	}
	if m.opts.RunPuller {
		if err := m.initPuller(); err != nil {
			return err
		}
	}
	if m.opts.RunSyncer {
		if err := m.initSyncer(); err != nil {
			return err
		}
	}
	if m.opts.RunUpsert {
		if err := m.initUpsertConsumer(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) initBackends(ctx context.Context) error {
	o := m.opts
	if o.RunAPI || o.RunPuller || o.RunUpsert {
		sf, err := storageFactoryFactory(ctx, m.cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		m.storageFactory = sf
		m.logger.Info("Connected to storage successfully")
	}

	if o.RunAPI || o.RunPuller || o.RunSyncer || o.RunUpsert {
		p, err := pubsubProviderFactory(ctx, m.cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize pubsub: %w", err)
		}
		m.pubsubProvider = p
	}

	if o.RunAPI || o.RunSyncer {
		idx, err := searchIndexFactory(m.cfg, m)
		if err != nil {
			return fmt.Errorf("failed to initialize search index: %w", err)
		}
		m.index = idx
	}
	return nil
}

func (m *Manager) newPublisher(stream string) (pubsub.Publisher, error) {
	pub, err := m.pubsubProvider.NewPublisher(pubsub.PublisherOptions{
		StreamName:    stream,
		SubjectPrefix: stream,
		Storage:       m.cfg.PubSub.StorageType(),
		MaxAge:        m.cfg.PubSub.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s publisher: %w", stream, err)
	}
	m.publishers = append(m.publishers, pub)
	return pub, nil
}

func (m *Manager) newConsumer(stream, name string, bufSize int) (pubsub.Consumer, error) {
	opts := pubsub.DefaultConsumerOptions()
	opts.StreamName = stream
	opts.ConsumerName = name
	opts.FilterSubject = stream + ".>"
	opts.Storage = m.cfg.PubSub.StorageType()
	opts.AckWait = m.cfg.PubSub.AckWait
	if bufSize > 0 {
		opts.ChannelBufSize = bufSize
	}
	c, err := m.pubsubProvider.NewConsumer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s consumer: %w", name, err)
	}
	return c, nil
}

func (m *Manager) initAPIServer() error {
	b := m.cfg.Search.Breaker
	m.gateway = gateway.New(m.index, flowcontrol.CircuitBreakerOptions{
		WindowSize:   b.WindowSize,
		MinRequests:  b.MinRequests,
		FailureRatio: b.FailureRatio,
		CallTimeout:  b.CallTimeout,
		ResetTimeout: b.ResetTimeout,
	}, m.logger)

	pub, err := m.newPublisher(m.cfg.Upsert.StreamName)
	if err != nil {
		return err
	}

	gate := idempotency.New(m.storageFactory.Tokens(), m.cfg.Idempotency, m.logger)
	handler, err := rest.NewHandler(
		m.storageFactory.Records(),
		gate,
		upsert.NewSubmitter(pub),
		m.gateway,
		m.cfg.Gateway,
		rest.WithLogger(m.logger),
	)
	if err != nil {
		return err
	}

	m.server = server.New(m.cfg.Server, m.logger)
	gateway.NewServer(handler).RegisterRoutes(m.server.HTTPMux())
	return nil
}

func (m *Manager) initPuller() error {
	pub, err := m.newPublisher(m.cfg.Puller.StreamName)
	if err != nil {
		return err
	}
	m.puller = puller.New(m.storageFactory.Records(), m.storageFactory.Checkpoints(), pub, m.cfg.Puller, m.logger)
	m.addRunner("puller", m.puller)
	return nil
}

func (m *Manager) initSyncer() error {
	c, err := m.newConsumer(m.cfg.Syncer.StreamName, m.cfg.Syncer.ConsumerName, m.cfg.Syncer.BatchSize*2)
	if err != nil {
		return err
	}
	m.syncer = syncer.NewWorker(m.index, c, m.cfg.Syncer, m.logger)
	m.addRunner("syncer", m.syncer)
	return nil
}

func (m *Manager) initUpsertConsumer() error {
	u := m.cfg.Upsert
	c, err := m.newConsumer(u.StreamName, u.ConsumerName, u.ChannelBufSize)
	if err != nil {
		return err
	}
	dlq, err := m.newPublisher(u.DeadLetterStream)
	if err != nil {
		return err
	}
	pipeline := upsert.NewPipeline(m.storageFactory.Records(), u, m.logger)
	m.upserts = upsert.NewConsumer(c, dlq, pipeline, u, m.logger)
	m.addRunner("upsert", m.upserts)
	return nil
}

func (m *Manager) addRunner(name string, r runner) {
	m.runners = append(m.runners, r)
	m.runnerNames = append(m.runnerNames, name)
}
