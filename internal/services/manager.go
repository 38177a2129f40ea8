// Package services assembles the process: storage, pubsub, the search
// index, the HTTP gateway and the background workers.
package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/syntrixbase/inkwell/internal/config"
	"github.com/syntrixbase/inkwell/internal/core/pubsub"
	"github.com/syntrixbase/inkwell/internal/core/storage"
	"github.com/syntrixbase/inkwell/internal/gateway"
	"github.com/syntrixbase/inkwell/internal/puller"
	"github.com/syntrixbase/inkwell/internal/search"
	"github.com/syntrixbase/inkwell/internal/server"
	"github.com/syntrixbase/inkwell/internal/syncer"
	"github.com/syntrixbase/inkwell/internal/upsert"
)

// Options selects which roles this process runs. Standalone mode runs all
// of them regardless.
type Options struct {
	RunAPI    bool
	RunPuller bool
	RunSyncer bool
	RunUpsert bool
}

// AllRoles runs every role in one process.
func AllRoles() Options {
	return Options{RunAPI: true, RunPuller: true, RunSyncer: true, RunUpsert: true}
}

// runner is a background loop that returns once ctx is canceled.
type runner interface {
	Run(ctx context.Context) error
}

type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	storageFactory storage.StorageFactory
	pubsubProvider pubsub.Provider
	index          search.Index

	server  server.Service
	gateway *gateway.Gateway

	puller        *puller.Puller
	syncer        *syncer.Worker
	upserts       *upsert.Consumer
	publishers    []pubsub.Publisher
	runners       []runner
	runnerNames   []string
	serverStarted bool

	wg sync.WaitGroup
}

func NewManager(cfg *config.Config, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Deployment.Mode.IsStandalone() {
		opts = AllRoles()
	}
	return &Manager{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With("component", "manager"),
	}
}

// Gateway returns the search gateway, or nil when the API role is off.
func (m *Manager) Gateway() *gateway.Gateway {
	return m.gateway
}

// Server returns the HTTP service, or nil when the API role is off.
func (m *Manager) Server() server.Service {
	return m.server
}
