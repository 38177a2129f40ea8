// Package clientcache lazily builds a search-index client from a secret and
// keeps it for the life of the process.
package clientcache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/syntrixbase/inkwell/internal/secrets"
	"github.com/syntrixbase/inkwell/pkg/model"
	"golang.org/x/sync/singleflight"
)

// DefaultBuildTimeout bounds one shared secret fetch and client build.
const DefaultBuildTimeout = 15 * time.Second

// Option configures a Cache.
type Option func(*options)

type options struct {
	buildTimeout time.Duration
}

// WithBuildTimeout overrides DefaultBuildTimeout.
func WithBuildTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.buildTimeout = d
		}
	}
}

// Factory builds a connected client from credentials.
type Factory[T any] func(ctx context.Context, creds secrets.Credentials) (T, error)

// Cache memoizes the client built by Factory. Concurrent first calls share a
// single secret fetch and build. Failures are never cached.
type Cache[T any] struct {
	secrets secrets.Provider
	ref     string
	factory Factory[T]
	logger  *slog.Logger
	opts    options

	group singleflight.Group

	mu         sync.Mutex
	client     T
	ready      bool
	generation uint64
}

func New[T any](provider secrets.Provider, ref string, factory Factory[T], logger *slog.Logger, opts ...Option) *Cache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{buildTimeout: DefaultBuildTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		secrets: provider,
		ref:     ref,
		factory: factory,
		logger:  logger.With("component", "clientcache"),
		opts:    o,
	}
}

// Get returns the memoized client, building it on first use. The build is
// shared by every waiting caller, so it runs detached from ctx's
// cancellation under the cache's own timeout; ctx only bounds this
// caller's wait.
func (c *Cache[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	if c.ready {
		client := c.client
		c.mu.Unlock()
		return client, nil
	}
	gen := c.generation
	c.mu.Unlock()

	ch := c.group.DoChan(c.ref, func() (interface{}, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.buildTimeout)
		defer cancel()
		return c.build(buildCtx, gen)
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Cache[T]) build(ctx context.Context, gen uint64) (T, error) {
	var zero T

	c.mu.Lock()
	if c.ready {
		client := c.client
		c.mu.Unlock()
		return client, nil
	}
	c.mu.Unlock()

	enclave, err := c.secrets.GetSecret(ctx, c.ref)
	if err != nil {
		c.logger.Error("Failed to fetch search credentials", "ref", c.ref, "error", err)
		return zero, model.WrapError(model.ErrSecretAccess, err, "fetch secret %s", c.ref)
	}
	creds, err := secrets.OpenCredentials(enclave)
	if err != nil {
		return zero, model.WrapError(model.ErrSecretAccess, err, "open secret %s", c.ref)
	}

	client, err := c.factory(ctx, creds)
	if err != nil {
		c.logger.Error("Failed to build search client", "ref", c.ref, "error", err)
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A Reset during the build invalidates this client for later callers.
	if c.generation == gen {
		c.client = client
		c.ready = true
		c.logger.Info("Search client initialized", "ref", c.ref)
	}
	return client, nil
}

// Reset drops the memoized client so the next Get fetches fresh credentials.
func (c *Cache[T]) Reset() {
	c.mu.Lock()
	var zero T
	c.client = zero
	c.ready = false
	c.generation++
	c.mu.Unlock()
	c.group.Forget(c.ref)
}
