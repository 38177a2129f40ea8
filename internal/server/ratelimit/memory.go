package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// memoryLimiter keeps one token bucket per key.
type memoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	config  Config
	now     func() time.Time

	cleanupT *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter creates an in-memory limiter that refills Requests tokens
// per Window.
func NewMemoryLimiter(cfg Config) Limiter {
	return newMemoryLimiter(cfg, time.Now)
}

func newMemoryLimiter(cfg Config, now func() time.Time) *memoryLimiter {
	if cfg.Requests <= 0 {
		cfg.Requests = DefaultConfig().Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Requests
	}

	l := &memoryLimiter{
		clients: make(map[string]*client),
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		burst:   burst,
		config:  cfg,
		now:     now,
		stopCh:  make(chan struct{}),
	}
	l.cleanupT = time.NewTicker(cfg.Window * 2)
	go l.cleanup()
	return l
}

func (l *memoryLimiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}

	now := l.now()
	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

func (l *memoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, key)
}

func (l *memoryLimiter) cleanup() {
	for {
		select {
		case <-l.cleanupT.C:
			l.cleanupStale()
		case <-l.stopCh:
			l.cleanupT.Stop()
			return
		}
	}
}

// cleanupStale drops clients idle for two windows; their buckets are full again anyway.
func (l *memoryLimiter) cleanupStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.config.Window * 2
	now := l.now()
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > threshold {
			delete(l.clients, key)
		}
	}
}

func (l *memoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop stops the cleanup goroutine.
func (l *memoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Stoppable extends Limiter with a Stop method for cleanup.
type Stoppable interface {
	Limiter
	Stop()
}

var _ Stoppable = (*memoryLimiter)(nil)
