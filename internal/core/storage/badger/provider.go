// Package badger implements the record, token and checkpoint stores on an
// embedded Badger database for standalone deployments and tests.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/syntrixbase/inkwell/internal/core/storage/types"
)

const (
	recordPrefix     = "rec/"
	tokenPrefix      = "tok/"
	checkpointPrefix = "chk/"
	changeLogPrefix  = "log/"
	changeSeqKey     = "seq/changes"

	gcDiscardRatio = 0.5
)

// Config configures the embedded database.
type Config struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
	GCInterval time.Duration

	// ChangeLogRetention bounds how long change-log entries survive for Watch resumption.
	ChangeLogRetention time.Duration

	Logger *slog.Logger
}

// Provider owns the Badger database and the stores built on it.
type Provider struct {
	db          *badger.DB
	records     *recordStore
	tokens      *tokenStore
	checkpoints *checkpointStore

	gcStop chan struct{}
	gcDone chan struct{}
	once   sync.Once
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Provider, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger: dir is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	records, err := newRecordStore(db, cfg.ChangeLogRetention)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	p := &Provider{
		db:          db,
		records:     records,
		tokens:      &tokenStore{db: db},
		checkpoints: &checkpointStore{db: db},
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		p.gcStop = make(chan struct{})
		p.gcDone = make(chan struct{})
		go p.runGC(cfg.GCInterval, cfg.Logger)
	}
	return p, nil
}

// OpenInMemory opens a throwaway database.
func OpenInMemory() (*Provider, error) {
	return Open(Config{InMemory: true})
}

func (p *Provider) runGC(interval time.Duration, logger *slog.Logger) {
	defer close(p.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.gcStop:
			return
		case <-ticker.C:
			err := p.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

// Records returns the record store.
func (p *Provider) Records() types.RecordStore { return p.records }

// Tokens returns the idempotency token store.
func (p *Provider) Tokens() types.TokenStore { return p.tokens }

// Checkpoints returns the checkpoint store.
func (p *Provider) Checkpoints() types.CheckpointStore { return p.checkpoints }

// Close stops GC, releases the change sequence and closes the database.
func (p *Provider) Close(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		if p.gcStop != nil {
			close(p.gcStop)
			<-p.gcDone
		}
		if relErr := p.records.release(); relErr != nil {
			err = relErr
		}
		if closeErr := p.db.Close(); closeErr != nil {
			err = closeErr
		}
	})
	return err
}

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
