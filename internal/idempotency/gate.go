// Package idempotency rejects replays of mutating HTTP requests. The first
// request carrying a given key claims a token in the store; any other request
// with that key inside the TTL is answered without reaching the handler.
package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/storage"
	"github.com/syntrixbase/inkwell/internal/metrics"
	"github.com/syntrixbase/inkwell/internal/server"
	"github.com/syntrixbase/inkwell/pkg/model"
)

// ReplayedHeader is set on responses to duplicate submissions.
const ReplayedHeader = "Idempotent-Replayed"

// AlreadyProcessedMessage is the body message returned for a replay.
const AlreadyProcessedMessage = "Request already processed."

// Outcome is the result of claiming a key.
type Outcome int

const (
	// OutcomeFirst means the key was claimed by this call.
	OutcomeFirst Outcome = iota
	// OutcomeDuplicate means a live token already holds the key.
	OutcomeDuplicate
)

func (o Outcome) String() string {
	if o == OutcomeDuplicate {
		return "duplicate"
	}
	return "first"
}

// Gate claims idempotency keys in a TokenStore.
type Gate struct {
	tokens storage.TokenStore
	ttl    time.Duration
	header string
	logger *slog.Logger
}

// New creates a Gate. Zero config values fall back to defaults.
func New(tokens storage.TokenStore, cfg Config, logger *slog.Logger) *Gate {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		tokens: tokens,
		ttl:    cfg.TTL,
		header: cfg.Header,
		logger: logger.With("component", "idempotency"),
	}
}

// Begin claims key. Exactly one caller per live key sees OutcomeFirst.
func (g *Gate) Begin(ctx context.Context, key string) (Outcome, error) {
	if strings.TrimSpace(key) == "" {
		return OutcomeFirst, model.Validationf("idempotency key is required")
	}
	created, err := g.tokens.Create(ctx, key, g.ttl)
	if err != nil {
		if errors.Is(err, model.ErrTransient) || model.IsCanceled(err) {
			return OutcomeFirst, err
		}
		return OutcomeFirst, model.WrapError(model.ErrTransient, err, "claim idempotency key")
	}
	if !created {
		return OutcomeDuplicate, nil
	}
	return OutcomeFirst, nil
}

// Middleware guards mutating methods. Safe methods pass through.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		logger := server.LoggerFrom(r.Context(), g.logger)
		key := strings.TrimSpace(r.Header.Get(g.header))
		if key == "" {
			metrics.IdempotencyRequests.WithLabelValues("missing_key").Inc()
			server.WriteError(w, http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", g.header+" header is required")
			return
		}

		outcome, err := g.Begin(r.Context(), TokenKey(r.Method, r.URL.Path, key))
		if err != nil {
			metrics.IdempotencyRequests.WithLabelValues("error").Inc()
			logger.Warn("Idempotency store unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
			server.WriteError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "Idempotency check unavailable, retry later")
			return
		}
		metrics.IdempotencyRequests.WithLabelValues(outcome.String()).Inc()

		if outcome == OutcomeDuplicate {
			logger.Debug("Duplicate request suppressed", "method", r.Method, "path", r.URL.Path)
			w.Header().Set(ReplayedHeader, "true")
			server.WriteJSON(w, http.StatusOK, map[string]string{"message": AlreadyProcessedMessage})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenKey scopes a client key to one endpoint.
func TokenKey(method, path, key string) string {
	return method + " " + path + " " + key
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
