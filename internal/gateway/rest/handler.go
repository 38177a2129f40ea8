package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/flowcontrol"
	"github.com/syntrixbase/inkwell/internal/core/storage"
	"github.com/syntrixbase/inkwell/internal/gateway/config"
	"github.com/syntrixbase/inkwell/internal/search"
	"github.com/syntrixbase/inkwell/internal/server"
	"github.com/syntrixbase/inkwell/pkg/model"
)

// Searcher is the breaker-guarded search path.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
	BreakerState() flowcontrol.State
	Ready(ctx context.Context) error
}

// Submitter enqueues upsert messages.
type Submitter interface {
	Submit(ctx context.Context, msg model.UpsertMessage) error
}

// Gate guards mutating routes against replays.
type Gate interface {
	Middleware(next http.Handler) http.Handler
}

// Error codes
const (
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeRequestTooLarge   = "REQUEST_TOO_LARGE"
	ErrCodeSearchUnavailable = "SEARCH_UNAVAILABLE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Health check timeout
const healthTimeout = 5 * time.Second

type Handler struct {
	records   storage.RecordStore
	gate      Gate
	submitter Submitter
	searcher  Searcher
	cfg       config.GatewayConfig
	logger    *slog.Logger
}

// HandlerOption configures optional Handler collaborators.
type HandlerOption func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates the REST handler. Every collaborator is required.
func NewHandler(records storage.RecordStore, gate Gate, submitter Submitter, searcher Searcher, cfg config.GatewayConfig, opts ...HandlerOption) (*Handler, error) {
	switch {
	case records == nil:
		return nil, errors.New("rest: record store is required")
	case gate == nil:
		return nil, errors.New("rest: idempotency gate is required")
	case submitter == nil:
		return nil, errors.New("rest: upsert submitter is required")
	case searcher == nil:
		return nil, errors.New("rest: searcher is required")
	}
	cfg.ApplyDefaults()

	h := &Handler{
		records:   records,
		gate:      gate,
		submitter: submitter,
		searcher:  searcher,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "rest")
	return h, nil
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	timeout := h.cfg.RequestTimeout
	limit := h.cfg.MaxBodySize

	// Artists
	mux.HandleFunc("POST /api/v1/artists", withTimeout(h.gated(maxBodySize(h.handleCreateArtist, limit)), timeout))
	mux.HandleFunc("GET /api/v1/artists/{id}", withTimeout(h.handleGetArtist, timeout))
	mux.HandleFunc("PUT /api/v1/artists/{id}", withTimeout(h.gated(maxBodySize(h.handleReplaceArtist, limit)), timeout))
	mux.HandleFunc("DELETE /api/v1/artists/{id}", withTimeout(h.gated(h.handleDeleteArtist), timeout))

	// Run ingest
	mux.HandleFunc("POST /api/v1/runs/{runId}/updates", withTimeout(h.gated(maxBodySize(h.handleRunUpdates, limit)), timeout))

	// Search
	mux.HandleFunc("GET /api/v1/search", withTimeout(h.handleSearch, timeout))

	// Health Check (minimal timeout)
	mux.HandleFunc("GET /health", withTimeout(h.handleHealth, healthTimeout))
}

// gated runs next behind the idempotency gate.
func (h *Handler) gated(next http.HandlerFunc) http.HandlerFunc {
	return h.gate.Middleware(next).ServeHTTP
}

// writeInternalError writes an internal error response, but first checks if the error
// is due to client cancellation (returns 499 instead of 500).
func (h *Handler) writeInternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if model.IsCanceled(err) {
		w.WriteHeader(499) // Client Closed Request
		return
	}
	server.LoggerFrom(r.Context(), h.logger).Error(message, "error", err)
	server.WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// writeStorageError maps record store errors to responses.
func (h *Handler) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		server.WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Artist not found")
	case errors.Is(err, model.ErrValidation):
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		h.writeInternalError(w, r, err, "Internal storage error")
	}
}

// writeDecodeError answers a body that could not be decoded or validated.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	var verrs ValidationErrors
	switch {
	case errors.As(err, &tooLarge):
		server.WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "Request body too large")
	case errors.As(err, &verrs):
		server.WriteJSON(w, http.StatusBadRequest, validationResponse{
			Code:    ErrCodeBadRequest,
			Message: verrs.Error(),
			Errors:  verrs.Errors,
		})
	default:
		server.WriteError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	}
}

type validationResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors"`
}

// maxBodySize wraps a handler with request body size limiting
func maxBodySize(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next(w, r)
	}
}

// withTimeout wraps a handler with a context timeout
// If the handler takes longer than the timeout, the context is cancelled
func withTimeout(next http.HandlerFunc, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}
