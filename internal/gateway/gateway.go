package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/syntrixbase/inkwell/internal/core/flowcontrol"
	"github.com/syntrixbase/inkwell/internal/metrics"
	"github.com/syntrixbase/inkwell/internal/search"
	"github.com/syntrixbase/inkwell/pkg/model"
)

const breakerName = "search"

var tracer = otel.Tracer("github.com/syntrixbase/inkwell/internal/gateway")

// Gateway guards reads against the search index with a circuit breaker.
type Gateway struct {
	index   search.Index
	breaker *flowcontrol.CircuitBreaker
	logger  *slog.Logger
}

// New builds a gateway over index. opts.OnStateChange is chained after the
// gateway's own metrics and logging hook.
func New(index search.Index, opts flowcontrol.CircuitBreakerOptions, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		index:  index,
		logger: logger.With("component", "search-gateway"),
	}

	next := opts.OnStateChange
	opts.OnStateChange = func(from, to flowcontrol.State) {
		metrics.CircuitState.WithLabelValues(breakerName).Set(float64(to))
		g.logger.Warn("Search circuit breaker state changed", "from", from.String(), "to", to.String())
		if next != nil {
			next(from, to)
		}
	}
	g.breaker = flowcontrol.NewCircuitBreaker(opts)
	metrics.CircuitState.WithLabelValues(breakerName).Set(float64(flowcontrol.StateClosed))
	return g
}

// BreakerState reports the current breaker state.
func (g *Gateway) BreakerState() flowcontrol.State {
	return g.breaker.State()
}

// Ready checks the index without going through the breaker.
func (g *Gateway) Ready(ctx context.Context) error {
	return g.index.Ready(ctx)
}

// Search queries the index through the breaker. Any rejection, timeout or
// index error yields the fallback result together with ErrUpstreamUnavailable.
// The cause is flattened so an index-side deadline is not mistaken for
// caller cancellation.
// Cancellation by the caller is returned as ErrCanceled.
func (g *Gateway) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	q = q.Normalize()
	ctx, span := tracer.Start(ctx, "gateway.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("breaker.state", g.breaker.State().String()),
		attribute.Int("search.limit", q.Limit),
	)

	start := time.Now()
	docs, err := flowcontrol.Call(ctx, g.breaker, func(ctx context.Context) ([]model.SearchDocument, error) {
		return g.index.Search(ctx, q)
	})
	metrics.SearchLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, flowcontrol.ErrCallTimeout) {
			span.SetStatus(codes.Error, "canceled")
			return nil, model.WrapError(model.ErrCanceled, err, "search")
		}
		metrics.SearchRequests.WithLabelValues("fallback").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback")
		span.SetAttributes(attribute.Bool("search.fallback", true))

		if errors.Is(err, flowcontrol.ErrCircuitOpen) {
			g.logger.Debug("Search short-circuited", "error", err)
		} else {
			g.logger.Warn("Search failed, serving fallback", "error", err)
		}
		return &search.Result{Results: []model.SearchDocument{}, Unavailable: true, Message: search.UnavailableMessage},
			fmt.Errorf("search: %w: %v", model.ErrUpstreamUnavailable, err)
	}

	if docs == nil {
		docs = []model.SearchDocument{}
	}
	metrics.SearchRequests.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("search.results", len(docs)))
	span.SetStatus(codes.Ok, "")
	return &search.Result{Results: docs}, nil
}
