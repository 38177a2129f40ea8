package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/inkwell/internal/core/storage/badger"
	"github.com/syntrixbase/inkwell/pkg/model"
)

func newBadgerGate(t *testing.T, ttl time.Duration) *Gate {
	t.Helper()
	p, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return New(p.Tokens(), Config{TTL: ttl}, nil)
}

type failingTokens struct{ err error }

func (f failingTokens) Create(context.Context, string, time.Duration) (bool, error) {
	return false, f.err
}
func (f failingTokens) Close(context.Context) error { return nil }

func countingHandler(calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	})
}

func gatedRequest(method, path, key string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set(DefaultHeader, key)
	}
	return req
}

func TestGate_Begin(t *testing.T) {
	gate := newBadgerGate(t, time.Minute)
	ctx := context.Background()

	outcome, err := gate.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFirst, outcome)

	outcome, err = gate.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	outcome, err = gate.Begin(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFirst, outcome)
}

func TestGate_Begin_EmptyKey(t *testing.T) {
	gate := newBadgerGate(t, time.Minute)
	_, err := gate.Begin(context.Background(), "  ")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestGate_Begin_StoreFailure(t *testing.T) {
	gate := New(failingTokens{err: errors.New("disk gone")}, Config{}, nil)
	_, err := gate.Begin(context.Background(), "k1")
	assert.ErrorIs(t, err, model.ErrTransient)
}

func TestGate_Begin_ExpiredKeyIsNew(t *testing.T) {
	gate := newBadgerGate(t, 50*time.Millisecond)
	ctx := context.Background()

	outcome, err := gate.Begin(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, OutcomeFirst, outcome)

	time.Sleep(80 * time.Millisecond)

	outcome, err = gate.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFirst, outcome)
}

func TestGate_Begin_ConcurrentSingleWinner(t *testing.T) {
	gate := newBadgerGate(t, time.Minute)

	var first atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := gate.Begin(context.Background(), "race")
			if err == nil && outcome == OutcomeFirst {
				first.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), first.Load())
}

func TestMiddleware_FirstThenDuplicate(t *testing.T) {
	gate := newBadgerGate(t, time.Minute)
	var calls atomic.Int32
	h := gate.Middleware(countingHandler(&calls))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, gatedRequest(http.MethodPost, "/api/v1/artists", "abc"))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get(ReplayedHeader))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, gatedRequest(http.MethodPost, "/api/v1/artists", "abc"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(ReplayedHeader))
	assert.JSONEq(t, `{"message":"Request already processed."}`, w.Body.String())

	assert.Equal(t, int32(1), calls.Load())
}

func TestMiddleware_MissingKey(t *testing.T) {
	gate := newBadgerGate(t, time.Minute)
	var calls atomic.Int32
	h := gate.Middleware(countingHandler(&calls))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, gatedRequest(http.MethodPut, "/api/v1/artists/1", ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_IDEMPOTENCY_KEY")
	assert.Zero(t, calls.Load())
}

func TestMiddleware_SafeMethodsPassThrough(t *testing.T) {
	gate := New(failingTokens{err: errors.New("unused")}, Config{}, nil)
	var calls atomic.Int32
	h := gate.Middleware(countingHandler(&calls))

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, gatedRequest(method, "/api/v1/artists/1", ""))
		assert.Equal(t, http.StatusCreated, w.Code, method)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestMiddleware_KeyScopedToEndpoint(t *testing.T) {
	gate := newBadgerGate(t, time.Minute)
	var calls atomic.Int32
	h := gate.Middleware(countingHandler(&calls))

	for _, req := range []*http.Request{
		gatedRequest(http.MethodPost, "/api/v1/artists", "same"),
		gatedRequest(http.MethodDelete, "/api/v1/artists/7", "same"),
		gatedRequest(http.MethodPut, "/api/v1/artists/7", "same"),
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestMiddleware_StoreUnavailable(t *testing.T) {
	gate := New(failingTokens{err: errors.New("connection refused")}, Config{}, nil)
	var calls atomic.Int32
	h := gate.Middleware(countingHandler(&calls))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, gatedRequest(http.MethodPost, "/api/v1/artists", "abc"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_UNAVAILABLE")
	assert.Zero(t, calls.Load())
}

func TestMiddleware_ConcurrentDuplicates(t *testing.T) {
	gate := newBadgerGate(t, time.Minute)
	var calls atomic.Int32
	h := gate.Middleware(countingHandler(&calls))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ServeHTTP(httptest.NewRecorder(), gatedRequest(http.MethodPost, "/api/v1/artists", "burst"))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenKey(t *testing.T) {
	assert.Equal(t, "POST /api/v1/artists abc", TokenKey("POST", "/api/v1/artists", "abc"))
}
