package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/inkwell/internal/server/ratelimit"
)

func TestNew(t *testing.T) {
	srv := New(Config{Host: "localhost", HTTPPort: 8080}, nil)
	require.NotNil(t, srv)
	assert.Nil(t, srv.(*serverImpl).rateLimiter)
}

func TestNew_RateLimitEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.Enabled = true
	srv := New(cfg, nil).(*serverImpl)
	require.NotNil(t, srv.rateLimiter)
	assert.NoError(t, srv.Stop(context.Background()))
}

func startServer(t *testing.T, srv Service) (string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Start(ctx) }()

	impl := srv.(*serverImpl)
	require.Eventually(t, func() bool { return impl.Addr() != "" }, time.Second, 5*time.Millisecond)
	return impl.Addr(), cancel
}

func TestServer_StartStop(t *testing.T) {
	srv := New(Config{Host: "localhost", HTTPPort: 0}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	require.Eventually(t, func() bool { return srv.(*serverImpl).Addr() != "" }, time.Second, 5*time.Millisecond)

	assert.NoError(t, srv.Stop(context.Background()))
	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestServer_ServesRegisteredHandler(t *testing.T) {
	srv := New(Config{Host: "localhost", HTTPPort: 0}, nil)
	srv.RegisterHTTPHandler("GET /ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	}))

	addr, cancel := startServer(t, srv)
	defer cancel()
	defer func() { _ = srv.Stop(context.Background()) }()

	resp, err := http.Get("http://" + addr + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestServer_Start_AlreadyStarted(t *testing.T) {
	srv := New(Config{Host: "localhost", HTTPPort: 0}, nil)
	_, cancel := startServer(t, srv)
	defer cancel()
	defer func() { _ = srv.Stop(context.Background()) }()

	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server already started")
}

func TestServer_Start_PortConflict(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	srv := New(Config{Host: "localhost", HTTPPort: port}, nil)

	err = srv.Start(context.Background())
	assert.Error(t, err)
}

func TestServer_HTTPMux(t *testing.T) {
	srv := New(Config{Host: "localhost"}, nil).(*serverImpl)
	assert.Same(t, srv.httpMux, srv.HTTPMux())
	assert.Empty(t, srv.Addr())
}

func TestServer_Stop_ContextTimeout(t *testing.T) {
	cfg := Config{Host: "localhost", RateLimit: ratelimit.Config{Enabled: true, Requests: 5, Window: time.Second}}
	srv := New(cfg, nil)
	_, cancel := startServer(t, srv)
	defer cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer stopCancel()
	time.Sleep(5 * time.Millisecond)

	_ = srv.Stop(stopCtx)
}
