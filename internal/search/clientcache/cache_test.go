package clientcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/awnumar/memguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/inkwell/internal/secrets"
	"github.com/syntrixbase/inkwell/pkg/model"
)

type fakeClient struct {
	apiKey string
	serial int64
}

type countingProvider struct {
	inner secrets.Provider
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (p *countingProvider) GetSecret(ctx context.Context, ref string) (*memguard.Enclave, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.inner.GetSecret(ctx, ref)
}

func newProvider() *countingProvider {
	return &countingProvider{inner: secrets.NewStaticProvider(map[string]string{"search": `{"api_key":"k-1"}`})}
}

func countingFactory(builds *atomic.Int64) Factory[*fakeClient] {
	return func(ctx context.Context, creds secrets.Credentials) (*fakeClient, error) {
		n := builds.Add(1)
		return &fakeClient{apiKey: creds.APIKey, serial: n}, nil
	}
}

func TestCache_Memoizes(t *testing.T) {
	p := newProvider()
	var builds atomic.Int64
	c := New(p, "search", countingFactory(&builds), nil)

	first, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k-1", first.apiKey)

	second, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), p.calls.Load())
	assert.Equal(t, int64(1), builds.Load())
}

func TestCache_ConcurrentFirstCallsCollapse(t *testing.T) {
	p := newProvider()
	p.delay = 50 * time.Millisecond
	var builds atomic.Int64
	c := New(p, "search", countingFactory(&builds), nil)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*fakeClient, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := c.Get(context.Background())
			assert.NoError(t, err)
			results[i] = client
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), p.calls.Load())
	assert.Equal(t, int64(1), builds.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestCache_SecretFailureNotCached(t *testing.T) {
	p := newProvider()
	p.err = errors.New("access denied")
	var builds atomic.Int64
	c := New(p, "search", countingFactory(&builds), nil)

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, model.ErrSecretAccess)
	assert.Equal(t, int64(0), builds.Load())

	p.err = nil
	client, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, int64(2), p.calls.Load())
}

func TestCache_MalformedSecret(t *testing.T) {
	p := &countingProvider{inner: secrets.NewStaticProvider(map[string]string{"search": "{"})}
	var builds atomic.Int64
	c := New(p, "search", countingFactory(&builds), nil)

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, model.ErrSecretAccess)
}

func TestCache_FactoryFailureReturnedAsIs(t *testing.T) {
	boom := errors.New("dial failed")
	var attempts atomic.Int64
	c := New(newProvider(), "search", func(ctx context.Context, creds secrets.Credentials) (*fakeClient, error) {
		if attempts.Add(1) == 1 {
			return nil, boom
		}
		return &fakeClient{apiKey: creds.APIKey}, nil
	}, nil)

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, model.ErrSecretAccess)

	client, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k-1", client.apiKey)
}

func TestCache_Reset(t *testing.T) {
	p := newProvider()
	var builds atomic.Int64
	c := New(p, "search", countingFactory(&builds), nil)

	first, err := c.Get(context.Background())
	require.NoError(t, err)

	c.Reset()

	second, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(2), builds.Load())
	assert.Equal(t, int64(2), p.calls.Load())
}

func TestCache_ResetDuringBuildDiscardsResult(t *testing.T) {
	p := newProvider()
	started := make(chan struct{})
	release := make(chan struct{})
	var builds atomic.Int64
	c := New(p, "search", func(ctx context.Context, creds secrets.Credentials) (*fakeClient, error) {
		n := builds.Add(1)
		if n == 1 {
			close(started)
			<-release
		}
		return &fakeClient{serial: n}, nil
	}, nil)

	done := make(chan *fakeClient)
	go func() {
		client, _ := c.Get(context.Background())
		done <- client
	}()
	<-started
	c.Reset()
	close(release)
	stale := <-done
	assert.Equal(t, int64(1), stale.serial)

	fresh, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.serial)
}

func TestCache_CanceledCallerDoesNotFailSharedBuild(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var builds atomic.Int64
	c := New(newProvider(), "search", func(ctx context.Context, creds secrets.Credentials) (*fakeClient, error) {
		n := builds.Add(1)
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &fakeClient{apiKey: creds.APIKey, serial: n}, nil
	}, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(firstCtx)
		firstErr <- err
	}()
	<-started

	second := make(chan *fakeClient, 1)
	go func() {
		client, err := c.Get(context.Background())
		assert.NoError(t, err)
		second <- client
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	select {
	case client := <-second:
		require.NotNil(t, client)
		assert.Equal(t, "k-1", client.apiKey)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never received the client")
	}
	assert.Equal(t, int64(1), builds.Load())

	cached, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.serial)
}

func TestCache_BuildTimeout(t *testing.T) {
	var attempts atomic.Int64
	c := New(newProvider(), "search", func(ctx context.Context, creds secrets.Credentials) (*fakeClient, error) {
		if attempts.Add(1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &fakeClient{apiKey: creds.APIKey}, nil
	}, nil, WithBuildTimeout(20*time.Millisecond))

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	client, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k-1", client.apiKey)
}
