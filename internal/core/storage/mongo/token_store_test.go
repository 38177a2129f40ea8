package mongo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_Create(t *testing.T) {
	env := setupTestEnv(t)
	s := env.Provider.tokens
	ctx := context.Background()

	created, err := s.Create(ctx, "POST /api/v1/artists abc123", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Create(ctx, "POST /api/v1/artists abc123", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, created)

	created, err = s.Create(ctx, "POST /api/v1/artists other", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestTokenStore_ExpiredTokenIsReused(t *testing.T) {
	env := setupTestEnv(t)
	s := env.Provider.tokens
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	created, err := s.Create(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, created)

	now = now.Add(30 * time.Second)
	created, err = s.Create(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, created, "token is still live")

	now = now.Add(time.Minute)
	created, err = s.Create(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, created, "expired token is re-armed")

	created, err = s.Create(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestTokenStore_ConcurrentCreate(t *testing.T) {
	env := setupTestEnv(t)
	s := env.Provider.tokens
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.Create(ctx, "race", time.Minute)
			assert.NoError(t, err)
			if created {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestCheckpointStore(t *testing.T) {
	env := setupTestEnv(t)
	s := env.Provider.Checkpoints()
	ctx := context.Background()

	token, err := s.LoadCheckpoint(ctx, "puller")
	require.NoError(t, err)
	assert.Nil(t, token)

	require.NoError(t, s.SaveCheckpoint(ctx, "puller", []byte("t1")))
	require.NoError(t, s.SaveCheckpoint(ctx, "puller", []byte("t2")))

	token, err = s.LoadCheckpoint(ctx, "puller")
	require.NoError(t, err)
	assert.Equal(t, []byte("t2"), token)
}
