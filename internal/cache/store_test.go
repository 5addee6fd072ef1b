package cache

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte(`{"attempt":1}`)
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'X'

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"attempt":1}`, string(got), "stored bytes must not alias the caller's slice")

	require.NoError(t, store.Set(ctx, "k", []byte("second")))
	got, _, _ = store.Get(ctx, "k")
	assert.Equal(t, "second", string(got))
	assert.Equal(t, 1, store.Len())
}

func TestWithPrefix(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	alice := WithPrefix(base, "learner:alice:")
	bob := WithPrefix(base, "learner:bob:")

	require.NoError(t, alice.Set(ctx, "mdbook-quiz:intro", []byte("a")))
	require.NoError(t, bob.Set(ctx, "mdbook-quiz:intro", []byte("b")))

	got, ok, err := alice.Get(ctx, "mdbook-quiz:intro")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(got))

	got, _, _ = base.Get(ctx, "learner:bob:mdbook-quiz:intro")
	assert.Equal(t, "b", string(got))

	assert.Same(t, base, WithPrefix(base, "").(*MemoryStore))
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	ctx := context.Background()
	store := NewRedisStore(client, 0, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	key := "quiz-service-test:" + t.Name()
	defer client.Del(ctx, key)

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, key, []byte("payload")))
	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "payload", string(got))
}
