package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "history", `{"documents":[]}`))
	v, found, err := s.Get(ctx, "history")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"documents":[]}`, v)

	require.NoError(t, s.Set(ctx, "history", `{"documents":["a"]}`))
	v, _, err = s.Get(ctx, "history")
	require.NoError(t, err)
	assert.Equal(t, `{"documents":["a"]}`, v)

	require.NoError(t, s.Remove(ctx, "history"))
	_, found, err = s.Get(ctx, "history")
	require.NoError(t, err)
	assert.False(t, found)

	// Removing an absent key is not an error.
	require.NoError(t, s.Remove(ctx, "history"))
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())

	_, _, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(context.Background(), "k", "v"), ErrClosed)
	assert.ErrorIs(t, m.Remove(context.Background(), "k"), ErrClosed)
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	exerciseStore(t, s)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "history", `{"clips":["c1"]}`))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	v, found, err := s.Get(ctx, "history")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"clips":["c1"]}`, v)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseStore(t, NewRedis(client, "historyhub-test:"))
}
