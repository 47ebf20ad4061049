package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	client, _ := newClient(t)
	c := NewVersioned(client, "test", time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	key, err := c.BuildKey(ctx, "list", "x")
	require.NoError(t, err)
	require.Equal(t, "test:list:x:v1", key)

	var out []string
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, []string{"a", "b"}, out)
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	key2, err := c.BuildKey(ctx, "list", "x")
	require.NoError(t, err)
	require.NotEqual(t, key, key2)
	require.NoError(t, c.FetchJSON(ctx, key2, &out, loader))
	require.Equal(t, 2, calls)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var c *Versioned
	ctx := context.Background()
	key, err := c.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	require.Equal(t, "cache:a:b", key)

	var out map[string]int
	require.NoError(t, c.FetchJSON(ctx, key, &out, func(context.Context) (any, error) {
		return map[string]int{"n": 1}, nil
	}))
	require.Equal(t, 1, out["n"])
	require.NoError(t, c.Bump(ctx))
}

func TestListenerSeesBumpFromAnotherProcess(t *testing.T) {
	client, mr := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reader := NewVersioned(client, "shared", time.Minute)
	require.NoError(t, reader.ListenForInvalidation(ctx))
	v, err := reader.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })
	writer := NewVersioned(other, "shared", time.Minute)
	require.NoError(t, writer.Bump(ctx))

	require.Eventually(t, func() bool {
		v, err := reader.Version(ctx)
		return err == nil && v == 2
	}, 2*time.Second, 10*time.Millisecond)
}
