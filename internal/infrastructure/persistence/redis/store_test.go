package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homepage-chat-api/internal/domain/repository"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestStoreGetSet(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewStore(client)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, repository.ErrKeyNotFound)
}

func TestStoreCounters(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewStore(client)
	ctx := context.Background()

	v, err := store.IncrBy(ctx, "c", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	require.NoError(t, store.Expire(ctx, "c", time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("c"))

	v, err = store.IncrByWithTTL(ctx, "c", 3, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, 2*time.Hour, mr.TTL("c"))
}

func TestStoreMGet(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewStore(client)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "c", []byte("3"), 0))

	vals, err := store.MGet(ctx, "a", "b", "c")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, []byte("1"), vals[0])
	assert.Nil(t, vals[1])
	assert.Equal(t, []byte("3"), vals[2])

	vals, err = store.MGet(ctx)
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestStoreScanPrefixAndDelete(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewStore(client)
	ctx := context.Background()

	for _, k := range []string{"chat:answer:1", "chat:answer:2", "chat:docs:1", "metrics:embedding:daily:2026-01-01"} {
		require.NoError(t, store.Set(ctx, k, []byte("x"), 0))
	}

	keys, err := store.ScanPrefix(ctx, "chat:answer:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chat:answer:1", "chat:answer:2"}, keys)

	n, err := store.Delete(ctx, keys...)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.Delete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	left, err := store.ScanPrefix(ctx, "chat:")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat:docs:1"}, left)
}

func TestClientHealthCheck(t *testing.T) {
	client, mr := newTestClient(t)
	require.NoError(t, client.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestParseInfoField(t *testing.T) {
	info := "# Memory\r\nused_memory:1024\r\nused_memory_human:1.00K\r\n"
	assert.Equal(t, "1.00K", parseInfoField(info, "used_memory_human"))
	assert.Equal(t, "", parseInfoField(info, "maxmemory_human"))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?`, escapeGlob("a*b?"))
	assert.Equal(t, "chat:answer:", escapeGlob("chat:answer:"))
}
