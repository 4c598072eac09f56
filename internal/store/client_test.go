package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromRedis(rdb, zerolog.Nop())
}

type sample struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	in := sample{Name: "贵州茅台", N: 7}
	require.NoError(t, c.Set(ctx, "k", in))

	var out sample
	require.NoError(t, c.Get(ctx, "k", &out))
	assert.Equal(t, in, out)
}

func TestGetMissingIsNotFound(t *testing.T) {
	c := newTestClient(t)
	var out sample
	err := c.Get(context.Background(), "missing", &out)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestHashRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "h", "f1", sample{Name: "a", N: 1}))
	require.NoError(t, c.HSet(ctx, "h", "f2", sample{Name: "b", N: 2}))

	var f1 sample
	require.NoError(t, c.HGet(ctx, "h", "f1", &f1))
	assert.Equal(t, "a", f1.Name)

	all, err := c.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, c.HDel(ctx, "h", "f1"))
	all, err = c.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFlushNamespaceScopesToPattern(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "stock_trend:600000.SH", sample{N: 1}))
	require.NoError(t, c.Set(ctx, "other:key", sample{N: 2}))

	require.NoError(t, c.FlushNamespace(ctx, "stock_trend:*"))

	exists, err := c.Exists(ctx, "stock_trend:600000.SH")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = c.Exists(ctx, "other:key")
	require.NoError(t, err)
	assert.True(t, exists)
}
