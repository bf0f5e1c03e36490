package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestGetMissIsEmpty(t *testing.T) {
	c, _ := newTestClient(t)
	v, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	b, err := c.GetBytes(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestSetNXAndCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	ok, err := c.SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := c.CompareAndDelete(ctx, "lock", "b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, mr.Exists("lock"))

	deleted, err = c.CompareAndDelete(ctx, "lock", "a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists("lock"))
}

func TestScanDel(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	require.NoError(t, mr.Set("bb:x:1", "1"))
	require.NoError(t, mr.Set("bb:x:2", "1"))
	require.NoError(t, mr.Set("bb:y:1", "1"))

	n, err := c.ScanDel(ctx, "bb:x:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("bb:y:1"))
}
