package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisc "github.com/bookbridge/core/internal/pkg/redis"
)

func exerciseManager(t *testing.T, m Manager, expire func(time.Duration)) {
	ctx := context.Background()

	token, ok, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	held, err := m.Held(ctx, "k")
	require.NoError(t, err)
	assert.True(t, held)

	assert.ErrorIs(t, m.Release(ctx, "k", "someone-else"), ErrNotHeld)
	require.NoError(t, m.Release(ctx, "k", token))

	held, err = m.Held(ctx, "k")
	require.NoError(t, err)
	assert.False(t, held)

	// renewal keeps a lease alive past its original ttl
	token, ok, err = m.Acquire(ctx, "r", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	expire(700 * time.Millisecond)
	require.NoError(t, m.Renew(ctx, "r", token, time.Second))
	assert.ErrorIs(t, m.Renew(ctx, "r", "someone-else", time.Second), ErrNotHeld)
	expire(700 * time.Millisecond)
	held, err = m.Held(ctx, "r")
	require.NoError(t, err)
	assert.True(t, held)
	expire(2 * time.Second)
	assert.ErrorIs(t, m.Renew(ctx, "r", token, time.Second), ErrNotHeld)

	// an expired lease can be taken over, and the old token no longer releases it
	old, ok, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	expire(2 * time.Second)

	_, ok, err = m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, m.Release(ctx, "k", old), ErrNotHeld)
}

func TestMemoryManager(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	exerciseManager(t, m, func(d time.Duration) { now = now.Add(d) })
}

func TestRedisManager(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redisc.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	exerciseManager(t, NewRedis(rc, "bb:lease:"), mr.FastForward)
}

func TestKeepRenewsUntilStopped(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	token, ok, err := m.Acquire(ctx, "k", 60*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	stop := Keep(ctx, m, "k", token, 60*time.Millisecond, func(err error) {
		t.Errorf("unexpected lost lease: %v", err)
	})
	time.Sleep(200 * time.Millisecond)
	held, err := m.Held(ctx, "k")
	require.NoError(t, err)
	assert.True(t, held)
	stop()
	stop()

	assert.Eventually(t, func() bool {
		held, _ := m.Held(ctx, "k")
		return !held
	}, time.Second, 10*time.Millisecond)
}

func TestKeepReportsLostLease(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, ok, err := m.Acquire(ctx, "k", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	lost := make(chan error, 1)
	stop := Keep(ctx, m, "k", "not-the-token", 30*time.Millisecond, func(err error) { lost <- err })
	defer stop()
	select {
	case err := <-lost:
		assert.ErrorIs(t, err, ErrNotHeld)
	case <-time.After(time.Second):
		t.Fatal("lost lease was not reported")
	}
}
