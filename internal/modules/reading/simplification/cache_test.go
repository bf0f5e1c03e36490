package simplification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/bookbridge/core/internal/database"
	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/pkg/lease"
	redisc "github.com/bookbridge/core/internal/pkg/redis"
)

const testVersion = "fake:model+cefr-v1"

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newCache(t *testing.T, db *gorm.DB, fast FastLayer, leases lease.Manager, log *zap.Logger) *Cache {
	t.Helper()
	return New(NewGormStore(db), fast, leases, Options{
		Version:      testVersion,
		LeaseTTL:     time.Second,
		PollInterval: 5 * time.Millisecond,
		CacheTTL:     time.Hour,
	}, log)
}

func rowFor(key Key, text string) *models.SimplificationModel {
	return &models.SimplificationModel{
		BookID:           key.BookID,
		ChunkIndex:       key.ChunkIndex,
		Level:            string(key.Level),
		Text:             text,
		QualityScore:     0.9,
		GeneratorVersion: testVersion,
		Strategy:         "level/normal",
	}
}

func TestConcurrentCallersShareOneGeneration(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	db := openDB(t)
	cache := newCache(t, db, nil, lease.NewMemory(), nil)
	key := Key{BookID: "book-1", ChunkIndex: 3, Level: cefr.B1}

	var calls atomic.Int32
	release := make(chan struct{})
	gen := func(ctx context.Context) (*models.SimplificationModel, error) {
		calls.Add(1)
		<-release
		return rowFor(key, "simple text"), nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*models.SimplificationModel, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrGenerate(context.Background(), key, gen)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "simple text", results[i].Text)
	}

	var count int64
	require.NoError(t, db.Model(&models.SimplificationModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWaiterInAnotherProcessSeesCommittedRow(t *testing.T) {
	db := openDB(t)
	leases := lease.NewMemory()
	first := newCache(t, db, nil, leases, nil)
	second := newCache(t, db, nil, leases, nil)
	key := Key{BookID: "book-1", ChunkIndex: 0, Level: cefr.A2}

	var calls atomic.Int32
	gen := func(ctx context.Context) (*models.SimplificationModel, error) {
		calls.Add(1)
		time.Sleep(40 * time.Millisecond)
		return rowFor(key, "shared"), nil
	}

	var wg sync.WaitGroup
	for _, c := range []*Cache{first, second} {
		wg.Add(1)
		go func(c *Cache) {
			defer wg.Done()
			row, err := c.GetOrGenerate(context.Background(), key, gen)
			assert.NoError(t, err)
			if row != nil {
				assert.Equal(t, "shared", row.Text)
			}
		}(c)
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestExpiredLeaseLetsWaiterRetry(t *testing.T) {
	db := openDB(t)
	core, logs := observer.New(zap.WarnLevel)
	leases := lease.NewMemory()
	cache := New(NewGormStore(db), nil, leases, Options{
		Version:      testVersion,
		LeaseTTL:     time.Second,
		PollInterval: 5 * time.Millisecond,
	}, zap.New(core))
	key := Key{BookID: "book-1", ChunkIndex: 1, Level: cefr.B2}

	// A holder in another process that never finishes.
	_, ok, err := leases.Acquire(context.Background(), leaseKey(key), 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	row, err := cache.GetOrGenerate(context.Background(), key, func(ctx context.Context) (*models.SimplificationModel, error) {
		return rowFor(key, "recovered"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", row.Text)
	assert.Equal(t, 1, logs.FilterMessage("CacheLeaseExpired").Len())
}

func TestGenerateErrorIsReturnedAndNothingCached(t *testing.T) {
	db := openDB(t)
	cache := newCache(t, db, nil, lease.NewMemory(), nil)
	key := Key{BookID: "book-1", ChunkIndex: 0, Level: cefr.A1}
	boom := errors.New("boom")

	_, err := cache.GetOrGenerate(context.Background(), key, func(context.Context) (*models.SimplificationModel, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = cache.Get(context.Background(), key)
	assert.ErrorIs(t, err, ErrMiss)

	state, err := cache.State(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)
}

func TestSetGetInvalidateWithRedisLayer(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	rc := redisc.Wrap(rdb)

	db := openDB(t)
	cache := newCache(t, db, NewRedisFast(rc), lease.NewRedis(rc, "bb:lease:"), nil)
	ctx := context.Background()
	key := Key{BookID: "book/with slash", ChunkIndex: 2, Level: cefr.C1}

	_, err := cache.Get(ctx, key)
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, cache.Set(ctx, rowFor(key, "first")))
	assert.True(t, mr.Exists(fastKey(key)))

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Text)

	// overwrite in place, still one row
	require.NoError(t, cache.Set(ctx, rowFor(key, "second")))
	got, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Text)
	var count int64
	require.NoError(t, db.Model(&models.SimplificationModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	deleted, err := cache.Invalidate(ctx, key)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists(fastKey(key)))
	_, err = cache.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLevelsAreIndependent(t *testing.T) {
	db := openDB(t)
	cache := newCache(t, db, nil, lease.NewMemory(), nil)
	ctx := context.Background()
	a1 := Key{BookID: "b", ChunkIndex: 0, Level: cefr.A1}
	b2 := Key{BookID: "b", ChunkIndex: 0, Level: cefr.B2}

	require.NoError(t, cache.Set(ctx, rowFor(a1, "easy")))
	require.NoError(t, cache.Set(ctx, rowFor(b2, "harder")))

	_, err := cache.Invalidate(ctx, a1)
	require.NoError(t, err)

	_, err = cache.Get(ctx, a1)
	assert.ErrorIs(t, err, ErrMiss)
	got, err := cache.Get(ctx, b2)
	require.NoError(t, err)
	assert.Equal(t, "harder", got.Text)
}

func TestConcurrentLevelsDoNotBlockEachOther(t *testing.T) {
	db := openDB(t)
	cache := newCache(t, db, nil, lease.NewMemory(), nil)
	a1 := Key{BookID: "b", ChunkIndex: 2, Level: cefr.A1}
	c2 := Key{BookID: "b", ChunkIndex: 2, Level: cefr.C2}

	release := make(chan struct{})
	a1Done := make(chan error, 1)
	go func() {
		_, err := cache.GetOrGenerate(context.Background(), a1, func(ctx context.Context) (*models.SimplificationModel, error) {
			<-release
			return rowFor(a1, "easy"), nil
		})
		a1Done <- err
	}()
	require.Eventually(t, func() bool {
		state, err := cache.State(context.Background(), a1)
		return err == nil && state == StateLeased
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	row, err := cache.GetOrGenerate(ctx, c2, func(ctx context.Context) (*models.SimplificationModel, error) {
		return rowFor(c2, "hard"), nil
	})
	require.NoError(t, err, "C2 must finish while A1 is still generating")
	assert.Equal(t, "hard", row.Text)

	select {
	case <-a1Done:
		t.Fatal("A1 finished before it was released")
	default:
	}
	close(release)
	require.NoError(t, <-a1Done)

	var count int64
	require.NoError(t, db.Model(&models.SimplificationModel{}).Where("book_id = ? AND chunk_index = ?", "b", 2).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSlowHolderKeepsLeaseAcrossProcesses(t *testing.T) {
	db := openDB(t)
	leases := lease.NewMemory()
	opts := Options{Version: testVersion, LeaseTTL: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond}
	first := New(NewGormStore(db), nil, leases, opts, nil)
	second := New(NewGormStore(db), nil, leases, opts, nil)
	key := Key{BookID: "book-1", ChunkIndex: 5, Level: cefr.B1}

	var calls atomic.Int32
	gen := func(ctx context.Context) (*models.SimplificationModel, error) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		return rowFor(key, "slow but alive"), nil
	}

	var wg sync.WaitGroup
	for _, c := range []*Cache{first, second} {
		wg.Add(1)
		go func(c *Cache) {
			defer wg.Done()
			row, err := c.GetOrGenerate(context.Background(), key, gen)
			assert.NoError(t, err)
			if row != nil {
				assert.Equal(t, "slow but alive", row.Text)
			}
		}(c)
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	held, err := leases.Held(context.Background(), leaseKey(key))
	require.NoError(t, err)
	assert.False(t, held, "lease is released after the commit")
}

func TestStaleVersionIsMissAndCanBePurged(t *testing.T) {
	db := openDB(t)
	cache := newCache(t, db, nil, lease.NewMemory(), nil)
	ctx := context.Background()
	key := Key{BookID: "b", ChunkIndex: 4, Level: cefr.A2}

	old := rowFor(key, "old prompt")
	old.GeneratorVersion = "fake:model+cefr-v0"
	require.NoError(t, cache.Set(ctx, old))

	_, err := cache.Get(ctx, key)
	assert.ErrorIs(t, err, ErrMiss)

	n, err := cache.InvalidateStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInvalidateBook(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	rc := redisc.Wrap(rdb)

	db := openDB(t)
	cache := newCache(t, db, NewRedisFast(rc), lease.NewMemory(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, cache.Set(ctx, rowFor(Key{BookID: "gone", ChunkIndex: i, Level: cefr.B1}, "t")))
	}
	keep := Key{BookID: "gone-too", ChunkIndex: 0, Level: cefr.B1}
	require.NoError(t, cache.Set(ctx, rowFor(keep, "t")))

	n, err := cache.InvalidateBook(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.True(t, mr.Exists(fastKey(keep)))

	_, err = cache.Get(ctx, keep)
	assert.NoError(t, err)
}

func TestSetRejectsInvalidRows(t *testing.T) {
	cache := newCache(t, openDB(t), nil, lease.NewMemory(), nil)
	ctx := context.Background()

	assert.ErrorIs(t, cache.Set(ctx, nil), ErrInvalidRow)
	assert.ErrorIs(t, cache.Set(ctx, rowFor(Key{BookID: "", Level: cefr.A1}, "t")), ErrInvalidRow)
	assert.ErrorIs(t, cache.Set(ctx, rowFor(Key{BookID: "b", Level: "Z9"}, "t")), ErrInvalidRow)
	assert.ErrorIs(t, cache.Set(ctx, rowFor(Key{BookID: "b", Level: cefr.A1}, "")), ErrInvalidRow)
}
