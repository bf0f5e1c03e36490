// Package simplification caches validated leveled rewrites keyed by
// (book, chunk, level) and keeps generation single-flight per key.
package simplification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/pkg/lease"
)

var (
	ErrMiss         = errors.New("simplification cache miss")
	ErrLeaseExpired = errors.New("generation lease expired before a result was committed")
	ErrInvalidRow   = errors.New("invalid simplification row")
)

// GenerateFunc produces a validated row for a key on a cache miss.
type GenerateFunc func(ctx context.Context) (*models.SimplificationModel, error)

// LeaseState is the generation state of one key.
type LeaseState int

const (
	StateIdle LeaseState = iota
	StateLeased
	StateDone
)

func (s LeaseState) String() string {
	switch s {
	case StateLeased:
		return "leased"
	case StateDone:
		return "done"
	default:
		return "idle"
	}
}

type Options struct {
	// Version is the current generator version; rows carrying another
	// version are stale.
	Version      string
	LeaseTTL     time.Duration
	PollInterval time.Duration
	CacheTTL     time.Duration
}

type Cache struct {
	store  Store
	fast   FastLayer
	leases lease.Manager
	group  singleflight.Group
	opts   Options
	log    *zap.Logger
}

// New wires a cache. fast may be nil when no Redis is configured.
func New(store Store, fast FastLayer, leases lease.Manager, opts Options, log *zap.Logger) *Cache {
	if fast == nil {
		fast = noFast{}
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 90 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		store:  store,
		fast:   fast,
		leases: leases,
		opts:   opts,
		log:    log.Named("simplification-cache"),
	}
}

func (c *Cache) Version() string { return c.opts.Version }

func (c *Cache) current(row *models.SimplificationModel) bool {
	return c.opts.Version == "" || row.GeneratorVersion == c.opts.Version
}

// Get returns the current row for key, or ErrMiss. Stale rows are misses.
func (c *Cache) Get(ctx context.Context, key Key) (*models.SimplificationModel, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: key %q", ErrInvalidRow, key.String())
	}
	if row, err := c.fast.Get(ctx, key); err != nil {
		c.log.Warn("fast layer read failed", zap.String("key", key.String()), zap.Error(err))
	} else if row != nil && c.current(row) {
		return row, nil
	}

	row, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !c.current(row) {
		return nil, ErrMiss
	}
	if err := c.fast.Set(ctx, row, c.opts.CacheTTL); err != nil {
		c.log.Warn("fast layer fill failed", zap.String("key", key.String()), zap.Error(err))
	}
	return row, nil
}

// Set validates and writes row durably, then refreshes the fast layer.
func (c *Cache) Set(ctx context.Context, row *models.SimplificationModel) error {
	if row == nil {
		return ErrInvalidRow
	}
	if row.GeneratorVersion == "" {
		row.GeneratorVersion = c.opts.Version
	}
	key := KeyOf(row)
	switch {
	case !key.Valid():
		return fmt.Errorf("%w: key %q", ErrInvalidRow, key.String())
	case row.Text == "":
		return fmt.Errorf("%w: empty text for %s", ErrInvalidRow, key)
	case row.GeneratorVersion == "":
		return fmt.Errorf("%w: missing generator version for %s", ErrInvalidRow, key)
	}

	if err := c.store.Upsert(ctx, row); err != nil {
		return fmt.Errorf("store simplification %s: %w", key, err)
	}
	if err := c.fast.Set(ctx, row, c.opts.CacheTTL); err != nil {
		c.log.Warn("fast layer write failed", zap.String("key", key.String()), zap.Error(err))
	}
	return nil
}

// State reports whether key has a current row, a live lease, or neither.
func (c *Cache) State(ctx context.Context, key Key) (LeaseState, error) {
	if _, err := c.Get(ctx, key); err == nil {
		return StateDone, nil
	} else if !errors.Is(err, ErrMiss) {
		return StateIdle, err
	}
	held, err := c.leases.Held(ctx, leaseKey(key))
	if err != nil {
		return StateIdle, err
	}
	if held {
		return StateLeased, nil
	}
	return StateIdle, nil
}

// GetOrGenerate returns the cached row or runs generate for it. Concurrent
// callers of one key share a single generation in this process, and the
// lease keeps other processes waiting until the row is committed.
func (c *Cache) GetOrGenerate(ctx context.Context, key Key, generate GenerateFunc) (*models.SimplificationModel, error) {
	row, err := c.Get(ctx, key)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, ErrMiss) {
		return nil, err
	}

	// The shared call must outlive any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.generateLeased(shared, key, generate)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.SimplificationModel), nil
	}
}

func leaseKey(key Key) string { return "simp:" + key.String() }

func (c *Cache) generateLeased(ctx context.Context, key Key, generate GenerateFunc) (*models.SimplificationModel, error) {
	waited := false
	for {
		token, ok, err := c.leases.Acquire(ctx, leaseKey(key), c.opts.LeaseTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", key, err)
		}
		if ok {
			if waited {
				c.log.Warn("CacheLeaseExpired", zap.String("key", key.String()), zap.Error(ErrLeaseExpired))
			}
			return c.generateHolding(ctx, key, token, generate)
		}

		waited = true
		row, err := c.waitForHolder(ctx, key)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, ErrLeaseExpired) {
			return nil, err
		}
	}
}

func (c *Cache) generateHolding(ctx context.Context, key Key, token string, generate GenerateFunc) (*models.SimplificationModel, error) {
	// Generation can outlast one ttl (strategies × retries × timeout); keep
	// the lease alive so waiters do not take it over.
	stop := lease.Keep(ctx, c.leases, leaseKey(key), token, c.opts.LeaseTTL, func(err error) {
		c.log.Warn("lease renewal failed", zap.String("key", key.String()), zap.Error(err))
	})
	defer func() {
		stop()
		if err := c.leases.Release(ctx, leaseKey(key), token); err != nil && !errors.Is(err, lease.ErrNotHeld) {
			c.log.Warn("release lease failed", zap.String("key", key.String()), zap.Error(err))
		}
	}()

	// Another process may have committed between our miss and the acquire.
	if row, err := c.Get(ctx, key); err == nil {
		return row, nil
	}

	row, err := generate(ctx)
	if err != nil {
		return nil, err
	}
	row.BookID, row.ChunkIndex, row.Level = key.BookID, key.ChunkIndex, string(key.Level)
	if err := c.Set(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// waitForHolder polls until the holder commits (row returned) or the lease
// disappears without a row (ErrLeaseExpired).
func (c *Cache) waitForHolder(ctx context.Context, key Key) (*models.SimplificationModel, error) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		state, err := c.State(ctx, key)
		if err != nil {
			return nil, err
		}
		switch state {
		case StateDone:
			return c.Get(ctx, key)
		case StateIdle:
			return nil, ErrLeaseExpired
		}
	}
}

// Invalidate removes the row for key from both layers.
func (c *Cache) Invalidate(ctx context.Context, key Key) (bool, error) {
	if !key.Valid() {
		return false, fmt.Errorf("%w: key %q", ErrInvalidRow, key.String())
	}
	deleted, err := c.store.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	if err := c.fast.Del(ctx, key); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// InvalidateBook removes every level of every chunk of a book.
func (c *Cache) InvalidateBook(ctx context.Context, bookID string) (int64, error) {
	n, err := c.store.DeleteBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	if err := c.fast.DelBook(ctx, bookID); err != nil {
		return n, err
	}
	return n, nil
}

// InvalidateStale drops rows written by another generator version.
func (c *Cache) InvalidateStale(ctx context.Context) (int64, error) {
	if c.opts.Version == "" {
		return 0, nil
	}
	n, err := c.store.DeleteStale(ctx, c.opts.Version)
	if err != nil {
		return 0, err
	}
	if err := c.fast.Flush(ctx); err != nil {
		return n, err
	}
	c.log.Info("stale simplifications removed", zap.Int64("rows", n), zap.String("version", c.opts.Version))
	return n, nil
}
