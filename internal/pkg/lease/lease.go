// Package lease provides short-lived exclusive claims on a key, used to keep a
// single generator running per cache key across processes.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	redisc "github.com/bookbridge/core/internal/pkg/redis"
)

// ErrNotHeld is returned by Release and Renew when the caller no longer owns
// the key.
var ErrNotHeld = errors.New("lease not held")

// Manager grants leases. Acquire never blocks: ok is false when another
// holder owns the key.
type Manager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
	// Renew pushes the expiry of a held lease to ttl from now.
	Renew(ctx context.Context, key, token string, ttl time.Duration) error
	Held(ctx context.Context, key string) (bool, error)
}

// Keep renews a held lease every ttl/3 until the returned stop is called.
// A failed renewal is reported to onLost once and ends the renewals; the
// holder keeps running and its release will report ErrNotHeld.
func Keep(ctx context.Context, m Manager, key, token string, ttl time.Duration, onLost func(error)) (stop func()) {
	interval := ttl / 3
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := m.Renew(ctx, key, token, ttl); err != nil {
				if onLost != nil {
					onLost(err)
				}
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-finished
	}
}

// Redis implements Manager with SET NX PX and a compare-and-delete release.
type Redis struct {
	rc     *redisc.Client
	prefix string
}

func NewRedis(rc *redisc.Client, prefix string) *Redis {
	return &Redis{rc: rc, prefix: prefix}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.rc.SetNX(ctx, r.prefix+key, token, ttl)
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (r *Redis) Release(ctx context.Context, key, token string) error {
	ok, err := r.rc.CompareAndDelete(ctx, r.prefix+key, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}

func (r *Redis) Renew(ctx context.Context, key, token string, ttl time.Duration) error {
	ok, err := r.rc.CompareAndPExpire(ctx, r.prefix+key, token, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}

func (r *Redis) Held(ctx context.Context, key string) (bool, error) {
	return r.rc.Exists(ctx, r.prefix+key)
}

type memEntry struct {
	token   string
	expires time.Time
}

// Memory is a process-local Manager for single-node deployments and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memEntry), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.entries[key] = memEntry{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *Memory) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.token != token || !m.now().Before(e.expires) {
		return ErrNotHeld
	}
	delete(m.entries, key)
	return nil
}

func (m *Memory) Renew(_ context.Context, key, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.entries[key]
	if !ok || e.token != token || !now.Before(e.expires) {
		return ErrNotHeld
	}
	m.entries[key] = memEntry{token: token, expires: now.Add(ttl)}
	return nil
}

func (m *Memory) Held(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return false, nil
	}
	return true, nil
}
