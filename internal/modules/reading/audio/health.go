package audio

import (
	"sync"
	"time"
)

type providerHealth struct {
	failures int
	openedAt time.Time
}

// healthBook counts consecutive failures per provider. At threshold the
// provider is skipped until cooldown passes, then it gets one trial call.
type healthBook struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	state     map[string]*providerHealth
}

func newHealthBook(threshold int, cooldown time.Duration) *healthBook {
	if threshold < 1 {
		threshold = 3
	}
	return &healthBook{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     make(map[string]*providerHealth),
	}
}

func (h *healthBook) get(name string) *providerHealth {
	s, ok := h.state[name]
	if !ok {
		s = &providerHealth{}
		h.state[name] = s
	}
	return s
}

func (h *healthBook) allow(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.get(name)
	if s.failures < h.threshold {
		return true
	}
	return !h.now().Before(s.openedAt.Add(h.cooldown))
}

func (h *healthBook) success(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.get(name)
	s.failures = 0
	s.openedAt = time.Time{}
}

func (h *healthBook) failure(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.get(name)
	s.failures++
	if s.failures >= h.threshold {
		// a failed half-open trial restarts the cooldown
		s.openedAt = h.now()
	}
}

// failuresOf returns the current consecutive failure count.
func (h *healthBook) failuresOf(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.get(name).failures
}
