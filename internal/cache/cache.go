package cache

import (
	"sync"
	"time"

	"github.com/septivank/ledger-relay-gateway/internal/clock"
)

// DefaultTTL is how long an entry stays fresh unless configured otherwise.
const DefaultTTL = 5 * time.Minute

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache memoizes expensive reads. An entry is fresh while now-storedAt < ttl;
// stale entries are treated as absent but only removed by Set or Clear.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	clock   clock.Clock
}

// New creates a cache with the given ttl. A non-positive ttl falls back to DefaultTTL.
func New[K comparable, V any](ttl time.Duration, clk clock.Clock) *TTLCache[K, V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		clock:   clk,
	}
}

// Get returns the value for key if it is still fresh.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.clock.Now().Sub(e.storedAt) >= c.ttl {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous entry.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, storedAt: c.clock.Now()}
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len reports the number of stored entries, stale ones included.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the freshness window.
func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.ttl
}
