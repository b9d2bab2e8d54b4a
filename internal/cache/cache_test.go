package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/septivank/ledger-relay-gateway/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_FreshWithinWindow(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	c := New[string, int](5*time.Minute, clk)

	c.Set("price", 42)
	clk.Advance(5*time.Minute - time.Nanosecond)

	v, ok := c.Get("price")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestTTLCache_StaleAtBoundary(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	c := New[string, int](5*time.Minute, clk)

	c.Set("price", 42)
	clk.Advance(5 * time.Minute)

	_, ok := c.Get("price")
	assert.False(t, ok)
	// stale entries are not evicted eagerly
	assert.Equal(t, 1, c.Len())
}

func TestTTLCache_SetRefreshesTimestamp(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	c := New[string, string](time.Minute, clk)

	c.Set("k", "old")
	clk.Advance(2 * time.Minute)
	c.Set("k", "new")
	clk.Advance(30 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestTTLCache_Clear(t *testing.T) {
	c := New[string, int](0, nil)
	assert.Equal(t, DefaultTTL, c.TTL())

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_MissingKey(t *testing.T) {
	c := New[string, *int](time.Minute, nil)
	v, ok := c.Get("nope")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestTTLCache_ConcurrentAccess(t *testing.T) {
	c := New[int, int](time.Minute, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(i%5, i)
			c.Get(i % 5)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, c.Len())
}
