package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	redis "github.com/redis/go-redis/v9"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChargeResult(t *testing.T) {
	allowed, used, err := parseChargeResult([]any{int64(1), int64(8)})
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(8), used)

	allowed, used, err = parseChargeResult([]any{int64(0), "10"})
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(10), used)

	_, _, err = parseChargeResult([]any{int64(1)})
	assert.Error(t, err)

	_, _, err = parseChargeResult([]any{1.5, int64(1)})
	assert.Error(t, err)
}

// Runs against a real Redis when TEST_REDIS_ADDR is set.
func TestRedisClients_ChargeIsAtomic(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	base := enterprise.NewMemoryRepository(enterprise.Client{
		ID: "REDIS_TEST_C1", Name: "C1", Tier: enterprise.TierBasic, MonthlyQuota: 5,
	})
	repo := NewRedisClients(rdb, base)
	require.NoError(t, rdb.Del(ctx, repo.key("REDIS_TEST_C1")).Err())

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementUsage(ctx, "REDIS_TEST_C1")
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, enterprise.ErrQuotaExceeded))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	c, err := repo.FindByKey(ctx, "REDIS_TEST_C1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.UsedQuota)
}
