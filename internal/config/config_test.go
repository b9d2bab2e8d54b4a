package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutBackends(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ledger-relay-gateway", cfg.ServiceName)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, uint64(50000), cfg.Relayer.GasLimit)
	assert.Equal(t, "INTERNAL_BATCH_SYS", cfg.Enterprise.InternalKey)
	assert.False(t, cfg.LedgerConfigured())
}

func TestLoad_ReadsOverrides(t *testing.T) {
	t.Setenv("LEDGER_RPC_URL", "http://localhost:8545")
	t.Setenv("LEDGER_CONFIRM_TIMEOUT", "15s")
	t.Setenv("BATCH_MAX_CONCURRENCY", "4")
	t.Setenv("RELAYER_LOW_BALANCE", "0.5")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.LedgerConfigured())
	assert.Equal(t, 15*time.Second, cfg.Ledger.ConfirmTimeout)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 0.5, cfg.Relayer.LowBalanceThreshold)
	assert.True(t, cfg.Debug)
}

func TestLoad_RejectsUnparsableValue(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsEmptyInternalKey(t *testing.T) {
	t.Setenv("INTERNAL_API_KEY", "   ")

	_, err := Load()
	assert.ErrorContains(t, err, "INTERNAL_API_KEY")
}

func TestLoad_RejectsNonPositiveBatchLimit(t *testing.T) {
	t.Setenv("BATCH_MAX_OPERATIONS", "0")

	_, err := Load()
	assert.Error(t, err)
}
