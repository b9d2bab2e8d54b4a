package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/septivank/ledger-relay-gateway/internal/clock"
	"github.com/septivank/ledger-relay-gateway/internal/ledger"
	"github.com/septivank/ledger-relay-gateway/internal/ledger/ledgertest"
	"github.com/septivank/ledger-relay-gateway/internal/pricefeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls atomic.Int32
	quote pricefeed.Quote
	err   error
}

func (s *countingSource) Quote(context.Context, string) (pricefeed.Quote, error) {
	s.calls.Add(1)
	return s.quote, s.err
}

var (
	tokenAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	rewardsAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	userAddr    = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func testConfig() Config {
	return Config{
		TokenSymbol:   "BEZ",
		NativeSymbol:  "MATIC",
		NativeTokenID: "matic-network",
		CacheTTL:      5 * time.Minute,
	}
}

func uint256(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func TestSnapshot_DemoMode(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	market := &countingSource{err: errors.New("offline")}
	a := NewAggregator(testConfig(), ledger.Unavailable{},
		pricefeed.NewStatic(map[string]float64{"BEZ": 0.0015}), market, clk, nil, nil)

	snap := a.Snapshot(context.Background(), nil)

	require.NotNil(t, snap.Prices.Token)
	assert.Equal(t, 0.0015, snap.Prices.Token.USD)
	assert.Nil(t, snap.Prices.Native)
	require.NotNil(t, snap.Network)
	assert.Equal(t, uint64(0), snap.Network.BlockHeight)
	assert.Equal(t, "demo", snap.Network.Network)
	assert.Nil(t, snap.User.Balance)
	assert.Nil(t, snap.User.Rewards)
	assert.Equal(t, clk.Now().UnixMilli(), snap.Timestamp)
}

func TestSnapshot_UserWithoutContracts(t *testing.T) {
	a := NewAggregator(testConfig(), ledger.Unavailable{}, nil, nil, nil, nil, nil)

	snap := a.Snapshot(context.Background(), &userAddr)

	require.NotNil(t, snap.User.Balance)
	assert.Equal(t, "0", *snap.User.Balance)
	require.NotNil(t, snap.User.Rewards)
	assert.Equal(t, DemoRewards, *snap.User.Rewards)
	assert.Nil(t, snap.Prices.Token)
}

func TestSnapshot_CacheFirst(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	market := &countingSource{quote: pricefeed.Quote{USD: 0.52}}
	a := NewAggregator(testConfig(), ledger.Unavailable{}, nil, market, clk, nil, nil)
	ctx := context.Background()

	a.Snapshot(ctx, nil)
	clk.Advance(4 * time.Minute)
	snap := a.Snapshot(ctx, nil)
	assert.Equal(t, int32(1), market.calls.Load())
	assert.Equal(t, 0.52, snap.Prices.Native.USD)

	clk.Advance(time.Minute)
	a.Snapshot(ctx, nil)
	assert.Equal(t, int32(2), market.calls.Load())
}

func TestSnapshot_FailedReadsAreNotCached(t *testing.T) {
	market := &countingSource{err: errors.New("offline")}
	a := NewAggregator(testConfig(), ledger.Unavailable{}, nil, market, nil, nil, nil)

	a.Snapshot(context.Background(), nil)
	a.Snapshot(context.Background(), nil)

	assert.Equal(t, int32(2), market.calls.Load())
}

func TestSnapshot_LedgerReads(t *testing.T) {
	conn := &ledgertest.Connector{Available: true}
	balance, _ := new(big.Int).SetString("1500000000000000000", 10)
	rewards, _ := new(big.Int).SetString("2000000000000000000", 10)
	status := ledger.NetworkStatus{BlockHeight: 42, FeeEstimate: "30", ChainID: 80002, Network: "polygon-amoy"}

	conn.On("GetNetworkStatus", mock.Anything).Return(status, nil).Once()
	conn.On("CallContract", mock.Anything, tokenAddr, mock.Anything).Return(uint256(balance), nil).Once()
	conn.On("CallContract", mock.Anything, rewardsAddr, mock.Anything).Return(uint256(rewards), nil).Once()

	cfg := testConfig()
	cfg.TokenAddress = tokenAddr
	cfg.RewardsAddress = rewardsAddr
	a := NewAggregator(cfg, conn, nil, nil, nil, nil, nil)

	for i := 0; i < 2; i++ {
		snap := a.Snapshot(context.Background(), &userAddr)

		require.NotNil(t, snap.Network)
		assert.Equal(t, status, *snap.Network)
		assert.Equal(t, "1.5", *snap.User.Balance)
		assert.Equal(t, Rewards{TotalRewards: "2", PendingRewards: "0", ClaimedRewards: "2"}, *snap.User.Rewards)
	}
	conn.AssertExpectations(t)

	h := a.Health()
	assert.True(t, h.Ledger)
	assert.True(t, h.Contracts["token"])
	assert.Equal(t, 3, h.CacheSize)

	a.ClearCache()
	assert.Equal(t, 0, a.Health().CacheSize)
}

func TestSnapshot_LedgerErrorsDegrade(t *testing.T) {
	conn := &ledgertest.Connector{Available: true}
	conn.On("GetNetworkStatus", mock.Anything).Return(ledger.NetworkStatus{}, errors.New("rpc down"))
	conn.On("CallContract", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("rpc down"))

	cfg := testConfig()
	cfg.TokenAddress = tokenAddr
	cfg.RewardsAddress = rewardsAddr
	a := NewAggregator(cfg, conn, nil, nil, nil, nil, nil)

	snap := a.Snapshot(context.Background(), &userAddr)

	assert.Nil(t, snap.Network)
	assert.Equal(t, "0", *snap.User.Balance)
	assert.Nil(t, snap.User.Rewards)
}

func TestPrices(t *testing.T) {
	clk := clock.NewFakeClock(time.Unix(1_772_361_045, 0).UTC())
	market := &countingSource{quote: pricefeed.Quote{USD: 0.52}}
	a := NewAggregator(testConfig(), nil,
		pricefeed.NewStatic(map[string]float64{"BEZ": 0.0015}), market, clk, nil, nil)

	prices := a.Prices(context.Background())
	assert.Equal(t, []PricePoint{
		{Symbol: "BEZ", Price: 0.0015, Confidence: TokenConfidence, LastUpdate: 1_772_361_045, Verified: true},
		{Symbol: "MATIC", Price: 0.52, Confidence: MarketConfidence, LastUpdate: 1_772_361_045, Verified: true},
	}, prices)

	p, ok := a.Price(context.Background(), "bez")
	assert.True(t, ok)
	assert.Equal(t, "BEZ", p.Symbol)

	p, ok = a.Price(context.Background(), "matic")
	assert.True(t, ok)
	assert.Equal(t, "MATIC", p.Symbol)
	assert.Equal(t, int32(1), market.calls.Load())
}

func TestPrice_Unknown(t *testing.T) {
	market := &countingSource{err: pricefeed.ErrNoQuote}
	a := NewAggregator(testConfig(), nil, nil, market, nil, nil, nil)

	_, ok := a.Price(context.Background(), "doge")
	assert.False(t, ok)
}
