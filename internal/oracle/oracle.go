package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/septivank/ledger-relay-gateway/internal/cache"
	"github.com/septivank/ledger-relay-gateway/internal/clock"
	"github.com/septivank/ledger-relay-gateway/internal/ledger"
	"github.com/septivank/ledger-relay-gateway/internal/metrics"
	"github.com/septivank/ledger-relay-gateway/internal/pricefeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Confidence scores reported with price quotes.
const (
	TokenConfidence  = 95
	MarketConfidence = 98
)

// Config describes the assets and contracts the aggregator reads.
type Config struct {
	TokenSymbol   string
	NativeSymbol  string
	NativeTokenID string
	// Zero addresses mean the contract is not deployed.
	TokenAddress   common.Address
	RewardsAddress common.Address
	CacheTTL       time.Duration
}

// Rewards is a user's reward position in native token units.
type Rewards struct {
	TotalRewards   string `json:"totalRewards"`
	PendingRewards string `json:"pendingRewards"`
	ClaimedRewards string `json:"claimedRewards"`
}

// DemoRewards is reported when no rewards contract is configured.
var DemoRewards = Rewards{TotalRewards: "100.5", PendingRewards: "25.3", ClaimedRewards: "75.2"}

// Prices holds the token and native quotes; nil means the read failed.
type Prices struct {
	Token  *pricefeed.Quote `json:"token"`
	Native *pricefeed.Quote `json:"native"`
}

// UserView is present when the snapshot was requested for an address.
type UserView struct {
	Balance *string  `json:"balance"`
	Rewards *Rewards `json:"rewards"`
}

// Snapshot is the aggregated market, network and user view.
type Snapshot struct {
	Prices    Prices                `json:"prices"`
	Network   *ledger.NetworkStatus `json:"network"`
	User      UserView              `json:"user"`
	Timestamp int64                 `json:"timestamp"`
}

// PricePoint is one entry of the price list.
type PricePoint struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Confidence int     `json:"confidence"`
	LastUpdate int64   `json:"lastUpdate"`
	Verified   bool    `json:"verified"`
}

// Health reports which backends the aggregator can reach.
type Health struct {
	Ledger    bool            `json:"provider"`
	Contracts map[string]bool `json:"contracts"`
	CacheSize int             `json:"cacheSize"`
	Timestamp int64           `json:"timestamp"`
}

// Aggregator combines independent reads into one snapshot. Every read is
// cache-first; a failed read degrades only its own field.
type Aggregator struct {
	cfg     Config
	ledger  ledger.Connector
	token   pricefeed.Source
	market  pricefeed.Source
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	quotes   *cache.TTLCache[string, pricefeed.Quote]
	network  *cache.TTLCache[string, ledger.NetworkStatus]
	balances *cache.TTLCache[common.Address, string]
	rewards  *cache.TTLCache[common.Address, Rewards]
}

// NewAggregator creates an aggregator. token quotes the gateway token by
// symbol; market quotes everything else by asset id.
func NewAggregator(cfg Config, conn ledger.Connector, token, market pricefeed.Source, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Aggregator {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if conn == nil {
		conn = ledger.Unavailable{}
	}
	return &Aggregator{
		cfg:      cfg,
		ledger:   conn,
		token:    token,
		market:   market,
		clock:    clk,
		logger:   logger,
		metrics:  m,
		quotes:   cache.New[string, pricefeed.Quote](cfg.CacheTTL, clk),
		network:  cache.New[string, ledger.NetworkStatus](cfg.CacheTTL, clk),
		balances: cache.New[common.Address, string](cfg.CacheTTL, clk),
		rewards:  cache.New[common.Address, Rewards](cfg.CacheTTL, clk),
	}
}

// Snapshot reads prices, network status and, when user is non-nil, the
// user's balance and rewards in parallel.
func (a *Aggregator) Snapshot(ctx context.Context, user *common.Address) Snapshot {
	var snap Snapshot

	// sub-reads never return errors so one failure cannot cancel the others
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap.Prices.Token = a.tokenQuote(gctx)
		return nil
	})
	g.Go(func() error {
		snap.Prices.Native = a.marketQuote(gctx, a.cfg.NativeTokenID)
		return nil
	})
	g.Go(func() error {
		snap.Network = a.networkStatus(gctx)
		return nil
	})
	if user != nil {
		g.Go(func() error {
			balance := a.TokenBalance(gctx, *user)
			snap.User.Balance = &balance
			return nil
		})
		g.Go(func() error {
			snap.User.Rewards = a.userRewards(gctx, *user)
			return nil
		})
	}
	_ = g.Wait()

	snap.Timestamp = a.clock.Now().UnixMilli()
	return snap
}

// Prices lists the gateway token and native token prices. A failed quote
// is reported at price 0.
func (a *Aggregator) Prices(ctx context.Context) []PricePoint {
	var token, native *pricefeed.Quote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { token = a.tokenQuote(gctx); return nil })
	g.Go(func() error { native = a.marketQuote(gctx, a.cfg.NativeTokenID); return nil })
	_ = g.Wait()

	now := a.clock.Now().Unix()
	return []PricePoint{
		a.point(a.cfg.TokenSymbol, token, TokenConfidence, now),
		a.point(a.cfg.NativeSymbol, native, MarketConfidence, now),
	}
}

// Price quotes a single symbol. The boolean is false when no quote is available.
func (a *Aggregator) Price(ctx context.Context, symbol string) (PricePoint, bool) {
	now := a.clock.Now().Unix()
	if strings.EqualFold(symbol, a.cfg.TokenSymbol) {
		q := a.tokenQuote(ctx)
		return a.point(a.cfg.TokenSymbol, q, TokenConfidence, now), q != nil
	}

	id := strings.ToLower(symbol)
	if strings.EqualFold(symbol, a.cfg.NativeSymbol) {
		id = a.cfg.NativeTokenID
	}
	q := a.marketQuote(ctx, id)
	return a.point(strings.ToUpper(symbol), q, MarketConfidence, now), q != nil
}

func (a *Aggregator) point(symbol string, q *pricefeed.Quote, confidence int, now int64) PricePoint {
	p := PricePoint{Symbol: symbol, Confidence: confidence, LastUpdate: now, Verified: true}
	if q != nil {
		p.Price = q.USD
	}
	return p
}

// Health reports backend reachability and cache occupancy.
func (a *Aggregator) Health() Health {
	return Health{
		Ledger: a.ledger.IsAvailable(),
		Contracts: map[string]bool{
			"token":   a.cfg.TokenAddress != (common.Address{}),
			"rewards": a.cfg.RewardsAddress != (common.Address{}),
		},
		CacheSize: a.quotes.Len() + a.network.Len() + a.balances.Len() + a.rewards.Len(),
		Timestamp: a.clock.Now().UnixMilli(),
	}
}

// ClearCache drops every cached read.
func (a *Aggregator) ClearCache() {
	a.quotes.Clear()
	a.network.Clear()
	a.balances.Clear()
	a.rewards.Clear()
}

func (a *Aggregator) tokenQuote(ctx context.Context) *pricefeed.Quote {
	return a.quote(ctx, a.token, a.cfg.TokenSymbol)
}

func (a *Aggregator) marketQuote(ctx context.Context, assetID string) *pricefeed.Quote {
	return a.quote(ctx, a.market, assetID)
}

func (a *Aggregator) quote(ctx context.Context, src pricefeed.Source, assetID string) *pricefeed.Quote {
	key := "price:" + assetID
	if q, ok := a.quotes.Get(key); ok {
		a.metrics.RecordCacheLookup("price", true)
		return &q
	}
	a.metrics.RecordCacheLookup("price", false)

	if src == nil {
		return nil
	}
	q, err := src.Quote(ctx, assetID)
	if err != nil {
		a.logger.Warn("price read failed", zap.String("asset", assetID), zap.Error(err))
		return nil
	}
	a.quotes.Set(key, q)
	return &q
}

func (a *Aggregator) networkStatus(ctx context.Context) *ledger.NetworkStatus {
	if !a.ledger.IsAvailable() {
		return &ledger.NetworkStatus{FeeEstimate: "0", Network: "demo"}
	}
	if s, ok := a.network.Get("network"); ok {
		a.metrics.RecordCacheLookup("network", true)
		return &s
	}
	a.metrics.RecordCacheLookup("network", false)

	s, err := a.ledger.GetNetworkStatus(ctx)
	if err != nil {
		a.logger.Warn("network status read failed", zap.Error(err))
		return nil
	}
	a.network.Set("network", s)
	return &s
}

// TokenBalance returns the user's gateway token balance, or "0" when the
// token contract is not configured or the read fails.
func (a *Aggregator) TokenBalance(ctx context.Context, user common.Address) string {
	if a.cfg.TokenAddress == (common.Address{}) || !a.ledger.IsAvailable() {
		return "0"
	}
	if b, ok := a.balances.Get(user); ok {
		a.metrics.RecordCacheLookup("balance", true)
		return b
	}
	a.metrics.RecordCacheLookup("balance", false)

	balance, err := a.callUint256(ctx, a.cfg.TokenAddress, tokenContract, "balanceOf", user)
	if err != nil {
		a.logger.Warn("token balance read failed", zap.String("address", user.Hex()), zap.Error(err))
		return "0"
	}
	formatted := ledger.FormatEther(balance)
	a.balances.Set(user, formatted)
	return formatted
}

func (a *Aggregator) userRewards(ctx context.Context, user common.Address) *Rewards {
	if a.cfg.RewardsAddress == (common.Address{}) || !a.ledger.IsAvailable() {
		demo := DemoRewards
		return &demo
	}
	if r, ok := a.rewards.Get(user); ok {
		a.metrics.RecordCacheLookup("rewards", true)
		return &r
	}
	a.metrics.RecordCacheLookup("rewards", false)

	amount, err := a.callUint256(ctx, a.cfg.RewardsAddress, rewardsContract, "getUserRewards", user)
	if err != nil {
		a.logger.Warn("rewards read failed", zap.String("address", user.Hex()), zap.Error(err))
		return nil
	}
	r := Rewards{
		TotalRewards:   ledger.FormatEther(amount),
		PendingRewards: "0",
		ClaimedRewards: ledger.FormatEther(amount),
	}
	a.rewards.Set(user, r)
	return &r
}

func (a *Aggregator) callUint256(ctx context.Context, to common.Address, contract abi.ABI, method string, user common.Address) (*big.Int, error) {
	data, err := packAddressCall(contract, method, user)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	out, err := a.ledger.CallContract(ctx, to, data)
	if err != nil {
		return nil, err
	}
	return unpackUint256(contract, method, out)
}
