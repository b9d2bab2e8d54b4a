package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoQuote is returned when the feed does not list the asset.
var ErrNoQuote = errors.New("no quote for asset")

// Quote is the market price of one asset.
type Quote struct {
	USD       float64  `json:"usd"`
	EUR       *float64 `json:"eur,omitempty"`
	Change24h *float64 `json:"change24h,omitempty"`
	MarketCap *float64 `json:"marketCap,omitempty"`
	Volume24h *float64 `json:"volume24h,omitempty"`
	Source    string   `json:"source"`
}

// Source yields quotes by asset id.
type Source interface {
	Quote(ctx context.Context, assetID string) (Quote, error)
}

// Client reads the public CoinGecko-compatible /simple/price endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a feed client; every request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type simplePrice struct {
	USD          *float64 `json:"usd"`
	EUR          *float64 `json:"eur"`
	USD24hChange *float64 `json:"usd_24h_change"`
	USDMarketCap *float64 `json:"usd_market_cap"`
	USD24hVol    *float64 `json:"usd_24h_vol"`
}

func (c *Client) Quote(ctx context.Context, assetID string) (Quote, error) {
	q := url.Values{}
	q.Set("ids", assetID)
	q.Set("vs_currencies", "usd,eur")
	q.Set("include_24hr_change", "true")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("price feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("price feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]simplePrice
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("failed to decode price feed response: %w", err)
	}

	p, ok := payload[assetID]
	if !ok || p.USD == nil {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, assetID)
	}
	return Quote{
		USD:       *p.USD,
		EUR:       p.EUR,
		Change24h: p.USD24hChange,
		MarketCap: p.USDMarketCap,
		Volume24h: p.USD24hVol,
		Source:    "coingecko",
	}, nil
}

// Static quotes fixed prices, used for the gateway token which has no
// public market.
type Static struct {
	prices map[string]float64
}

// NewStatic creates a static source from asset id to USD price.
func NewStatic(prices map[string]float64) *Static {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &Static{prices: cp}
}

func (s *Static) Quote(_ context.Context, assetID string) (Quote, error) {
	usd, ok := s.prices[assetID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, assetID)
	}
	return Quote{USD: usd, Source: "static"}, nil
}
