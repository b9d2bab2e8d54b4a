package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "matic-network", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd,eur", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"matic-network":{"usd":0.52,"eur":0.48,"usd_24h_change":-1.25}}`))
	}))
	defer srv.Close()

	q, err := NewClient(srv.URL+"/", time.Second).Quote(context.Background(), "matic-network")
	require.NoError(t, err)

	assert.Equal(t, 0.52, q.USD)
	require.NotNil(t, q.EUR)
	assert.Equal(t, 0.48, *q.EUR)
	require.NotNil(t, q.Change24h)
	assert.Equal(t, -1.25, *q.Change24h)
	assert.Nil(t, q.MarketCap)
	assert.Equal(t, "coingecko", q.Source)
}

func TestClient_MissingAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Quote(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Quote(context.Background(), "matic-network")
	assert.ErrorContains(t, err, "429")
}

func TestStatic(t *testing.T) {
	s := NewStatic(map[string]float64{"BEZ": 0.0015})

	q, err := s.Quote(context.Background(), "BEZ")
	require.NoError(t, err)
	assert.Equal(t, 0.0015, q.USD)

	_, err = s.Quote(context.Background(), "ETH")
	assert.ErrorIs(t, err, ErrNoQuote)
}
