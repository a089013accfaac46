package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStats_PicksBestPairByLiquidity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/addr1", r.URL.Path)
		w.Write([]byte(`{"pairs":[
			{"baseToken":{"address":"addr1","symbol":"WIF"},"priceUsd":"1.50","liquidity":{"usd":1000},"volume":{"h24":5000},"priceChange":{"h24":2.5}},
			{"baseToken":{"address":"addr1","symbol":"WIF"},"priceUsd":"1.52","liquidity":{"usd":90000},"volume":{"h24":700000},"priceChange":{"h24":3.1}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	stats := c.TokenStats(context.Background(), "addr1")

	require.NotNil(t, stats)
	assert.Equal(t, SourceName, stats.Source)
	assert.Equal(t, "1.52", stats.PriceUSD.String())
	assert.Equal(t, "90000", stats.LiquidityUSD.String())
	assert.Equal(t, "3.1", stats.PriceChange24hPct.String())
}

func TestTokenStats_PartialFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[{"baseToken":{"address":"addr1","symbol":"WIF"},"priceUsd":"0.001"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	stats := c.TokenStats(context.Background(), "addr1")

	require.NotNil(t, stats)
	assert.Equal(t, "0.001", stats.PriceUSD.String())
	assert.Nil(t, stats.Volume24hUSD)
	assert.Nil(t, stats.LiquidityUSD)
}

func TestTokenStats_DegradesToNil(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http 500", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"pairs":`))
		}},
		{"no pairs", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"pairs":[]}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL})
			assert.Nil(t, c.TokenStats(context.Background(), "addr1"))
		})
	}
}

func TestListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[
			{"baseToken":{"address":"addr1","symbol":"wif"}},
			{"baseToken":{"address":"","symbol":"GHOST"}},
			{"baseToken":{"address":"addr2","symbol":"bonk"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	gainers := NewGainersSource(c).Tokens(context.Background())
	require.Len(t, gainers, 2)
	assert.Equal(t, "WIF", gainers[0].Symbol)
	assert.Equal(t, "addr2", gainers[1].Address)

	fresh := NewNewPairsSource(c).Tokens(context.Background())
	assert.Len(t, fresh, 2)
}

func TestListings_EmptyOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	assert.Empty(t, NewGainersSource(c).Tokens(context.Background()))
	assert.Empty(t, NewNewPairsSource(c).Tokens(context.Background()))
}
