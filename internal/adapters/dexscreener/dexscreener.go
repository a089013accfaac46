package dexscreener

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pulse-trading/pulse/internal/adapters"
	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// DexScreener — on-chain provider A: token detail plus two listing feeds
// (gainers and new pairs).
// ---------------------------------------------------------------------------

const defaultBaseURL = "https://api.dexscreener.com"

// SourceName identifies this provider in OnchainStats.
const SourceName = "dexscreener"

// Config configures the DexScreener client.
type Config struct {
	BaseURL string `yaml:"base_url"`
}

// Client talks to the DexScreener API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a DexScreener client.
func NewClient(config Config) *Client {
	base := config.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL:    base,
		httpClient: adapters.NewHTTPClient(),
	}
}

// Name implements adapters.OnchainSource.
func (c *Client) Name() string { return SourceName }

// pairsResponse is the loosely-typed upstream shape shared by the detail and
// listing endpoints.
type pairsResponse struct {
	Pairs []pairEntry `json:"pairs"`
}

type pairEntry struct {
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD string `json:"priceUsd"`
	Volume   struct {
		H24 *float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
	PriceChange struct {
		H24 *float64 `json:"h24"`
	} `json:"priceChange"`
}

// TokenStats implements adapters.OnchainSource. The best pair by liquidity
// wins when a token trades on multiple pools.
func (c *Client) TokenStats(ctx context.Context, address string) *adapters.OnchainStats {
	var resp pairsResponse
	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, url.PathEscape(address))
	if err := adapters.GetJSON(ctx, c.httpClient, endpoint, nil, &resp); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("dexscreener: token detail failed")
		return nil
	}
	if len(resp.Pairs) == 0 {
		return nil
	}

	best := resp.Pairs[0]
	for _, p := range resp.Pairs[1:] {
		if liq(p) > liq(best) {
			best = p
		}
	}
	return statsFromPair(best)
}

func liq(p pairEntry) float64 {
	if p.Liquidity.USD == nil {
		return 0
	}
	return *p.Liquidity.USD
}

func statsFromPair(p pairEntry) *adapters.OnchainStats {
	stats := &adapters.OnchainStats{Source: SourceName}

	if p.PriceUSD != "" {
		if d, err := decimal.NewFromString(p.PriceUSD); err == nil {
			stats.PriceUSD = &d
		}
	}
	if p.Volume.H24 != nil {
		d := decimal.NewFromFloat(*p.Volume.H24)
		stats.Volume24hUSD = &d
	}
	if p.Liquidity.USD != nil {
		d := decimal.NewFromFloat(*p.Liquidity.USD)
		stats.LiquidityUSD = &d
	}
	if p.PriceChange.H24 != nil {
		d := decimal.NewFromFloat(*p.PriceChange.H24)
		stats.PriceChange24hPct = &d
	}
	return stats
}

// fetchListing fetches a pairs feed and normalizes it into tokens, dropping
// entries without a base-token address.
func (c *Client) fetchListing(ctx context.Context, path, feed string) []token.Token {
	var resp pairsResponse
	if err := adapters.GetJSON(ctx, c.httpClient, c.baseURL+path, nil, &resp); err != nil {
		log.Warn().Err(err).Str("feed", feed).Msg("dexscreener: listing failed")
		return nil
	}

	tokens := make([]token.Token, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		if p.BaseToken.Address == "" {
			continue
		}
		tokens = append(tokens, token.New(p.BaseToken.Address, p.BaseToken.Symbol))
	}
	return tokens
}

// GainersSource lists the top-gaining pairs.
type GainersSource struct{ client *Client }

// NewGainersSource wraps a client as the gainers listing.
func NewGainersSource(client *Client) *GainersSource { return &GainersSource{client: client} }

// Name implements adapters.ListingSource.
func (s *GainersSource) Name() string { return "dexscreener_gainers" }

// Tokens implements adapters.ListingSource.
func (s *GainersSource) Tokens(ctx context.Context) []token.Token {
	return s.client.fetchListing(ctx, "/latest/dex/pairs/solana/gainers", "gainers")
}

// NewPairsSource lists freshly created pairs.
type NewPairsSource struct{ client *Client }

// NewNewPairsSource wraps a client as the new-pairs listing.
func NewNewPairsSource(client *Client) *NewPairsSource { return &NewPairsSource{client: client} }

// Name implements adapters.ListingSource.
func (s *NewPairsSource) Name() string { return "dexscreener_new_pairs" }

// Tokens implements adapters.ListingSource.
func (s *NewPairsSource) Tokens(ctx context.Context) []token.Token {
	return s.client.fetchListing(ctx, "/latest/dex/pairs/solana/new", "new_pairs")
}
