package geckoterminal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pulse-trading/pulse/internal/adapters"
	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// GeckoTerminal — on-chain provider B: token detail plus a volume-ranked
// pools listing.
// ---------------------------------------------------------------------------

const (
	defaultBaseURL = "https://api.geckoterminal.com/api/v2"
	network        = "solana"
)

// SourceName identifies this provider in OnchainStats.
const SourceName = "geckoterminal"

// Config configures the GeckoTerminal client.
type Config struct {
	BaseURL string `yaml:"base_url"`
}

// Client talks to the GeckoTerminal API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a GeckoTerminal client.
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

type tokenResponse struct {
	Data struct {
		Attributes struct {
			PriceUSD       string `json:"price_usd"`
			VolumeUSD      struct {
				H24 string `json:"h24"`
			} `json:"volume_usd"`
			TotalReserveUSD string `json:"total_reserve_in_usd"`
			PriceChangePct  struct {
				H24 string `json:"h24"`
			} `json:"price_change_percentage"`
		} `json:"attributes"`
	} `json:"data"`
}

// TokenStats implements adapters.OnchainSource.
func (c *Client) TokenStats(ctx context.Context, address string) *adapters.OnchainStats {
	var resp tokenResponse
	endpoint := fmt.Sprintf("%s/networks/%s/tokens/%s", c.baseURL, network, url.PathEscape(address))
	if err := adapters.GetJSON(ctx, c.httpClient, endpoint, nil, &resp); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("geckoterminal: token detail failed")
		return nil
	}

	attrs := resp.Data.Attributes
	stats := &adapters.OnchainStats{Source: SourceName}
	stats.PriceUSD = parseDecimal(attrs.PriceUSD)
	stats.Volume24hUSD = parseDecimal(attrs.VolumeUSD.H24)
	stats.LiquidityUSD = parseDecimal(attrs.TotalReserveUSD)
	stats.PriceChange24hPct = parseDecimal(attrs.PriceChangePct.H24)

	// A response with nothing usable counts as a failure.
	if stats.PriceUSD == nil && stats.Volume24hUSD == nil && stats.LiquidityUSD == nil {
		return nil
	}
	return stats
}

func parseDecimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

type poolsResponse struct {
	Data []struct {
		Attributes struct {
			Name string `json:"name"` // "WIF / SOL"
		} `json:"attributes"`
		Relationships struct {
			BaseToken struct {
				Data struct {
					ID string `json:"id"` // "solana_<address>"
				} `json:"data"`
			} `json:"base_token"`
		} `json:"relationships"`
	} `json:"data"`
}

// TopVolumeSource ranks pools by 24h volume.
type TopVolumeSource struct{ client *Client }

// NewTopVolumeSource wraps a client as the volume-ranked listing.
func NewTopVolumeSource(client *Client) *TopVolumeSource { return &TopVolumeSource{client: client} }

// Name implements adapters.ListingSource.
func (s *TopVolumeSource) Name() string { return "geckoterminal_top_volume" }

// Tokens implements adapters.ListingSource.
func (s *TopVolumeSource) Tokens(ctx context.Context) []token.Token {
	var resp poolsResponse
	endpoint := fmt.Sprintf("%s/networks/%s/pools?sort=h24_volume_usd_desc", s.client.baseURL, network)
	if err := adapters.GetJSON(ctx, s.client.httpClient, endpoint, nil, &resp); err != nil {
		log.Warn().Err(err).Msg("geckoterminal: pools listing failed")
		return nil
	}

	tokens := make([]token.Token, 0, len(resp.Data))
	for _, pool := range resp.Data {
		addr := strings.TrimPrefix(pool.Relationships.BaseToken.Data.ID, network+"_")
		if addr == "" {
			continue
		}

		symbol, _, _ := strings.Cut(pool.Attributes.Name, " /")
		tokens = append(tokens, token.New(addr, symbol))
	}
	return tokens
}
