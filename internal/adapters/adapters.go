package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// Source adapter contracts. Every adapter degrades to a nil/empty result on
// any failure (non-2xx, network error, parse error, malformed schema) and
// logs a warning — upstream faults never propagate past this boundary.
// ---------------------------------------------------------------------------

// RequestTimeout is the hard ceiling on every outbound adapter call.
const RequestTimeout = 8 * time.Second

// OnchainStats is the normalized on-chain detail for a token. Absent fields
// stay nil and render as "n/a" downstream.
type OnchainStats struct {
	PriceUSD          *decimal.Decimal `json:"priceUsd,omitempty"`
	Volume24hUSD      *decimal.Decimal `json:"volume24hUsd,omitempty"`
	LiquidityUSD      *decimal.Decimal `json:"liquidityUsd,omitempty"`
	PriceChange24hPct *decimal.Decimal `json:"priceChange24hPct,omitempty"`
	Source            string           `json:"source"`
}

// Mention is a single social mention, already filtered for non-empty text.
type Mention struct {
	Text  string   `json:"text"`
	Score *float64 `json:"score,omitempty"`
}

// OnchainSource fetches normalized on-chain detail for one token.
type OnchainSource interface {
	Name() string
	// TokenStats returns nil on any failure.
	TokenStats(ctx context.Context, address string) *OnchainStats
}

// ListingSource discovers candidate tokens (gainers, new pairs, top volume).
type ListingSource interface {
	Name() string
	// Tokens returns an empty slice on any failure.
	Tokens(ctx context.Context) []token.Token
}

// SocialSource searches live mentions for a token.
type SocialSource interface {
	Name() string
	// Mentions returns an empty slice on any failure.
	Mentions(ctx context.Context, tok token.Token) []Mention
}

// NewHTTPClient returns the shared adapter HTTP client with the hard timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: RequestTimeout}
}

// GetJSON performs a GET and decodes the 2xx JSON body into out.
func GetJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
