package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pulse-trading/pulse/internal/adapters"
	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// Context builder — assembles the deterministic natural-language block fed
// to the sentiment model. Given identical adapter responses, two builds
// produce byte-identical context strings.
// ---------------------------------------------------------------------------

const (
	maxSnippets   = 4
	maxSnippetLen = 220

	onchainDisclaimer = "Onchain: no live data from any provider; treat sentiment with conservative confidence."
	socialDisclaimer  = "Social: no live mentions found."
	guidanceLine      = "Guidance: if the context above is thin or missing live data, lower confidence accordingly."
)

// SocialSummary reports aggregated social activity for a token.
type SocialSummary struct {
	Total  int      `json:"total"`
	Sample []string `json:"sample"`
}

// TokenContext is the composed context plus structured metadata about which
// sources contributed.
type TokenContext struct {
	Context      string                 `json:"context"`
	Onchain      *adapters.OnchainStats `json:"onchain"`
	Social       SocialSummary          `json:"social"`
	WatchlistHit bool                   `json:"watchlistHit"`
}

// Builder fans out to on-chain and social sources and composes the context
// block. On-chain sources are an ordered priority list: the first non-nil
// result wins outright, results are never merged.
type Builder struct {
	onchain []adapters.OnchainSource
	social  []adapters.SocialSource
}

// NewBuilder creates a context builder with sources in priority order.
func NewBuilder(onchain []adapters.OnchainSource, social []adapters.SocialSource) *Builder {
	return &Builder{onchain: onchain, social: social}
}

// Build composes the context for one token. All source fetches run
// concurrently; adapter failures surface as absent sections, never errors.
// watchlist membership matches on address or sanitized symbol.
func (b *Builder) Build(ctx context.Context, tok token.Token, watchlist []token.Token) *TokenContext {
	onchainResults := make([]*adapters.OnchainStats, len(b.onchain))
	socialResults := make([][]adapters.Mention, len(b.social))

	var wg sync.WaitGroup
	for i, src := range b.onchain {
		wg.Add(1)
		go func(i int, src adapters.OnchainSource) {
			defer wg.Done()
			onchainResults[i] = src.TokenStats(ctx, tok.Address)
		}(i, src)
	}
	for i, src := range b.social {
		wg.Add(1)
		go func(i int, src adapters.SocialSource) {
			defer wg.Done()
			socialResults[i] = src.Mentions(ctx, tok)
		}(i, src)
	}
	wg.Wait()

	// First non-nil on-chain result by priority.
	var onchain *adapters.OnchainStats
	for _, r := range onchainResults {
		if r != nil {
			onchain = r
			break
		}
	}

	// Social results merge in priority order.
	var mentions []adapters.Mention
	for _, r := range socialResults {
		mentions = append(mentions, r...)
	}

	hit := watchlistHit(tok, watchlist)

	lines := []string{
		fmt.Sprintf("Token: %s (%s)", tok.Symbol, tok.Address),
		onchainLine(onchain),
	}
	if hit {
		lines = append(lines, "Watchlist: tracked token.")
	}
	lines = append(lines, socialLine(mentions))
	lines = append(lines, guidanceLine)

	return &TokenContext{
		Context:      strings.Join(lines, "\n"),
		Onchain:      onchain,
		Social:       socialSummary(mentions),
		WatchlistHit: hit,
	}
}

func watchlistHit(tok token.Token, watchlist []token.Token) bool {
	symbol := token.SanitizeSymbol(tok.Symbol)
	for _, w := range watchlist {
		if w.Address == tok.Address {
			return true
		}
		if symbol != token.UnknownSymbol && token.SanitizeSymbol(w.Symbol) == symbol {
			return true
		}
	}
	return false
}

func onchainLine(stats *adapters.OnchainStats) string {
	if stats == nil {
		return onchainDisclaimer
	}
	return fmt.Sprintf("Onchain [%s]: price=%s | 24h=%s | vol24h=%s | liq=%s",
		stats.Source,
		fmtUSD(stats.PriceUSD),
		fmtPct(stats.PriceChange24hPct),
		fmtUSD(stats.Volume24hUSD),
		fmtUSD(stats.LiquidityUSD),
	)
}

func fmtUSD(d *decimal.Decimal) string {
	if d == nil {
		return "n/a"
	}
	return "$" + d.String()
}

func fmtPct(d *decimal.Decimal) string {
	if d == nil {
		return "n/a"
	}
	if d.IsNegative() {
		return d.String() + "%"
	}
	return "+" + d.String() + "%"
}

func socialLine(mentions []adapters.Mention) string {
	if len(mentions) == 0 {
		return socialDisclaimer
	}

	sample := make([]string, 0, maxSnippets)
	for _, m := range mentions {
		if len(sample) >= maxSnippets {
			break
		}
		sample = append(sample, snippet(m))
	}
	return fmt.Sprintf("Social (%d): %s", len(mentions), strings.Join(sample, " | "))
}

// snippet renders one mention as a single truncated line with an optional
// score suffix.
func snippet(m adapters.Mention) string {
	text := strings.Join(strings.Fields(m.Text), " ")
	runes := []rune(text)
	if len(runes) > maxSnippetLen {
		text = string(runes[:maxSnippetLen])
	}
	if m.Score != nil {
		return fmt.Sprintf("%s (score:%.2f)", text, *m.Score)
	}
	return text
}

func socialSummary(mentions []adapters.Mention) SocialSummary {
	summary := SocialSummary{Total: len(mentions)}
	for _, m := range mentions {
		if len(summary.Sample) >= maxSnippets {
			break
		}
		summary.Sample = append(summary.Sample, snippet(m))
	}
	return summary
}
