package universe

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pulse-trading/pulse/internal/adapters"
	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// Token universe builder — merges watchlist, static config, and listing
// adapters into one deduplicated set, keyed by address.
// ---------------------------------------------------------------------------

// DefaultMaxUnique caps the universe size per discovery cycle.
const DefaultMaxUnique = 120

// WatchlistSource provides the live watchlist. It may fail; the builder then
// falls back to the env-configured list, then the hardcoded default.
type WatchlistSource interface {
	Fetch(ctx context.Context) ([]token.Token, error)
}

// Config configures the builder.
type Config struct {
	// MaxUnique caps the merged universe. Zero means DefaultMaxUnique.
	MaxUnique int

	// IncludeStatic merges the static token set ahead of adapter results.
	IncludeStatic bool

	// StaticTokens is the env-configured static set (PULSE_STATIC_TOKENS).
	StaticTokens []token.Token

	// WatchlistFallback is the env-configured watchlist (PULSE_WATCHLIST_TOKENS),
	// used when the live watchlist source fails.
	WatchlistFallback []token.Token
}

// Builder assembles the global token universe. Merge priority is the order
// of the sources slice — deliberately configuration, not call order, so the
// first-seen-wins policy is testable.
type Builder struct {
	config    Config
	watchlist WatchlistSource // may be nil
	sources   []adapters.ListingSource
}

// NewBuilder creates a universe builder with listing sources in priority order.
func NewBuilder(config Config, watchlist WatchlistSource, sources []adapters.ListingSource) *Builder {
	if config.MaxUnique <= 0 {
		config.MaxUnique = DefaultMaxUnique
	}
	return &Builder{
		config:    config,
		watchlist: watchlist,
		sources:   sources,
	}
}

// Watchlist resolves the effective watchlist: live source, else the env
// fallback, else the hardcoded default. Never empty, never fails.
func (b *Builder) Watchlist(ctx context.Context) []token.Token {
	if b.watchlist != nil {
		live, err := b.watchlist.Fetch(ctx)
		if err == nil && len(live) > 0 {
			return live
		}
		if err != nil {
			log.Warn().Err(err).Msg("universe: live watchlist failed, using fallback")
		}
	}
	if len(b.config.WatchlistFallback) > 0 {
		return b.config.WatchlistFallback
	}
	return token.DefaultWatchlist()
}

// Build assembles the deduplicated universe. Listing sources are fetched
// concurrently but merged strictly in priority order: watchlist and static
// tokens first, then each source's results. The first token seen for an
// address wins — its symbol is kept even if a later duplicate resolves
// better. The result is capped at MaxUnique and every address is non-empty.
func (b *Builder) Build(ctx context.Context) []token.Token {
	results := make([][]token.Token, len(b.sources))
	var wg sync.WaitGroup

	var watchlist []token.Token
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchlist = b.Watchlist(ctx)
	}()

	for i, src := range b.sources {
		wg.Add(1)
		go func(i int, src adapters.ListingSource) {
			defer wg.Done()
			results[i] = src.Tokens(ctx)
		}(i, src)
	}
	wg.Wait()

	seen := make(map[string]bool, b.config.MaxUnique)
	merged := make([]token.Token, 0, b.config.MaxUnique)

	add := func(toks []token.Token) {
		for _, tok := range toks {
			if len(merged) >= b.config.MaxUnique {
				return
			}
			if tok.Address == "" || seen[tok.Address] {
				continue
			}
			seen[tok.Address] = true
			merged = append(merged, tok)
		}
	}

	add(watchlist)
	if b.config.IncludeStatic {
		add(b.config.StaticTokens)
	}
	for i, toks := range results {
		add(toks)
		log.Debug().Str("source", b.sources[i].Name()).Int("tokens", len(toks)).Msg("universe: source merged")
	}

	log.Info().Int("universe", len(merged)).Msg("universe: built")
	return merged
}
