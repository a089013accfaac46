package universe

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulse-trading/pulse/internal/adapters"
	"github.com/pulse-trading/pulse/internal/token"
)

type fakeListing struct {
	name   string
	tokens []token.Token
}

func (f *fakeListing) Name() string                           { return f.name }
func (f *fakeListing) Tokens(_ context.Context) []token.Token { return f.tokens }

type fakeWatchlist struct {
	tokens []token.Token
	err    error
}

func (f *fakeWatchlist) Fetch(_ context.Context) ([]token.Token, error) {
	return f.tokens, f.err
}

func listing(name string, toks ...token.Token) adapters.ListingSource {
	return &fakeListing{name: name, tokens: toks}
}

func TestBuild_DeduplicatesByAddress(t *testing.T) {
	b := NewBuilder(Config{},
		&fakeWatchlist{tokens: []token.Token{token.New("addr1", "WIF")}},
		[]adapters.ListingSource{
			listing("a", token.New("addr1", "WIFDUPE"), token.New("addr2", "BONK")),
			listing("b", token.New("addr2", "BONKDUPE"), token.New("addr3", "JUP")),
		})

	tokens := b.Build(context.Background())

	assert.Len(t, tokens, 3)
	seen := make(map[string]bool)
	for _, tok := range tokens {
		assert.NotEmpty(t, tok.Address)
		assert.False(t, seen[tok.Address], "duplicate address %s", tok.Address)
		seen[tok.Address] = true
	}
	// First-seen token wins: the watchlist symbol survives.
	assert.Equal(t, "WIF", tokens[0].Symbol)
	assert.Equal(t, "BONK", tokens[1].Symbol)
}

func TestBuild_PriorityIsConfiguredOrder(t *testing.T) {
	b := NewBuilder(Config{},
		&fakeWatchlist{},
		[]adapters.ListingSource{
			listing("first", token.New("addr9", "FIRST")),
			listing("second", token.New("addr9", "SECOND")),
		})

	tokens := b.Build(context.Background())

	var got *token.Token
	for i := range tokens {
		if tokens[i].Address == "addr9" {
			got = &tokens[i]
		}
	}
	assert.NotNil(t, got)
	assert.Equal(t, "FIRST", got.Symbol)
}

func TestBuild_CapsAtMaxUnique(t *testing.T) {
	var many []token.Token
	for i := 0; i < 50; i++ {
		many = append(many, token.New(fmt.Sprintf("addr%d", i), fmt.Sprintf("T%d", i)))
	}

	b := NewBuilder(Config{MaxUnique: 10}, &fakeWatchlist{}, []adapters.ListingSource{listing("big", many...)})
	tokens := b.Build(context.Background())
	assert.Len(t, tokens, 10)
}

func TestBuild_StaticTokensAheadOfAdapters(t *testing.T) {
	b := NewBuilder(Config{
		IncludeStatic: true,
		StaticTokens:  []token.Token{token.New("addrS", "STATIC")},
	},
		&fakeWatchlist{},
		[]adapters.ListingSource{listing("a", token.New("addrS", "ADAPTER"))})

	tokens := b.Build(context.Background())

	for _, tok := range tokens {
		if tok.Address == "addrS" {
			assert.Equal(t, "STATIC", tok.Symbol)
			return
		}
	}
	t.Fatal("static token missing from universe")
}

func TestWatchlist_FallbackChain(t *testing.T) {
	ctx := context.Background()

	// Live source wins.
	live := NewBuilder(Config{}, &fakeWatchlist{tokens: []token.Token{token.New("addrL", "LIVE")}}, nil)
	assert.Equal(t, "LIVE", live.Watchlist(ctx)[0].Symbol)

	// Live failure falls back to the env list.
	envList := []token.Token{token.New("addrE", "ENV")}
	env := NewBuilder(Config{WatchlistFallback: envList}, &fakeWatchlist{err: errors.New("down")}, nil)
	assert.Equal(t, "ENV", env.Watchlist(ctx)[0].Symbol)

	// No live source and no env list falls back to the hardcoded default.
	def := NewBuilder(Config{}, nil, nil)
	assert.Equal(t, token.DefaultWatchlist(), def.Watchlist(ctx))
}
