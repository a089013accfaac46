package enrich

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-trading/pulse/internal/adapters"
	"github.com/pulse-trading/pulse/internal/token"
)

type fakeOnchain struct {
	name  string
	stats *adapters.OnchainStats
}

func (f *fakeOnchain) Name() string { return f.name }
func (f *fakeOnchain) TokenStats(_ context.Context, _ string) *adapters.OnchainStats {
	return f.stats
}

type fakeSocial struct {
	name     string
	mentions []adapters.Mention
}

func (f *fakeSocial) Name() string { return f.name }
func (f *fakeSocial) Mentions(_ context.Context, _ token.Token) []adapters.Mention {
	return f.mentions
}

func dec(s string) *decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return &d
}

func fullStats(source string) *adapters.OnchainStats {
	return &adapters.OnchainStats{
		PriceUSD:          dec("1.52"),
		Volume24hUSD:      dec("700000"),
		LiquidityUSD:      dec("90000"),
		PriceChange24hPct: dec("3.1"),
		Source:            source,
	}
}

func TestBuild_ContainsAddressAndSymbol(t *testing.T) {
	b := NewBuilder(
		[]adapters.OnchainSource{&fakeOnchain{name: "a", stats: fullStats("a")}},
		[]adapters.SocialSource{&fakeSocial{name: "s"}},
	)

	tc := b.Build(context.Background(), token.New("addr1", "WIF"), nil)

	assert.Contains(t, tc.Context, "addr1")
	assert.Contains(t, tc.Context, "WIF")
	assert.True(t, strings.HasPrefix(tc.Context, "Token: WIF (addr1)"))
}

func TestBuild_OnchainPriorityFirstNonNilWins(t *testing.T) {
	b := NewBuilder(
		[]adapters.OnchainSource{
			&fakeOnchain{name: "a", stats: nil},
			&fakeOnchain{name: "b", stats: fullStats("b")},
		},
		nil,
	)

	tc := b.Build(context.Background(), token.New("addr1", "WIF"), nil)

	require.NotNil(t, tc.Onchain)
	assert.Equal(t, "b", tc.Onchain.Source)
	assert.Contains(t, tc.Context, "Onchain [b]: price=$1.52 | 24h=+3.1% | vol24h=$700000 | liq=$90000")
}

func TestBuild_BothOnchainFail(t *testing.T) {
	b := NewBuilder(
		[]adapters.OnchainSource{
			&fakeOnchain{name: "a"},
			&fakeOnchain{name: "b"},
		},
		nil,
	)

	tc := b.Build(context.Background(), token.New("addr1", "WIF"), nil)

	assert.Nil(t, tc.Onchain)
	assert.Contains(t, tc.Context, "conservative confidence")
}

func TestBuild_MissingFieldsRenderNA(t *testing.T) {
	stats := &adapters.OnchainStats{PriceUSD: dec("0.001"), Source: "a"}
	b := NewBuilder([]adapters.OnchainSource{&fakeOnchain{name: "a", stats: stats}}, nil)

	tc := b.Build(context.Background(), token.New("addr1", "WIF"), nil)
	assert.Contains(t, tc.Context, "price=$0.001 | 24h=n/a | vol24h=n/a | liq=n/a")
}

func TestBuild_NegativeChangeKeepsSign(t *testing.T) {
	stats := &adapters.OnchainStats{PriceChange24hPct: dec("-4.2"), Source: "a"}
	b := NewBuilder([]adapters.OnchainSource{&fakeOnchain{name: "a", stats: stats}}, nil)

	tc := b.Build(context.Background(), token.New("addr1", "WIF"), nil)
	assert.Contains(t, tc.Context, "24h=-4.2%")
}

func TestBuild_SocialSummary(t *testing.T) {
	score := 0.824
	mentions := []adapters.Mention{
		{Text: "WIF is pumping", Score: &score},
		{Text: "line\nwith\nnewlines"},
		{Text: "three"},
		{Text: "four"},
		{Text: "five"},
		{Text: "six"},
	}
	b := NewBuilder(nil, []adapters.SocialSource{&fakeSocial{name: "s", mentions: mentions}})

	tc := b.Build(context.Background(), token.New("addr1", "WIF"), nil)

	assert.Equal(t, 6, tc.Social.Total)
	assert.Len(t, tc.Social.Sample, 4)
	assert.Contains(t, tc.Context, "Social (6): WIF is pumping (score:0.82) | line with newlines | three | four")
	assert.NotContains(t, tc.Context, "five")
}

func TestBuild_SnippetTruncated(t *testing.T) {
	long := strings.Repeat("x", 500)
	b := NewBuilder(nil, []adapters.SocialSource{&fakeSocial{name: "s", mentions: []adapters.Mention{{Text: long}}}})

	tc := b.Build(context.Background(), token.New("addr1", "WIF"), nil)
	assert.Contains(t, tc.Context, strings.Repeat("x", 220))
	assert.NotContains(t, tc.Context, strings.Repeat("x", 221))
}

func TestBuild_NoMentionsDisclaimer(t *testing.T) {
	b := NewBuilder(nil, []adapters.SocialSource{&fakeSocial{name: "s"}})

	tc := b.Build(context.Background(), token.New("addr1", "WIF"), nil)
	assert.Equal(t, 0, tc.Social.Total)
	assert.Contains(t, tc.Context, "no live mentions")
}

func TestBuild_WatchlistHit(t *testing.T) {
	watchlist := []token.Token{token.New("addrW", "wif"), token.New("addrX", "BONK")}
	b := NewBuilder(nil, nil)

	byAddress := b.Build(context.Background(), token.New("addrX", "SOMETHING"), watchlist)
	assert.True(t, byAddress.WatchlistHit)

	bySymbol := b.Build(context.Background(), token.New("addrZ", "WIF"), watchlist)
	assert.True(t, bySymbol.WatchlistHit)
	assert.Contains(t, bySymbol.Context, "Watchlist: tracked token.")

	miss := b.Build(context.Background(), token.New("addrZ", "JUP"), watchlist)
	assert.False(t, miss.WatchlistHit)
	assert.NotContains(t, miss.Context, "Watchlist:")
}

func TestBuild_Deterministic(t *testing.T) {
	score := 0.5
	b := NewBuilder(
		[]adapters.OnchainSource{&fakeOnchain{name: "a", stats: fullStats("a")}},
		[]adapters.SocialSource{
			&fakeSocial{name: "s1", mentions: []adapters.Mention{{Text: "one", Score: &score}}},
			&fakeSocial{name: "s2", mentions: []adapters.Mention{{Text: "two"}}},
		},
	)

	tok := token.New("addr1", "WIF")
	first := b.Build(context.Background(), tok, nil)
	second := b.Build(context.Background(), tok, nil)

	assert.Equal(t, first.Context, second.Context)
	assert.Equal(t, first.Social, second.Social)
}

func TestBuild_GuidanceLineAlwaysLast(t *testing.T) {
	b := NewBuilder(nil, nil)
	tc := b.Build(context.Background(), token.New("addr1", "WIF"), nil)

	lines := strings.Split(tc.Context, "\n")
	assert.Contains(t, lines[len(lines)-1], "lower confidence")
}
