package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-trading/pulse/internal/token"
)

func validSnapshot() *Snapshot {
	s := &Snapshot{
		Score:      75,
		Label:      LabelStrongBull,
		Confidence: 85,
		OneLiner:   "Strong momentum with growing social traction.",
		TopSnippet: "Mentions up sharply over the last 24h.",
		CTA:        CTADca,
	}
	s.ValidationHash = ValidationHash(s)
	return s
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		valid  bool
	}{
		{"valid", func(s *Snapshot) {}, true},
		{"score too high", func(s *Snapshot) { s.Score = 101 }, false},
		{"score too low", func(s *Snapshot) { s.Score = -101 }, false},
		{"confidence below floor", func(s *Snapshot) { s.Confidence = 50 }, false},
		{"confidence above cap", func(s *Snapshot) { s.Confidence = 101 }, false},
		{"unknown label", func(s *Snapshot) { s.Label = "SIDEWAYS" }, false},
		{"unknown cta", func(s *Snapshot) { s.CTA = "HODL" }, false},
		{"empty one_liner", func(s *Snapshot) { s.OneLiner = "" }, false},
		{"empty top_snippet", func(s *Snapshot) { s.TopSnippet = "" }, false},
		{"missing hash", func(s *Snapshot) { s.ValidationHash = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSnapshot()
			tt.mutate(s)
			err := s.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// The 240/800 limits count characters, not bytes. A one-liner of 240
// multi-byte runes is well over 240 bytes and must still validate.
func TestSnapshot_Validate_RuneLimits(t *testing.T) {
	s := validSnapshot()
	s.OneLiner = strings.Repeat("ü", 240)
	s.TopSnippet = strings.Repeat("ü", 800)
	s.ValidationHash = ValidationHash(s)
	assert.NoError(t, s.Validate())

	s.OneLiner = strings.Repeat("ü", 241)
	s.ValidationHash = ValidationHash(s)
	assert.Error(t, s.Validate())

	s.OneLiner = "ok"
	s.TopSnippet = strings.Repeat("ü", 801)
	s.ValidationHash = ValidationHash(s)
	assert.Error(t, s.Validate())
}

func TestValidationHash_Deterministic(t *testing.T) {
	a := validSnapshot()
	b := validSnapshot()
	assert.Equal(t, ValidationHash(a), ValidationHash(b))
	assert.Len(t, ValidationHash(a), 64) // hex sha256

	// Hash ignores fields outside the scored payload.
	b.TS = 12345
	b.Source = SourceGrok
	assert.Equal(t, ValidationHash(a), ValidationHash(b))

	// But covers every scored field.
	b.Score = 74
	assert.NotEqual(t, ValidationHash(a), ValidationHash(b))
}

func TestSnapshot_VerifyHash(t *testing.T) {
	s := validSnapshot()
	assert.True(t, s.VerifyHash())

	s.ValidationHash = "deadbeef"
	assert.False(t, s.VerifyHash())
}

// grokServer returns a test server that always responds with the given
// message content wrapped in a chat-completions envelope.
func grokServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func grokContent(t *testing.T, s *Snapshot) string {
	t.Helper()
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	return string(raw)
}

func TestGrokClient_ValidResponse(t *testing.T) {
	srv := grokServer(t, grokContent(t, validSnapshot()))
	defer srv.Close()

	c := NewGrokClient(GrokConfig{APIURL: srv.URL, APIKey: "test-key"})
	snap := c.FetchSentiment(context.Background(), token.New("addr1", "WIF"), "some context")

	require.NotNil(t, snap)
	assert.Equal(t, SourceGrok, snap.Source)
	assert.Equal(t, 75.0, snap.Score)
	assert.NotZero(t, snap.TS)
}

func TestGrokClient_CodeFencedResponse(t *testing.T) {
	content := "```json\n" + grokContent(t, validSnapshot()) + "\n```"
	srv := grokServer(t, content)
	defer srv.Close()

	c := NewGrokClient(GrokConfig{APIURL: srv.URL, APIKey: "test-key"})
	snap := c.FetchSentiment(context.Background(), token.New("addr1", "WIF"), "ctx")
	assert.NotNil(t, snap)
}

func TestGrokClient_HashMismatch(t *testing.T) {
	s := validSnapshot()
	s.ValidationHash = "0000000000000000000000000000000000000000000000000000000000000000"
	srv := grokServer(t, grokContent(t, s))
	defer srv.Close()

	c := NewGrokClient(GrokConfig{APIURL: srv.URL, APIKey: "test-key"})
	assert.Nil(t, c.FetchSentiment(context.Background(), token.New("addr1", "WIF"), "ctx"))
}

func TestGrokClient_OutOfRangeConfidence(t *testing.T) {
	s := validSnapshot()
	s.Confidence = 50
	s.ValidationHash = ValidationHash(s) // self-consistent hash, still invalid range
	srv := grokServer(t, grokContent(t, s))
	defer srv.Close()

	c := NewGrokClient(GrokConfig{APIURL: srv.URL, APIKey: "test-key"})
	assert.Nil(t, c.FetchSentiment(context.Background(), token.New("addr1", "WIF"), "ctx"))
}

func TestGrokClient_OutOfRangeScore(t *testing.T) {
	s := validSnapshot()
	s.Score = 150
	s.ValidationHash = ValidationHash(s)
	srv := grokServer(t, grokContent(t, s))
	defer srv.Close()

	c := NewGrokClient(GrokConfig{APIURL: srv.URL, APIKey: "test-key"})
	assert.Nil(t, c.FetchSentiment(context.Background(), token.New("addr1", "WIF"), "ctx"))
}

func TestGrokClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewGrokClient(GrokConfig{APIURL: srv.URL, APIKey: "test-key"})
	assert.Nil(t, c.FetchSentiment(context.Background(), token.New("addr1", "WIF"), "ctx"))
}

func TestGrokClient_GarbageContent(t *testing.T) {
	srv := grokServer(t, "the vibes are immaculate, ser")
	defer srv.Close()

	c := NewGrokClient(GrokConfig{APIURL: srv.URL, APIKey: "test-key"})
	assert.Nil(t, c.FetchSentiment(context.Background(), token.New("addr1", "WIF"), "ctx"))
}

func TestGrokClient_NoAPIKey(t *testing.T) {
	c := NewGrokClient(GrokConfig{APIURL: "http://localhost:1"})
	assert.False(t, c.Configured())
	assert.Nil(t, c.FetchSentiment(context.Background(), token.New("addr1", "WIF"), "ctx"))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
}

func TestKeywordFallback_Deterministic(t *testing.T) {
	tok := token.New("addr1", "WIF")
	text := "moon pump but some fud around"

	a := KeywordFallback(tok, text)
	b := KeywordFallback(tok, text)

	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Label, b.Label)
	assert.Equal(t, a.CTA, b.CTA)
	assert.Equal(t, a.ValidationHash, b.ValidationHash)
}

func TestKeywordFallback_Bullish(t *testing.T) {
	snap := KeywordFallback(token.New("addr1", "WIF"), "moon pump viral hype everywhere")
	assert.Greater(t, snap.Score, 0.0)
	assert.Contains(t, []Label{LabelMoon, LabelStrongBull, LabelBull}, snap.Label)
	assert.True(t, snap.LowConfidence)
	assert.Equal(t, SourceFallback, snap.Source)
}

func TestKeywordFallback_Bearish(t *testing.T) {
	snap := KeywordFallback(token.New("addr1", "WIF"), "looks like a rug, everyone dump")
	assert.Less(t, snap.Score, 0.0)
	assert.Contains(t, []Label{LabelBear, LabelStrongBear, LabelRug}, snap.Label)
}

func TestKeywordFallback_AlwaysValid(t *testing.T) {
	texts := []string{"", "neutral text", "moon moon moon moon moon moon", "rug rug rug rug"}
	for i, text := range texts {
		snap := KeywordFallback(token.New(fmt.Sprintf("addr%d", i), "TOK"), text)
		assert.NoError(t, snap.Validate())
		assert.True(t, snap.VerifyHash())
	}
}

func TestKeywordFallback_SnippetTruncatesOnRunes(t *testing.T) {
	text := strings.Repeat("ü", 900)
	snap := KeywordFallback(token.New("addr1", "WIF"), text)

	assert.Equal(t, 800, utf8.RuneCountInString(snap.TopSnippet))
	// Truncation must never split a rune.
	assert.True(t, utf8.ValidString(snap.TopSnippet))
	assert.NoError(t, snap.Validate())
}

func TestKeywordScore_Clamped(t *testing.T) {
	bull := ""
	for i := 0; i < 50; i++ {
		bull += "moon pump "
	}
	assert.Equal(t, 100.0, KeywordScore(bull))

	bear := ""
	for i := 0; i < 50; i++ {
		bear += "rug dump "
	}
	assert.Equal(t, -100.0, KeywordScore(bear))
}

func TestLabelForScore_Boundaries(t *testing.T) {
	assert.Equal(t, LabelMoon, labelForScore(75))
	assert.Equal(t, LabelStrongBull, labelForScore(50))
	assert.Equal(t, LabelBull, labelForScore(20))
	assert.Equal(t, LabelNeutral, labelForScore(0))
	assert.Equal(t, LabelBear, labelForScore(-20))
	assert.Equal(t, LabelStrongBear, labelForScore(-50))
	assert.Equal(t, LabelRug, labelForScore(-75))
}
