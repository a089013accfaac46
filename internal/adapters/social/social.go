package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pulse-trading/pulse/internal/adapters"
	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// Social mention adapters: a generic mention-search provider and a
// microblog-specific search. A missing base URL short-circuits to an empty
// result without any network call.
// ---------------------------------------------------------------------------

// MentionSearchConfig configures the generic mention-search provider.
type MentionSearchConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// MentionSearch queries a generic crypto-mentions aggregator.
type MentionSearch struct {
	config     MentionSearchConfig
	httpClient *http.Client
}

// NewMentionSearch creates the generic mention-search adapter.
func NewMentionSearch(config MentionSearchConfig) *MentionSearch {
	return &MentionSearch{
		config:     config,
		httpClient: adapters.NewHTTPClient(),
	}
}

// Name implements adapters.SocialSource.
func (s *MentionSearch) Name() string { return "mention_search" }

type mentionsResponse struct {
	Mentions []struct {
		Text  string   `json:"text"`
		Score *float64 `json:"score"`
	} `json:"mentions"`
}

// Mentions implements adapters.SocialSource.
func (s *MentionSearch) Mentions(ctx context.Context, tok token.Token) []adapters.Mention {
	if s.config.BaseURL == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/mentions?q=%s", s.config.BaseURL, url.QueryEscape(tok.Symbol))
	headers := map[string]string{}
	if s.config.APIKey != "" {
		headers["X-API-Key"] = s.config.APIKey
	}

	var resp mentionsResponse
	if err := adapters.GetJSON(ctx, s.httpClient, endpoint, headers, &resp); err != nil {
		log.Warn().Err(err).Str("symbol", tok.Symbol).Msg("mention_search: query failed")
		return nil
	}

	mentions := make([]adapters.Mention, 0, len(resp.Mentions))
	for _, m := range resp.Mentions {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		mentions = append(mentions, adapters.Mention{Text: text, Score: m.Score})
	}
	return mentions
}

// MicroblogConfig configures the microblog search provider.
type MicroblogConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token"`
}

// Microblog queries a microblog recent-search endpoint.
type Microblog struct {
	config     MicroblogConfig
	httpClient *http.Client
}

// NewMicroblog creates the microblog search adapter.
func NewMicroblog(config MicroblogConfig) *Microblog {
	return &Microblog{
		config:     config,
		httpClient: adapters.NewHTTPClient(),
	}
}

// Name implements adapters.SocialSource.
func (s *Microblog) Name() string { return "microblog" }

type microblogResponse struct {
	Data []struct {
		Text string `json:"text"`
	} `json:"data"`
}

// Mentions implements adapters.SocialSource. Searches both the cashtag and
// the raw address so freshly launched tokens without a known symbol still
// surface chatter.
func (s *Microblog) Mentions(ctx context.Context, tok token.Token) []adapters.Mention {
	if s.config.BaseURL == "" {
		return nil
	}

	query := "$" + tok.Symbol
	if tok.Symbol == token.UnknownSymbol {
		query = tok.Address
	}
	endpoint := fmt.Sprintf("%s/2/tweets/search/recent?query=%s", s.config.BaseURL, url.QueryEscape(query))

	headers := map[string]string{}
	if s.config.BearerToken != "" {
		headers["Authorization"] = "Bearer " + s.config.BearerToken
	}

	var resp microblogResponse
	if err := adapters.GetJSON(ctx, s.httpClient, endpoint, headers, &resp); err != nil {
		log.Warn().Err(err).Str("symbol", tok.Symbol).Msg("microblog: search failed")
		return nil
	}

	mentions := make([]adapters.Mention, 0, len(resp.Data))
	for _, d := range resp.Data {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		mentions = append(mentions, adapters.Mention{Text: text})
	}
	return mentions
}
