package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// Grok client — remote sentiment model with strict response validation.
// Returns nil on ANY failure; the caller decides whether to fall back.
// ---------------------------------------------------------------------------

const (
	defaultGrokURL   = "https://api.x.ai/v1/chat/completions"
	defaultGrokModel = "grok-2-latest"

	grokTimeout = 10 * time.Second
)

// GrokConfig configures the Grok sentiment client.
type GrokConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// GrokClient talks to the remote sentiment model.
type GrokClient struct {
	config     GrokConfig
	httpClient *http.Client
}

// NewGrokClient creates a Grok sentiment client.
func NewGrokClient(config GrokConfig) *GrokClient {
	if config.APIURL == "" {
		config.APIURL = defaultGrokURL
	}
	if config.Model == "" {
		config.Model = defaultGrokModel
	}
	return &GrokClient{
		config: config,
		httpClient: &http.Client{
			Timeout: grokTimeout,
		},
	}
}

// Configured reports whether an API key is present.
func (c *GrokClient) Configured() bool {
	return c.config.APIKey != ""
}

const systemPrompt = `You are a memecoin sentiment analyst. Respond with a single JSON object and nothing else:
{"score": <-100..100>, "label": "<MOON|STRONG_BULL|BULL|NEUTRAL|BEAR|STRONG_BEAR|RUG|DEAD>", "confidence": <70..100>, "one_liner": "<max 240 chars>", "top_snippet": "<max 800 chars>", "cta": "<APE|DCA|WATCH|DUMP|AVOID>", "validation_hash": "<hex sha256 of the JSON above with validation_hash removed, keys in the listed order>"}`

// chat-completions wire types.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// FetchSentiment asks the remote model for a sentiment snapshot over the
// given context block. It returns nil if the API key is absent, the call
// fails, the response is unparseable, the shape/ranges are invalid, or the
// recomputed validation hash does not match the supplied one. It never
// returns an error to the caller.
func (c *GrokClient) FetchSentiment(ctx context.Context, tok token.Token, contextText string) *Snapshot {
	if !c.Configured() {
		log.Warn().Msg("grok: API key not configured, skipping call")
		return nil
	}

	prompt := fmt.Sprintf("Token: %s\nAddress: %s\n\nContext:\n%s\n\nAnalyze the sentiment for this token.",
		tok.Symbol, tok.Address, contextText)

	reqBody, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		log.Warn().Err(err).Msg("grok: marshal request")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL, bytes.NewReader(reqBody))
	if err != nil {
		log.Warn().Err(err).Msg("grok: create request")
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("symbol", tok.Symbol).Msg("grok: HTTP error")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Err(err).Msg("grok: read response")
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("symbol", tok.Symbol).Msg("grok: non-200 response")
		return nil
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		log.Warn().Err(err).Msg("grok: parse response envelope")
		return nil
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		log.Warn().Str("symbol", tok.Symbol).Msg("grok: response content missing")
		return nil
	}

	return c.parseAndValidate(tok, chat.Choices[0].Message.Content)
}

// parseAndValidate turns raw model output into a verified snapshot, or nil.
func (c *GrokClient) parseAndValidate(tok token.Token, content string) *Snapshot {
	content = stripCodeFences(content)

	var snap Snapshot
	if err := json.Unmarshal([]byte(content), &snap); err != nil {
		log.Warn().Err(err).Str("symbol", tok.Symbol).Msg("grok: content is not valid JSON")
		return nil
	}

	if err := snap.Validate(); err != nil {
		log.Warn().Err(err).Str("symbol", tok.Symbol).Msg("grok: response failed validation")
		return nil
	}

	if !snap.VerifyHash() {
		log.Warn().
			Str("symbol", tok.Symbol).
			Str("claimed", snap.ValidationHash).
			Msg("grok: validation hash mismatch, response rejected")
		return nil
	}

	snap.TS = time.Now().Unix()
	snap.Source = SourceGrok
	return &snap
}

// stripCodeFences removes surrounding markdown code fences from model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
