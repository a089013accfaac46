package sentiment

import (
	"fmt"
	"strings"
	"time"

	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// Keyword fallback — deterministic heuristic used when the remote model is
// unavailable or its response fails validation. No I/O, always produces a
// snapshot with the same shape as the model path.
// ---------------------------------------------------------------------------

// Keyword weights. Occurrences are counted on the lowercased context text.
var bullishKeywords = map[string]float64{
	"moon":     25,
	"pump":     20,
	"viral":    15,
	"hype":     15,
	"bullish":  15,
	"breakout": 12,
	"rally":    10,
	"ath":      10,
	"surge":    10,
	"trending": 8,
	"whale":    5,
}

var bearishKeywords = map[string]float64{
	"rug":      -40,
	"scam":     -35,
	"honeypot": -35,
	"dump":     -25,
	"crash":    -20,
	"dead":     -20,
	"bearish":  -15,
	"exit":     -10,
	"sell-off": -10,
	"fud":      -8,
}

// KeywordScore sums weighted keyword occurrences over the context text,
// clamped to [-100, 100]. Deterministic for a fixed input.
func KeywordScore(contextText string) float64 {
	lowered := strings.ToLower(contextText)

	var score float64
	for kw, w := range bullishKeywords {
		score += float64(strings.Count(lowered, kw)) * w
	}
	for kw, w := range bearishKeywords {
		score += float64(strings.Count(lowered, kw)) * w
	}

	if score > 100 {
		score = 100
	}
	if score < -100 {
		score = -100
	}
	return score
}

// labelForScore maps a score onto the label enum via fixed thresholds.
func labelForScore(score float64) Label {
	switch {
	case score >= 75:
		return LabelMoon
	case score >= 50:
		return LabelStrongBull
	case score >= 20:
		return LabelBull
	case score > -20:
		return LabelNeutral
	case score > -50:
		return LabelBear
	case score > -75:
		return LabelStrongBear
	default:
		return LabelRug
	}
}

// ctaForScore maps a score onto the CTA enum via fixed thresholds.
func ctaForScore(score float64) CTA {
	switch {
	case score >= 75:
		return CTAApe
	case score >= 35:
		return CTADca
	case score > -35:
		return CTAWatch
	case score > -75:
		return CTAAvoid
	default:
		return CTADump
	}
}

// KeywordFallback builds a low-confidence snapshot from keyword frequency
// alone. Downstream persistence never needs a separate null-handling path
// for "no AI available".
func KeywordFallback(tok token.Token, contextText string) *Snapshot {
	score := KeywordScore(contextText)
	label := labelForScore(score)

	snippet := strings.TrimSpace(contextText)
	if runes := []rune(snippet); len(runes) > 800 {
		snippet = string(runes[:800])
	}
	if snippet == "" {
		snippet = "No context available."
	}

	snap := &Snapshot{
		Score:         score,
		Label:         label,
		Confidence:    70, // heuristic floor of the allowed range
		OneLiner:      fmt.Sprintf("%s keyword heuristic: %s at %.0f", tok.Symbol, label, score),
		TopSnippet:    snippet,
		CTA:           ctaForScore(score),
		TS:            time.Now().Unix(),
		LowConfidence: true,
		Source:        SourceFallback,
	}
	snap.ValidationHash = ValidationHash(snap)
	return snap
}
