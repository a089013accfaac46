package sentiment

import (
	"fmt"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Sentiment contract — the shape every scorer (remote model or fallback)
// must produce. One snapshot per token address is live at a time.
// ---------------------------------------------------------------------------

// Label classifies the overall sentiment reading.
type Label string

const (
	LabelMoon       Label = "MOON"
	LabelStrongBull Label = "STRONG_BULL"
	LabelBull       Label = "BULL"
	LabelNeutral    Label = "NEUTRAL"
	LabelBear       Label = "BEAR"
	LabelStrongBear Label = "STRONG_BEAR"
	LabelRug        Label = "RUG"
	LabelDead       Label = "DEAD"
)

// CTA is the suggested action attached to a snapshot.
type CTA string

const (
	CTAApe   CTA = "APE"
	CTADca   CTA = "DCA"
	CTAWatch CTA = "WATCH"
	CTADump  CTA = "DUMP"
	CTAAvoid CTA = "AVOID"
)

// Source identifies which scorer produced a snapshot.
const (
	SourceGrok     = "grok"
	SourceFallback = "keyword_fallback"
)

var validLabels = map[Label]bool{
	LabelMoon: true, LabelStrongBull: true, LabelBull: true, LabelNeutral: true,
	LabelBear: true, LabelStrongBear: true, LabelRug: true, LabelDead: true,
}

var validCTAs = map[CTA]bool{
	CTAApe: true, CTADca: true, CTAWatch: true, CTADump: true, CTAAvoid: true,
}

// Snapshot is the current sentiment record for a token. ValidationHash must
// equal the hash computed by ValidationHash() over the other scored fields;
// snapshots failing that check must never be persisted.
type Snapshot struct {
	Score          float64 `json:"score"`      // [-100, 100]
	Label          Label   `json:"label"`      // 8-value enum
	Confidence     float64 `json:"confidence"` // [70, 100]
	OneLiner       string  `json:"one_liner"`  // 1-240 chars
	TopSnippet     string  `json:"top_snippet"` // 1-800 chars
	CTA            CTA     `json:"cta"`        // 5-value enum
	ValidationHash string  `json:"validation_hash"`
	TS             int64   `json:"ts"` // unix seconds

	Delta         *float64 `json:"delta,omitempty"` // vs previous run, stamped by the engine
	LowConfidence bool     `json:"low_confidence,omitempty"`
	Source        string   `json:"source,omitempty"` // "grok" | "keyword_fallback"
}

// Validate checks the shape and ranges of a snapshot. It does NOT verify the
// validation hash; use VerifyHash for that.
func (s *Snapshot) Validate() error {
	if s.Score < -100 || s.Score > 100 {
		return fmt.Errorf("score %.2f outside [-100, 100]", s.Score)
	}
	if s.Confidence < 70 || s.Confidence > 100 {
		return fmt.Errorf("confidence %.2f outside [70, 100]", s.Confidence)
	}
	if !validLabels[s.Label] {
		return fmt.Errorf("unknown label %q", s.Label)
	}
	if !validCTAs[s.CTA] {
		return fmt.Errorf("unknown cta %q", s.CTA)
	}
	if n := utf8.RuneCountInString(s.OneLiner); n == 0 || n > 240 {
		return fmt.Errorf("one_liner length %d outside [1, 240]", n)
	}
	if n := utf8.RuneCountInString(s.TopSnippet); n == 0 || n > 800 {
		return fmt.Errorf("top_snippet length %d outside [1, 800]", n)
	}
	if s.ValidationHash == "" {
		return fmt.Errorf("validation_hash missing")
	}
	return nil
}

// VerifyHash recomputes the validation hash and compares it against the
// supplied one. A mismatch invalidates the whole snapshot.
//
// The hash proves only that the payload is internally self-consistent per
// the producer's own claimed hash — it is transport-integrity, not a check
// that the sentiment judgment itself is correct.
func (s *Snapshot) VerifyHash() bool {
	return s.ValidationHash == ValidationHash(s)
}
