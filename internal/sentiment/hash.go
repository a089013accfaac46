package sentiment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// hashPayload is the canonical serialization hashed for the integrity check:
// the scored fields in fixed order, with validation_hash itself excluded.
// The remote model is instructed to hash exactly this shape.
type hashPayload struct {
	Score      float64 `json:"score"`
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	OneLiner   string  `json:"one_liner"`
	TopSnippet string  `json:"top_snippet"`
	CTA        CTA     `json:"cta"`
}

// ValidationHash computes the hex-encoded SHA-256 over the canonical JSON of
// the snapshot's scored fields.
func ValidationHash(s *Snapshot) string {
	payload := hashPayload{
		Score:      s.Score,
		Label:      s.Label,
		Confidence: s.Confidence,
		OneLiner:   s.OneLiner,
		TopSnippet: s.TopSnippet,
		CTA:        s.CTA,
	}

	// Marshal of a fixed struct cannot fail.
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
