package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pulse-trading/pulse/internal/sentiment"
	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// Typed repository over the KV store. Every kind of pulse state has an
// explicit key scheme and TTL:
//
//   pulse:snapshot:<addr>   current sentiment snapshot      45 min
//   pulse:history:<addr>    bounded score history           7 days, max 50
//   pulse:tokens:global     discovered token universe       30 min
//   pulse:context:<addr>    cached context payload          30 min
//   pulse:meta:lastrun      last run metadata               no TTL, overwritten
//   pulse:events:delta      delta-event queue               push-only, consumer-owned
//   pulse:calls:<UTC date>  daily model-call counter        48 h, set on first incr
// ---------------------------------------------------------------------------

const (
	snapshotTTL  = 45 * time.Minute
	historyTTL   = 7 * 24 * time.Hour
	tokenListTTL = 30 * time.Minute
	contextTTL   = 30 * time.Minute
	dailyTTL     = 48 * time.Hour

	// MaxHistoryEntries bounds per-token history, FIFO eviction.
	MaxHistoryEntries = 50
)

const (
	keySnapshotPrefix = "pulse:snapshot:"
	keyHistoryPrefix  = "pulse:history:"
	keyContextPrefix  = "pulse:context:"
	keyTokenList      = "pulse:tokens:global"
	keyRunMeta        = "pulse:meta:lastrun"
	keyDeltaEvents    = "pulse:events:delta"
	keyDailyPrefix    = "pulse:calls:"
)

// HistoryEntry is one past score observation for a token.
type HistoryEntry struct {
	TS    int64   `json:"ts"`
	Score float64 `json:"score"`
}

// DeltaEvent records a notable score swing between consecutive runs.
type DeltaEvent struct {
	ID            string   `json:"id"`
	Address       string   `json:"address"`
	Symbol        string   `json:"symbol"`
	PreviousScore *float64 `json:"previousScore"`
	NewScore      float64  `json:"newScore"`
	Delta         float64  `json:"delta"`
	TS            int64    `json:"ts"`
}

// RunMeta is the externally visible "last run" pointer, overwritten each run.
type RunMeta struct {
	TS         int64 `json:"ts"`
	Success    int   `json:"success"`
	Failed     int   `json:"failed"`
	TotalCalls int   `json:"total_calls"`
}

// Repo is the typed persistence layer injected into the engine and server.
type Repo struct {
	kv KV
}

// NewRepo wraps a KV in the typed repository.
func NewRepo(kv KV) *Repo {
	return &Repo{kv: kv}
}

// KV exposes the underlying store (health checks, maintenance).
func (r *Repo) KV() KV { return r.kv }

func (r *Repo) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %q: %w", key, err)
	}
	return r.kv.Set(ctx, key, string(raw), ttl)
}

// getJSON unmarshals the value at key into out. Returns false without error
// when the key is absent.
func (r *Repo) getJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, err := r.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("store: unmarshal %q: %w", key, err)
	}
	return true, nil
}

// SaveSnapshot overwrites the live snapshot for an address.
func (r *Repo) SaveSnapshot(ctx context.Context, address string, snap *sentiment.Snapshot) error {
	return r.setJSON(ctx, keySnapshotPrefix+address, snap, snapshotTTL)
}

// GetSnapshot returns the live snapshot, or nil when none exists.
func (r *Repo) GetSnapshot(ctx context.Context, address string) (*sentiment.Snapshot, error) {
	var snap sentiment.Snapshot
	ok, err := r.getJSON(ctx, keySnapshotPrefix+address, &snap)
	if err != nil || !ok {
		return nil, err
	}
	return &snap, nil
}

// AppendHistory appends an entry to a token's bounded history.
func (r *Repo) AppendHistory(ctx context.Context, address string, entry HistoryEntry) error {
	history, err := r.GetHistory(ctx, address)
	if err != nil {
		return err
	}

	history = append(history, entry)
	if len(history) > MaxHistoryEntries {
		history = history[len(history)-MaxHistoryEntries:]
	}
	return r.setJSON(ctx, keyHistoryPrefix+address, history, historyTTL)
}

// GetHistory returns a token's score history, oldest first. Empty when absent.
func (r *Repo) GetHistory(ctx context.Context, address string) ([]HistoryEntry, error) {
	var history []HistoryEntry
	if _, err := r.getJSON(ctx, keyHistoryPrefix+address, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// SaveTokenList caches the discovered global universe.
func (r *Repo) SaveTokenList(ctx context.Context, tokens []token.Token) error {
	return r.setJSON(ctx, keyTokenList, tokens, tokenListTTL)
}

// GetTokenList returns the cached universe, or nil when absent/expired.
func (r *Repo) GetTokenList(ctx context.Context) ([]token.Token, error) {
	var tokens []token.Token
	if _, err := r.getJSON(ctx, keyTokenList, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// SaveContext caches a built context payload for an address.
func (r *Repo) SaveContext(ctx context.Context, address string, payload []byte) error {
	return r.kv.Set(ctx, keyContextPrefix+address, string(payload), contextTTL)
}

// GetContext returns a cached context payload, or nil when absent.
func (r *Repo) GetContext(ctx context.Context, address string) ([]byte, error) {
	raw, err := r.kv.Get(ctx, keyContextPrefix+address)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

// SaveRunMeta overwrites the last-run record. Never expires.
func (r *Repo) SaveRunMeta(ctx context.Context, meta RunMeta) error {
	return r.setJSON(ctx, keyRunMeta, meta, 0)
}

// GetRunMeta returns the last-run record, or nil if no run has completed.
func (r *Repo) GetRunMeta(ctx context.Context) (*RunMeta, error) {
	var meta RunMeta
	ok, err := r.getJSON(ctx, keyRunMeta, &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// PushDeltaEvent appends to the delta-event queue. The queue is push-only
// here; consumers own draining.
func (r *Repo) PushDeltaEvent(ctx context.Context, event DeltaEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("store: marshal delta event: %w", err)
	}
	return r.kv.LPush(ctx, keyDeltaEvents, string(raw))
}

// RecentDeltaEvents returns up to n most recent delta events.
func (r *Repo) RecentDeltaEvents(ctx context.Context, n int64) ([]DeltaEvent, error) {
	raws, err := r.kv.LRange(ctx, keyDeltaEvents, 0, n-1)
	if err != nil {
		return nil, err
	}

	events := make([]DeltaEvent, 0, len(raws))
	for _, raw := range raws {
		var ev DeltaEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue // skip rows written by older schema versions
		}
		events = append(events, ev)
	}
	return events, nil
}

// DailyKey returns the daily counter key for a moment in time (UTC calendar day).
func DailyKey(t time.Time) string {
	return keyDailyPrefix + t.UTC().Format("2006-01-02")
}

// IncrDailyCalls atomically increments today's model-call counter and returns
// the new value. The 48h TTL is set once, on the first increment of the day.
func (r *Repo) IncrDailyCalls(ctx context.Context, now time.Time) (int64, error) {
	key := DailyKey(now)
	n, err := r.kv.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := r.kv.Expire(ctx, key, dailyTTL); err != nil {
			return n, fmt.Errorf("store: set daily counter ttl: %w", err)
		}
	}
	return n, nil
}
