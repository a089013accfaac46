package pulse

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pulse-trading/pulse/internal/enrich"
	"github.com/pulse-trading/pulse/internal/sentiment"
	"github.com/pulse-trading/pulse/internal/store"
	"github.com/pulse-trading/pulse/internal/token"
)

// ---------------------------------------------------------------------------
// Pulse engine — orchestrates one full sentiment run: build the universe,
// process tokens in bounded concurrent batches under two independent call
// ceilings (per-run and per-day), compute score deltas against prior state,
// and persist snapshots, history, and run metadata.
// ---------------------------------------------------------------------------

const (
	// DefaultMaxConcurrency is the batch size: tokens per concurrent batch.
	DefaultMaxConcurrency = 20

	// DefaultMaxCallsPerRun caps model calls within a single run.
	DefaultMaxCallsPerRun = 150

	// DefaultMaxDailyCalls caps model calls per UTC calendar day, across runs.
	DefaultMaxDailyCalls = 900

	// DefaultDeltaThreshold is the absolute score swing that emits a DeltaEvent.
	DefaultDeltaThreshold = 30.0
)

// State tracks where the engine is in its run lifecycle.
type State int32

const (
	StateIdle State = iota
	StateBuildingUniverse
	StateRunningBatches
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateBuildingUniverse:
		return "building-universe"
	case StateRunningBatches:
		return "running-batches"
	case StateFinalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// UniverseSource supplies the token universe and the effective watchlist.
type UniverseSource interface {
	Build(ctx context.Context) []token.Token
	Watchlist(ctx context.Context) []token.Token
}

// ContextSource builds the model context for a single token.
type ContextSource interface {
	Build(ctx context.Context, tok token.Token, watchlist []token.Token) *enrich.TokenContext
}

// SentimentSource fetches one sentiment snapshot. A nil return means the call
// failed or produced an invalid response; the engine never falls back here.
type SentimentSource interface {
	FetchSentiment(ctx context.Context, tok token.Token, contextText string) *sentiment.Snapshot
}

// Config controls run sizing and ceilings. Zero fields take defaults.
type Config struct {
	MaxConcurrency int     `yaml:"max_concurrency"`
	MaxCallsPerRun int     `yaml:"max_calls_per_run"`
	MaxDailyCalls  int     `yaml:"max_daily_calls"`
	DeltaThreshold float64 `yaml:"delta_threshold"`
}

// DefaultConfig returns the standard engine sizing.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: DefaultMaxConcurrency,
		MaxCallsPerRun: DefaultMaxCallsPerRun,
		MaxDailyCalls:  DefaultMaxDailyCalls,
		DeltaThreshold: DefaultDeltaThreshold,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.MaxCallsPerRun <= 0 {
		c.MaxCallsPerRun = d.MaxCallsPerRun
	}
	if c.MaxDailyCalls <= 0 {
		c.MaxDailyCalls = d.MaxDailyCalls
	}
	if c.DeltaThreshold <= 0 {
		c.DeltaThreshold = d.DeltaThreshold
	}
	return c
}

// RunResult summarizes one engine run. Every token in the universe lands in
// exactly one of Success, Failed, or SkippedByDailyCap.
type RunResult struct {
	Success           int `json:"success"`
	Failed            int `json:"failed"`
	TotalCalls        int `json:"totalCalls"`
	SkippedByDailyCap int `json:"skippedByDailyCap"`
	TokensProcessed   int `json:"tokensProcessed"`
}

// Stats is the engine's cumulative counter snapshot across all runs.
type Stats struct {
	State            string `json:"state"`
	RunsTotal        int64  `json:"runs_total"`
	CallsTotal       int64  `json:"calls_total"`
	SuccessTotal     int64  `json:"success_total"`
	FailuresTotal    int64  `json:"failures_total"`
	SkippedTotal     int64  `json:"skipped_total"`
	DeltaEventsTotal int64  `json:"delta_events_total"`
	LastRunUnix      int64  `json:"last_run_unix"`
}

// Engine runs the pulse cycle. All shared mutable state lives in the store;
// the engine itself only keeps counters, so overlapping runs are safe (the
// daily counter increments atomically, snapshot writes are last-writer-wins).
type Engine struct {
	config   Config
	universe UniverseSource
	enricher ContextSource
	model    SentimentSource
	repo     *store.Repo

	// onDelta, when set, receives every pushed DeltaEvent (live broadcast).
	onDelta func(store.DeltaEvent)

	clock func() time.Time

	state       atomic.Int32
	runsTotal   atomic.Int64
	callsTotal  atomic.Int64
	okTotal     atomic.Int64
	failTotal   atomic.Int64
	skipTotal   atomic.Int64
	deltasTotal atomic.Int64
	lastRunUnix atomic.Int64
}

// NewEngine wires an engine. onDelta may be nil.
func NewEngine(config Config, universe UniverseSource, enricher ContextSource, model SentimentSource, repo *store.Repo, onDelta func(store.DeltaEvent)) *Engine {
	return &Engine{
		config:   config.withDefaults(),
		universe: universe,
		enricher: enricher,
		model:    model,
		repo:     repo,
		onDelta:  onDelta,
		clock:    time.Now,
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Stats returns cumulative counters across all runs.
func (e *Engine) Stats() Stats {
	return Stats{
		State:            e.State().String(),
		RunsTotal:        e.runsTotal.Load(),
		CallsTotal:       e.callsTotal.Load(),
		SuccessTotal:     e.okTotal.Load(),
		FailuresTotal:    e.failTotal.Load(),
		SkippedTotal:     e.skipTotal.Load(),
		DeltaEventsTotal: e.deltasTotal.Load(),
		LastRunUnix:      e.lastRunUnix.Load(),
	}
}

// Run executes one full pulse cycle and returns its summary. Errors inside
// token processing are contained per token; Run itself only reports.
func (e *Engine) Run(ctx context.Context) RunResult {
	runStart := e.clock()
	e.runsTotal.Add(1)
	e.lastRunUnix.Store(runStart.Unix())
	defer e.state.Store(int32(StateIdle))

	e.state.Store(int32(StateBuildingUniverse))
	tokens := e.universe.Build(ctx)
	if len(tokens) == 0 {
		log.Warn().Msg("pulse: empty universe, nothing to run")
		e.writeRunMeta(ctx, runStart, RunResult{})
		return RunResult{}
	}
	if err := e.repo.SaveTokenList(ctx, tokens); err != nil {
		log.Warn().Err(err).Msg("pulse: persist token list failed")
	}
	watchlist := e.universe.Watchlist(ctx)

	// One pre-flight increment: if the day's budget is already spent, the
	// whole run is skipped but run meta is still written.
	if n, err := e.repo.IncrDailyCalls(ctx, runStart); err != nil {
		log.Warn().Err(err).Msg("pulse: daily counter unavailable, proceeding uncounted")
	} else if n > int64(e.config.MaxDailyCalls) {
		log.Warn().Int64("daily_calls", n).Int("ceiling", e.config.MaxDailyCalls).
			Msg("pulse: daily ceiling reached, skipping run")
		result := RunResult{SkippedByDailyCap: len(tokens)}
		e.skipTotal.Add(int64(len(tokens)))
		e.writeRunMeta(ctx, runStart, result)
		return result
	}

	e.state.Store(int32(StateRunningBatches))

	var (
		success    atomic.Int64
		failed     atomic.Int64
		totalCalls atomic.Int64
		skipped    atomic.Int64
		processed  atomic.Int64

		// callSeq reserves per-run call slots before any work happens, so
		// concurrent tokens can never overshoot the per-run ceiling.
		callSeq atomic.Int64
	)

	for start := 0; start < len(tokens); start += e.config.MaxConcurrency {
		end := start + e.config.MaxConcurrency
		if end > len(tokens) {
			end = len(tokens)
		}

		var wg sync.WaitGroup
		for _, tok := range tokens[start:end] {
			wg.Add(1)
			go func(tok token.Token) {
				defer wg.Done()

				if callSeq.Add(1) > int64(e.config.MaxCallsPerRun) {
					skipped.Add(1)
					return
				}
				if n, err := e.repo.IncrDailyCalls(ctx, runStart); err != nil {
					log.Warn().Err(err).Str("token", tok.Symbol).Msg("pulse: daily counter unavailable, proceeding uncounted")
				} else if n > int64(e.config.MaxDailyCalls) {
					skipped.Add(1)
					return
				}

				tc := e.enricher.Build(ctx, tok, watchlist)
				snap := e.model.FetchSentiment(ctx, tok, tc.Context)
				totalCalls.Add(1)
				processed.Add(1)

				if snap == nil {
					failed.Add(1)
					log.Warn().Str("token", tok.Symbol).Str("address", tok.Address).
						Msg("pulse: sentiment call failed")
					return
				}

				e.applyDelta(ctx, tok, snap)

				if err := e.repo.SaveSnapshot(ctx, tok.Address, snap); err != nil {
					log.Warn().Err(err).Str("address", tok.Address).Msg("pulse: persist snapshot failed")
				}
				if err := e.repo.AppendHistory(ctx, tok.Address, store.HistoryEntry{TS: snap.TS, Score: snap.Score}); err != nil {
					log.Warn().Err(err).Str("address", tok.Address).Msg("pulse: append history failed")
				}
				success.Add(1)
			}(tok)
		}
		wg.Wait()
	}

	e.state.Store(int32(StateFinalizing))

	result := RunResult{
		Success:           int(success.Load()),
		Failed:            int(failed.Load()),
		TotalCalls:        int(totalCalls.Load()),
		SkippedByDailyCap: int(skipped.Load()),
		TokensProcessed:   int(processed.Load()),
	}
	e.callsTotal.Add(totalCalls.Load())
	e.okTotal.Add(success.Load())
	e.failTotal.Add(failed.Load())
	e.skipTotal.Add(skipped.Load())

	e.writeRunMeta(ctx, runStart, result)

	log.Info().
		Int("success", result.Success).
		Int("failed", result.Failed).
		Int("total_calls", result.TotalCalls).
		Int("skipped", result.SkippedByDailyCap).
		Int("universe", len(tokens)).
		Dur("took", e.clock().Sub(runStart)).
		Msg("pulse: run complete")
	return result
}

// applyDelta stamps the score delta against the previous run's state and
// pushes a DeltaEvent when the swing crosses the threshold. Baseline is the
// live snapshot, else the last history entry, else none.
func (e *Engine) applyDelta(ctx context.Context, tok token.Token, snap *sentiment.Snapshot) {
	baseline := BaselineScore(ctx, e.repo, tok.Address)
	if baseline == nil {
		return
	}

	delta := snap.Score - *baseline
	snap.Delta = &delta
	if math.Abs(delta) < e.config.DeltaThreshold {
		return
	}

	event := store.DeltaEvent{
		ID:            uuid.NewString(),
		Address:       tok.Address,
		Symbol:        tok.Symbol,
		PreviousScore: baseline,
		NewScore:      snap.Score,
		Delta:         delta,
		TS:            snap.TS,
	}
	if err := e.repo.PushDeltaEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("address", tok.Address).Msg("pulse: push delta event failed")
	}
	e.deltasTotal.Add(1)
	if e.onDelta != nil {
		e.onDelta(event)
	}
	log.Info().Str("token", tok.Symbol).Float64("delta", delta).Float64("score", snap.Score).
		Msg("pulse: delta event")
}

// BaselineScore resolves the prior score for an address: the live snapshot,
// else the last history entry, else nil. Shared by the engine and the
// interactive sentiment path.
func BaselineScore(ctx context.Context, repo *store.Repo, address string) *float64 {
	prev, err := repo.GetSnapshot(ctx, address)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("pulse: read previous snapshot failed")
	}
	if prev != nil {
		score := prev.Score
		return &score
	}

	history, err := repo.GetHistory(ctx, address)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("pulse: read history failed")
	}
	if len(history) == 0 {
		return nil
	}
	score := history[len(history)-1].Score
	return &score
}

func (e *Engine) writeRunMeta(ctx context.Context, runStart time.Time, result RunResult) {
	meta := store.RunMeta{
		TS:         runStart.Unix(),
		Success:    result.Success,
		Failed:     result.Failed,
		TotalCalls: result.TotalCalls,
	}
	if err := e.repo.SaveRunMeta(ctx, meta); err != nil {
		log.Warn().Err(err).Msg("pulse: persist run meta failed")
	}
}
