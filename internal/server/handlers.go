package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pulse-trading/pulse/internal/enrich"
	"github.com/pulse-trading/pulse/internal/observability"
	"github.com/pulse-trading/pulse/internal/pulse"
	"github.com/pulse-trading/pulse/internal/sentiment"
	"github.com/pulse-trading/pulse/internal/store"
	"github.com/pulse-trading/pulse/internal/token"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("server: encode response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// ---------------------------------------------------------------------------
// Health + metrics
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.deps.Health.Check(r.Context())
	status := http.StatusOK
	if health.Status == observability.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Metrics.AllMetrics())
}

// ---------------------------------------------------------------------------
// POST /api/pulse/cron
// ---------------------------------------------------------------------------

type cronResponse struct {
	Ok bool `json:"ok"`
	pulse.RunResult
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	if s.config.CronSecret == "" {
		writeError(w, http.StatusInternalServerError, "Cron secret not configured")
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+s.config.CronSecret {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	result, err := s.runEngine(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Cron execution failed")
		return
	}
	writeJSON(w, http.StatusOK, cronResponse{Ok: true, RunResult: result})
}

// runEngine is the engine panic boundary: a panic inside a run becomes the
// "Cron execution failed" 500 instead of killing the request. The run itself
// is detached from the request context so a caller disconnect cannot cancel
// it midway and leave the tail of the run counted as failures.
func (s *Server) runEngine(r *http.Request) (result pulse.RunResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Any("panic", rec).Msg("server: cron run panicked")
			err = errors.New("cron execution failed")
		}
	}()
	return s.deps.Engine.Run(context.WithoutCancel(r.Context())), nil
}

// ---------------------------------------------------------------------------
// GET /api/pulse/state
// ---------------------------------------------------------------------------

type stateResponse struct {
	SentimentsByAddress map[string]*sentiment.Snapshot  `json:"sentimentsByAddress"`
	HistoryByAddress    map[string][]store.HistoryEntry `json:"historyByAddress"`
	LastPulseTS         *int64                          `json:"lastPulseTs"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var addresses []string
	if raw := r.URL.Query().Get("addresses"); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addresses = append(addresses, a)
			}
		}
	} else {
		tokens, err := s.deps.Repo.GetTokenList(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("server: read token list failed")
		}
		for _, tok := range tokens {
			addresses = append(addresses, tok.Address)
		}
	}

	resp := stateResponse{
		SentimentsByAddress: make(map[string]*sentiment.Snapshot, len(addresses)),
		HistoryByAddress:    make(map[string][]store.HistoryEntry, len(addresses)),
	}

	// Per-address failures degrade to null/empty, never fail the request.
	for _, addr := range addresses {
		snap, err := s.deps.Repo.GetSnapshot(ctx, addr)
		if err != nil {
			log.Warn().Err(err).Str("address", addr).Msg("server: read snapshot failed")
		}
		resp.SentimentsByAddress[addr] = snap

		history, err := s.deps.Repo.GetHistory(ctx, addr)
		if err != nil {
			log.Warn().Err(err).Str("address", addr).Msg("server: read history failed")
		}
		if history == nil {
			history = []store.HistoryEntry{}
		}
		resp.HistoryByAddress[addr] = history
	}

	if meta, err := s.deps.Repo.GetRunMeta(ctx); err == nil && meta != nil {
		resp.LastPulseTS = &meta.TS
	}

	writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// GET /api/pulse/context
// ---------------------------------------------------------------------------

// contextData is the cached per-token context payload.
type contextData struct {
	Context   string               `json:"context"`
	Social    enrich.SocialSummary `json:"social"`
	Watchlist bool                 `json:"watchlist"`
}

type contextResponse struct {
	Ok      bool   `json:"ok"`
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	contextData
	Source string `json:"source"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	symbol := r.URL.Query().Get("symbol")

	data, source := s.tokenContext(r, address, symbol)
	writeJSON(w, http.StatusOK, contextResponse{
		Ok:          true,
		Address:     address,
		Symbol:      token.SanitizeSymbol(symbol),
		contextData: data,
		Source:      source,
	})
}

// tokenContext returns the cached context for an address, or builds and
// caches a fresh one. Cache failures only cost the caching, never the request.
func (s *Server) tokenContext(r *http.Request, address, symbol string) (contextData, string) {
	ctx := r.Context()

	if raw, err := s.deps.Repo.GetContext(ctx, address); err == nil && raw != nil {
		var data contextData
		if err := json.Unmarshal(raw, &data); err == nil {
			return data, "cache"
		}
		log.Warn().Str("address", address).Msg("server: cached context unreadable, rebuilding")
	}

	tok := token.New(address, symbol)
	tc := s.deps.Enricher.Build(ctx, tok, s.deps.Universe.Watchlist(ctx))
	data := contextData{
		Context:   tc.Context,
		Social:    tc.Social,
		Watchlist: tc.WatchlistHit,
	}

	if raw, err := json.Marshal(data); err == nil {
		if err := s.deps.Repo.SaveContext(ctx, address, raw); err != nil {
			log.Warn().Err(err).Str("address", address).Msg("server: cache context failed")
		}
	}
	return data, "fresh"
}

// ---------------------------------------------------------------------------
// POST /api/pulse/sentiment
// ---------------------------------------------------------------------------

type sentimentRequest struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type sentimentResponse struct {
	Ok       bool                `json:"ok"`
	Snapshot *sentiment.Snapshot `json:"snapshot"`
	Context  string              `json:"context"`
}

// handleSentiment runs the interactive single-token path: context, model
// call, keyword fallback on a nil result, then persistence with a stamped
// delta. It deliberately bypasses the engine's call ceilings.
func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	ctx := r.Context()
	tok := token.New(req.Address, req.Symbol)
	data, _ := s.tokenContext(r, req.Address, req.Symbol)

	snap := s.deps.Model.FetchSentiment(ctx, tok, data.Context)
	if snap == nil {
		snap = sentiment.KeywordFallback(tok, data.Context)
		if c := s.deps.Metrics.GetCounter("pulse_fallback_total"); c != nil {
			c.Inc()
		}
	}

	if baseline := pulse.BaselineScore(ctx, s.deps.Repo, tok.Address); baseline != nil {
		delta := snap.Score - *baseline
		snap.Delta = &delta
	}

	if err := s.deps.Repo.SaveSnapshot(ctx, tok.Address, snap); err != nil {
		log.Warn().Err(err).Str("address", tok.Address).Msg("server: persist snapshot failed")
	}
	if err := s.deps.Repo.AppendHistory(ctx, tok.Address, store.HistoryEntry{TS: snap.TS, Score: snap.Score}); err != nil {
		log.Warn().Err(err).Str("address", tok.Address).Msg("server: append history failed")
	}

	writeJSON(w, http.StatusOK, sentimentResponse{Ok: true, Snapshot: snap, Context: data.Context})
}
