package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pulse-trading/pulse/internal/adapters"
	"github.com/pulse-trading/pulse/internal/adapters/dexscreener"
	"github.com/pulse-trading/pulse/internal/adapters/geckoterminal"
	"github.com/pulse-trading/pulse/internal/adapters/social"
	"github.com/pulse-trading/pulse/internal/config"
	"github.com/pulse-trading/pulse/internal/enrich"
	"github.com/pulse-trading/pulse/internal/observability"
	"github.com/pulse-trading/pulse/internal/pulse"
	"github.com/pulse-trading/pulse/internal/sentiment"
	"github.com/pulse-trading/pulse/internal/server"
	"github.com/pulse-trading/pulse/internal/store"
	"github.com/pulse-trading/pulse/internal/token"
	"github.com/pulse-trading/pulse/internal/universe"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	setupLogging(cfg.General)
	log.Info().Str("instance", cfg.General.InstanceID).Str("env", cfg.General.Environment).
		Msg("Pulse - Starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// --- Store ---
	kv, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer kv.Close()
	repo := store.NewRepo(kv)

	// --- Adapters ---
	dex := dexscreener.NewClient(dexscreener.Config{BaseURL: cfg.Providers.Dexscreener.BaseURL})
	gecko := geckoterminal.NewClient(geckoterminal.Config{BaseURL: cfg.Providers.Geckoterminal.BaseURL})
	mentions := social.NewMentionSearch(social.MentionSearchConfig{
		BaseURL: cfg.Providers.MentionSearch.BaseURL,
		APIKey:  cfg.Providers.MentionSearch.APIKey,
	})
	microblog := social.NewMicroblog(social.MicroblogConfig{
		BaseURL:     cfg.Providers.Microblog.BaseURL,
		BearerToken: cfg.Providers.Microblog.APIKey,
	})

	// --- Universe + context ---
	builder := universe.NewBuilder(universe.Config{
		MaxUnique:         cfg.Pulse.MaxUnique,
		IncludeStatic:     *cfg.Pulse.IncludeStatic,
		StaticTokens:      token.ParseList(cfg.Pulse.StaticTokens),
		WatchlistFallback: token.ParseList(cfg.Pulse.WatchlistTokens),
	}, nil, []adapters.ListingSource{
		dexscreener.NewGainersSource(dex),
		dexscreener.NewNewPairsSource(dex),
		geckoterminal.NewTopVolumeSource(gecko),
	})
	enricher := enrich.NewBuilder(
		[]adapters.OnchainSource{dex, gecko},
		[]adapters.SocialSource{mentions, microblog},
	)

	// --- Sentiment ---
	grok := sentiment.NewGrokClient(sentiment.GrokConfig{
		APIURL: cfg.Grok.APIURL,
		APIKey: cfg.Grok.APIKey,
		Model:  cfg.Grok.Model,
	})
	if !grok.Configured() {
		log.Warn().Msg("sentiment model not configured, keyword fallback only")
	}

	// --- Observability + live feed ---
	metrics := observability.PulseMetrics()
	hub := server.NewHub(func(n int) {
		metrics.GetGauge("pulse_live_clients").Set(float64(n))
	})

	// --- Engine ---
	engine := pulse.NewEngine(pulse.Config{
		MaxConcurrency: cfg.Pulse.MaxConcurrency,
		MaxCallsPerRun: cfg.Pulse.MaxCallsPerRun,
		MaxDailyCalls:  cfg.Pulse.MaxDailyCalls,
		DeltaThreshold: cfg.Pulse.DeltaThreshold,
	}, builder, enricher, grok, repo, func(ev store.DeltaEvent) {
		metrics.GetCounter("pulse_delta_events_total").Inc()
		hub.Broadcast(ev)
	})

	health := observability.NewHealthMonitor()
	health.Register("store", observability.StoreCheck(kv, store.ErrNotFound))
	health.Register("model", observability.ModelCheck(grok.Configured))
	health.Register("scheduler", observability.LastRunCheck(func() int64 {
		return engine.Stats().LastRunUnix
	}, 2*time.Hour))

	runPulse := func() {
		result := engine.Run(ctx)
		metrics.GetCounter("pulse_runs_total").Inc()
		metrics.GetCounter("pulse_model_calls_total").Add(int64(result.TotalCalls))
		metrics.GetCounter("pulse_tokens_success_total").Add(int64(result.Success))
		metrics.GetCounter("pulse_tokens_failed_total").Add(int64(result.Failed))
		metrics.GetCounter("pulse_tokens_skipped_total").Add(int64(result.SkippedByDailyCap))
		metrics.GetGauge("pulse_universe_size").Set(float64(result.Success + result.Failed + result.SkippedByDailyCap))
		metrics.GetGauge("pulse_last_run_unix").Set(float64(engine.Stats().LastRunUnix))
	}

	// --- Scheduler ---
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Pulse.Schedule, runPulse); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Pulse.Schedule).Msg("invalid pulse schedule")
	}
	if sq, ok := kv.(*store.SQLite); ok {
		if _, err := scheduler.AddFunc("@hourly", func() {
			if n, err := sq.CleanupExpired(ctx); err != nil {
				log.Warn().Err(err).Msg("cleanup expired keys failed")
			} else if n > 0 {
				log.Debug().Int64("removed", n).Msg("cleaned up expired keys")
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("schedule store cleanup")
		}
	}
	scheduler.Start()

	// --- HTTP server ---
	srv := server.New(server.Config{
		Port:       cfg.Server.Port,
		CronSecret: cfg.Server.CronSecret,
	}, server.Deps{
		Repo:     repo,
		Engine:   engine,
		Enricher: enricher,
		Model:    grok,
		Universe: builder,
		Health:   health,
		Metrics:  metrics,
		Hub:      hub,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server stopped")
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	<-scheduler.Stop().Done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("Pulse - Shutdown complete")
}

func setupLogging(cfg config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stdout)
	if cfg.LogFormat == "text" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log.Logger = logger.With().
		Timestamp().
		Str("service", "pulse").
		Logger()
}

func openStore(cfg config.StoreConfig) (store.KV, error) {
	if cfg.Driver == "memory" {
		return store.NewMemory(), nil
	}
	return store.OpenSQLite(cfg.SQLitePath)
}
