package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the pulse service.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Providers ProvidersConfig `yaml:"providers"`
	Grok      GrokConfig      `yaml:"grok"`
	Pulse     PulseConfig     `yaml:"pulse"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	CronSecret string `yaml:"cron_secret"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"` // memory|sqlite
	SQLitePath string `yaml:"sqlite_path"`
}

type ProvidersConfig struct {
	Dexscreener   ProviderConfig `yaml:"dexscreener"`
	Geckoterminal ProviderConfig `yaml:"geckoterminal"`
	MentionSearch ProviderConfig `yaml:"mention_search"`
	Microblog     ProviderConfig `yaml:"microblog"`
}

type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type GrokConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type PulseConfig struct {
	// Schedule is a cron expression for the pulse run, e.g. "@every 30m".
	Schedule       string  `yaml:"schedule"`
	MaxConcurrency int     `yaml:"max_concurrency"`
	MaxCallsPerRun int     `yaml:"max_calls_per_run"`
	MaxDailyCalls  int     `yaml:"max_daily_calls"`
	DeltaThreshold float64 `yaml:"delta_threshold"`
	MaxUnique      int     `yaml:"max_unique"`

	// IncludeStatic defaults to true; a pointer keeps an explicit false in
	// the file distinguishable from the field being absent.
	IncludeStatic *bool `yaml:"include_static"`

	// StaticTokens and WatchlistTokens use the "SYM:address,SYM:address" form.
	StaticTokens    string `yaml:"static_tokens"`
	WatchlistTokens string `yaml:"watchlist_tokens"`
}

// Load reads and parses a YAML configuration file. Environment variables in
// the file are expanded, then well-known env vars override their fields. An
// empty path yields defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnv overrides config fields from the environment. Env wins over file.
func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Server.CronSecret, "PULSE_CRON_SECRET")
	setString(&cfg.Grok.APIKey, "GROK_API_KEY")
	setString(&cfg.Grok.APIURL, "GROK_API_URL")
	setString(&cfg.Grok.Model, "GROK_MODEL")
	setString(&cfg.Pulse.StaticTokens, "PULSE_STATIC_TOKENS")
	setString(&cfg.Pulse.WatchlistTokens, "PULSE_WATCHLIST_TOKENS")
	setString(&cfg.Providers.Dexscreener.BaseURL, "DEXSCREENER_BASE_URL")
	setString(&cfg.Providers.Geckoterminal.BaseURL, "GECKOTERMINAL_BASE_URL")
	setString(&cfg.Providers.MentionSearch.BaseURL, "MENTION_API_URL")
	setString(&cfg.Providers.MentionSearch.APIKey, "MENTION_API_KEY")
	setString(&cfg.Providers.Microblog.BaseURL, "MICROBLOG_API_URL")
	setString(&cfg.Providers.Microblog.APIKey, "MICROBLOG_BEARER_TOKEN")

	if v := os.Getenv("MAX_DAILY_GROK_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pulse.MaxDailyCalls = n
		}
	}
	if v := os.Getenv("PULSE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "pulse-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "pulse.db"
	}
	if cfg.Pulse.Schedule == "" {
		cfg.Pulse.Schedule = "@every 30m"
	}
	if cfg.Pulse.IncludeStatic == nil {
		v := true
		cfg.Pulse.IncludeStatic = &v
	}
}
