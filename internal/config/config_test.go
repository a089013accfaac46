package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yaml := `
general:
  instance_id: "test-node"
  environment: "development"
  log_level: "debug"

server:
  port: 9191
  cron_secret: "file-secret"

store:
  driver: "memory"

providers:
  dexscreener:
    base_url: "http://localhost:18080"
  mention_search:
    base_url: "http://localhost:18081"
    api_key: "mkey"

grok:
  api_key: "gkey"
  model: "grok-2-latest"

pulse:
  schedule: "@every 5m"
  max_daily_calls: 100
  delta_threshold: 25
  static_tokens: "WIF:addr1,BONK:addr2"
`
	tmpFile, err := os.CreateTemp("", "pulse-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Server.CronSecret)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "http://localhost:18080", cfg.Providers.Dexscreener.BaseURL)
	assert.Equal(t, "mkey", cfg.Providers.MentionSearch.APIKey)
	assert.Equal(t, "gkey", cfg.Grok.APIKey)
	assert.Equal(t, "@every 5m", cfg.Pulse.Schedule)
	assert.Equal(t, 100, cfg.Pulse.MaxDailyCalls)
	assert.Equal(t, 25.0, cfg.Pulse.DeltaThreshold)
	assert.Equal(t, "WIF:addr1,BONK:addr2", cfg.Pulse.StaticTokens)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pulse-1", cfg.General.InstanceID)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, "json", cfg.General.LogFormat)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "@every 30m", cfg.Pulse.Schedule)
	require.NotNil(t, cfg.Pulse.IncludeStatic)
	assert.True(t, *cfg.Pulse.IncludeStatic)
}

func TestLoadConfig_IncludeStaticFalsePreserved(t *testing.T) {
	yaml := `
pulse:
  include_static: false
`
	tmpFile, err := os.CreateTemp("", "pulse-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())
	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)
	require.NotNil(t, cfg.Pulse.IncludeStatic)
	assert.False(t, *cfg.Pulse.IncludeStatic)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PULSE_CRON_SECRET", "env-secret")
	t.Setenv("GROK_API_KEY", "env-grok")
	t.Setenv("MAX_DAILY_GROK_CALLS", "450")
	t.Setenv("PULSE_WATCHLIST_TOKENS", "SOL:addrS")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Server.CronSecret)
	assert.Equal(t, "env-grok", cfg.Grok.APIKey)
	assert.Equal(t, 450, cfg.Pulse.MaxDailyCalls)
	assert.Equal(t, "SOL:addrS", cfg.Pulse.WatchlistTokens)
}

func TestLoadConfig_EnvWinsOverFile(t *testing.T) {
	yaml := `
server:
  cron_secret: "file-secret"
`
	tmpFile, err := os.CreateTemp("", "pulse-config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())
	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()

	t.Setenv("PULSE_CRON_SECRET", "env-secret")

	cfg, err := Load(tmpFile.Name())
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Server.CronSecret)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/pulse.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_BadDailyCallsIgnored(t *testing.T) {
	t.Setenv("MAX_DAILY_GROK_CALLS", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Pulse.MaxDailyCalls)
}
