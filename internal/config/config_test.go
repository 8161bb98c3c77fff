package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dealwatch", cfg.App.Name)
	assert.Equal(t, "data/watchlist.json", cfg.Watchlist.Path)
	assert.Equal(t, 100, cfg.Source.BatchSize)
	assert.Equal(t, "us", cfg.Source.Region)
	assert.Equal(t, "USD", cfg.Source.DefaultCurrency)
	assert.Equal(t, "60m0s", cfg.Scheduler.Interval.String())
	assert.Equal(t, "2s", cfg.Scheduler.BatchDelay.String())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  region: pl
  default_currency: PLN
scheduler:
  interval: 15m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pl", cfg.Source.Region)
	assert.Equal(t, "PLN", cfg.Source.DefaultCurrency)
	assert.Equal(t, "15m0s", cfg.Scheduler.Interval.String())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DEALWATCH_SOURCE_API_KEY", "key-from-env")
	t.Setenv("DEALWATCH_SOURCE_REGION", "pl")
	t.Setenv("DEALWATCH_ALERTING_DISCORD_WEBHOOK_URL", "https://discord.test/hook")
	t.Setenv("DEALWATCH_ALERTING_TELEGRAM_BOT_TOKEN", "token-from-env")
	t.Setenv("DEALWATCH_ALERTING_TELEGRAM_CHAT_ID", "42")
	t.Setenv("DEALWATCH_DATABASE_DSN", "postgres://env/dealwatch")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "key-from-env", cfg.Source.APIKey)
	assert.Equal(t, "pl", cfg.Source.Region)
	assert.Equal(t, "https://discord.test/hook", cfg.Alerting.Discord.WebhookURL)
	assert.Equal(t, "token-from-env", cfg.Alerting.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Alerting.Telegram.ChatID)
	assert.Equal(t, "postgres://env/dealwatch", cfg.Database.DSN)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty watchlist path", func(c *Config) { c.Watchlist.Path = "" }},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }},
		{"negative batch delay", func(c *Config) { c.Scheduler.BatchDelay = -1 }},
		{"oversized batch", func(c *Config) { c.Source.BatchSize = 101 }},
		{"zero batch", func(c *Config) { c.Source.BatchSize = 0 }},
		{"discord without webhook", func(c *Config) { c.Alerting.Discord.Enabled = true }},
		{"telegram without token", func(c *Config) { c.Alerting.Telegram.Enabled = true; c.Alerting.Telegram.ChatID = "x" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
