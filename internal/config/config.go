package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"dealwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Source    SourceConfig    `mapstructure:"source"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// WatchlistConfig locates the persisted watch set.
type WatchlistConfig struct {
	Path string `mapstructure:"path"`
}

// SourceConfig covers GG.deals API access.
type SourceConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Region          string        `mapstructure:"region"`
	DefaultCurrency string        `mapstructure:"default_currency"`
	BatchSize       int           `mapstructure:"batch_size"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RetryMax        int           `mapstructure:"retry_max"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	BatchDelay      time.Duration `mapstructure:"batch_delay"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// DiscordConfig describes the Discord webhook sink.
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// TelegramConfig describes the Telegram sink.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DatabaseConfig encapsulates the optional PostgreSQL alert audit log.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DEALWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dealwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("watchlist.path", "data/watchlist.json")

	v.SetDefault("source.base_url", "https://api.gg.deals/v1/prices/by-steam-app-id/")
	// Secrets default to empty so AutomaticEnv can bind their
	// DEALWATCH_* variables; viper only consults the environment for
	// keys it already knows about.
	v.SetDefault("source.api_key", "")
	v.SetDefault("source.region", "us")
	v.SetDefault("source.default_currency", "USD")
	v.SetDefault("source.batch_size", 100)
	v.SetDefault("source.request_timeout", "10s")
	v.SetDefault("source.retry_max", 3)
	v.SetDefault("source.user_agent", "dealwatch/1.0")

	v.SetDefault("scheduler.interval", "60m")
	v.SetDefault("scheduler.batch_delay", "2s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6467616d))

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"discord"})
	v.SetDefault("alerting.discord.enabled", false)
	v.SetDefault("alerting.discord.webhook_url", "")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Watchlist.Path == "" {
		return fmt.Errorf("watchlist.path must not be empty")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.BatchDelay < 0 {
		return fmt.Errorf("scheduler.batch_delay cannot be negative")
	}
	if c.Source.BatchSize <= 0 || c.Source.BatchSize > 100 {
		return fmt.Errorf("source.batch_size must be between 1 and 100")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must not be empty")
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url must be configured")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	}
	return nil
}
