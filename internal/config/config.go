// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRIARB_* environment variables.
type Config struct {
	Search   SearchConfig           `toml:"search"`
	Venues   map[string]VenueConfig `toml:"venues"`
	Feed     FeedConfig             `toml:"feed"`
	Postgres PostgresConfig         `toml:"postgres"`
	Redis    RedisConfig            `toml:"redis"`
	Server   ServerConfig           `toml:"server"`
	Notify   NotifyConfig           `toml:"notify"`
	Mode     string                 `toml:"mode"`
	LogLevel string                 `toml:"log_level"`
}

// SearchConfig holds cycle search and confirmation parameters.
type SearchConfig struct {
	// ProfitThreshold is the minimum aggregate rate for a cycle to count.
	ProfitThreshold float64 `toml:"profit_threshold"`
	// FeeRate is a per-leg taker-fee haircut applied during enumeration.
	FeeRate float64 `toml:"fee_rate"`
	// MinVolume floors each leg's base-relative ticker liquidity. Zero
	// disables the filter.
	MinVolume float64 `toml:"min_volume"`
	// MaxResults caps candidates per search. Zero means unlimited.
	MaxResults int `toml:"max_results"`
	// TimeBudget bounds candidate enumeration.
	TimeBudget duration `toml:"time_budget"`
	// Endowment is the base-asset notional used for depth confirmation.
	Endowment float64 `toml:"endowment"`
	// Heartbeat is the progress interval on streaming searches.
	Heartbeat duration `toml:"heartbeat"`
	// Bases are the assets scanned continuously in scan mode.
	Bases []string `toml:"bases"`
	// Interval is the pause between scan-mode sweeps.
	Interval duration `toml:"interval"`
}

// VenueConfig describes one exchange gateway.
type VenueConfig struct {
	BaseURL       string   `toml:"base_url"`
	MarketsPath   string   `toml:"markets_path"`
	OrderbookPath string   `toml:"orderbook_path"`
	Depth         int      `toml:"depth"`
	Timeout       duration `toml:"timeout"`
	MaxConcurrent int      `toml:"max_concurrent"`
	MinInterval   duration `toml:"min_interval"`
	CacheTTL      duration `toml:"cache_ttl"`
}

// FeedConfig tunes the graph warm load.
type FeedConfig struct {
	WarmLookback duration `toml:"warm_lookback"`
	WarmLimit    int      `toml:"warm_limit"`
}

// PostgresConfig holds ticker history connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds signal bus connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Search: SearchConfig{
			ProfitThreshold: 1.01,
			FeeRate:         0,
			MinVolume:       0,
			MaxResults:      0,
			TimeBudget:      duration{5 * time.Second},
			Endowment:       1.0,
			Heartbeat:       duration{time.Second},
			Bases:           []string{},
			Interval:        duration{30 * time.Second},
		},
		Venues: map[string]VenueConfig{},
		Feed: FeedConfig{
			WarmLookback: duration{24 * time.Hour},
			WarmLimit:    10000,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "triarb",
			User:          "triarb",
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"cycle_confirmed", "error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"scan":   true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, scan, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Search.ProfitThreshold <= 0 {
		errs = append(errs, "search: profit_threshold must be positive")
	}
	if c.Search.FeeRate < 0 || c.Search.FeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("search: fee_rate must be in [0, 1), got %g", c.Search.FeeRate))
	}
	if c.Search.MinVolume < 0 {
		errs = append(errs, "search: min_volume must not be negative")
	}
	if c.Search.Endowment <= 0 {
		errs = append(errs, "search: endowment must be positive")
	}

	scanMode := c.Mode == "scan" || c.Mode == "full"
	if scanMode && len(c.Search.Bases) == 0 {
		errs = append(errs, "search: bases must not be empty for mode "+c.Mode)
	}

	for name, v := range c.Venues {
		if strings.TrimSpace(v.BaseURL) == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: base_url must not be empty", name))
		}
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis to be enabled")
		}
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
