// Package config loads chanwidget settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bryan-buckman/chanwidget/internal/model"
)

// EnvPrefix marks environment overrides. Nested keys use "__", so
// CHANWIDGET_SERVER__ADDR sets server.addr.
const EnvPrefix = "CHANWIDGET_"

// DefaultFile is read when no path is given and it exists.
const DefaultFile = "config.yaml"

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Fetcher   FetcherConfig   `koanf:"fetcher"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Storage   StorageConfig   `koanf:"storage"`
	Widget    WidgetConfig    `koanf:"widget"`
	Translate TranslateConfig `koanf:"translate"`
	Cache     CacheConfig     `koanf:"cache"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type FetcherConfig struct {
	Strategy     string        `koanf:"strategy"`
	Timeout      time.Duration `koanf:"timeout"`
	Limit        int           `koanf:"limit"`
	MinLength    int           `koanf:"min_length"`
	MaxLength    int           `koanf:"max_length"`
	MaxBodyBytes int64         `koanf:"max_body_bytes"`
	KeepLinks    bool          `koanf:"keep_links"`
	// AllowList defaults to the widget channels.
	AllowList []string `koanf:"allow_list"`
}

type TelegramConfig struct {
	BotTokenEnv string `koanf:"bot_token_env"`
	APIURL      string `koanf:"api_url"`
	UpdateLimit int    `koanf:"update_limit"`
	PreviewURL  string `koanf:"preview_url"`
	BridgeURL   string `koanf:"bridge_url"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

type StorageConfig struct {
	Driver string        `koanf:"driver"`
	DSN    string        `koanf:"dsn"`
	Retain time.Duration `koanf:"retain"`
}

type WidgetConfig struct {
	Enabled bool   `koanf:"enabled"`
	Title   string `koanf:"title"`
	// SourceURL points at a remote fetch endpoint. Empty uses the local fetcher.
	SourceURL       string          `koanf:"source_url"`
	RefreshInterval time.Duration   `koanf:"refresh_interval"`
	CacheTTL        time.Duration   `koanf:"cache_ttl"`
	CacheSize       int             `koanf:"cache_size"`
	RateLimit       int             `koanf:"rate_limit"`
	FetchTimeout    time.Duration   `koanf:"fetch_timeout"`
	ChannelDelay    time.Duration   `koanf:"channel_delay"`
	Timezone        string          `koanf:"timezone"`
	Language        string          `koanf:"language"`
	Channels        []model.Channel `koanf:"channels"`
}

type TranslateConfig struct {
	Provider   string        `koanf:"provider"`
	Endpoint   string        `koanf:"endpoint"`
	SourceLang string        `koanf:"source_lang"`
	Timeout    time.Duration `koanf:"timeout"`
	Delay      time.Duration `koanf:"delay"`
	CacheTTL   time.Duration `koanf:"cache_ttl"`
}

type CacheConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Fetcher: FetcherConfig{
			Strategy:     "scrape",
			Timeout:      10 * time.Second,
			Limit:        10,
			MaxLength:    5000,
			MaxBodyBytes: 1 << 20,
		},
		Telegram: TelegramConfig{
			BotTokenEnv: "TELEGRAM_BOT_TOKEN",
			UpdateLimit: 100,
		},
		RateLimit: RateLimitConfig{
			Requests: 30,
			Window:   time.Minute,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "chanwidget.db",
			Retain: 30 * 24 * time.Hour,
		},
		Widget: WidgetConfig{
			Enabled:         true,
			Title:           "Telegram Channels",
			RefreshInterval: 5 * time.Minute,
			CacheTTL:        5 * time.Minute,
			CacheSize:       100,
			RateLimit:       10,
			FetchTimeout:    15 * time.Second,
			ChannelDelay:    time.Second,
			Language:        "en",
		},
		Translate: TranslateConfig{
			Provider:   "google",
			SourceLang: "he",
			Timeout:    10 * time.Second,
			Delay:      500 * time.Millisecond,
			CacheTTL:   24 * time.Hour,
		},
		Cache: CacheConfig{
			SweepInterval: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (or DefaultFile when path is empty and the file exists),
// applies CHANWIDGET_ environment overrides and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.fill()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps CHANWIDGET_WIDGET__CACHE_TTL to widget.cache_ttl.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// fill sets list defaults, which cannot be preset without merging into
// user-provided lists.
func (c *Config) fill() {
	if len(c.Widget.Channels) == 0 {
		c.Widget.Channels = model.DefaultChannels()
	}
	if len(c.Fetcher.AllowList) == 0 {
		for _, ch := range c.Widget.Channels {
			c.Fetcher.AllowList = append(c.Fetcher.AllowList, ch.Username)
		}
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(oneOf(c.Fetcher.Strategy, "api", "scrape", "feed"), "fetcher.strategy: unknown strategy %q", c.Fetcher.Strategy)
	check(c.Fetcher.Timeout > 0, "fetcher.timeout must be positive")
	check(c.Fetcher.Limit > 0, "fetcher.limit must be positive")
	check(c.Fetcher.MinLength >= 0, "fetcher.min_length must not be negative")
	check(c.Fetcher.MaxLength > 0, "fetcher.max_length must be positive")
	check(c.Fetcher.MaxBodyBytes > 0, "fetcher.max_body_bytes must be positive")
	for _, ch := range c.Fetcher.AllowList {
		check(usernameRe.MatchString(ch), "fetcher.allow_list: invalid channel %q", ch)
	}
	check(c.Fetcher.Strategy != "api" || c.Telegram.BotTokenEnv != "", "telegram.bot_token_env is required for the api strategy")
	check(c.RateLimit.Requests >= 0, "ratelimit.requests must not be negative")
	check(c.RateLimit.Window > 0, "ratelimit.window must be positive")
	check(oneOf(c.Storage.Driver, "sqlite", "postgres", "none"), "storage.driver: unknown driver %q", c.Storage.Driver)
	check(c.Storage.Driver != "postgres" || c.Storage.DSN != "", "storage.dsn is required for postgres")
	check(c.Widget.RefreshInterval > 0, "widget.refresh_interval must be positive")
	check(c.Widget.CacheTTL > 0, "widget.cache_ttl must be positive")
	check(c.Widget.FetchTimeout > 0, "widget.fetch_timeout must be positive")
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("widget.timezone: %w", err))
	}
	containers := make(map[string]bool)
	for _, ch := range c.Widget.Channels {
		check(usernameRe.MatchString(ch.Username), "widget.channels: invalid username %q", ch.Username)
		check(ch.Container != "", "widget.channels: %s has no container", ch.Username)
		check(!containers[ch.Container], "widget.channels: container %q used twice", ch.Container)
		containers[ch.Container] = true
	}
	check(oneOf(c.Translate.Provider, "google", "mymemory"), "translate.provider: unknown provider %q", c.Translate.Provider)
	check(c.Cache.SweepInterval > 0, "cache.sweep_interval must be positive")
	check(oneOf(c.Log.Format, "text", "json"), "log.format: unknown format %q", c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// BotToken resolves the bot token from the environment variable named by
// telegram.bot_token_env.
func (c *Config) BotToken() string {
	if c.Telegram.BotTokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.Telegram.BotTokenEnv))
}

// Location returns the time zone cards are rendered in.
func (c *Config) Location() (*time.Location, error) {
	if c.Widget.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Widget.Timezone)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
