package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetcher.Strategy != "scrape" || cfg.Fetcher.Limit != 10 || cfg.Fetcher.MaxLength != 5000 {
		t.Errorf("fetcher defaults = %+v", cfg.Fetcher)
	}
	if cfg.Widget.RefreshInterval != 5*time.Minute || cfg.Widget.RateLimit != 10 {
		t.Errorf("widget defaults = %+v", cfg.Widget)
	}
	if len(cfg.Widget.Channels) != 5 {
		t.Errorf("channels = %d, want 5", len(cfg.Widget.Channels))
	}
	if len(cfg.Fetcher.AllowList) != 5 || cfg.Fetcher.AllowList[0] != "N12Chat" {
		t.Errorf("allow list = %v", cfg.Fetcher.AllowList)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
fetcher:
  strategy: feed
  min_length: 3
widget:
  refresh_interval: 2m
  timezone: Asia/Jerusalem
  channels:
    - name: Only
      username: onlychan
      container: only-container
translate:
  provider: mymemory
log:
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetcher.Strategy != "feed" || cfg.Fetcher.MinLength != 3 {
		t.Errorf("fetcher = %+v", cfg.Fetcher)
	}
	// Unset keys keep their defaults.
	if cfg.Fetcher.Limit != 10 {
		t.Errorf("limit = %d, want default 10", cfg.Fetcher.Limit)
	}
	if cfg.Widget.RefreshInterval != 2*time.Minute {
		t.Errorf("refresh interval = %v", cfg.Widget.RefreshInterval)
	}
	if len(cfg.Widget.Channels) != 1 || cfg.Widget.Channels[0].Username != "onlychan" {
		t.Errorf("channels = %+v", cfg.Widget.Channels)
	}
	if len(cfg.Fetcher.AllowList) != 1 || cfg.Fetcher.AllowList[0] != "onlychan" {
		t.Errorf("allow list = %v", cfg.Fetcher.AllowList)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Jerusalem" {
		t.Errorf("location = %v, %v", loc, err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9000\"\n")
	t.Setenv("CHANWIDGET_SERVER__ADDR", ":7000")
	t.Setenv("CHANWIDGET_WIDGET__CACHE_TTL", "90s")
	t.Setenv("CHANWIDGET_RATELIMIT__REQUESTS", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Widget.CacheTTL != 90*time.Second {
		t.Errorf("cache ttl = %v", cfg.Widget.CacheTTL)
	}
	if cfg.RateLimit.Requests != 5 {
		t.Errorf("requests = %d", cfg.RateLimit.Requests)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"strategy", "fetcher:\n  strategy: mtproto\n", "fetcher.strategy"},
		{"driver", "storage:\n  driver: mongo\n", "storage.driver"},
		{"postgres dsn", "storage:\n  driver: postgres\n  dsn: \"\"\n", "storage.dsn"},
		{"timezone", "widget:\n  timezone: Mars/Olympus\n", "widget.timezone"},
		{"allow list", "fetcher:\n  allow_list: [\"bad-name\"]\n", "fetcher.allow_list"},
		{"duplicate container", "widget:\n  channels:\n    - {username: a, container: c}\n    - {username: b, container: c}\n", "used twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("explicit missing file should fail")
	}
}

func TestBotToken(t *testing.T) {
	cfg := Default()
	cfg.Telegram.BotTokenEnv = "CHANWIDGET_TEST_TOKEN"
	t.Setenv("CHANWIDGET_TEST_TOKEN", " 123:abc \n")
	if got := cfg.BotToken(); got != "123:abc" {
		t.Errorf("token = %q", got)
	}
	cfg.Telegram.BotTokenEnv = ""
	if got := cfg.BotToken(); got != "" {
		t.Errorf("token = %q, want empty", got)
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("CHANWIDGET_WIDGET__CACHE_TTL"); got != "widget.cache_ttl" {
		t.Errorf("envKey = %q", got)
	}
}
