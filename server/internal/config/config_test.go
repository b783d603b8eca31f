package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

// noEnv is a lookuper with nothing set.
var noEnv = envconfig.MapLookuper(map[string]string{})

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, "server: {}\n")
	cfg, err := LoadWith(p, noEnv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.PortScanRange != DefaultPortScanRange {
		t.Errorf("port_scan_range: got %d, want %d", cfg.Server.PortScanRange, DefaultPortScanRange)
	}
	if cfg.Feed.TTL != 30*time.Second {
		t.Errorf("feed.ttl: got %v, want 30s", cfg.Feed.TTL)
	}
	if cfg.Feed.PageSize != 10 {
		t.Errorf("feed.page_size: got %d, want 10", cfg.Feed.PageSize)
	}
	if cfg.Platform.Timeout != 5*time.Second {
		t.Errorf("platform.timeout: got %v, want 5s", cfg.Platform.Timeout)
	}
	if cfg.Server.GRPCPort != 0 {
		t.Errorf("grpc_port: got %d, want 0 (disabled)", cfg.Server.GRPCPort)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWith(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.DBPath != DefaultDBPath {
		t.Errorf("db_path: got %q, want %q", cfg.Server.DBPath, DefaultDBPath)
	}
}

func TestLoad_FullFile(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 4000
  port_scan_range: 5
  grpc_port: 50051
  log_level: debug
  dev: true
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-bell-key
feed:
  ttl: 45s
  page_size: 20
  broadcast_interval: 2s
  test_nickname: preview
platform:
  min_poll_interval: 3s
  retry_attempts: 5
alerts:
  cooldown: 1m
  webhooks:
    - type: discord
      url_env: DISCORD_HOOK
`)
	cfg, err := LoadWith(p, noEnv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 4000 || cfg.Server.PortScanRange != 5 {
		t.Errorf("server ports: got %d/%d, want 4000/5", cfg.Server.HTTPPort, cfg.Server.PortScanRange)
	}
	if cfg.Server.Level() != slog.LevelDebug {
		t.Errorf("Level: got %v, want debug", cfg.Server.Level())
	}
	if !cfg.Server.Dev {
		t.Error("dev: got false, want true")
	}
	if cfg.Server.Auth.EffectiveHeader() != "x-bell-key" {
		t.Errorf("header: got %q, want x-bell-key", cfg.Server.Auth.EffectiveHeader())
	}
	if cfg.Feed.TTL != 45*time.Second || cfg.Feed.PageSize != 20 {
		t.Errorf("feed: got ttl=%v size=%d", cfg.Feed.TTL, cfg.Feed.PageSize)
	}
	if cfg.Feed.TestNickname != "preview" {
		t.Errorf("test_nickname: got %q, want preview", cfg.Feed.TestNickname)
	}
	if cfg.Platform.MinPollInterval != 3*time.Second || cfg.Platform.RetryAttempts != 5 {
		t.Errorf("platform: got %+v", cfg.Platform)
	}
	if len(cfg.Alerts.Webhooks) != 1 || cfg.Alerts.Webhooks[0].Type != "discord" {
		t.Errorf("webhooks: got %+v", cfg.Alerts.Webhooks)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Platform.ChzzkURL != DefaultChzzkURL {
		t.Errorf("chzzk_url: got %q, want default", cfg.Platform.ChzzkURL)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 4000
  db_path: from-file.db
`)
	env := envconfig.MapLookuper(map[string]string{
		"FOLLOWBELL_HTTP_PORT": "5000",
		"FOLLOWBELL_LOG_LEVEL": "warn",
		"FOLLOWBELL_FEED_TTL":  "10s",
		"FOLLOWBELL_DEV":       "true",
	})
	cfg, err := LoadWith(p, env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 5000 {
		t.Errorf("http_port: got %d, want 5000", cfg.Server.HTTPPort)
	}
	if cfg.Server.DBPath != "from-file.db" {
		t.Errorf("db_path: got %q, want from-file.db", cfg.Server.DBPath)
	}
	if cfg.Server.Level() != slog.LevelWarn {
		t.Errorf("Level: got %v, want warn", cfg.Server.Level())
	}
	if cfg.Feed.TTL != 10*time.Second {
		t.Errorf("feed.ttl: got %v, want 10s", cfg.Feed.TTL)
	}
	if !cfg.Server.Dev {
		t.Error("dev: got false, want true")
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
`)
	cfg, err := LoadWith(p, noEnv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"auth mode":    "server:\n  auth:\n    mode: oauth2\n",
		"log level":    "server:\n  log_level: loud\n",
		"http port":    "server:\n  http_port: 70000\n",
		"ttl":          "feed:\n  ttl: 0s\n",
		"webhook type": "alerts:\n  webhooks:\n    - type: pagerduty\n      url_env: X\n",
		"webhook env":  "alerts:\n  webhooks:\n    - type: slack\n",
		"retries":      "platform:\n  retry_attempts: 0\n",
		"yaml":         "server: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadWith(writeConfig(t, body), noEnv); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestDefaultYAML_RoundTrips(t *testing.T) {
	data, err := DefaultYAML()
	if err != nil {
		t.Fatalf("DefaultYAML: %v", err)
	}
	cfg, err := LoadWith(writeConfig(t, string(data)), noEnv)
	if err != nil {
		t.Fatalf("Load default yaml: %v", err)
	}
	if cfg.Feed.TTL != DefaultTTL || cfg.Feed.TestNickname != DefaultTestNickname {
		t.Errorf("got %+v, want defaults", cfg.Feed)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "server:\n  log_level: info\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, p, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(p, []byte("server:\n  log_level: debug\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case c := <-got:
		if c.Server.Level() != slog.LevelDebug {
			t.Errorf("reloaded level: got %v, want debug", c.Server.Level())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("onChange not called after write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}
