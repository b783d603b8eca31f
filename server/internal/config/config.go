package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FOLLOWBELL_HTTP_PORT.
const EnvPrefix = "FOLLOWBELL_"

// Default values for the server configuration.
const (
	DefaultHost              = "127.0.0.1"
	DefaultHTTPPort          = 3000
	DefaultPortScanRange     = 100
	DefaultDBPath            = "followbell.db"
	DefaultPagesDir          = "pages"
	DefaultPublicDir         = "public"
	DefaultLogLevel          = "info"
	DefaultTTL               = 30 * time.Second
	DefaultPageSize          = 10
	DefaultBroadcastInterval = 5 * time.Second
	DefaultTestNickname      = "테스트 유저"
	DefaultChzzkURL          = "https://api.chzzk.naver.com"
	DefaultNaverGameURL      = "https://comm-api.game.naver.com"
	DefaultPlatformTimeout   = 5 * time.Second
	DefaultMinPollInterval   = time.Second
	DefaultRetryAttempts     = 3
	DefaultAlertCooldown     = 10 * time.Minute
	DefaultAlertBuffer       = 64
	DefaultAlertHistory      = 100
)

// Config is the whole of config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Feed     FeedConfig     `yaml:"feed"`
	Platform PlatformConfig `yaml:"platform"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// ServerConfig holds listener, storage and logging settings.
type ServerConfig struct {
	// Host is the interface the HTTP and gRPC listeners bind to.
	Host string `yaml:"host" env:"HOST, overwrite"`

	// HTTPPort is the first port tried for the HTTP listener.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT, overwrite"`

	// PortScanRange is how many ports, starting at HTTPPort, are tried
	// before giving up.
	PortScanRange int `yaml:"port_scan_range" env:"PORT_SCAN_RANGE, overwrite"`

	// GRPCPort is the port of the gRPC health service; 0 disables it.
	GRPCPort int `yaml:"grpc_port" env:"GRPC_PORT, overwrite"`

	Auth AuthConfig `yaml:"auth"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL, overwrite"`

	PagesDir  string `yaml:"pages_dir" env:"PAGES_DIR, overwrite"`
	PublicDir string `yaml:"public_dir" env:"PUBLIC_DIR, overwrite"`
	DBPath    string `yaml:"db_path" env:"DB_PATH, overwrite"`

	// Dev enables the /cookies debug route.
	Dev bool `yaml:"dev" env:"DEV, overwrite"`
}

// AuthConfig controls API key checks on admin routes and the gRPC service.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" env:"AUTH_MODE, overwrite"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header and gRPC metadata key to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// FeedConfig controls the follower aggregation engine.
type FeedConfig struct {
	// TTL is how long a new or test follower stays in its queue.
	TTL time.Duration `yaml:"ttl" env:"FEED_TTL, overwrite"`

	// PageSize is the size reported in the snapshot envelope and requested upstream.
	PageSize int `yaml:"page_size" env:"PAGE_SIZE, overwrite"`

	// BroadcastInterval is how often websocket clients receive a snapshot.
	BroadcastInterval time.Duration `yaml:"broadcast_interval" env:"BROADCAST_INTERVAL, overwrite"`

	TestNickname string `yaml:"test_nickname" env:"TEST_NICKNAME, overwrite"`
}

// PlatformConfig controls the upstream platform client.
type PlatformConfig struct {
	ChzzkURL     string        `yaml:"chzzk_url" env:"CHZZK_URL, overwrite"`
	NaverGameURL string        `yaml:"naver_game_url" env:"NAVER_GAME_URL, overwrite"`
	Timeout      time.Duration `yaml:"timeout" env:"PLATFORM_TIMEOUT, overwrite"`

	// MinPollInterval is the minimum spacing of follower list requests;
	// widget polls arriving sooner reuse the last list. 0 disables the limit.
	MinPollInterval time.Duration `yaml:"min_poll_interval" env:"MIN_POLL_INTERVAL, overwrite"`

	RetryAttempts uint `yaml:"retry_attempts" env:"RETRY_ATTEMPTS, overwrite"`
}

// AlertsConfig controls new-follower webhook delivery.
type AlertsConfig struct {
	// Cooldown suppresses repeat alerts for the same follower.
	Cooldown time.Duration `yaml:"cooldown"`

	// BufferSize bounds pending deliveries; the oldest is dropped when full.
	BufferSize int `yaml:"buffer_size"`

	// HistorySize bounds the alerts kept for GET /api/v1/alerts.
	HistorySize int `yaml:"history_size"`

	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | discord | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Level parses LogLevel. Validation guarantees it is well formed.
func (s ServerConfig) Level() slog.Level {
	var l slog.Level
	_ = l.UnmarshalText([]byte(s.LogLevel))
	return l
}

// Load reads the config file at path and applies FOLLOWBELL_* environment
// overrides. A missing file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	return LoadWith(path, envconfig.OsLookuper())
}

// LoadWith is Load with the environment read from l.
func LoadWith(path string, l envconfig.Lookuper) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse yaml: %w", err)
			}
		case os.IsNotExist(err):
			slog.Debug("config: file not found, using defaults", "path", path)
		default:
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, l),
	}); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// DefaultYAML renders the default configuration as YAML.
func DefaultYAML() ([]byte, error) {
	return yaml.Marshal(defaults())
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          DefaultHost,
			HTTPPort:      DefaultHTTPPort,
			PortScanRange: DefaultPortScanRange,
			Auth:          AuthConfig{Mode: "none"},
			LogLevel:      DefaultLogLevel,
			PagesDir:      DefaultPagesDir,
			PublicDir:     DefaultPublicDir,
			DBPath:        DefaultDBPath,
		},
		Feed: FeedConfig{
			TTL:               DefaultTTL,
			PageSize:          DefaultPageSize,
			BroadcastInterval: DefaultBroadcastInterval,
			TestNickname:      DefaultTestNickname,
		},
		Platform: PlatformConfig{
			ChzzkURL:        DefaultChzzkURL,
			NaverGameURL:    DefaultNaverGameURL,
			Timeout:         DefaultPlatformTimeout,
			MinPollInterval: DefaultMinPollInterval,
			RetryAttempts:   DefaultRetryAttempts,
		},
		Alerts: AlertsConfig{
			Cooldown:    DefaultAlertCooldown,
			BufferSize:  DefaultAlertBuffer,
			HistorySize: DefaultAlertHistory,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.PortScanRange < 1 {
		return fmt.Errorf("server.port_scan_range must be at least 1")
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return fmt.Errorf("server.log_level %q: want debug|info|warn|error", s.LogLevel)
	}
	if s.DBPath == "" {
		return fmt.Errorf("server.db_path must not be empty")
	}

	f := cfg.Feed
	if f.TTL <= 0 {
		return fmt.Errorf("feed.ttl must be positive")
	}
	if f.PageSize <= 0 {
		return fmt.Errorf("feed.page_size must be positive")
	}
	if f.BroadcastInterval <= 0 {
		return fmt.Errorf("feed.broadcast_interval must be positive")
	}

	p := cfg.Platform
	if p.Timeout <= 0 {
		return fmt.Errorf("platform.timeout must be positive")
	}
	if p.MinPollInterval < 0 {
		return fmt.Errorf("platform.min_poll_interval must not be negative")
	}
	if p.RetryAttempts == 0 {
		return fmt.Errorf("platform.retry_attempts must be at least 1")
	}

	a := cfg.Alerts
	if a.Cooldown < 0 {
		return fmt.Errorf("alerts.cooldown must not be negative")
	}
	if a.BufferSize <= 0 || a.HistorySize <= 0 {
		return fmt.Errorf("alerts.buffer_size and alerts.history_size must be positive")
	}
	for i, w := range a.Webhooks {
		switch w.Type {
		case "slack", "discord", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d].type %q unknown: want slack|discord|teams|http", i, w.Type)
		}
		if w.URLEnv == "" {
			return fmt.Errorf("alerts.webhooks[%d].url_env must be set", i)
		}
	}
	return nil
}
