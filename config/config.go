package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Classify  ClassifyConfig  `mapstructure:"classify" yaml:"classify"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Broadcast BroadcastConfig `mapstructure:"broadcast" yaml:"broadcast"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
}

// EngineConfig controls the static-then-browser engine race.
type EngineConfig struct {
	// EnableMultiEngine toggles the dispatcher. When off every capture
	// goes straight to the browser.
	EnableMultiEngine bool `mapstructure:"enable_multi_engine" yaml:"enable_multi_engine"` // default: true

	// EscalationDelays is the staged start delay for each engine tier.
	EscalationDelays []time.Duration `mapstructure:"escalation_delays" yaml:"escalation_delays"` // default: [0s, 3s, 8s] (http, rod, rod-stealth)

	// HTTPTimeout is the deadline for the static HTTP engine.
	HTTPTimeout time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"` // default: 10s

	// DomainMemoryTTL is how long the winning engine is remembered per domain.
	DomainMemoryTTL time.Duration `mapstructure:"domain_memory_ttl" yaml:"domain_memory_ttl"` // default: 24h

	// RespectRobots makes the static engine honour robots.txt.
	RespectRobots bool `mapstructure:"respect_robots" yaml:"respect_robots"` // default: false
}

// CacheConfig controls the capture response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"` // default: 1000

	// TTL is the hard upper bound on cached entry age.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"` // default: 1h
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"` // default: "0.0.0.0"
	Port int    `mapstructure:"port" yaml:"port"` // default: 8080
	Mode string `mapstructure:"mode" yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `mapstructure:"headless" yaml:"headless"` // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"` // default: 5

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string `mapstructure:"default_proxy" yaml:"default_proxy"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `mapstructure:"no_sandbox" yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `mapstructure:"browser_bin" yaml:"browser_bin"`

	// DownloadDir receives partial files of downloads before they are canceled.
	DownloadDir string `mapstructure:"download_dir" yaml:"download_dir"` // default: os.TempDir()/mediatap-downloads
}

// CaptureConfig controls page observation.
type CaptureConfig struct {
	// DefaultTimeout is the per-capture timeout.
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"` // default: 45s

	// MaxTimeout is the maximum allowed timeout from the client.
	MaxTimeout time.Duration `mapstructure:"max_timeout" yaml:"max_timeout"` // default: 120s

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"` // default: 20s

	// ObserveWindow is how long a page is watched after it loads.
	ObserveWindow time.Duration `mapstructure:"observe_window" yaml:"observe_window"` // default: 8s

	// RescanInterval is the period of DOM and resource-timing rescans.
	RescanInterval time.Duration `mapstructure:"rescan_interval" yaml:"rescan_interval"` // default: 3s

	// BlockedResourceTypes lists resource types to fail at request stage.
	// Media is never blocked. default: ["Image", "Font"]
	BlockedResourceTypes []string `mapstructure:"blocked_resource_types" yaml:"blocked_resource_types"`

	// BlockAds fails requests to known ad and tracking domains.
	BlockAds bool `mapstructure:"block_ads" yaml:"block_ads"` // default: true

	// ClickPlayer clicks the page's player after load so it requests its media.
	ClickPlayer bool `mapstructure:"click_player" yaml:"click_player"` // default: true

	// PlayWait is how long to wait for a clicked player to start playing.
	PlayWait time.Duration `mapstructure:"play_wait" yaml:"play_wait"` // default: 15s
}

// ClassifyConfig selects the URL heuristics.
type ClassifyConfig struct {
	// Profile is "broad" or "strict".
	Profile string `mapstructure:"profile" yaml:"profile"` // default: "broad"
}

// StoreConfig selects the capture store backend.
type StoreConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"`               // "memory" or "sqlite"; default: "memory"
	Path         string `mapstructure:"path" yaml:"path"`                     // sqlite file; default: "mediatap.db"
	MinURLLength int    `mapstructure:"min_url_length" yaml:"min_url_length"` // default: 10
}

// BroadcastConfig controls delivery of new captures to listeners.
type BroadcastConfig struct {
	// RebroadcastDuplicates publishes repeat observations too.
	RebroadcastDuplicates bool `mapstructure:"rebroadcast_duplicates" yaml:"rebroadcast_duplicates"` // default: false

	// SubscriberBuffer is the per-subscriber channel size.
	SubscriberBuffer int `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"` // default: 64

	// Webhooks receive every capture event.
	Webhooks []string `mapstructure:"webhooks" yaml:"webhooks"`

	// WebhookSecret signs webhook bodies with HMAC-SHA256 when set.
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"`

	// LogInterval is the period of the "total captured" log line.
	LogInterval time.Duration `mapstructure:"log_interval" yaml:"log_interval"` // default: 15s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"` // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string `mapstructure:"api_keys" yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"` // default: 20

	// Burst is the maximum burst size per API key.
	Burst int `mapstructure:"burst" yaml:"burst"` // default: 40
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // default: "info"
	Format string `mapstructure:"format" yaml:"format"` // "json" or "text"; default: "json"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Browser: BrowserConfig{
			Headless:    true,
			MaxPages:    5,
			DownloadDir: os.TempDir() + string(os.PathSeparator) + "mediatap-downloads",
		},
		Capture: CaptureConfig{
			DefaultTimeout:       45 * time.Second,
			MaxTimeout:           120 * time.Second,
			NavigationTimeout:    20 * time.Second,
			ObserveWindow:        8 * time.Second,
			RescanInterval:       3 * time.Second,
			BlockedResourceTypes: []string{"Image", "Font"},
			BlockAds:             true,
			ClickPlayer:          true,
			PlayWait:             15 * time.Second,
		},
		Classify: ClassifyConfig{Profile: "broad"},
		Store: StoreConfig{
			Backend:      "memory",
			Path:         "mediatap.db",
			MinURLLength: 10,
		},
		Broadcast: BroadcastConfig{
			SubscriberBuffer: 64,
			LogInterval:      15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
			TTL:        time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			EnableMultiEngine: true,
			EscalationDelays:  []time.Duration{0, 3 * time.Second, 8 * time.Second},
			HTTPTimeout:       10 * time.Second,
			DomainMemoryTTL:   24 * time.Hour,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then MEDIATAP_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		// Lists from the file replace the defaults instead of overlaying them.
		zeroSlices := func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }
		if err := v.Unmarshal(cfg, zeroSlices); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides cfg with any MEDIATAP_* variables that are set.
func applyEnv(cfg *Config) {
	cfg.Server.Host = envOr("MEDIATAP_HOST", cfg.Server.Host)
	cfg.Server.Port = envIntOr("MEDIATAP_PORT", cfg.Server.Port)
	cfg.Server.Mode = envOr("MEDIATAP_MODE", cfg.Server.Mode)

	cfg.Browser.Headless = envBoolOr("MEDIATAP_HEADLESS", cfg.Browser.Headless)
	cfg.Browser.MaxPages = envIntOr("MEDIATAP_MAX_PAGES", cfg.Browser.MaxPages)
	cfg.Browser.DefaultProxy = envOr("MEDIATAP_PROXY", cfg.Browser.DefaultProxy)
	cfg.Browser.NoSandbox = envBoolOr("MEDIATAP_NO_SANDBOX", cfg.Browser.NoSandbox)
	cfg.Browser.BrowserBin = envOr("MEDIATAP_BROWSER_BIN", cfg.Browser.BrowserBin)
	cfg.Browser.DownloadDir = envOr("MEDIATAP_DOWNLOAD_DIR", cfg.Browser.DownloadDir)

	cfg.Capture.DefaultTimeout = envDurationOr("MEDIATAP_DEFAULT_TIMEOUT", cfg.Capture.DefaultTimeout)
	cfg.Capture.MaxTimeout = envDurationOr("MEDIATAP_MAX_TIMEOUT", cfg.Capture.MaxTimeout)
	cfg.Capture.NavigationTimeout = envDurationOr("MEDIATAP_NAV_TIMEOUT", cfg.Capture.NavigationTimeout)
	cfg.Capture.ObserveWindow = envDurationOr("MEDIATAP_OBSERVE_WINDOW", cfg.Capture.ObserveWindow)
	cfg.Capture.RescanInterval = envDurationOr("MEDIATAP_RESCAN_INTERVAL", cfg.Capture.RescanInterval)
	cfg.Capture.BlockedResourceTypes = envSliceOr("MEDIATAP_BLOCKED_RESOURCES", cfg.Capture.BlockedResourceTypes)
	cfg.Capture.BlockAds = envBoolOr("MEDIATAP_BLOCK_ADS", cfg.Capture.BlockAds)
	cfg.Capture.ClickPlayer = envBoolOr("MEDIATAP_CLICK_PLAYER", cfg.Capture.ClickPlayer)
	cfg.Capture.PlayWait = envDurationOr("MEDIATAP_PLAY_WAIT", cfg.Capture.PlayWait)

	cfg.Classify.Profile = envOr("MEDIATAP_CLASSIFY_PROFILE", cfg.Classify.Profile)

	cfg.Store.Backend = envOr("MEDIATAP_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = envOr("MEDIATAP_STORE_PATH", cfg.Store.Path)
	cfg.Store.MinURLLength = envIntOr("MEDIATAP_MIN_URL_LENGTH", cfg.Store.MinURLLength)

	cfg.Broadcast.RebroadcastDuplicates = envBoolOr("MEDIATAP_REBROADCAST", cfg.Broadcast.RebroadcastDuplicates)
	cfg.Broadcast.SubscriberBuffer = envIntOr("MEDIATAP_SUBSCRIBER_BUFFER", cfg.Broadcast.SubscriberBuffer)
	cfg.Broadcast.Webhooks = envSliceOr("MEDIATAP_WEBHOOKS", cfg.Broadcast.Webhooks)
	cfg.Broadcast.WebhookSecret = envOr("MEDIATAP_WEBHOOK_SECRET", cfg.Broadcast.WebhookSecret)
	cfg.Broadcast.LogInterval = envDurationOr("MEDIATAP_LOG_INTERVAL", cfg.Broadcast.LogInterval)

	cfg.Auth.Enabled = envBoolOr("MEDIATAP_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.APIKeys = envSliceOr("MEDIATAP_API_KEYS", cfg.Auth.APIKeys)

	cfg.RateLimit.RequestsPerSecond = envFloatOr("MEDIATAP_RATE_RPS", cfg.RateLimit.RequestsPerSecond)
	cfg.RateLimit.Burst = envIntOr("MEDIATAP_RATE_BURST", cfg.RateLimit.Burst)

	cfg.Cache.MaxEntries = envIntOr("MEDIATAP_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.Cache.TTL = envDurationOr("MEDIATAP_CACHE_TTL", cfg.Cache.TTL)

	cfg.Log.Level = envOr("MEDIATAP_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("MEDIATAP_LOG_FORMAT", cfg.Log.Format)

	cfg.Engine.EnableMultiEngine = envBoolOr("MEDIATAP_MULTI_ENGINE", cfg.Engine.EnableMultiEngine)
	cfg.Engine.EscalationDelays = envDurationSliceOr("MEDIATAP_ESCALATION_DELAYS", cfg.Engine.EscalationDelays)
	cfg.Engine.HTTPTimeout = envDurationOr("MEDIATAP_HTTP_TIMEOUT", cfg.Engine.HTTPTimeout)
	cfg.Engine.DomainMemoryTTL = envDurationOr("MEDIATAP_DOMAIN_MEMORY_TTL", cfg.Engine.DomainMemoryTTL)
	cfg.Engine.RespectRobots = envBoolOr("MEDIATAP_RESPECT_ROBOTS", cfg.Engine.RespectRobots)
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
