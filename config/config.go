package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Search    SearchConfig
	Worker    WorkerConfig
	Jobs      JobsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Archive   ArchiveConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 5000
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls how worker sessions are created.
type BrowserConfig struct {
	// Driver selects the session implementation: "rod" drives a real
	// Chromium, "http" fetches pages with a Chrome TLS fingerprint and
	// parses them without running JavaScript.
	Driver string // default: "rod"

	// Headless controls whether the browser runs headless.
	Headless bool // default: false

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL used by every session.
	Proxy string

	// Stealth masks automation fingerprints on new pages.
	Stealth bool // default: true

	// WindowWidth and WindowHeight size the browser window.
	WindowWidth  int // default: 1920
	WindowHeight int // default: 1080

	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration // default: 30s

	// AcceptLanguage is sent with every request.
	AcceptLanguage string // default: "en-US,en;q=0.9"

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: true
}

// SearchConfig controls how a title is searched and matched.
type SearchConfig struct {
	// BaseURL is the price-comparison site root.
	BaseURL string // default: "https://gg.deals"

	// MaxCandidates is how many result entries are scored per search.
	MaxCandidates int // default: 8

	// EarlyExit stops scanning once a candidate scores at least this much.
	EarlyExit float64 // default: 0.95

	// RetryBelow triggers the simplified-query retry.
	RetryBelow float64 // default: 0.4

	// RejectBelow turns a best match below this score into "no match".
	RejectBelow float64 // default: 0.3

	// WaitTimeout bounds the wait for result markup.
	WaitTimeout time.Duration // default: 10s

	// SettleDelay is slept when the result markup did not show up in time.
	SettleDelay time.Duration // default: 3s
}

// WorkerConfig controls the worker pool.
type WorkerConfig struct {
	// DefaultWorkers is used when a job does not ask for a worker count.
	DefaultWorkers int // default: 3

	// StaggerDelay separates successive worker launches.
	StaggerDelay time.Duration // default: 4s

	// PacingDelay is slept by a worker after each task.
	PacingDelay time.Duration // default: 300ms

	// InitDelay is slept after opening the home page in a new session.
	InitDelay time.Duration // default: 8s

	// RecoveryDelay is slept after navigating home following a failed task.
	RecoveryDelay time.Duration // default: 3s

	// PersistEvery writes the result snapshot every N finished tasks.
	// The final snapshot is always written.
	PersistEvery int // default: 1
}

// JobsConfig controls the job-control layer.
type JobsConfig struct {
	// DataDir holds <tab>_results.json and <tab>_progress.json.
	DataDir string // default: "./data"

	// Tabs are the independent job slots.
	Tabs []string // default: ["trader", "my"]

	// CleanupOnExit removes runtime files on shutdown.
	CleanupOnExit bool // default: true

	// StreamInterval is the progress-stream polling interval.
	StreamInterval time.Duration // default: 500ms

	// StreamMaxDuration closes a progress stream after this long.
	StreamMaxDuration time.Duration // default: 10m
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 20

	// Burst is the maximum burst size per API key.
	Burst int // default: 40
}

// CacheConfig controls the match cache.
type CacheConfig struct {
	// TTL is how long a match is reused. 0 disables the cache.
	TTL time.Duration // default: 0

	// MaxEntries is the maximum number of cached matches.
	MaxEntries int // default: 5000
}

// ArchiveConfig controls the run archive.
type ArchiveConfig struct {
	Enabled bool // default: true

	// DSN is a SQLite path or a postgres:// URL.
	// default: "<DataDir>/dealscout.db"
	DSN string

	// HistoryLimit caps GET /api/history results.
	HistoryLimit int // default: 20
}

// WebhookConfig controls job completion notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	dataDir := envOr("DEALSCOUT_DATA_DIR", "./data")

	return &Config{
		Server: ServerConfig{
			Host: envOr("DEALSCOUT_HOST", "127.0.0.1"),
			Port: envIntOr("DEALSCOUT_PORT", 5000),
			Mode: envOr("DEALSCOUT_MODE", "release"),
		},
		Browser: BrowserConfig{
			Driver:            envOr("DEALSCOUT_DRIVER", "rod"),
			Headless:          envBoolOr("DEALSCOUT_HEADLESS", false),
			NoSandbox:         envBoolOr("DEALSCOUT_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("DEALSCOUT_BROWSER_BIN"),
			Proxy:             os.Getenv("DEALSCOUT_PROXY"),
			Stealth:           envBoolOr("DEALSCOUT_STEALTH", true),
			WindowWidth:       envIntOr("DEALSCOUT_WINDOW_WIDTH", 1920),
			WindowHeight:      envIntOr("DEALSCOUT_WINDOW_HEIGHT", 1080),
			NavigationTimeout: envDurationOr("DEALSCOUT_NAV_TIMEOUT", 30*time.Second),
			AcceptLanguage:    envOr("DEALSCOUT_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			BlockedResourceTypes: envSliceOr("DEALSCOUT_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("DEALSCOUT_BLOCK_ADS", true),
		},
		Search: SearchConfig{
			BaseURL:       strings.TrimRight(envOr("DEALSCOUT_BASE_URL", "https://gg.deals"), "/"),
			MaxCandidates: envIntOr("DEALSCOUT_MAX_CANDIDATES", 8),
			EarlyExit:     envFloatOr("DEALSCOUT_EARLY_EXIT", 0.95),
			RetryBelow:    envFloatOr("DEALSCOUT_RETRY_BELOW", 0.4),
			RejectBelow:   envFloatOr("DEALSCOUT_REJECT_BELOW", 0.3),
			WaitTimeout:   envDurationOr("DEALSCOUT_WAIT_TIMEOUT", 10*time.Second),
			SettleDelay:   envDurationOr("DEALSCOUT_SETTLE_DELAY", 3*time.Second),
		},
		Worker: WorkerConfig{
			DefaultWorkers: envIntOr("DEALSCOUT_WORKERS", 3),
			StaggerDelay:   envDurationOr("DEALSCOUT_STAGGER_DELAY", 4*time.Second),
			PacingDelay:    envDurationOr("DEALSCOUT_PACING_DELAY", 300*time.Millisecond),
			InitDelay:      envDurationOr("DEALSCOUT_INIT_DELAY", 8*time.Second),
			RecoveryDelay:  envDurationOr("DEALSCOUT_RECOVERY_DELAY", 3*time.Second),
			PersistEvery:   envIntOr("DEALSCOUT_PERSIST_EVERY", 1),
		},
		Jobs: JobsConfig{
			DataDir:           dataDir,
			Tabs:              envSliceOr("DEALSCOUT_TABS", []string{"trader", "my"}),
			CleanupOnExit:     envBoolOr("DEALSCOUT_CLEANUP_ON_EXIT", true),
			StreamInterval:    envDurationOr("DEALSCOUT_STREAM_INTERVAL", 500*time.Millisecond),
			StreamMaxDuration: envDurationOr("DEALSCOUT_STREAM_MAX_DURATION", 10*time.Minute),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("DEALSCOUT_AUTH_ENABLED", false),
			APIKeys: envSliceOr("DEALSCOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("DEALSCOUT_RATE_RPS", 20.0),
			Burst:             envIntOr("DEALSCOUT_RATE_BURST", 40),
		},
		Cache: CacheConfig{
			TTL:        envDurationOr("DEALSCOUT_MATCH_CACHE_TTL", 0),
			MaxEntries: envIntOr("DEALSCOUT_MATCH_CACHE_MAX_ENTRIES", 5000),
		},
		Archive: ArchiveConfig{
			Enabled:      envBoolOr("DEALSCOUT_ARCHIVE_ENABLED", true),
			DSN:          envOr("DEALSCOUT_ARCHIVE_DSN", filepath.Join(dataDir, "dealscout.db")),
			HistoryLimit: envIntOr("DEALSCOUT_HISTORY_LIMIT", 20),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("DEALSCOUT_WEBHOOK_URL"),
			Secret: os.Getenv("DEALSCOUT_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("DEALSCOUT_LOG_LEVEL", "info"),
			Format: envOr("DEALSCOUT_LOG_FORMAT", "text"),
		},
	}
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
