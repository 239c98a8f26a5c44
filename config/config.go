package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/use-agent/serprank/rank"
	"github.com/use-agent/serprank/runner"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Browser     BrowserConfig
	Scraper     ScraperConfig
	Marketplace MarketplaceConfig
	Rank        RankConfig
	Markers     rank.Markers
	Runner      RunnerConfig
	Report      ReportConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Cache       CacheConfig
	Log         LogConfig
	Engine      EngineConfig
}

// EngineConfig controls the multi-engine racing dispatcher.
type EngineConfig struct {
	// EnableMultiEngine toggles the multi-engine dispatcher.
	EnableMultiEngine bool // default: true

	// EscalationDelays is the staged start delay for each engine tier.
	EscalationDelays []time.Duration // default: [0s, 2s, 5s]

	// HTTPTimeout is the deadline for the pure HTTP engine.
	HTTPTimeout time.Duration // default: 10s

	// RodTimeout bounds a page load on the plain browser tier, which never
	// injects stealth. It gives up earlier than the stealth tier.
	RodTimeout time.Duration // default: 30s

	// RodStealthTimeout bounds a page load on the stealth browser tier.
	RodStealthTimeout time.Duration // default: 60s

	// MemoryTTL is how long a domain keeps its winning engine.
	MemoryTTL time.Duration // default: 24h
}

// CacheConfig controls the rank result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached keyword results.
	MaxEntries int // default: 1000
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 4

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// ScraperConfig controls page loading.
type ScraperConfig struct {
	// PageTimeout is the deadline for loading one results page.
	PageTimeout time.Duration // default: 60s

	// Stealth injects the stealth evasions into every page.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: false
}

// MarketplaceConfig describes the search site and its pacing.
type MarketplaceConfig struct {
	// BaseURL is the storefront origin. default: "https://www.amazon.co.jp"
	BaseURL string

	// NextDisabledSelector matches the greyed-out "next" control on the
	// last results page.
	NextDisabledSelector string

	// PageDelayMin/Max bound the random wait between result pages.
	PageDelayMin time.Duration // default: 2s
	PageDelayMax time.Duration // default: 5s

	// KeywordDelayMin/Max bound the random wait between keywords in a batch.
	KeywordDelayMin time.Duration // default: 5s
	KeywordDelayMax time.Duration // default: 10s

	// PageRate caps page loads per second across all sessions.
	PageRate float64 // default: 1
}

// RankConfig controls the rank engine.
type RankConfig struct {
	// PageBudget is the number of result pages scanned per keyword.
	PageBudget int // default: 3

	// EarlyStop ends a keyword once every target is ranked in every category.
	EarlyStop bool // default: true

	// CountUnidentified lets cards without a readable identifier take a rank slot.
	CountUnidentified bool // default: true

	// NotFoundLabel is written to reports for empty slots.
	NotFoundLabel string // default: "not found within 3 pages"

	// MarkersFile is an optional YAML file overriding the default markers.
	MarkersFile string
}

// RunnerConfig controls batch execution.
type RunnerConfig struct {
	// Concurrency is the number of keyword sessions run in parallel.
	Concurrency int // default: 2

	// MaxAttempts bounds retries of error/blocked sessions.
	MaxAttempts int // default: 3

	// RetryDelay is the base back-off after a failed session.
	RetryDelay time.Duration // default: 10s

	// BlockedDelay is the base back-off after a blocked session.
	BlockedDelay time.Duration // default: 2m
}

// ReportConfig controls where batch results are written.
type ReportConfig struct {
	// OutputPath is the CSV report file. default: "ranks.csv"
	OutputPath string

	// DatabaseURL, when set, also appends every row to Postgres.
	DatabaseURL string

	// SQLitePath, when set, also appends every row to a local SQLite file.
	SQLitePath string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from a .env file (if present) and environment
// variables with sane defaults, then applies the markers file if one is set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("SERPRANK_HOST", "0.0.0.0"),
			Port: envIntOr("SERPRANK_PORT", 8080),
			Mode: envOr("SERPRANK_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("SERPRANK_HEADLESS", true),
			MaxPages:     envIntOr("SERPRANK_MAX_PAGES", 4),
			DefaultProxy: os.Getenv("SERPRANK_PROXY"),
			NoSandbox:    envBoolOr("SERPRANK_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("SERPRANK_BROWSER_BIN"),
		},
		Scraper: ScraperConfig{
			PageTimeout: envDurationOr("SERPRANK_PAGE_TIMEOUT", 60*time.Second),
			Stealth:     envBoolOr("SERPRANK_STEALTH", true),
			BlockedResourceTypes: envSliceOr("SERPRANK_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			BlockAds: envBoolOr("SERPRANK_BLOCK_ADS", false),
		},
		Marketplace: MarketplaceConfig{
			BaseURL:              envOr("SERPRANK_BASE_URL", "https://www.amazon.co.jp"),
			NextDisabledSelector: envOr("SERPRANK_NEXT_DISABLED", ".s-pagination-next.s-pagination-disabled"),
			PageDelayMin:         envDurationOr("SERPRANK_PAGE_DELAY_MIN", 2*time.Second),
			PageDelayMax:         envDurationOr("SERPRANK_PAGE_DELAY_MAX", 5*time.Second),
			KeywordDelayMin:      envDurationOr("SERPRANK_KEYWORD_DELAY_MIN", 5*time.Second),
			KeywordDelayMax:      envDurationOr("SERPRANK_KEYWORD_DELAY_MAX", 10*time.Second),
			PageRate:             envFloatOr("SERPRANK_PAGE_RATE", 1.0),
		},
		Rank: RankConfig{
			PageBudget:        envIntOr("SERPRANK_PAGE_BUDGET", 3),
			EarlyStop:         envBoolOr("SERPRANK_EARLY_STOP", true),
			CountUnidentified: envBoolOr("SERPRANK_COUNT_UNIDENTIFIED", true),
			NotFoundLabel:     envOr("SERPRANK_NOT_FOUND_LABEL", "not found within 3 pages"),
			MarkersFile:       os.Getenv("SERPRANK_MARKERS_FILE"),
		},
		Markers: rank.DefaultMarkers(),
		Runner: RunnerConfig{
			Concurrency:  envIntOr("SERPRANK_CONCURRENCY", 2),
			MaxAttempts:  envIntOr("SERPRANK_MAX_ATTEMPTS", 3),
			RetryDelay:   envDurationOr("SERPRANK_RETRY_DELAY", 10*time.Second),
			BlockedDelay: envDurationOr("SERPRANK_BLOCKED_DELAY", 2*time.Minute),
		},
		Report: ReportConfig{
			OutputPath:  envOr("SERPRANK_REPORT_PATH", "ranks.csv"),
			DatabaseURL: os.Getenv("SERPRANK_DATABASE_URL"),
			SQLitePath:  os.Getenv("SERPRANK_SQLITE_PATH"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SERPRANK_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SERPRANK_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SERPRANK_RATE_RPS", 1.0),
			Burst:             envIntOr("SERPRANK_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SERPRANK_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("SERPRANK_LOG_LEVEL", "info"),
			Format: envOr("SERPRANK_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			EnableMultiEngine: envBoolOr("SERPRANK_MULTI_ENGINE", true),
			EscalationDelays:  envDurationSliceOr("SERPRANK_ESCALATION_DELAYS", []time.Duration{0, 2 * time.Second, 5 * time.Second}),
			HTTPTimeout:       envDurationOr("SERPRANK_HTTP_TIMEOUT", 10*time.Second),
			RodTimeout:        envDurationOr("SERPRANK_ROD_TIMEOUT", 30*time.Second),
			RodStealthTimeout: envDurationOr("SERPRANK_ROD_STEALTH_TIMEOUT", 60*time.Second),
			MemoryTTL:         envDurationOr("SERPRANK_ENGINE_MEMORY_TTL", 24*time.Hour),
		},
	}

	if cfg.Rank.MarkersFile != "" {
		if err := LoadMarkersFile(cfg.Rank.MarkersFile, &cfg.Markers); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// RankOptions builds the rank engine options from the configuration.
func (c *Config) RankOptions() rank.Options {
	return rank.Options{
		PageBudget:        c.Rank.PageBudget,
		EarlyStop:         c.Rank.EarlyStop,
		CountUnidentified: c.Rank.CountUnidentified,
		Markers:           c.Markers,
	}
}

// RunnerOptions builds the batch runner options from the configuration.
func (c *Config) RunnerOptions() runner.Options {
	return runner.Options{
		Concurrency:     c.Runner.Concurrency,
		MaxAttempts:     c.Runner.MaxAttempts,
		RetryDelay:      c.Runner.RetryDelay,
		BlockedDelay:    c.Runner.BlockedDelay,
		KeywordDelayMin: c.Marketplace.KeywordDelayMin,
		KeywordDelayMax: c.Marketplace.KeywordDelayMax,
	}
}

// LoadMarkersFile overlays the YAML file at path onto m. Keys missing from
// the file keep their current values.
func LoadMarkersFile(path string, m *rank.Markers) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read markers file: %w", err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return fmt.Errorf("config: parse markers file %q: %w", path, err)
	}
	return nil
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
