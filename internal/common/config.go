package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production" - controls test URL validation
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Scraper     ScraperConfig   `toml:"scraper"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Retention   RetentionConfig `toml:"retention"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent job workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "5m" - message visibility timeout for redelivery
	MaxRetries        int    `toml:"max_retries"`        // Failed jobs are retried this many times before dead-lettering
	RetryBackoff      string `toml:"retry_backoff"`      // e.g., "2s" - initial retry delay, doubled per attempt
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "trace", "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// CrawlerConfig controls the browser and per-page fetch behaviour
type CrawlerConfig struct {
	UserAgent         string        `toml:"user_agent"`         // User agent string sent by the headless browser
	Headless          bool          `toml:"headless"`           // Run Chrome headless (disable for debugging)
	NavigationTimeout time.Duration `toml:"navigation_timeout"` // Hard per-page navigation timeout
	SettleDelay       time.Duration `toml:"settle_delay"`       // Wait after load for client-side rendering
	ConcurrencyWidth  int           `toml:"concurrency_width"`  // Concurrent page fetches per crawl session
	MaxBrowsers       int           `toml:"max_browsers"`       // Process-wide cap on concurrent browser instances
	ExtractEmails     bool          `toml:"extract_emails"`     // Collect email addresses from page text
}

// ScraperConfig controls admission and input clamping for scrape invocations
type ScraperConfig struct {
	MaxConcurrent   int `toml:"max_concurrent"`    // Crawl sessions served at once
	QueueSize       int `toml:"queue_size"`        // Callers allowed to wait for a session slot
	DefaultMaxPages int `toml:"default_max_pages"` // maxPages when the caller omits it
	MaxPagesLimit   int `toml:"max_pages_limit"`   // Upper clamp for maxPages
	MaxLengthLimit  int `toml:"max_length_limit"`  // Upper clamp for maxLength
}

// WebSocketConfig controls event broadcasting to WebSocket clients
type WebSocketConfig struct {
	// Whitelist of event types to broadcast. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events, event type -> duration string.
	// Example: {"crawl_progress": "1s"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// RetentionConfig controls how long terminal job records are kept
type RetentionConfig struct {
	Completed string `toml:"completed"` // e.g., "1h"
	Failed    string `toml:"failed"`    // e.g., "24h"
	Schedule  string `toml:"schedule"`  // Cron schedule for the purge pass
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in cheap-crawler.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			Concurrency:       2,
			VisibilityTimeout: "5m",
			MaxRetries:        3,
			RetryBackoff:      "2s",
			QueueName:         "scrape_jobs",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Crawler: CrawlerConfig{
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Headless:          true,
			NavigationTimeout: 30 * time.Second,
			SettleDelay:       1 * time.Second,
			ConcurrencyWidth:  3,
			MaxBrowsers:       5,
			ExtractEmails:     true,
		},
		Scraper: ScraperConfig{
			MaxConcurrent:   3,
			QueueSize:       10,
			DefaultMaxPages: 10,
			MaxPagesLimit:   50,
			MaxLengthLimit:  100000,
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
			ThrottleIntervals: map[string]string{
				"crawl_progress": "1s",
			},
		},
		Retention: RetentionConfig{
			Completed: "1h",
			Failed:    "24h",
			Schedule:  "*/5 * * * *",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones. Priority: env > last file > ... > first file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies CRAWLER_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CRAWLER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("CRAWLER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CRAWLER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if concurrency := os.Getenv("CRAWLER_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if maxRetries := os.Getenv("CRAWLER_QUEUE_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Queue.MaxRetries = mr
		}
	}
	if backoff := os.Getenv("CRAWLER_QUEUE_RETRY_BACKOFF"); backoff != "" {
		if _, err := time.ParseDuration(backoff); err == nil {
			config.Queue.RetryBackoff = backoff
		}
	}

	if badgerPath := os.Getenv("CRAWLER_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("CRAWLER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CRAWLER_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if userAgent := os.Getenv("CRAWLER_USER_AGENT"); userAgent != "" {
		config.Crawler.UserAgent = userAgent
	}
	if headless := os.Getenv("CRAWLER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Crawler.Headless = h
		}
	}
	if width := os.Getenv("CRAWLER_CONCURRENCY_WIDTH"); width != "" {
		if w, err := strconv.Atoi(width); err == nil {
			config.Crawler.ConcurrencyWidth = w
		}
	}
	if maxBrowsers := os.Getenv("CRAWLER_MAX_BROWSERS"); maxBrowsers != "" {
		if mb, err := strconv.Atoi(maxBrowsers); err == nil {
			config.Crawler.MaxBrowsers = mb
		}
	}
	if extractEmails := os.Getenv("CRAWLER_EXTRACT_EMAILS"); extractEmails != "" {
		if ee, err := strconv.ParseBool(extractEmails); err == nil {
			config.Crawler.ExtractEmails = ee
		}
	}

	if maxConcurrent := os.Getenv("CRAWLER_SCRAPER_MAX_CONCURRENT"); maxConcurrent != "" {
		if mc, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Scraper.MaxConcurrent = mc
		}
	}
	if queueSize := os.Getenv("CRAWLER_SCRAPER_QUEUE_SIZE"); queueSize != "" {
		if qs, err := strconv.Atoi(queueSize); err == nil {
			config.Scraper.QueueSize = qs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Command-line flags have highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// VisibilityDuration parses the queue visibility timeout, falling back to 5m.
func (q QueueConfig) VisibilityDuration() time.Duration {
	if d, err := time.ParseDuration(q.VisibilityTimeout); err == nil && d > 0 {
		return d
	}
	return 5 * time.Minute
}

// RetryBackoffDuration parses the initial retry backoff, falling back to 2s.
func (q QueueConfig) RetryBackoffDuration() time.Duration {
	if d, err := time.ParseDuration(q.RetryBackoff); err == nil && d > 0 {
		return d
	}
	return 2 * time.Second
}

// CompletedDuration parses the completed-job retention period, falling back to 1h.
func (r RetentionConfig) CompletedDuration() time.Duration {
	if d, err := time.ParseDuration(r.Completed); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

// FailedDuration parses the failed-job retention period, falling back to 24h.
func (r RetentionConfig) FailedDuration() time.Duration {
	if d, err := time.ParseDuration(r.Failed); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are allowed.
// Test URLs are only allowed in development mode.
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}
