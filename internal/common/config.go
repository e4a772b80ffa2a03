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
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Storage      StorageConfig      `toml:"storage"`
	Cache        CacheConfig        `toml:"cache"`
	Git          GitConfig          `toml:"git"`
	Scanner      ScannerConfig      `toml:"scanner"`
	Reports      ReportsConfig      `toml:"reports"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
	Maintenance  MaintenanceConfig  `toml:"maintenance"`
	Logging      LoggingConfig      `toml:"logging"`
	WebSocket    WebSocketConfig    `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// OrchestratorConfig tunes the job server.
type OrchestratorConfig struct {
	PipelineID    string `toml:"pipeline_id"`    // Partition key for persisted jobs
	MaxConcurrent int    `toml:"max_concurrent"` // Concurrent handler cap; 0 pauses all launches
	RetryAttempts int    `toml:"retry_attempts"` // Max attempts per job including the first
	RetryDelay    string `toml:"retry_delay"`    // e.g. "30s" - delay before a retry is re-enqueued
	StopTimeout   string `toml:"stop_timeout"`   // e.g. "30s" - how long Stop waits for running handlers
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// CacheConfig controls the scan result cache.
type CacheConfig struct {
	Enabled          bool   `toml:"enabled"`
	KeyPrefix        string `toml:"key_prefix"`        // Cache key namespace (default: "dedup_scan")
	TTLDays          int    `toml:"ttl_days"`          // Entry lifetime (default: 30)
	TrackUncommitted bool   `toml:"track_uncommitted"` // Refuse cache when the working tree is dirty
	ForceRefresh     bool   `toml:"force_refresh"`     // Global cache bypass
	RecentScansLimit int    `toml:"recent_scans_limit"`
}

// GitConfig controls the job git workflow.
type GitConfig struct {
	BranchPrefix string       `toml:"branch_prefix"` // Job branch namespace (default: "geminus")
	BaseBranch   string       `toml:"base_branch"`   // Branch jobs fork from (default: "main")
	DryRun       bool         `toml:"dry_run"`       // Suppress push and PR, keep local operations
	PushEnabled  bool         `toml:"push_enabled"`
	PREnabled    bool         `toml:"pr_enabled"`
	Attribution  string       `toml:"attribution"` // Trailer appended to automated commits
	GitHub       GitHubConfig `toml:"github"`
}

// GitHubConfig holds the PR backend credentials.
type GitHubConfig struct {
	Token string `toml:"token"`
	Owner string `toml:"owner"`
	Repo  string `toml:"repo"`
}

// ScannerConfig points at the external pattern detector.
type ScannerConfig struct {
	Binary       string `toml:"binary"`     // Pattern detector executable
	RulesFile    string `toml:"rules_file"` // YAML rule definitions passed through to the detector
	Timeout      string `toml:"timeout"`    // Per-invocation timeout (default: "10m")
	MaxDepth     int    `toml:"max_depth"`  // Default directory depth when the request omits one
	IncludeTests bool   `toml:"include_tests"`
}

// ReportsConfig controls report artifact generation.
type ReportsConfig struct {
	OutputDir   string `toml:"output_dir"`
	HTMLEnabled bool   `toml:"html_enabled"` // Render HTML alongside markdown
}

// RateLimitConfig tunes the per-IP request limiters.
type RateLimitConfig struct {
	NormalPerMinute int `toml:"normal_per_minute"` // General API requests
	NormalBurst     int `toml:"normal_burst"`
	ScanPerMinute   int `toml:"scan_per_minute"` // Scan-initiation endpoints
	ScanBurst       int `toml:"scan_burst"`
	ImportPerMinute int `toml:"import_per_minute"` // Bulk import
	ImportBurst     int `toml:"import_burst"`
}

// MaintenanceConfig schedules background upkeep.
type MaintenanceConfig struct {
	Enabled    bool   `toml:"enabled"`
	CacheSweep string `toml:"cache_sweep"`  // Cron schedule for the TTL sweep
	RetryAudit string `toml:"retry_audit"`  // Cron schedule for the retry table audit log
	ValueLogGC string `toml:"value_log_gc"` // Cron schedule for the Badger value-log GC
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig contains configuration for the activity feed.
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in geminus.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Orchestrator: OrchestratorConfig{
			PipelineID:    "duplicate-detection",
			MaxConcurrent: 3, // Scans are subprocess-heavy; keep the default modest
			RetryAttempts: 3, // Including the first attempt
			RetryDelay:    "30s",
			StopTimeout:   "30s",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Cache: CacheConfig{
			Enabled:          true,
			KeyPrefix:        "dedup_scan",
			TTLDays:          30,
			TrackUncommitted: true,
			RecentScansLimit: 100,
		},
		Git: GitConfig{
			BranchPrefix: "geminus",
			BaseBranch:   "main",
			DryRun:       false,
			PushEnabled:  true,
			PREnabled:    true,
			Attribution:  "Automated-by: geminus",
		},
		Scanner: ScannerConfig{
			Binary:   "pattern-detector",
			Timeout:  "10m",
			MaxDepth: 2,
		},
		Reports: ReportsConfig{
			OutputDir:   "./reports",
			HTMLEnabled: true,
		},
		RateLimit: RateLimitConfig{
			NormalPerMinute: 100,
			NormalBurst:     20,
			ScanPerMinute:   10,
			ScanBurst:       3,
			ImportPerMinute: 5,
			ImportBurst:     2,
		},
		Maintenance: MaintenanceConfig{
			Enabled:    true,
			CacheSweep: "0 0 * * * *",    // Hourly
			RetryAudit: "0 0 0 * * *",    // Daily
			ValueLogGC: "0 */30 * * * *", // Every 30 minutes
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			MinLevel: "warn",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
			},
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

// LoadFromFiles loads configuration from multiple files. Later files override
// earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("GEMINUS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("GEMINUS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("GEMINUS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Orchestrator configuration
	if maxConcurrent := os.Getenv("GEMINUS_MAX_CONCURRENT"); maxConcurrent != "" {
		if n, err := strconv.Atoi(maxConcurrent); err == nil && n >= 0 {
			config.Orchestrator.MaxConcurrent = n
		}
	}
	if attempts := os.Getenv("GEMINUS_RETRY_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil && n > 0 {
			config.Orchestrator.RetryAttempts = n
		}
	}
	if delay := os.Getenv("GEMINUS_RETRY_DELAY"); delay != "" {
		if _, err := time.ParseDuration(delay); err == nil {
			config.Orchestrator.RetryDelay = delay
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("GEMINUS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Cache configuration
	if enabled := os.Getenv("GEMINUS_CACHE_ENABLED"); enabled != "" {
		config.Cache.Enabled = parseBool(enabled, config.Cache.Enabled)
	}
	if ttl := os.Getenv("GEMINUS_CACHE_TTL_DAYS"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil && n > 0 {
			config.Cache.TTLDays = n
		}
	}
	if prefix := os.Getenv("GEMINUS_CACHE_KEY_PREFIX"); prefix != "" {
		config.Cache.KeyPrefix = prefix
	}

	// Git configuration
	if dryRun := os.Getenv("GEMINUS_GIT_DRY_RUN"); dryRun != "" {
		config.Git.DryRun = parseBool(dryRun, config.Git.DryRun)
	}
	if token := os.Getenv("GEMINUS_GITHUB_TOKEN"); token != "" {
		config.Git.GitHub.Token = token
	} else if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.Git.GitHub.Token = token
	}
	if owner := os.Getenv("GEMINUS_GITHUB_OWNER"); owner != "" {
		config.Git.GitHub.Owner = owner
	}
	if repo := os.Getenv("GEMINUS_GITHUB_REPO"); repo != "" {
		config.Git.GitHub.Repo = repo
	}

	// Scanner configuration
	if binary := os.Getenv("GEMINUS_SCANNER_BINARY"); binary != "" {
		config.Scanner.Binary = binary
	}
	if timeout := os.Getenv("GEMINUS_SCANNER_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Scanner.Timeout = timeout
		}
	}

	// Logging configuration
	if level := os.Getenv("GEMINUS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("GEMINUS_LOG_OUTPUT"); output != "" {
		parts := strings.Split(output, ",")
		outputs := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

func parseBool(value string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return b
}

// ApplyFlagOverrides applies command-line overrides to config. Flags have
// the highest priority, above files and environment. The dry-run flag can
// only switch dry-run on; turning it off requires editing the config file.
func ApplyFlagOverrides(config *Config, port int, host, logLevel string, dryRun bool) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if dryRun {
		config.Git.DryRun = true
	}
}

// RetryDelayDuration parses the configured retry delay with a safe fallback.
func (c *OrchestratorConfig) RetryDelayDuration() time.Duration {
	if d, err := time.ParseDuration(c.RetryDelay); err == nil && d >= 0 {
		return d
	}
	return 30 * time.Second
}

// StopTimeoutDuration parses the configured stop timeout with a safe fallback.
func (c *OrchestratorConfig) StopTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.StopTimeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// TimeoutDuration parses the scanner timeout with a safe fallback.
func (c *ScannerConfig) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return 10 * time.Minute
}

// TTL returns the cache entry lifetime.
func (c *CacheConfig) TTL() time.Duration {
	days := c.TTLDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}
