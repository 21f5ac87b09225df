package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the submission downloader
type Config struct {
	// Bulk historical search API
	Pushshift PushshiftConfig `yaml:"pushshift" json:"pushshift"`

	// Live lookup API
	Reddit RedditConfig `yaml:"reddit" json:"reddit"`

	// Window walking behavior
	Walker WalkerConfig `yaml:"walker" json:"walker"`

	// Enrichment batching behavior
	Enrichment EnrichmentConfig `yaml:"enrichment" json:"enrichment"`

	// Cache storage
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Retry configuration
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PushshiftConfig holds bulk search API configuration
type PushshiftConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// RedditConfig holds live lookup API configuration. Client credentials are
// optional; without them the public endpoint is used.
type RedditConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	OAuthURL          string        `yaml:"oauth_url" json:"oauth_url"`
	AuthURL           string        `yaml:"auth_url" json:"auth_url"`
	ClientID          string        `yaml:"client_id" json:"client_id"`
	ClientSecret      string        `yaml:"client_secret" json:"client_secret"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// WalkerConfig holds time-window walking configuration
type WalkerConfig struct {
	Window              time.Duration `yaml:"window" json:"window"`
	Pace                time.Duration `yaml:"pace" json:"pace"`
	PageSize            int           `yaml:"page_size" json:"page_size"`
	TruncationThreshold int           `yaml:"truncation_threshold" json:"truncation_threshold"`
	ClampToEnd          bool          `yaml:"clamp_to_end" json:"clamp_to_end"`
	SortPages           bool          `yaml:"sort_pages" json:"sort_pages"`
}

// EnrichmentConfig holds enrichment batching configuration
type EnrichmentConfig struct {
	BatchSize     int      `yaml:"batch_size" json:"batch_size"`
	CanonicalKeys bool     `yaml:"canonical_keys" json:"canonical_keys"`
	Attributes    []string `yaml:"attributes" json:"attributes"`
}

// CacheConfig selects and tunes the persistent cache backend
type CacheConfig struct {
	Backend       string        `yaml:"backend" json:"backend"`
	Path          string        `yaml:"path" json:"path"`
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db"`
	HTTPTTL       time.Duration `yaml:"http_ttl" json:"http_ttl"`
	EnrichmentTTL time.Duration `yaml:"enrichment_ttl" json:"enrichment_ttl"`
}

// RetryConfig holds retry configuration. Disabled by default: each request
// is attempted once.
type RetryConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// Cache backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// MaxPageSize is the largest page the bulk search API serves
const MaxPageSize = 500

// MaxBatchSize is the largest id list the live lookup API accepts
const MaxBatchSize = 100

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Pushshift: PushshiftConfig{
			BaseURL:   "https://api.pushshift.io",
			UserAgent: "subscraper/1.0",
			Timeout:   30 * time.Second,
		},
		Reddit: RedditConfig{
			BaseURL:           "https://www.reddit.com",
			OAuthURL:          "https://oauth.reddit.com",
			AuthURL:           "https://www.reddit.com",
			UserAgent:         "subscraper/1.0",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 60,
		},
		Walker: WalkerConfig{
			Window:              4 * time.Hour,
			Pace:                100 * time.Millisecond,
			PageSize:            MaxPageSize,
			TruncationThreshold: 100,
			ClampToEnd:          true,
			SortPages:           true,
		},
		Enrichment: EnrichmentConfig{
			BatchSize:     MaxBatchSize,
			CanonicalKeys: false,
		},
		Cache: CacheConfig{
			Backend:   BackendSQLite,
			Path:      defaultCachePath(),
			RedisAddr: "localhost:6379",
		},
		Retry: RetryConfig{
			Enabled:      false,
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// defaultCachePath returns the sqlite cache location without the .sqlite suffix
func defaultCachePath() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "subscraper", "cache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "subscraper", "cache")
	}
	return filepath.Join("data", "cache")
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("SUBSCRAPER_PUSHSHIFT_URL"); v != "" {
		c.Pushshift.BaseURL = v
	}

	// Reddit application credentials, accepted under the names praw users already export
	for _, name := range []string{"SUBSCRAPER_REDDIT_CLIENT_ID", "REDDIT_CLIENT_ID", "praw_client_id"} {
		if v := os.Getenv(name); v != "" {
			c.Reddit.ClientID = v
			break
		}
	}
	for _, name := range []string{"SUBSCRAPER_REDDIT_CLIENT_SECRET", "REDDIT_CLIENT_SECRET", "praw_client_secret"} {
		if v := os.Getenv(name); v != "" {
			c.Reddit.ClientSecret = v
			break
		}
	}
	if v := os.Getenv("SUBSCRAPER_REDDIT_USER_AGENT"); v != "" {
		c.Reddit.UserAgent = v
	}
	if v := os.Getenv("SUBSCRAPER_REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SUBSCRAPER_REQUESTS_PER_MINUTE: %w", err))
		} else {
			c.Reddit.RequestsPerMinute = n
		}
	}

	if v := os.Getenv("SUBSCRAPER_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SUBSCRAPER_WINDOW: %w", err))
		} else {
			c.Walker.Window = d
		}
	}
	if v := os.Getenv("SUBSCRAPER_PACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SUBSCRAPER_PACE: %w", err))
		} else {
			c.Walker.Pace = d
		}
	}

	if v := os.Getenv("SUBSCRAPER_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SUBSCRAPER_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("SUBSCRAPER_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("SUBSCRAPER_REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}

	if v := os.Getenv("SUBSCRAPER_RETRY_ENABLED"); v != "" {
		c.Retry.Enabled = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("SUBSCRAPER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SUBSCRAPER_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".subscraper.yaml",
		".subscraper.yml",
		filepath.Join(home, ".config", "subscraper", "config.yaml"),
		filepath.Join(home, ".config", "subscraper", "config.yml"),
		filepath.Join(home, ".subscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Pushshift.BaseURL == "" {
		errs = append(errs, errors.New("pushshift base URL is required"))
	}
	if c.Pushshift.Timeout <= 0 {
		errs = append(errs, errors.New("pushshift timeout must be positive"))
	}

	if c.Reddit.BaseURL == "" {
		errs = append(errs, errors.New("reddit base URL is required"))
	}
	if c.Reddit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("reddit requests per minute must be positive"))
	}
	if (c.Reddit.ClientID == "") != (c.Reddit.ClientSecret == "") {
		errs = append(errs, errors.New("reddit client id and secret must be set together"))
	}

	if c.Walker.Window <= 0 {
		errs = append(errs, errors.New("walker window must be positive"))
	}
	if c.Walker.Pace < 0 {
		errs = append(errs, errors.New("walker pace cannot be negative"))
	}
	if c.Walker.PageSize <= 0 || c.Walker.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("walker page size must be between 1 and %d", MaxPageSize))
	}
	if c.Walker.TruncationThreshold <= 0 {
		errs = append(errs, errors.New("walker truncation threshold must be positive"))
	} else if c.Walker.PageSize > 0 && c.Walker.TruncationThreshold > c.Walker.PageSize {
		errs = append(errs, errors.New("walker truncation threshold cannot exceed the page size"))
	}

	if c.Enrichment.BatchSize <= 0 || c.Enrichment.BatchSize > MaxBatchSize {
		errs = append(errs, fmt.Errorf("enrichment batch size must be between 1 and %d", MaxBatchSize))
	}

	switch strings.ToLower(c.Cache.Backend) {
	case BackendSQLite:
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("cache path is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("redis address is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid cache backend %q", c.Cache.Backend))
	}
	if c.Cache.HTTPTTL < 0 || c.Cache.EnrichmentTTL < 0 {
		errs = append(errs, errors.New("cache TTLs cannot be negative"))
	}

	if c.Retry.Enabled && c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive when retry is enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	validFormats := map[string]bool{"auto": true, "console": true, "json": true, "": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, errors.New("invalid log format"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map override the loaded values.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["window"].(time.Duration); ok && v != 0 {
		c.Walker.Window = v
	}
	if v, ok := flags["pace"].(time.Duration); ok {
		c.Walker.Pace = v
	}
	if v, ok := flags["clamp-to-end"].(bool); ok {
		c.Walker.ClampToEnd = v
	}
	if v, ok := flags["sort-pages"].(bool); ok {
		c.Walker.SortPages = v
	}
	if v, ok := flags["batch-size"].(int); ok && v > 0 {
		c.Enrichment.BatchSize = v
	}
	if v, ok := flags["canonical-keys"].(bool); ok {
		c.Enrichment.CanonicalKeys = v
	}
	if v, ok := flags["attributes"].([]string); ok && len(v) > 0 {
		c.Enrichment.Attributes = v
	}
	if v, ok := flags["cache-backend"].(string); ok && v != "" {
		c.Cache.Backend = strings.ToLower(v)
	}
	if v, ok := flags["cache-path"].(string); ok && v != "" {
		c.Cache.Path = v
	}
	if v, ok := flags["redis-addr"].(string); ok && v != "" {
		c.Cache.RedisAddr = v
	}
	if v, ok := flags["pushshift-url"].(string); ok && v != "" {
		c.Pushshift.BaseURL = v
	}
	if v, ok := flags["retry"].(bool); ok {
		c.Retry.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".subscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
