package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Playlist PlaylistConfig `mapstructure:"playlist"`
	KV       KVConfig       `mapstructure:"kv"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	EPG      EPGConfig      `mapstructure:"epg"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Genres   GenresConfig   `mapstructure:"genres"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	API      APIConfig      `mapstructure:"api"`
}

// PlaylistConfig holds remote M3U settings
type PlaylistConfig struct {
	URL                  string `mapstructure:"url"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	RetryAttempts        int    `mapstructure:"retry_attempts"`
	CheckIntervalSeconds int    `mapstructure:"check_interval_seconds"`
	UserAgent            string `mapstructure:"user_agent"`
}

// KVConfig selects and configures the key/value backend
type KVConfig struct {
	Backend        string           `mapstructure:"backend"` // memory, cloudflare, redis, sql, bolt
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
	Cloudflare     CloudflareConfig `mapstructure:"cloudflare"`
	Redis          RedisConfig      `mapstructure:"redis"`
	SQL            SQLConfig        `mapstructure:"sql"`
	Bolt           BoltConfig       `mapstructure:"bolt"`
}

// CloudflareConfig holds the account/namespace/token triple of the HTTP KV API
type CloudflareConfig struct {
	BaseURL         string  `mapstructure:"base_url"`
	AccountID       string  `mapstructure:"account_id"`
	NamespaceID     string  `mapstructure:"namespace_id"`
	APIToken        string  `mapstructure:"api_token"`
	WritesPerSecond float64 `mapstructure:"writes_per_second"`
	ListPageLimit   int     `mapstructure:"list_page_limit"`
	MaxDeleteBatch  int     `mapstructure:"max_delete_batch"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SQLConfig holds settings for the gorm-backed store
type SQLConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`
}

// BoltConfig holds settings for the embedded file store
type BoltConfig struct {
	Path   string `mapstructure:"path"`
	Bucket string `mapstructure:"bucket"`
}

// CacheConfig holds the two-tier cache durations
type CacheConfig struct {
	MemoryTTLSeconds int `mapstructure:"memory_ttl_seconds"`
	KVTTLSeconds     int `mapstructure:"kv_ttl_seconds"`
	MetaFloorSeconds int `mapstructure:"meta_floor_seconds"`
	CatalogPageSize  int `mapstructure:"catalog_page_size"`
}

// ScraperConfig holds enrichment settings
type ScraperConfig struct {
	Pages          []string `mapstructure:"pages"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	TTLSeconds     int      `mapstructure:"ttl_seconds"`
	AliasFile      string   `mapstructure:"alias_file"`
	UserAgent      string   `mapstructure:"user_agent"`
	RequestsPerSec float64  `mapstructure:"requests_per_second"`
}

// EPGConfig holds XMLTV guide settings
type EPGConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RefreshSeconds int    `mapstructure:"refresh_seconds"`
}

// CleanupConfig holds sweep settings
type CleanupConfig struct {
	MaxAgeHours  int      `mapstructure:"max_age_hours"`
	BatchSize    int      `mapstructure:"batch_size"`
	ExcludedKeys []string `mapstructure:"excluded_keys"`
}

// GenresConfig holds genre extraction settings
type GenresConfig struct {
	Scope         string `mapstructure:"scope"`
	CatchAllLabel string `mapstructure:"catch_all_label"`
	Locale        string `mapstructure:"locale"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Legacy field, used when the per-component levels are empty
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	App   LogLevelConfig `mapstructure:"app"`
	Store LogLevelConfig `mapstructure:"store"`
}

// LogLevelConfig represents log level configuration for a specific component
type LogLevelConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	AdminToken  string   `mapstructure:"admin_token"`
}

var cfg *Config

// bindEnvWithAlternatives binds a viper key to its LIVETV_ variable and to bare alternatives
// so both LIVETV_PLAYLIST_URL and PLAYLIST_URL work
func bindEnvWithAlternatives(key string, alternatives ...string) {
	viper.BindEnv(key)
	for _, alt := range alternatives {
		if value := os.Getenv(alt); value != "" {
			viper.Set(key, value)
			break
		}
	}
}

// Load reads configuration from file and environment variables
func Load() error {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file; an empty path searches
// the default locations
func LoadFile(path string) error {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/livetv")
	}

	setDefaults()

	viper.SetEnvPrefix("LIVETV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvWithAlternatives("playlist.url", "PLAYLIST_URL")
	viper.BindEnv("playlist.timeout_seconds")
	viper.BindEnv("playlist.retry_attempts")
	viper.BindEnv("playlist.check_interval_seconds")

	viper.BindEnv("kv.backend")
	bindEnvWithAlternatives("kv.cloudflare.account_id", "CF_ACCOUNT_ID")
	bindEnvWithAlternatives("kv.cloudflare.namespace_id", "CF_NAMESPACE_ID")
	bindEnvWithAlternatives("kv.cloudflare.api_token", "CF_API_TOKEN")
	bindEnvWithAlternatives("kv.redis.url", "REDIS_URL")
	viper.BindEnv("kv.sql.driver")
	viper.BindEnv("kv.sql.dsn")
	viper.BindEnv("kv.bolt.path")

	viper.BindEnv("epg.url")
	viper.BindEnv("scraper.alias_file")
	viper.BindEnv("genres.scope")

	bindEnvWithAlternatives("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format")
	viper.BindEnv("logging.app.level")
	viper.BindEnv("logging.store.level")

	bindEnvWithAlternatives("api.port", "API_PORT")
	viper.BindEnv("api.admin_token")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		return &Config{}
	}
	return cfg
}

// Set replaces the current configuration (tests and embedding)
func Set(c *Config) {
	cfg = c
}

func setDefaults() {
	viper.SetDefault("playlist.timeout_seconds", 15)
	viper.SetDefault("playlist.retry_attempts", 2)
	viper.SetDefault("playlist.check_interval_seconds", 60)
	viper.SetDefault("playlist.user_agent", "livetv/1.0")

	viper.SetDefault("kv.backend", "memory")
	viper.SetDefault("kv.timeout_seconds", 5)
	viper.SetDefault("kv.cloudflare.base_url", "https://api.cloudflare.com/client/v4")
	viper.SetDefault("kv.cloudflare.writes_per_second", 1)
	viper.SetDefault("kv.cloudflare.list_page_limit", 1000)
	viper.SetDefault("kv.cloudflare.max_delete_batch", 10000)
	viper.SetDefault("kv.redis.key_prefix", "")
	viper.SetDefault("kv.sql.driver", "sqlite")
	viper.SetDefault("kv.sql.dsn", "file:livetv.db")
	viper.SetDefault("kv.bolt.path", "./data/livetv.bolt")
	viper.SetDefault("kv.bolt.bucket", "kv")

	viper.SetDefault("cache.memory_ttl_seconds", 300)
	viper.SetDefault("cache.kv_ttl_seconds", 6*3600)
	viper.SetDefault("cache.meta_floor_seconds", 300)
	viper.SetDefault("cache.catalog_page_size", 100)

	viper.SetDefault("scraper.timeout_seconds", 10)
	viper.SetDefault("scraper.ttl_seconds", 3600)
	viper.SetDefault("scraper.user_agent", "Mozilla/5.0 (X11; Linux x86_64) livetv")
	viper.SetDefault("scraper.requests_per_second", 2)

	viper.SetDefault("epg.timeout_seconds", 15)
	viper.SetDefault("epg.refresh_seconds", 1800)

	viper.SetDefault("cleanup.max_age_hours", 7*24)
	viper.SetDefault("cleanup.batch_size", 50)

	viper.SetDefault("genres.scope", "default")
	viper.SetDefault("genres.catch_all_label", "Other")
	viper.SetDefault("genres.locale", "en")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("api.port", 7000)
	viper.SetDefault("api.cors_origins", []string{"*"})
}

var (
	validLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats  = map[string]bool{"json": true, "text": true}
	validBackends = map[string]bool{"memory": true, "cloudflare": true, "redis": true, "sql": true, "bolt": true}
	validDrivers  = map[string]bool{"sqlite": true, "postgres": true}
)

func validate(c *Config) error {
	if c.Logging.Format != "" && !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.App.Level != "" && !validLevels[c.Logging.App.Level] {
		return fmt.Errorf("logging.app.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Store.Level != "" && !validLevels[c.Logging.Store.Level] {
		return fmt.Errorf("logging.store.level must be one of: debug, info, warn, error")
	}

	if !validBackends[c.KV.Backend] {
		return fmt.Errorf("kv.backend must be one of: memory, cloudflare, redis, sql, bolt")
	}
	switch c.KV.Backend {
	case "cloudflare":
		if c.KV.Cloudflare.AccountID == "" || c.KV.Cloudflare.NamespaceID == "" || c.KV.Cloudflare.APIToken == "" {
			return fmt.Errorf("kv.cloudflare requires account_id, namespace_id and api_token")
		}
	case "redis":
		if c.KV.Redis.URL == "" {
			return fmt.Errorf("kv.redis.url is required")
		}
	case "sql":
		if !validDrivers[c.KV.SQL.Driver] {
			return fmt.Errorf("kv.sql.driver must be one of: sqlite, postgres")
		}
	case "bolt":
		if c.KV.Bolt.Path == "" {
			return fmt.Errorf("kv.bolt.path is required")
		}
	}

	if c.Cleanup.BatchSize < 0 {
		return fmt.Errorf("cleanup.batch_size must not be negative")
	}

	return nil
}

// GetAppLogLevel returns the log level for application logging
// Priority: logging.app.level → logging.level → "info"
func (c *Config) GetAppLogLevel() string {
	if c.Logging.App.Level != "" {
		return c.Logging.App.Level
	}
	if c.Logging.Level != "" {
		return c.Logging.Level
	}
	return "info"
}

// GetStoreLogLevel returns the log level for KV backend logging
// Priority: logging.store.level → logging.level → "info"
func (c *Config) GetStoreLogLevel() string {
	if c.Logging.Store.Level != "" {
		return c.Logging.Store.Level
	}
	if c.Logging.Level != "" {
		return c.Logging.Level
	}
	return "info"
}

// Seconds converts an integer config value, falling back when unset
func Seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}
