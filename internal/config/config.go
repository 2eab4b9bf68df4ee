package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for the coordination core.
type Config struct {
	Server     ServerConfig            `mapstructure:"server"      toml:"server"`
	Auth       AuthConfig              `mapstructure:"auth"        toml:"auth"`
	Engines    map[string]EngineConfig `mapstructure:"engines"     toml:"engines"`
	Queue      QueueConfig             `mapstructure:"queue"       toml:"queue"`
	Cache      CacheConfig             `mapstructure:"cache"       toml:"cache"`
	RateLimit  RateLimitConfig         `mapstructure:"rate_limit"  toml:"rate_limit"`
	Resilience ResilienceConfig        `mapstructure:"resilience"  toml:"resilience"`
	Tracing    TracingConfig           `mapstructure:"tracing"     toml:"tracing"`
	Dashboard  DashboardConfig         `mapstructure:"dashboard"   toml:"dashboard"`
	Metrics    MetricsConfig           `mapstructure:"metrics"     toml:"metrics"`
}

// ServerConfig holds the core server settings.
type ServerConfig struct {
	APIPort         int    `mapstructure:"api_port"          toml:"api_port"`
	DashboardPort   int    `mapstructure:"dashboard_port"    toml:"dashboard_port"`
	LogLevel        string `mapstructure:"log_level"          toml:"log_level"`
	DataDir         string `mapstructure:"data_dir"           toml:"data_dir"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"       toml:"tls_enabled"`
	CertFile        string `mapstructure:"cert_file"          toml:"cert_file"`
	KeyFile         string `mapstructure:"key_file"           toml:"key_file"`
	ReadTimeout     int    `mapstructure:"read_timeout"      toml:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"     toml:"write_timeout"`
	IdleTimeout     int    `mapstructure:"idle_timeout"      toml:"idle_timeout"`
	MaxBodySize     int64  `mapstructure:"max_body_size"     toml:"max_body_size"`
	MaxResponseSize int64  `mapstructure:"max_response_size" toml:"max_response_size"`
	StreamTimeout   int    `mapstructure:"stream_timeout"    toml:"stream_timeout"`
}

// AuthConfig holds the dashboard authentication settings.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Token   string `mapstructure:"token"   toml:"token"`
}

// EngineConfig describes a single OCR/translation engine.
type EngineConfig struct {
	Name      string   `mapstructure:"name"       toml:"name"`
	APIBase   string   `mapstructure:"api_base"   toml:"api_base"`
	KeyRef    string   `mapstructure:"key_ref"    toml:"key_ref"`
	Languages []string `mapstructure:"languages"  toml:"languages"`
	Enabled   bool     `mapstructure:"enabled"    toml:"enabled"`
	Priority  int      `mapstructure:"priority"   toml:"priority"`
	Timeout   int      `mapstructure:"timeout"    toml:"timeout"` // seconds
}

// TimeoutDuration returns the engine call timeout as a time.Duration.
func (e EngineConfig) TimeoutDuration() time.Duration {
	if e.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.Timeout) * time.Second
}

// QueueConfig controls the task queue's resource limits, per the
// "Resource limits" table.
type QueueConfig struct {
	DefaultEngine              string `mapstructure:"default_engine"               toml:"default_engine"`
	MaxConcurrentTasks         int    `mapstructure:"max_concurrent_tasks"         toml:"max_concurrent_tasks"`
	MaxQueueSize               int    `mapstructure:"max_queue_size"               toml:"max_queue_size"`
	TaskTimeoutSeconds         int    `mapstructure:"task_timeout_seconds"         toml:"task_timeout_seconds"`
	PersistenceIntervalSeconds int    `mapstructure:"persistence_interval_seconds" toml:"persistence_interval_seconds"`
	CleanupIntervalSeconds     int    `mapstructure:"cleanup_interval_seconds"     toml:"cleanup_interval_seconds"`
	RetryDelaySeconds          int    `mapstructure:"retry_delay_seconds"          toml:"retry_delay_seconds"`
	MaxPreloadDistance         int    `mapstructure:"max_preload_distance"         toml:"max_preload_distance"`
}

// CacheConfig controls the memory/persistent/result cache layers (C2-C4).
type CacheConfig struct {
	MemoryMaxEntries int   `mapstructure:"memory_max_entries" toml:"memory_max_entries"`
	WebPQuality      int   `mapstructure:"webp_quality"       toml:"webp_quality"`
	MaxCacheSizeBytes int64 `mapstructure:"max_cache_size_bytes" toml:"max_cache_size_bytes"`
	RetentionDays    int   `mapstructure:"retention_days"     toml:"retention_days"`
}

// RateLimitConfig controls per-engine rate limiting.
type RateLimitConfig struct {
	Enabled      bool                      `mapstructure:"enabled"       toml:"enabled"`
	DefaultRate  float64                   `mapstructure:"default_rate"  toml:"default_rate"` // requests per second
	DefaultBurst int                       `mapstructure:"default_burst" toml:"default_burst"`
	EngineLimits map[string]EngineRateLimit `mapstructure:"engine_limits" toml:"engine_limits"`
}

// EngineRateLimit defines rate limit settings for a specific engine.
type EngineRateLimit struct {
	Rate  float64 `mapstructure:"rate"  toml:"rate"`
	Burst int     `mapstructure:"burst" toml:"burst"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "mangatl"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// DashboardConfig controls the web dashboard.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"         toml:"enabled"`
	AutoOpen       bool     `mapstructure:"auto_open"       toml:"auto_open"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

// MetricsConfig controls metrics storage and caching.
type MetricsConfig struct {
	RetentionDays   int `mapstructure:"retention_days"    toml:"retention_days"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" toml:"cache_ttl_seconds"`
}

// ResilienceConfig controls retry, circuit breaker, and related resilience settings.
type ResilienceConfig struct {
	RetryMaxAttempts   int  `mapstructure:"retry_max_attempts"       toml:"retry_max_attempts"`
	RetryBaseDelayMs   int  `mapstructure:"retry_base_delay_ms"      toml:"retry_base_delay_ms"`
	RetryMaxDelayMs    int  `mapstructure:"retry_max_delay_ms"       toml:"retry_max_delay_ms"`
	CBEnabled          bool `mapstructure:"circuit_breaker_enabled"  toml:"circuit_breaker_enabled"`
	CBFailureThreshold int  `mapstructure:"cb_failure_threshold"     toml:"cb_failure_threshold"`
	CBResetTimeoutSec  int  `mapstructure:"cb_reset_timeout_seconds" toml:"cb_reset_timeout_seconds"`
	CBHalfOpenMax      int  `mapstructure:"cb_half_open_max_calls"   toml:"cb_half_open_max_calls"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (MANGATL_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.mangatl/mangatl.toml
//  4. ./mangatl.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults from the default config so viper knows every key.
	setViperDefaults(v)

	// Environment variable overlay: MANGATL_SERVER_DASHBOARD_PORT etc.
	v.SetEnvPrefix("MANGATL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Determine which file(s) to read.
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".mangatl"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("mangatl")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Store the resolved config file path.
	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Expand ~ in data_dir.
	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.mangatl/mangatl.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".mangatl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	cfg := Get()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file, applies it over the built-in
// defaults, and replaces the current config with the result (fields the
// file omits take their default values, not their current ones).
// The imported config is also persisted to the active config file so changes
// survive restarts.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	// Persist to the active config file so changes survive restart.
	if dest := ConfigFilePath(); dest != "" {
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config for persistence: %w", err)
		}
		if err := os.WriteFile(dest, out, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}

	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.api_port", d.Server.APIPort)
	v.SetDefault("server.dashboard_port", d.Server.DashboardPort)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)

	v.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	// Auth
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.token", d.Auth.Token)

	// Queue
	v.SetDefault("queue.default_engine", d.Queue.DefaultEngine)
	v.SetDefault("queue.max_concurrent_tasks", d.Queue.MaxConcurrentTasks)
	v.SetDefault("queue.max_queue_size", d.Queue.MaxQueueSize)
	v.SetDefault("queue.task_timeout_seconds", d.Queue.TaskTimeoutSeconds)
	v.SetDefault("queue.persistence_interval_seconds", d.Queue.PersistenceIntervalSeconds)
	v.SetDefault("queue.cleanup_interval_seconds", d.Queue.CleanupIntervalSeconds)
	v.SetDefault("queue.retry_delay_seconds", d.Queue.RetryDelaySeconds)
	v.SetDefault("queue.max_preload_distance", d.Queue.MaxPreloadDistance)

	// Cache
	v.SetDefault("cache.memory_max_entries", d.Cache.MemoryMaxEntries)
	v.SetDefault("cache.webp_quality", d.Cache.WebPQuality)
	v.SetDefault("cache.max_cache_size_bytes", d.Cache.MaxCacheSizeBytes)
	v.SetDefault("cache.retention_days", d.Cache.RetentionDays)

	// RateLimit
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.default_rate", d.RateLimit.DefaultRate)
	v.SetDefault("rate_limit.default_burst", d.RateLimit.DefaultBurst)

	// Dashboard
	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.auto_open", d.Dashboard.AutoOpen)
	v.SetDefault("dashboard.allowed_origins", d.Dashboard.AllowedOrigins)

	// Metrics
	v.SetDefault("metrics.retention_days", d.Metrics.RetentionDays)
	v.SetDefault("metrics.cache_ttl_seconds", d.Metrics.CacheTTLSeconds)

	// Resilience
	v.SetDefault("resilience.retry_max_attempts", d.Resilience.RetryMaxAttempts)
	v.SetDefault("resilience.retry_base_delay_ms", d.Resilience.RetryBaseDelayMs)
	v.SetDefault("resilience.retry_max_delay_ms", d.Resilience.RetryMaxDelayMs)
	v.SetDefault("resilience.circuit_breaker_enabled", d.Resilience.CBEnabled)
	v.SetDefault("resilience.cb_failure_threshold", d.Resilience.CBFailureThreshold)
	v.SetDefault("resilience.cb_reset_timeout_seconds", d.Resilience.CBResetTimeoutSec)
	v.SetDefault("resilience.cb_half_open_max_calls", d.Resilience.CBHalfOpenMax)

	// Server (resilience-related fields)
	v.SetDefault("server.max_response_size", d.Server.MaxResponseSize)
	v.SetDefault("server.stream_timeout", d.Server.StreamTimeout)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
