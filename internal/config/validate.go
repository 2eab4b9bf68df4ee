package config

import (
	"fmt"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.APIPort < 1 || cfg.Server.APIPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.api_port must be between 1 and 65535, got %d", cfg.Server.APIPort))
	}
	if cfg.Server.DashboardPort < 1 || cfg.Server.DashboardPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.dashboard_port must be between 1 and 65535, got %d", cfg.Server.DashboardPort))
	}
	if cfg.Server.APIPort == cfg.Server.DashboardPort {
		errs = append(errs, fmt.Sprintf("server.api_port and server.dashboard_port must differ, both %d", cfg.Server.APIPort))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.TLSEnabled {
		if cfg.Server.CertFile == "" {
			errs = append(errs, "server.cert_file must be set when tls_enabled is true")
		}
		if cfg.Server.KeyFile == "" {
			errs = append(errs, "server.key_file must be set when tls_enabled is true")
		}
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}
	if cfg.Server.MaxResponseSize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_response_size must be non-negative, got %d", cfg.Server.MaxResponseSize))
	}
	if cfg.Server.StreamTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.stream_timeout must be non-negative, got %d", cfg.Server.StreamTimeout))
	}

	// Auth validation
	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		errs = append(errs, "auth.token must be set when auth.enabled is true")
	}

	// Engine validation
	for name, e := range cfg.Engines {
		if e.APIBase == "" {
			errs = append(errs, fmt.Sprintf("engines.%s.api_base must not be empty", name))
		}
		if e.Priority < 0 {
			errs = append(errs, fmt.Sprintf("engines.%s.priority must be non-negative, got %d", name, e.Priority))
		}
		if e.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("engines.%s.timeout must be non-negative", name))
		}
	}

	// Queue validation
	if cfg.Queue.DefaultEngine != "" {
		if _, ok := cfg.Engines[cfg.Queue.DefaultEngine]; !ok {
			errs = append(errs, fmt.Sprintf("queue.default_engine %q is not a configured engine", cfg.Queue.DefaultEngine))
		}
	}
	if cfg.Queue.MaxConcurrentTasks < 0 {
		errs = append(errs, fmt.Sprintf("queue.max_concurrent_tasks must be non-negative, got %d", cfg.Queue.MaxConcurrentTasks))
	}
	if cfg.Queue.MaxQueueSize < 0 {
		errs = append(errs, fmt.Sprintf("queue.max_queue_size must be non-negative, got %d", cfg.Queue.MaxQueueSize))
	}
	if cfg.Queue.TaskTimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("queue.task_timeout_seconds must be at least 1, got %d", cfg.Queue.TaskTimeoutSeconds))
	}
	if cfg.Queue.PersistenceIntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("queue.persistence_interval_seconds must be at least 1, got %d", cfg.Queue.PersistenceIntervalSeconds))
	}
	if cfg.Queue.RetryDelaySeconds < 0 {
		errs = append(errs, fmt.Sprintf("queue.retry_delay_seconds must be non-negative, got %d", cfg.Queue.RetryDelaySeconds))
	}
	if cfg.Queue.MaxPreloadDistance < 0 {
		errs = append(errs, fmt.Sprintf("queue.max_preload_distance must be non-negative, got %d", cfg.Queue.MaxPreloadDistance))
	}

	// Cache validation
	if cfg.Cache.MemoryMaxEntries < 1 {
		errs = append(errs, fmt.Sprintf("cache.memory_max_entries must be at least 1, got %d", cfg.Cache.MemoryMaxEntries))
	}
	if cfg.Cache.WebPQuality < 1 || cfg.Cache.WebPQuality > 100 {
		errs = append(errs, fmt.Sprintf("cache.webp_quality must be between 1 and 100, got %d", cfg.Cache.WebPQuality))
	}
	if cfg.Cache.MaxCacheSizeBytes < 0 {
		errs = append(errs, fmt.Sprintf("cache.max_cache_size_bytes must be non-negative, got %d", cfg.Cache.MaxCacheSizeBytes))
	}

	// Rate limit validation
	if cfg.RateLimit.DefaultRate < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.default_rate must be non-negative, got %f", cfg.RateLimit.DefaultRate))
	}
	if cfg.RateLimit.DefaultBurst < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.default_burst must be non-negative, got %d", cfg.RateLimit.DefaultBurst))
	}

	// Resilience validation
	if cfg.Resilience.RetryMaxAttempts < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_max_attempts must be non-negative, got %d", cfg.Resilience.RetryMaxAttempts))
	}
	if cfg.Resilience.RetryBaseDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_base_delay_ms must be non-negative, got %d", cfg.Resilience.RetryBaseDelayMs))
	}
	if cfg.Resilience.RetryMaxDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_max_delay_ms must be non-negative, got %d", cfg.Resilience.RetryMaxDelayMs))
	}
	if cfg.Resilience.CBFailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("resilience.cb_failure_threshold must be at least 1, got %d", cfg.Resilience.CBFailureThreshold))
	}
	if cfg.Resilience.CBResetTimeoutSec <= 0 {
		errs = append(errs, fmt.Sprintf("resilience.cb_reset_timeout_seconds must be positive, got %d", cfg.Resilience.CBResetTimeoutSec))
	}
	if cfg.Resilience.CBHalfOpenMax < 1 {
		errs = append(errs, fmt.Sprintf("resilience.cb_half_open_max_calls must be at least 1, got %d", cfg.Resilience.CBHalfOpenMax))
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		validExporters := []string{"stdout", "otlp-grpc", "otlp-http"}
		if !isValidEnum(cfg.Tracing.Exporter, validExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", validExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	// Metrics validation
	if cfg.Metrics.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("metrics.retention_days must be at least 1, got %d", cfg.Metrics.RetentionDays))
	}
	if cfg.Metrics.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("metrics.cache_ttl_seconds must be non-negative, got %d", cfg.Metrics.CacheTTLSeconds))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
