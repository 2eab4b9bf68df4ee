package config

// DefaultAPIPort is the default port for the external-interface API server.
const DefaultAPIPort = 7677

// DefaultDashboardPort is the default port for the dashboard server.
const DefaultDashboardPort = 7678

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.mangatl"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "mangatl.toml"

// DefaultRetentionDays is the default metrics/cache retention in days.
const DefaultRetentionDays = 30

// DefaultCacheTTL is the default metrics cache TTL in seconds.
const DefaultCacheTTL = 300

// DefaultEngineTimeout is the default engine call timeout in seconds.
const DefaultEngineTimeout = 30

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
const DefaultWriteTimeout = 30

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (10 MB).
const DefaultMaxBodySize = 10 << 20

// DefaultMaxResponseSize is the default maximum engine response size in bytes (50 MB).
const DefaultMaxResponseSize int64 = 50 << 20

// DefaultStreamTimeout is the default long-poll/streaming status timeout in seconds.
const DefaultStreamTimeout = 60

// DefaultRetryMaxAttempts is the default maximum number of retry attempts per engine.
const DefaultRetryMaxAttempts = 3

// DefaultRetryBaseDelayMs is the default base delay for exponential backoff in milliseconds.
const DefaultRetryBaseDelayMs = 500

// DefaultRetryMaxDelayMs is the default maximum delay for exponential backoff in milliseconds.
const DefaultRetryMaxDelayMs = 30000

// DefaultCBFailureThreshold is the default number of consecutive failures before opening the circuit.
const DefaultCBFailureThreshold = 5

// DefaultCBResetTimeout is the default circuit breaker reset timeout in seconds.
const DefaultCBResetTimeout = 60

// DefaultCBHalfOpenMax is the default number of successful calls in half-open state to close the circuit.
const DefaultCBHalfOpenMax = 1

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "mangatl"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// Queue resource limit defaults, per the coordination core's resource limits table.
const (
	DefaultMaxConcurrentTasks         = 3
	DefaultMaxQueueSize               = 100
	DefaultTaskTimeoutSeconds         = 300
	DefaultPersistenceIntervalSeconds = 10
	DefaultCleanupIntervalSeconds     = 60
	DefaultRetryDelaySeconds          = 30
	DefaultMaxPreloadDistance         = 5
)

// Cache layer defaults (C2-C4).
const (
	DefaultMemoryMaxEntries  = 256
	DefaultWebPQuality       = 85
	DefaultMaxCacheSizeBytes = 2 << 30 // 2 GiB
)

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			APIPort:         DefaultAPIPort,
			DashboardPort:   DefaultDashboardPort,
			LogLevel:        DefaultLogLevel,
			DataDir:         DefaultDataDir,
			TLSEnabled:      false,
			CertFile:        "",
			KeyFile:         "",
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			MaxBodySize:     DefaultMaxBodySize,
			MaxResponseSize: DefaultMaxResponseSize,
			StreamTimeout:   DefaultStreamTimeout,
		},
		Auth: AuthConfig{
			Enabled: false,
			Token:   "",
		},
		Engines: map[string]EngineConfig{
			"google": {
				Name:      "Google Cloud Translation",
				APIBase:   "https://translation.googleapis.com",
				KeyRef:    "keyring://mangatl/google",
				Languages: []string{"en", "zh", "ja", "ko"},
				Enabled:   true,
				Priority:  1,
				Timeout:   DefaultEngineTimeout,
			},
			"deepl": {
				Name:      "DeepL",
				APIBase:   "https://api.deepl.com",
				KeyRef:    "keyring://mangatl/deepl",
				Languages: []string{"en", "ja"},
				Enabled:   false,
				Priority:  2,
				Timeout:   DefaultEngineTimeout,
			},
		},
		Queue: QueueConfig{
			DefaultEngine:              "google",
			MaxConcurrentTasks:         DefaultMaxConcurrentTasks,
			MaxQueueSize:               DefaultMaxQueueSize,
			TaskTimeoutSeconds:         DefaultTaskTimeoutSeconds,
			PersistenceIntervalSeconds: DefaultPersistenceIntervalSeconds,
			CleanupIntervalSeconds:     DefaultCleanupIntervalSeconds,
			RetryDelaySeconds:          DefaultRetryDelaySeconds,
			MaxPreloadDistance:         DefaultMaxPreloadDistance,
		},
		Cache: CacheConfig{
			MemoryMaxEntries:  DefaultMemoryMaxEntries,
			WebPQuality:       DefaultWebPQuality,
			MaxCacheSizeBytes: DefaultMaxCacheSizeBytes,
			RetentionDays:     DefaultRetentionDays,
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			DefaultRate:  10.0,
			DefaultBurst: 20,
			EngineLimits: map[string]EngineRateLimit{},
		},
		Resilience: ResilienceConfig{
			RetryMaxAttempts:   DefaultRetryMaxAttempts,
			RetryBaseDelayMs:   DefaultRetryBaseDelayMs,
			RetryMaxDelayMs:    DefaultRetryMaxDelayMs,
			CBEnabled:          true,
			CBFailureThreshold: DefaultCBFailureThreshold,
			CBResetTimeoutSec:  DefaultCBResetTimeout,
			CBHalfOpenMax:      DefaultCBHalfOpenMax,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
		Dashboard: DashboardConfig{
			Enabled:        true,
			AutoOpen:       false,
			AllowedOrigins: []string{"http://localhost:7678"},
		},
		Metrics: MetricsConfig{
			RetentionDays:   DefaultRetentionDays,
			CacheTTLSeconds: DefaultCacheTTL,
		},
	}
}
