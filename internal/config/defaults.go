package config

// DefaultBindAddress is the default bind address (localhost only).
const DefaultBindAddress = "127.0.0.1"

// DefaultPort is the default port for the ingest API and dashboard.
const DefaultPort = 7690

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.promptstudio"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "promptstudio.toml"

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// The advice endpoint waits on the external workflow, so this is generous.
const DefaultWriteTimeout = 120

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (4 MB).
const DefaultMaxBodySize = 4 << 20

// DefaultPairingStrategy pairs entries written by the same ingest request.
const DefaultPairingStrategy = "exchange"

// DefaultEnrichmentTimeout is the default timeout for calls to the
// enrichment workflows, in seconds.
const DefaultEnrichmentTimeout = 60

// DefaultEnrichmentKeyRef is where the enrichment bearer token is looked up.
const DefaultEnrichmentKeyRef = "keyring://promptstudio/enrichment"

// DefaultRetryMaxAttempts is the default maximum number of attempts per enrichment call.
const DefaultRetryMaxAttempts = 3

// DefaultRetryBaseDelayMs is the default base delay for exponential backoff in milliseconds.
const DefaultRetryBaseDelayMs = 500

// DefaultRetryMaxDelayMs is the default maximum delay for exponential backoff in milliseconds.
const DefaultRetryMaxDelayMs = 10000

// DefaultCBFailureThreshold is the default number of consecutive failures before opening the circuit.
const DefaultCBFailureThreshold = 5

// DefaultCBResetTimeout is the default circuit breaker reset timeout in seconds.
const DefaultCBResetTimeout = 60

// DefaultCBHalfOpenMax is the default number of successful calls in half-open state to close the circuit.
const DefaultCBHalfOpenMax = 1

// DefaultRedactMode replaces detected secrets with numbered placeholders
// before prompts leave the machine.
const DefaultRedactMode = "placeholder"

// DefaultAdviceRatePerMin and DefaultAdviceBurst limit advice requests per
// client address.
const (
	DefaultAdviceRatePerMin = 30
	DefaultAdviceBurst      = 5
)

// DefaultCacheMaxEntries bounds the advice cache.
const DefaultCacheMaxEntries = 256

// DefaultCacheTTL is the default advice cache TTL in seconds.
const DefaultCacheTTL = 900

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "promptstudio"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// DefaultFirstMessage ends a session's first message at its first write.
const DefaultFirstMessage = "conversation"

// ValidFirstMessageRules lists the allowed ingest.first_message values.
var ValidFirstMessageRules = []string{"conversation", "enrichment"}

// ValidPairingStrategies lists the allowed ingest.pairing_strategy values.
var ValidPairingStrategies = []string{"exchange", "timestamp", "positional"}

// ValidRedactModes lists the allowed enrichment.redact values.
var ValidRedactModes = []string{"placeholder", "hash", "off"}

// ValidTracingExporters lists the allowed tracing.exporter values.
var ValidTracingExporters = []string{"stdout", "otlp-grpc", "otlp-http"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:  DefaultBindAddress,
			Port:         DefaultPort,
			LogLevel:     DefaultLogLevel,
			DataDir:      DefaultDataDir,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Ingest: IngestConfig{
			RequireContent:  false,
			PairingStrategy: DefaultPairingStrategy,
			FirstMessage:    DefaultFirstMessage,
		},
		Enrichment: EnrichmentConfig{
			AdviceURL:          "",
			SystemInfoWebhook:  "",
			KeyRef:             DefaultEnrichmentKeyRef,
			Timeout:            DefaultEnrichmentTimeout,
			RetryMaxAttempts:   DefaultRetryMaxAttempts,
			RetryBaseDelayMs:   DefaultRetryBaseDelayMs,
			RetryMaxDelayMs:    DefaultRetryMaxDelayMs,
			CBEnabled:          true,
			CBFailureThreshold: DefaultCBFailureThreshold,
			CBResetTimeoutSec:  DefaultCBResetTimeout,
			CBHalfOpenMax:      DefaultCBHalfOpenMax,
			Redact:             DefaultRedactMode,
			RedactAllowList:    []string{},
			AdviceRatePerMin:   DefaultAdviceRatePerMin,
			AdviceBurst:        DefaultAdviceBurst,
		},
		Dashboard: DashboardConfig{
			Enabled:         true,
			AllowedOrigins:  []string{"http://localhost:7690", "http://127.0.0.1:7690"},
			IgnoredSessions: []string{},
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: DefaultCacheMaxEntries,
			TTLSeconds: DefaultCacheTTL,
		},
	}
}
