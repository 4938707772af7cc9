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

func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for promptstudio.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     toml:"server"`
	Ingest     IngestConfig     `mapstructure:"ingest"     toml:"ingest"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment" toml:"enrichment"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"  toml:"dashboard"`
	Tracing    TracingConfig    `mapstructure:"tracing"    toml:"tracing"`
	Cache      CacheConfig      `mapstructure:"cache"      toml:"cache"`
}

// ServerConfig holds the HTTP listener and process settings.
type ServerConfig struct {
	BindAddress  string `mapstructure:"bind_address"  toml:"bind_address"`
	Port         int    `mapstructure:"port"          toml:"port"`
	LogLevel     string `mapstructure:"log_level"     toml:"log_level"`
	DataDir      string `mapstructure:"data_dir"      toml:"data_dir"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"   toml:"tls_enabled"`
	CertFile     string `mapstructure:"cert_file"     toml:"cert_file"`
	KeyFile      string `mapstructure:"key_file"      toml:"key_file"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`
	MaxBodySize  int64  `mapstructure:"max_body_size" toml:"max_body_size"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// BaseURL returns the URL clients on this machine use to reach the server.
func (s ServerConfig) BaseURL() string {
	scheme := "http"
	if s.TLSEnabled {
		scheme = "https"
	}
	host := s.BindAddress
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, s.Port)
}

// IngestConfig controls how prompt events are accepted and paired for display.
type IngestConfig struct {
	// RequireContent rejects requests carrying neither prompt nor ai_prompt.
	// When false such requests only touch the conversation.
	RequireContent  bool   `mapstructure:"require_content"  toml:"require_content"`
	PairingStrategy string `mapstructure:"pairing_strategy" toml:"pairing_strategy"`
	// FirstMessage is "conversation" (first write ends it) or "enrichment"
	// (stored system info ends it).
	FirstMessage string `mapstructure:"first_message" toml:"first_message"`
}

// EnrichmentConfig points at the external advice and system-info workflows.
type EnrichmentConfig struct {
	AdviceURL          string   `mapstructure:"advice_url"               toml:"advice_url"`
	SystemInfoWebhook  string   `mapstructure:"system_info_webhook"      toml:"system_info_webhook"`
	KeyRef             string   `mapstructure:"key_ref"                  toml:"key_ref"`
	Timeout            int      `mapstructure:"timeout"                  toml:"timeout"` // seconds
	RetryMaxAttempts   int      `mapstructure:"retry_max_attempts"       toml:"retry_max_attempts"`
	RetryBaseDelayMs   int      `mapstructure:"retry_base_delay_ms"      toml:"retry_base_delay_ms"`
	RetryMaxDelayMs    int      `mapstructure:"retry_max_delay_ms"       toml:"retry_max_delay_ms"`
	CBEnabled          bool     `mapstructure:"circuit_breaker_enabled"  toml:"circuit_breaker_enabled"`
	CBFailureThreshold int      `mapstructure:"cb_failure_threshold"     toml:"cb_failure_threshold"`
	CBResetTimeoutSec  int      `mapstructure:"cb_reset_timeout_seconds" toml:"cb_reset_timeout_seconds"`
	CBHalfOpenMax      int      `mapstructure:"cb_half_open_max_calls"   toml:"cb_half_open_max_calls"`
	Redact             string   `mapstructure:"redact"                   toml:"redact"` // "placeholder", "hash", "off"
	RedactAllowList    []string `mapstructure:"redact_allow_list"        toml:"redact_allow_list"`
	AdviceRatePerMin   float64  `mapstructure:"advice_rate_per_minute"   toml:"advice_rate_per_minute"` // 0 disables
	AdviceBurst        int      `mapstructure:"advice_burst"             toml:"advice_burst"`
}

// TimeoutDuration returns the enrichment timeout as a time.Duration.
func (e EnrichmentConfig) TimeoutDuration() time.Duration {
	if e.Timeout <= 0 {
		return time.Duration(DefaultEnrichmentTimeout) * time.Second
	}
	return time.Duration(e.Timeout) * time.Second
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"` // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`
}

// DashboardConfig controls the web dashboard.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"          toml:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"  toml:"allowed_origins"`
	// IgnoredSessions seeds the browser's hidden-session list on first load.
	// After that the list lives only in the browser.
	IgnoredSessions []string `mapstructure:"ignored_sessions" toml:"ignored_sessions"`
}

// CacheConfig controls the advice response cache.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"     toml:"enabled"`
	MaxEntries int  `mapstructure:"max_entries" toml:"max_entries"`
	TTLSeconds int  `mapstructure:"ttl_seconds" toml:"ttl_seconds"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (PROMPTSTUDIO_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.promptstudio/promptstudio.toml
//  4. ./promptstudio.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setViperDefaults(v)

	// PROMPTSTUDIO_SERVER_PORT, PROMPTSTUDIO_INGEST_REQUIRE_CONTENT, ...
	v.SetEnvPrefix("PROMPTSTUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".promptstudio"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("promptstudio")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

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

	cfg.Server.DataDir = ExpandHome(cfg.Server.DataDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.promptstudio/promptstudio.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".promptstudio")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	data, err := toml.Marshal(DefaultConfig())
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
	data, err := toml.Marshal(Get())
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file, validates it and makes it current.
// The imported config is also persisted to the active config file.
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

	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	v.SetDefault("ingest.require_content", d.Ingest.RequireContent)
	v.SetDefault("ingest.pairing_strategy", d.Ingest.PairingStrategy)
	v.SetDefault("ingest.first_message", d.Ingest.FirstMessage)

	v.SetDefault("enrichment.advice_url", d.Enrichment.AdviceURL)
	v.SetDefault("enrichment.system_info_webhook", d.Enrichment.SystemInfoWebhook)
	v.SetDefault("enrichment.key_ref", d.Enrichment.KeyRef)
	v.SetDefault("enrichment.timeout", d.Enrichment.Timeout)
	v.SetDefault("enrichment.retry_max_attempts", d.Enrichment.RetryMaxAttempts)
	v.SetDefault("enrichment.retry_base_delay_ms", d.Enrichment.RetryBaseDelayMs)
	v.SetDefault("enrichment.retry_max_delay_ms", d.Enrichment.RetryMaxDelayMs)
	v.SetDefault("enrichment.circuit_breaker_enabled", d.Enrichment.CBEnabled)
	v.SetDefault("enrichment.cb_failure_threshold", d.Enrichment.CBFailureThreshold)
	v.SetDefault("enrichment.cb_reset_timeout_seconds", d.Enrichment.CBResetTimeoutSec)
	v.SetDefault("enrichment.cb_half_open_max_calls", d.Enrichment.CBHalfOpenMax)
	v.SetDefault("enrichment.redact", d.Enrichment.Redact)
	v.SetDefault("enrichment.redact_allow_list", d.Enrichment.RedactAllowList)
	v.SetDefault("enrichment.advice_rate_per_minute", d.Enrichment.AdviceRatePerMin)
	v.SetDefault("enrichment.advice_burst", d.Enrichment.AdviceBurst)

	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.allowed_origins", d.Dashboard.AllowedOrigins)
	v.SetDefault("dashboard.ignored_sessions", d.Dashboard.IgnoredSessions)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
