package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
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

	// Ingest
	if !isValidEnum(cfg.Ingest.PairingStrategy, ValidPairingStrategies) {
		errs = append(errs, fmt.Sprintf("ingest.pairing_strategy must be one of %v, got %q", ValidPairingStrategies, cfg.Ingest.PairingStrategy))
	}
	if !isValidEnum(cfg.Ingest.FirstMessage, ValidFirstMessageRules) {
		errs = append(errs, fmt.Sprintf("ingest.first_message must be one of %v, got %q", ValidFirstMessageRules, cfg.Ingest.FirstMessage))
	}

	// Enrichment
	if cfg.Enrichment.AdviceURL != "" && !isHTTPURL(cfg.Enrichment.AdviceURL) {
		errs = append(errs, fmt.Sprintf("enrichment.advice_url must be an http(s) URL, got %q", cfg.Enrichment.AdviceURL))
	}
	if cfg.Enrichment.SystemInfoWebhook != "" && !isHTTPURL(cfg.Enrichment.SystemInfoWebhook) {
		errs = append(errs, fmt.Sprintf("enrichment.system_info_webhook must be an http(s) URL, got %q", cfg.Enrichment.SystemInfoWebhook))
	}
	if cfg.Enrichment.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("enrichment.timeout must be non-negative, got %d", cfg.Enrichment.Timeout))
	}
	if cfg.Enrichment.RetryMaxAttempts < 0 {
		errs = append(errs, fmt.Sprintf("enrichment.retry_max_attempts must be non-negative, got %d", cfg.Enrichment.RetryMaxAttempts))
	}
	if cfg.Enrichment.RetryBaseDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("enrichment.retry_base_delay_ms must be non-negative, got %d", cfg.Enrichment.RetryBaseDelayMs))
	}
	if cfg.Enrichment.RetryMaxDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("enrichment.retry_max_delay_ms must be non-negative, got %d", cfg.Enrichment.RetryMaxDelayMs))
	}
	if cfg.Enrichment.CBFailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("enrichment.cb_failure_threshold must be at least 1, got %d", cfg.Enrichment.CBFailureThreshold))
	}
	if cfg.Enrichment.CBResetTimeoutSec <= 0 {
		errs = append(errs, fmt.Sprintf("enrichment.cb_reset_timeout_seconds must be positive, got %d", cfg.Enrichment.CBResetTimeoutSec))
	}
	if cfg.Enrichment.CBHalfOpenMax < 1 {
		errs = append(errs, fmt.Sprintf("enrichment.cb_half_open_max_calls must be at least 1, got %d", cfg.Enrichment.CBHalfOpenMax))
	}

	if !isValidEnum(cfg.Enrichment.Redact, ValidRedactModes) {
		errs = append(errs, fmt.Sprintf("enrichment.redact must be one of %v, got %q", ValidRedactModes, cfg.Enrichment.Redact))
	}
	if cfg.Enrichment.AdviceRatePerMin < 0 {
		errs = append(errs, fmt.Sprintf("enrichment.advice_rate_per_minute must be non-negative, got %g", cfg.Enrichment.AdviceRatePerMin))
	}
	if cfg.Enrichment.AdviceRatePerMin > 0 && cfg.Enrichment.AdviceBurst < 1 {
		errs = append(errs, fmt.Sprintf("enrichment.advice_burst must be at least 1 when rate limiting, got %d", cfg.Enrichment.AdviceBurst))
	}

	// Tracing
	if cfg.Tracing.Enabled {
		if !isValidEnum(cfg.Tracing.Exporter, ValidTracingExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", ValidTracingExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	// Cache
	if cfg.Cache.Enabled && cfg.Cache.MaxEntries < 1 {
		errs = append(errs, fmt.Sprintf("cache.max_entries must be at least 1 when the cache is enabled, got %d", cfg.Cache.MaxEntries))
	}
	if cfg.Cache.TTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("cache.ttl_seconds must be non-negative, got %d", cfg.Cache.TTLSeconds))
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

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
