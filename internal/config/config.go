// Package config defines the configuration schema for the ingest gateway
// and validates it after loading.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration tree, unmarshalled from TOML (plus
// environment overrides) by Loader.
type Config struct {
	Service   ServiceConfig    `koanf:"service"`
	Headers   HeaderNames      `koanf:"headers"`
	Producers []ProducerConfig `koanf:"producers"`
}

// ServiceConfig holds the HTTP front-end tuning knobs and the schema table
// inputs (default schema config plus per-schema overrides).
type ServiceConfig struct {
	Address               string              `koanf:"address"`
	KeepaliveSeconds      int                 `koanf:"keepalive_seconds"`
	MaxEventSizeBytes     int64               `koanf:"max_event_size_bytes"`
	NumWorkers            int                 `koanf:"num_workers"`
	ShutdownGraceSeconds  int                 `koanf:"shutdown_grace_seconds"`
	PluginDir             string              `koanf:"plugin_dir"`
	DefaultSchemaConfig   SchemaConfig        `koanf:"default_schema_config"`
	SchemaConfigOverrides []SchemaConfigEntry `koanf:"schema_config"`
	Log                   LogConfig           `koanf:"log"`
	Metrics               MetricsConfig       `koanf:"metrics"`
	Tracing               TracingConfig       `koanf:"tracing"`
	RateLimit             RateLimitConfig     `koanf:"rate_limit"`
	Tenant                TenantConfig        `koanf:"tenant"`
}

// SchemaConfigEntry is a per-schema override tagged with the schema_id it
// applies to.
type SchemaConfigEntry struct {
	SchemaID string `koanf:"schema_id"`
	SchemaConfig
}

// SchemaConfig is the per-schema ingest policy. Zero-valued fields in an
// override inherit from the default (see internal/schema.Resolve).
type SchemaConfig struct {
	DestinationTopic      string             `koanf:"destination_topic"`
	ProducerName          string             `koanf:"producer_name"`
	AllowedMethods        []string           `koanf:"allowed_methods"`
	ResponseStatus        int                `koanf:"response_status"`
	ContentTypeFromHeader *bool              `koanf:"content_type_from_header"`
	ContentType           string             `koanf:"content_type"`
	ForwardURL            bool               `koanf:"forward_url"`
	ForwardMethod         bool               `koanf:"forward_method"`
	ForwardHTTPHeaders    bool               `koanf:"forward_http_headers"`
	ForwardIngestVersion  *bool              `koanf:"forward_ingest_version"`
	MaxEventSizeBytes     int64              `koanf:"max_event_size_bytes"`
	Processors            []ProcessorBinding `koanf:"processors"`
}

// ProcessorBinding ties a processor plugin to a schema.
type ProcessorBinding struct {
	CallablePath      string   `koanf:"callable_path"`
	Methods           []string `koanf:"methods"`
	ImplementsHead    bool     `koanf:"implements_head"`
	ProcessIsBlocking bool     `koanf:"process_is_blocking"`
	HeadIsBlocking    bool     `koanf:"head_is_blocking"`
}

// HeaderNames names the outbound metadata headers attached to every
// produced message.
type HeaderNames struct {
	SchemaID         string `koanf:"schema_id"`
	IP               string `koanf:"ip"`
	URL              string `koanf:"url"`
	Method           string `koanf:"method"`
	HTTPHeaderPrefix string `koanf:"http_header_prefix"`
	IngestVersion    string `koanf:"ingest_version"`
}

// ProducerConfig is the recipe for one named broker-producer client.
type ProducerConfig struct {
	Name             string            `koanf:"name"`
	Options          map[string]string `koanf:"options"`
	SaslPasswordPath string            `koanf:"sasl_password_path"`
}

// LogConfig configures internal/logctx.
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"`
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// RateLimitConfig configures the optional ingest rate limiter.
type RateLimitConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Requests      int    `koanf:"requests"`
	WindowSeconds int    `koanf:"window_seconds"`
	Backend       string `koanf:"backend"` // memory, redis
	RedisAddr     string `koanf:"redis_addr"`
}

// TenantConfig configures the stub tenant-id hook.
type TenantConfig struct {
	JWTEnabled bool   `koanf:"jwt_enabled"`
	JWTClaim   string `koanf:"jwt_claim"`
}

// Validate checks cross-field invariants that the unmarshaller itself
// cannot express. Producer-name and processor-binding invariants are
// checked later by internal/schema.Resolve, which has the producer pool
// and full schema table in view.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.Address == "" {
		errs = append(errs, "service.address is required")
	}

	if c.Service.MaxEventSizeBytes <= 0 {
		errs = append(errs, "service.max_event_size_bytes must be positive")
	}

	if c.Service.DefaultSchemaConfig.DestinationTopic == "" {
		errs = append(errs, "service.default_schema_config.destination_topic is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Service.Log.Level != "" && !validLevels[strings.ToLower(c.Service.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Service.Log.Level))
	}

	for i, p := range c.Producers {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("producers[%d].name is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidMethod reports whether m is a syntactically valid HTTP method token
// per RFC 7230 (letters of either case, digits, and the punctuation allowed
// in a token). Uppercasing is left to the caller.
func ValidMethod(m string) bool {
	if m == "" {
		return false
	}
	for _, r := range m {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case strings.ContainsRune("!#$%&'*+-.^_`|~", r):
		default:
			return false
		}
	}
	return true
}
