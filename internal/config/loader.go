package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix      = "INGESTD_"
	configEnvVar   = "INGESTD_CONFIG"
	defaultCfgPath = "/etc/ncube-ingest/ingest.toml"
)

// Loader loads Config from defaults, then an optional TOML file, then
// environment variables, each layer overriding the previous one.
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader creates a Loader with the project's default search paths.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"ingest.toml",
			"config/ingest.toml",
			defaultCfgPath,
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithConfigPaths overrides the file search path list.
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load resolves defaults -> TOML file -> environment, unmarshals into a
// Config and validates it.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		"service.address":                "0.0.0.0:8088",
		"service.keepalive_seconds":      75,
		"service.max_event_size_bytes":   1 << 20,
		"service.num_workers":            0, // 0 == runtime.GOMAXPROCS
		"service.shutdown_grace_seconds": 30,
		"service.plugin_dir":             "",

		"service.default_schema_config.producer_name":            "main",
		"service.default_schema_config.allowed_methods":          []string{"POST"},
		"service.default_schema_config.response_status":          200,
		"service.default_schema_config.content_type_from_header": true,
		"service.default_schema_config.forward_ingest_version":   true,

		"service.log.level":  "info",
		"service.log.format": "json",
		"service.log.output": "stdout",

		"service.metrics.enabled":   true,
		"service.metrics.path":      "/metrics",
		"service.metrics.namespace": "ingest",

		"service.tracing.enabled":      false,
		"service.tracing.service_name": "ncube-ingest",
		"service.tracing.sample_rate":  0.1,

		"service.rate_limit.enabled":        false,
		"service.rate_limit.backend":        "memory",
		"service.rate_limit.requests":       1000,
		"service.rate_limit.window_seconds": 60,
		"service.rate_limit.burst_size":     50,

		"service.tenant.jwt_enabled": false,
		"service.tenant.jwt_claim":   "tenant_id",

		"headers.schema_id":          "ncube-ingest-schema-id",
		"headers.ip":                 "ncube-ingest-ip",
		"headers.url":                "ncube-ingest-url",
		"headers.method":             "ncube-ingest-method",
		"headers.http_header_prefix": "ncube-ingest-http-header-",
		"headers.ingest_version":     "ncube-ingest-version",
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), toml.Parser())
		}
		return fmt.Errorf("%s points at %q which does not exist", configEnvVar, configPath)
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), toml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, l.envPrefix)),
			"_", ".",
		)
	}), nil)
}

// MustLoad loads Config or panics. Used only at process startup, before
// logging is initialized.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load loads Config using the default search paths and env prefix.
func Load() (*Config, error) {
	return NewLoader().Load()
}
