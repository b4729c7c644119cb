package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalTOML = `
[service]
address = "0.0.0.0:9000"

[service.default_schema_config]
destination_topic = "events"

[[producers]]
name = "main"
`

func TestLoader_LoadDefaults(t *testing.T) {
	// destination_topic has no default and is required, so the file sets
	// only that; every other value checked below comes from the defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ingest.toml")
	content := `
[service.default_schema_config]
destination_topic = "events"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := NewLoader(WithConfigPaths(configPath)).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Service.Address != "0.0.0.0:8088" {
		t.Errorf("expected default address, got %s", cfg.Service.Address)
	}
	if cfg.Service.KeepaliveSeconds != 75 {
		t.Errorf("expected default keepalive 75, got %d", cfg.Service.KeepaliveSeconds)
	}
	if cfg.Service.MaxEventSizeBytes != 1<<20 {
		t.Errorf("expected default max event size 1MiB, got %d", cfg.Service.MaxEventSizeBytes)
	}
	if cfg.Service.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Service.Log.Level)
	}
	if len(cfg.Service.DefaultSchemaConfig.AllowedMethods) != 1 || cfg.Service.DefaultSchemaConfig.AllowedMethods[0] != "POST" {
		t.Errorf("expected default allowed methods [POST], got %v", cfg.Service.DefaultSchemaConfig.AllowedMethods)
	}
}

func TestLoader_LoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ingest.toml")

	content := `
[service]
address = "10.0.0.1:9100"

[service.log]
level = "debug"

[service.default_schema_config]
destination_topic = "clicks"

[[producers]]
name = "main"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := NewLoader(WithConfigPaths(configPath)).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Service.Address != "10.0.0.1:9100" {
		t.Errorf("expected address from file, got %s", cfg.Service.Address)
	}
	if cfg.Service.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Service.Log.Level)
	}
	if cfg.Service.DefaultSchemaConfig.DestinationTopic != "clicks" {
		t.Errorf("expected destination_topic 'clicks', got %s", cfg.Service.DefaultSchemaConfig.DestinationTopic)
	}
}

func TestLoader_LoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ingest.toml")
	if err := os.WriteFile(configPath, []byte(minimalTOML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("INGESTD_SERVICE_ADDRESS", "192.168.1.1:7000")
	defer os.Unsetenv("INGESTD_SERVICE_ADDRESS")

	cfg, err := NewLoader(WithConfigPaths(configPath)).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Service.Address != "192.168.1.1:7000" {
		t.Errorf("expected env override, got %s", cfg.Service.Address)
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ingest.toml")
	if err := os.WriteFile(configPath, []byte(minimalTOML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("INGESTD_SERVICE_ADDRESS", "env-wins:1234")
	defer os.Unsetenv("INGESTD_SERVICE_ADDRESS")

	cfg, err := NewLoader(WithConfigPaths(configPath)).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Service.Address != "env-wins:1234" {
		t.Errorf("expected env override, got %s", cfg.Service.Address)
	}
	// destination_topic should still come from the file
	if cfg.Service.DefaultSchemaConfig.DestinationTopic != "events" {
		t.Errorf("expected destination_topic from file, got %s", cfg.Service.DefaultSchemaConfig.DestinationTopic)
	}
}

func TestLoader_WithEnvPrefix(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ingest.toml")
	if err := os.WriteFile(configPath, []byte(minimalTOML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("CUSTOM_SERVICE_ADDRESS", "custom-prefix:5555")
	defer os.Unsetenv("CUSTOM_SERVICE_ADDRESS")

	cfg, err := NewLoader(WithConfigPaths(configPath), WithEnvPrefix("CUSTOM_")).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Service.Address != "custom-prefix:5555" {
		t.Errorf("expected 'custom-prefix:5555', got %s", cfg.Service.Address)
	}
}

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ingest.toml")
	if err := os.WriteFile(configPath, []byte(minimalTOML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustLoad should not panic with valid config, got %v", r)
		}
	}()

	cfg := MustLoad(WithConfigPaths(configPath))
	if cfg == nil {
		t.Error("expected non-nil config")
	}
}

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustLoad should panic when destination_topic is missing")
		}
	}()

	MustLoad(WithConfigPaths("/nonexistent/ingest.toml"))
}

func TestLoader_ConfigEnvVar(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom-config.toml")
	if err := os.WriteFile(configPath, []byte(minimalTOML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv(configEnvVar, configPath)
	defer os.Unsetenv(configEnvVar)

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Service.DefaultSchemaConfig.DestinationTopic != "events" {
		t.Errorf("expected destination_topic 'events', got %s", cfg.Service.DefaultSchemaConfig.DestinationTopic)
	}
}
