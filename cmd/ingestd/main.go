// Command ingestd is the HTTP ingestion gateway binary: it loads
// configuration, wires the producer pool, processor registry, and schema
// table, and serves until a shutdown signal drains in-flight requests.
package main

import (
	"context"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ncubeanalytics/ingest/internal/config"
	"github.com/ncubeanalytics/ingest/internal/httpserver"
	"github.com/ncubeanalytics/ingest/internal/ingest"
	"github.com/ncubeanalytics/ingest/internal/logctx"
	"github.com/ncubeanalytics/ingest/internal/metrics"
	"github.com/ncubeanalytics/ingest/internal/processor"
	"github.com/ncubeanalytics/ingest/internal/producer"
	"github.com/ncubeanalytics/ingest/internal/ratelimit"
	"github.com/ncubeanalytics/ingest/internal/schema"
	"github.com/ncubeanalytics/ingest/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logctx.Init("error")
		logctx.Fatal("failed to load config", "error", err)
	}

	logctx.InitWithConfig(cfg.Service.Log)
	logctx.Log.Info("starting ingest gateway", "address", cfg.Service.Address)

	if cfg.Service.Metrics.Enabled {
		metrics.InitMetrics(cfg.Service.Metrics.Namespace, cfg.Service.Metrics.Subsystem)
		metrics.Get().SetServiceInfo(ingest.Version)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Service.Tracing.Enabled {
		provider, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     true,
			Endpoint:    cfg.Service.Tracing.Endpoint,
			ServiceName: cfg.Service.Tracing.ServiceName,
			SampleRate:  cfg.Service.Tracing.SampleRate,
		})
		if err != nil {
			logctx.Fatal("failed to initialize tracing", "error", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logctx.Log.Error("tracing shutdown error", "error", err)
			}
		}()
	}

	pool, err := producer.Build(cfg.Producers)
	if err != nil {
		logctx.Fatal("failed to build producer pool", "error", err)
	}
	defer pool.Close()

	bindings := resolveCallablePaths(cfg.Service.PluginDir, &cfg.Service.DefaultSchemaConfig, cfg.Service.SchemaConfigOverrides)

	registry, err := processor.Build(cfg.Service.DefaultSchemaConfig.Processors, bindings, workerCount(cfg.Service.NumWorkers))
	if err != nil {
		logctx.Fatal("failed to build processor registry", "error", err)
	}
	defer registry.Close()

	defaultSchemaCfg := cfg.Service.DefaultSchemaConfig
	if defaultSchemaCfg.MaxEventSizeBytes == 0 {
		defaultSchemaCfg.MaxEventSizeBytes = cfg.Service.MaxEventSizeBytes
	}

	table, err := schema.Resolve(defaultSchemaCfg, cfg.Service.SchemaConfigOverrides, pool.Names())
	if err != nil {
		logctx.Fatal("failed to resolve schema table", "error", err)
	}

	pipeline := ingest.New(table, ingest.RegistryAdapter{Registry: registry}, ingest.PoolAdapter{Pool: pool}, cfg.Headers, cfg.Service.Tenant)

	opts := httpserver.Options{}
	if cfg.Service.RateLimit.Enabled {
		limiter, err := ratelimit.New(toRateLimitConfig(cfg.Service.RateLimit))
		if err != nil {
			logctx.Fatal("failed to build rate limiter", "error", err)
		}
		defer limiter.Close()
		opts.Limiter = limiter
	}

	server := httpserver.NewWithOptions(cfg, pipeline, pool, opts)
	if err := server.Run(); err != nil {
		logctx.Fatal("server stopped with an error", "error", err)
	}
}

// resolveCallablePaths builds the schema_id -> bindings map processor.Build
// wants, and joins every binding's callable_path to plugin_dir when it
// isn't already absolute.
func resolveCallablePaths(pluginDir string, def *config.SchemaConfig, overrides []config.SchemaConfigEntry) map[string][]config.ProcessorBinding {
	resolveList(pluginDir, def.Processors)

	out := make(map[string][]config.ProcessorBinding, len(overrides))
	for i := range overrides {
		resolveList(pluginDir, overrides[i].Processors)
		out[overrides[i].SchemaID] = overrides[i].Processors
	}
	return out
}

func resolveList(pluginDir string, bindings []config.ProcessorBinding) {
	if pluginDir == "" {
		return
	}
	for i := range bindings {
		if !filepath.IsAbs(bindings[i].CallablePath) {
			bindings[i].CallablePath = filepath.Join(pluginDir, bindings[i].CallablePath)
		}
	}
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

func toRateLimitConfig(c config.RateLimitConfig) *ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if c.Requests > 0 {
		cfg.Requests = c.Requests
	}
	if c.WindowSeconds > 0 {
		cfg.Window = time.Duration(c.WindowSeconds) * time.Second
	}
	if c.Backend != "" {
		cfg.Backend = c.Backend
	}
	if c.RedisAddr != "" {
		cfg.RedisAddr = c.RedisAddr
	}
	return cfg
}
