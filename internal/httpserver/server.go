// Package httpserver is the HTTP front-end: it binds the listen address,
// routes every request to the ingest pipeline by its first path segment,
// and mounts /healthz (always) and the metrics endpoint (when metrics are
// enabled) on the same mux.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ncubeanalytics/ingest/internal/config"
	"github.com/ncubeanalytics/ingest/internal/logctx"
	"github.com/ncubeanalytics/ingest/internal/metrics"
	"github.com/ncubeanalytics/ingest/internal/ratelimit"
	"github.com/ncubeanalytics/ingest/internal/telemetry"
)

// PipelineHandler serves one ingest request already routed to schemaID.
// internal/ingest.Pipeline implements this.
type PipelineHandler interface {
	ServeIngest(w http.ResponseWriter, r *http.Request, schemaID string)
}

// Flusher drains in-flight broker deliveries on shutdown.
// internal/producer.Pool implements this.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Options carries collaborators the caller builds (rate limiter, key
// extractor) so Server itself stays free of construction concerns, mirroring
// the teacher's pattern of injecting an already-built audit logger.
type Options struct {
	Limiter      ratelimit.Limiter
	KeyExtractor ratelimit.KeyExtractor
}

// Server is the plain net/http ingest front-end.
type Server struct {
	cfg      *config.Config
	pipeline PipelineHandler
	pool     Flusher
	opts     Options
	mux      *http.ServeMux
	http     *http.Server
}

// New builds a Server with no rate limiting configured.
func New(cfg *config.Config, pipeline PipelineHandler, pool Flusher) *Server {
	return NewWithOptions(cfg, pipeline, pool, Options{})
}

// NewWithOptions builds a Server, wiring in a rate limiter when opts names
// one.
func NewWithOptions(cfg *config.Config, pipeline PipelineHandler, pool Flusher, opts Options) *Server {
	if opts.KeyExtractor == nil {
		opts.KeyExtractor = ratelimit.CompositeKeyExtractor(ratelimit.SchemaKeyExtractor, ratelimit.IPKeyExtractor)
	}

	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		pool:     pool,
		opts:     opts,
		mux:      http.NewServeMux(),
	}

	s.routes()

	s.http = &http.Server{
		Addr:        cfg.Service.Address,
		Handler:     h2c.NewHandler(s.mux, &http2.Server{}),
		IdleTimeout: time.Duration(cfg.Service.KeepaliveSeconds) * time.Second,
	}

	return s
}

func (s *Server) routes() {
	s.mux.Handle("/{schemaID}", s.instrument("/{schemaID}", s.handleIngest))
	s.mux.Handle("/{schemaID}/{rest...}", s.instrument("/{schemaID}/{rest...}", s.handleIngest))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	if s.cfg.Service.Metrics.Enabled {
		path := s.cfg.Service.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle(path, metrics.Handler())
	}
}

// instrument wraps a route handler with tracing and request metrics, the
// same two concerns the teacher's gateway-svc attaches via ConnectRPC
// interceptors, expressed here as plain http.Handler middleware.
func (s *Server) instrument(routePattern string, next http.HandlerFunc) http.Handler {
	var h http.Handler = next
	h = s.recordMetrics(h)
	h = telemetry.Middleware(routePattern, h)
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) recordMetrics(next http.Handler) http.Handler {
	m := metrics.Get()
	tracker := metrics.NewRequestTracker(m.HTTPRequestsInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		schemaID := r.PathValue("schemaID")
		tracker.Start(schemaID)
		defer tracker.End(schemaID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.RecordHTTPRequest(schemaID, r.Method, fmt.Sprintf("%d", rec.status), time.Since(start))
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	schemaID := r.PathValue("schemaID")

	if s.opts.Limiter != nil {
		key := s.opts.KeyExtractor(r, schemaID)
		allowed, err := s.opts.Limiter.Allow(r.Context(), key)
		if err != nil {
			logctx.WithSchema(schemaID).Warn("rate limiter error, allowing request", "error", err)
		} else if !allowed {
			metrics.Get().RecordRateLimited(schemaID)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
	}

	s.pipeline.ServeIngest(w, r, schemaID)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run binds the listen address and serves until a SIGINT/SIGTERM arrives,
// then drains in-flight requests and flushes the producer pool, both
// bounded by service.shutdown_grace_seconds.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.cfg.Service.Address)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Service.Address, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logctx.Log.Info("ingest server listening", "address", s.cfg.Service.Address)
		serveErr <- s.http.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logctx.Log.Info("shutdown signal received, draining in-flight requests")

	grace := time.Duration(s.cfg.Service.ShutdownGraceSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logctx.Log.Error("server shutdown error", "error", err)
	}
	<-serveErr

	flushCtx, flushCancel := context.WithTimeout(context.Background(), grace)
	defer flushCancel()
	if err := s.pool.Flush(flushCtx); err != nil {
		logctx.Log.Error("producer pool flush error", "error", err)
		return err
	}

	logctx.Log.Info("ingest server stopped")
	return nil
}

// Stop shuts down the server immediately, for use in tests.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
