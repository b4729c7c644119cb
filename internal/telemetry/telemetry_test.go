package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestConfig(t *testing.T) {
	cfg := Config{
		Enabled:     true,
		Endpoint:    "localhost:4317",
		ServiceName: "test-service",
		Version:     "1.0.0",
		SampleRate:  0.5,
	}

	if cfg.ServiceName != "test-service" {
		t.Errorf("ServiceName = %s, want test-service", cfg.ServiceName)
	}
}

func TestInit_Disabled(t *testing.T) {
	cfg := Config{
		Enabled:     false,
		ServiceName: "test",
	}

	provider, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if provider == nil {
		t.Fatal("provider should not be nil")
	}

	if provider.tracer == nil {
		t.Error("tracer should not be nil even when disabled")
	}
}

func TestGet_Uninitialized(t *testing.T) {
	globalProvider = nil

	provider := Get()
	if provider == nil {
		t.Fatal("Get() should return provider even when uninitialized")
	}

	if provider.tracer == nil {
		t.Error("tracer should not be nil")
	}
}

func TestStartSpan(t *testing.T) {
	globalProvider = nil

	ctx := context.Background()
	newCtx, span := StartSpan(ctx, "test-span")

	if span == nil {
		t.Error("span should not be nil")
	}

	_ = newCtx

	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()
	span := SpanFromContext(ctx)

	if span == nil {
		t.Error("SpanFromContext should return span (noop)")
	}
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()
	newCtx, span := StartSpan(ctx, "test-span")
	defer span.End()

	AddEvent(newCtx, "test-event",
		attribute.String("key", "value"),
		attribute.Int("count", 42),
	)
}

func TestSetError(t *testing.T) {
	ctx := context.Background()
	newCtx, span := StartSpan(ctx, "test-span")
	defer span.End()

	SetError(newCtx, context.DeadlineExceeded)
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()
	newCtx, span := StartSpan(ctx, "test-span")
	defer span.End()

	SetAttributes(newCtx,
		attribute.String("key1", "value1"),
		attribute.Int("key2", 42),
	)
}

func TestWithAttributes(t *testing.T) {
	opt := WithAttributes(
		attribute.String("key", "value"),
	)

	if opt == nil {
		t.Error("WithAttributes should return option")
	}
}

func TestProvider_Tracer(t *testing.T) {
	provider := &Provider{
		tracer: noop.NewTracerProvider().Tracer("test"),
	}

	tracer := provider.Tracer()
	if tracer == nil {
		t.Error("Tracer() should not return nil")
	}
}

func TestProvider_Shutdown(t *testing.T) {
	provider := &Provider{
		tp:     nil,
		tracer: noop.NewTracerProvider().Tracer("test"),
	}

	err := provider.Shutdown(context.Background())
	if err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestRequestAttributes(t *testing.T) {
	attrs := RequestAttributes("clicks", "POST", "application/json", 128)

	if len(attrs) != 4 {
		t.Errorf("expected 4 attributes, got %d", len(attrs))
	}

	expected := map[string]bool{
		AttrSchemaID:     true,
		AttrMethod:       true,
		AttrContentType:  true,
		AttrPayloadBytes: true,
	}

	for _, attr := range attrs {
		key := string(attr.Key)
		if !expected[key] {
			t.Errorf("unexpected attribute key: %s", key)
		}
	}
}

func TestProducerAttributes(t *testing.T) {
	attrs := ProducerAttributes("main", "clicks-topic")

	if len(attrs) != 2 {
		t.Errorf("expected 2 attributes, got %d", len(attrs))
	}
}

func TestProcessorAttributes(t *testing.T) {
	attrs := ProcessorAttributes("/plugins/enrich.so:Enrich")

	if len(attrs) != 1 {
		t.Errorf("expected 1 attribute, got %d", len(attrs))
	}
}

func TestMiddleware(t *testing.T) {
	globalProvider = nil

	handler := Middleware("/{schemaID}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/clicks", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func TestMiddleware_ServerError(t *testing.T) {
	globalProvider = nil

	handler := Middleware("/{schemaID}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/clicks", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
