package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Requests <= 0 {
		t.Error("Requests should be positive")
	}
	if cfg.Window <= 0 {
		t.Error("Window should be positive")
	}
}

func TestNewMemoryLimiter(t *testing.T) {
	limiter := NewMemoryLimiter(nil)
	defer limiter.Close()

	if limiter == nil {
		t.Fatal("NewMemoryLimiter returned nil")
	}
}

func TestMemoryLimiter_Allow(t *testing.T) {
	cfg := &Config{
		Requests: 5,
		Window:   time.Second,
	}
	limiter := NewMemoryLimiter(cfg)
	defer limiter.Close()

	ctx := context.Background()
	key := "test-key"

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("6th request should be denied")
	}
}

func TestMemoryLimiter_WindowSlides(t *testing.T) {
	cfg := &Config{
		Requests: 1,
		Window:   50 * time.Millisecond,
	}
	limiter := NewMemoryLimiter(cfg)
	defer limiter.Close()

	ctx := context.Background()
	key := "test-key"

	allowed, _ := limiter.Allow(ctx, key)
	if !allowed {
		t.Fatal("first request should be allowed")
	}

	allowed, _ = limiter.Allow(ctx, key)
	if allowed {
		t.Fatal("second request within the window should be denied")
	}

	time.Sleep(60 * time.Millisecond)

	allowed, _ = limiter.Allow(ctx, key)
	if !allowed {
		t.Error("request after the window elapses should be allowed")
	}
}

func TestMemoryLimiter_Close(t *testing.T) {
	limiter := NewMemoryLimiter(nil)

	err := limiter.Close()
	if err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Double close should not error
	err = limiter.Close()
	if err != nil {
		t.Errorf("Double Close() error = %v", err)
	}

	// Operations after close should fail
	ctx := context.Background()
	_, err = limiter.Allow(ctx, "key")
	if err != ErrLimiterClosed {
		t.Errorf("Allow after close should return ErrLimiterClosed, got %v", err)
	}
}

func TestNew(t *testing.T) {
	t.Run("memory backend", func(t *testing.T) {
		limiter, err := New(&Config{
			Backend:  "memory",
			Requests: 10,
			Window:   time.Second,
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer limiter.Close()
	})

	t.Run("default backend", func(t *testing.T) {
		limiter, err := New(&Config{
			Backend:  "",
			Requests: 10,
			Window:   time.Second,
		})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer limiter.Close()
	})

	t.Run("nil config", func(t *testing.T) {
		limiter, err := New(nil)
		if err != nil {
			t.Fatalf("New(nil) error = %v", err)
		}
		defer limiter.Close()
	})
}

func TestKeyExtractors(t *testing.T) {
	schemaID := "clicks"

	t.Run("IPKeyExtractor with x-forwarded-for", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/clicks", nil)
		r.Header.Set("X-Forwarded-For", "192.168.1.1")
		key := IPKeyExtractor(r, schemaID)
		if key != "192.168.1.1" {
			t.Errorf("key = %v, want 192.168.1.1", key)
		}
	})

	t.Run("IPKeyExtractor with x-real-ip", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/clicks", nil)
		r.Header.Set("X-Real-IP", "10.0.0.1")
		key := IPKeyExtractor(r, schemaID)
		if key != "10.0.0.1" {
			t.Errorf("key = %v, want 10.0.0.1", key)
		}
	})

	t.Run("IPKeyExtractor fallback to RemoteAddr", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/clicks", nil)
		r.RemoteAddr = "203.0.113.5:54321"
		key := IPKeyExtractor(r, schemaID)
		if key != "203.0.113.5:54321" {
			t.Errorf("key = %v, want 203.0.113.5:54321", key)
		}
	})

	t.Run("SchemaKeyExtractor", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/clicks", nil)
		key := SchemaKeyExtractor(r, schemaID)
		if key != schemaID {
			t.Errorf("key = %v, want %v", key, schemaID)
		}
	})

	t.Run("CompositeKeyExtractor", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/clicks", nil)
		r.Header.Set("X-Forwarded-For", "1.2.3.4")
		extractor := CompositeKeyExtractor(SchemaKeyExtractor, IPKeyExtractor)
		key := extractor(r, schemaID)
		expected := schemaID + ":1.2.3.4:"
		if key != expected {
			t.Errorf("key = %v, want %v", key, expected)
		}
	})
}
