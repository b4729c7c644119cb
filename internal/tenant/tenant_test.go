package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ncubeanalytics/ingest/internal/config"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("any-secret-unverified-on-read"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return s
}

func TestResolve_Disabled(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/1", nil)
	got := Resolve(config.TenantConfig{JWTEnabled: false}, r)
	if got != Default {
		t.Errorf("got %q, want default", got)
	}
}

func TestResolve_NoAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/1", nil)
	got := Resolve(config.TenantConfig{JWTEnabled: true}, r)
	if got != Default {
		t.Errorf("got %q, want default", got)
	}
}

func TestResolve_ExtractsClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"tenant_id": "acme",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	r := httptest.NewRequest(http.MethodPost, "/1", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	got := Resolve(config.TenantConfig{JWTEnabled: true}, r)
	if got != "acme" {
		t.Errorf("got %q, want acme", got)
	}
}

func TestResolve_CustomClaimName(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"org": "widgets-inc"})
	r := httptest.NewRequest(http.MethodPost, "/1", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	got := Resolve(config.TenantConfig{JWTEnabled: true, JWTClaim: "org"}, r)
	if got != "widgets-inc" {
		t.Errorf("got %q, want widgets-inc", got)
	}
}

func TestResolve_MalformedToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/1", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")

	got := Resolve(config.TenantConfig{JWTEnabled: true}, r)
	if got != Default {
		t.Errorf("got %q, want default for a malformed token", got)
	}
}

func TestResolve_MissingClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-1"})
	r := httptest.NewRequest(http.MethodPost, "/1", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	got := Resolve(config.TenantConfig{JWTEnabled: true}, r)
	if got != Default {
		t.Errorf("got %q, want default when tenant_id claim is absent", got)
	}
}
