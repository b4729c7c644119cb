// Package tenant implements the stub tenant-id hook: an optional,
// unverified JWT claim extraction that labels a request for
// observability without establishing any authentication guarantee.
package tenant

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ncubeanalytics/ingest/internal/config"
)

// ID is an opaque tenant identifier.
type ID string

// Default is returned whenever JWT extraction is disabled, the request
// carries no usable bearer token, or the configured claim is absent.
const Default ID = "default"

// Resolve implements the stub hook. When cfg.JWTEnabled it reads the
// bearer token from the Authorization header and pulls cfg.JWTClaim out
// of its claims, without verifying the token's signature — this is a
// routing/observability label, not an authentication decision.
func Resolve(cfg config.TenantConfig, r *http.Request) ID {
	if !cfg.JWTEnabled {
		return Default
	}

	token := bearerToken(r)
	if token == "" {
		return Default
	}

	claimName := cfg.JWTClaim
	if claimName == "" {
		claimName = "tenant_id"
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Default
	}

	value, ok := claims[claimName].(string)
	if !ok || value == "" {
		return Default
	}
	return ID(value)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
}
