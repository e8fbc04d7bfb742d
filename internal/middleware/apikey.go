package middleware

import (
	"context"
	"net/http"

	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/internal/logging"
)

// APIKeyHeader carries server-to-server keys.
const APIKeyHeader = "X-API-Key"

// APIKeyIdentity describes the owner of a verified server key.
type APIKeyIdentity struct {
	KeyID string
	Name  string
	Role  string
}

// KeyVerifier checks a raw API key against the stored key hashes.
type KeyVerifier interface {
	VerifyKey(ctx context.Context, rawKey string) (*APIKeyIdentity, error)
}

// APIKeyMiddleware authenticates server-to-server callers via the
// X-API-Key header. Used by the mail dispatch and export endpoints.
type APIKeyMiddleware struct {
	verifier KeyVerifier
	logger   *logging.Logger
}

// NewAPIKeyMiddleware builds the key checker.
func NewAPIKeyMiddleware(verifier KeyVerifier, logger *logging.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{verifier: verifier, logger: logger}
}

// Handler rejects requests without a valid key.
func (m *APIKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := r.Header.Get(APIKeyHeader)
		if rawKey == "" {
			httputil.Unauthorized(w, "missing API key")
			return
		}
		identity, err := m.verifier.VerifyKey(r.Context(), rawKey)
		if err != nil {
			m.logger.LogSecurityEvent(r.Context(), "api_key_rejected", map[string]interface{}{
				"path":   r.URL.Path,
				"method": r.Method,
			})
			httputil.Unauthorized(w, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), logging.UserIDKey, identity.KeyID)
		if identity.Role != "" {
			ctx = context.WithValue(ctx, logging.RoleKey, identity.Role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
