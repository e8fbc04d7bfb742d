// Package middleware provides the HTTP middleware chain: tracing, metrics,
// CORS, rate limiting and hosted-auth token verification.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vegdirect/storefront/internal/errors"
	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/supabase"
)

// Roles assigned to storefront users.
const (
	RoleCustomer = "customer"
	RoleDriver   = "driver"
	RoleAdmin    = "admin"
)

// Claims are the hosted-auth JWT claims we rely on.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenIntrospector resolves a token to its user by asking the auth
// endpoint. Used when no local signing secret is configured.
type TokenIntrospector interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

// RoleResolver maps an authenticated user to their storefront role.
type RoleResolver func(ctx context.Context, userID string) (string, error)

// AuthMiddleware verifies hosted-auth bearer tokens. When a JWT secret is
// configured the token is verified locally; otherwise each request costs
// one auth-endpoint round trip.
type AuthMiddleware struct {
	secret       []byte
	introspector TokenIntrospector
	resolveRole  RoleResolver
	logger       *logging.Logger
	skipPaths    map[string]bool
}

// NewAuthMiddleware builds the token verifier. secret may be empty when
// introspector is set.
func NewAuthMiddleware(secret string, introspector TokenIntrospector, resolveRole RoleResolver, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{
		secret:       []byte(secret),
		introspector: introspector,
		resolveRole:  resolveRole,
		logger:       logger,
		skipPaths:    skip,
	}
}

// Handler authenticates every request except the configured skip paths.
// Requests presenting an API key pass through without a bearer identity;
// the key middleware on the routes that accept keys verifies them, and
// every other route still rejects the identity-less request.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get(APIKeyHeader) != "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		userID, err := m.resolveUser(r.Context(), token)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), logging.UserIDKey, userID)
		ctx = context.WithValue(ctx, authTokenKey{}, token)
		if m.resolveRole != nil {
			role, roleErr := m.resolveRole(ctx, userID)
			if roleErr != nil {
				m.logger.WithContext(ctx).WithError(roleErr).Warn("Role resolution failed")
				role = RoleCustomer
			}
			ctx = context.WithValue(ctx, logging.RoleKey, role)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.Unauthorized("Missing Authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.Unauthorized("Invalid Authorization header format")
	}
	return parts[1], nil
}

// resolveUser verifies the token and returns the user ID.
func (m *AuthMiddleware) resolveUser(ctx context.Context, token string) (string, error) {
	if len(m.secret) > 0 {
		claims, err := m.validateToken(token)
		if err != nil {
			return "", err
		}
		if claims.Subject == "" {
			return "", errors.InvalidToken(nil).WithDetails("reason", "missing subject")
		}
		return claims.Subject, nil
	}
	if m.introspector == nil {
		return "", errors.Internal("no token verifier configured", nil)
	}
	user, err := m.introspector.GetUser(ctx, token)
	if err != nil {
		return "", errors.InvalidToken(err)
	}
	return user.ID, nil
}

// validateToken verifies an HS256 hosted-auth token locally.
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}
	httputil.WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

type authTokenKey struct{}

// GetAccessToken returns the verified bearer token for forwarding
// user-scoped backend queries.
func GetAccessToken(ctx context.Context) string {
	if token, ok := ctx.Value(authTokenKey{}).(string); ok {
		return token
	}
	return ""
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts the storefront role from context.
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// RequireRole rejects callers whose resolved role is not in roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserID(r.Context()) == "" {
				httputil.Unauthorized(w, "authentication required")
				return
			}
			if !allowed[GetUserRole(r.Context())] {
				httputil.Forbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUserID ensures an authenticated user is present.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			httputil.Unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
