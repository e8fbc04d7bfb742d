// Package accounts provides profile management, admin user administration
// and server API keys. It also resolves storefront roles for the auth
// middleware.
package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/vegdirect/storefront/internal/cache"
	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/metrics"
	"github.com/vegdirect/storefront/internal/middleware"
	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
	commonservice "github.com/vegdirect/storefront/services/common/service"
)

const (
	ServiceID   = "accounts"
	ServiceName = "Accounts Service"
	Version     = "1.0.0"

	// API keys look like vd_<40 hex chars>; the first eight hex chars form
	// the lookup prefix stored in clear.
	apiKeyPrefix    = "vd_"
	apiKeyRandBytes = 20
	apiKeyPrefixLen = 8

	roleCachePrefix = "accounts:role:"
	roleCacheTTL    = time.Minute

	maxAddresses = 10
)

// Service implements the accounts service.
type Service struct {
	*commonservice.BaseService

	repo    accountssupabase.RepositoryInterface
	cache   cache.Cache
	metrics *metrics.Metrics
	stats   *commonservice.ServiceMetrics
}

// Config holds accounts service configuration.
type Config struct {
	DB      *database.Repository
	Repo    accountssupabase.RepositoryInterface
	Cache   cache.Cache
	Metrics *metrics.Metrics
	Logger  *logging.Logger
	Router  *mux.Router
}

// New creates a new accounts service and registers its routes.
func New(cfg Config) (*Service, error) {
	repo := cfg.Repo
	if repo == nil {
		repo = accountssupabase.NewRepository(cfg.DB)
	}

	s := &Service{
		repo:    repo,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		stats:   commonservice.NewServiceMetrics(ServiceID),
	}

	diag := cfg.Router.PathPrefix("/" + ServiceID).Subrouter()
	base := commonservice.NewBase(commonservice.Config{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		DB:      cfg.DB,
		Logger:  cfg.Logger,
		Router:  diag,
	})
	s.BaseService = base.WithStats(s.stats.Stats)

	s.RegisterStandardRoutes()
	diag.HandleFunc("/metrics", s.stats.MetricsHandler()).Methods(http.MethodGet)
	s.registerRoutes(cfg.Router)

	return s, nil
}

func (s *Service) registerRoutes(api *mux.Router) {
	admin := middleware.RequireRole(middleware.RoleAdmin)

	api.Handle("/profile", s.instrument(s.handleGetProfile)).Methods(http.MethodGet)
	api.Handle("/profile", s.instrument(s.handleUpdateProfile)).Methods(http.MethodPatch)
	api.Handle("/profile/addresses", s.instrument(s.handleAddAddress)).Methods(http.MethodPost)
	api.Handle("/profile/addresses/{index}", s.instrument(s.handleUpdateAddress)).Methods(http.MethodPut)
	api.Handle("/profile/addresses/{index}", s.instrument(s.handleDeleteAddress)).Methods(http.MethodDelete)

	api.Handle("/admin/users", admin(s.instrument(s.handleListUsers))).Methods(http.MethodGet)
	api.Handle("/admin/users/{id}", admin(s.instrument(s.handleGetUser))).Methods(http.MethodGet)
	api.Handle("/admin/users/{id}", admin(s.instrument(s.handleUpdateUser))).Methods(http.MethodPatch)
	api.Handle("/admin/users/{id}", admin(s.instrument(s.handleDeactivateUser))).Methods(http.MethodDelete)
	api.Handle("/admin/drivers", admin(s.instrument(s.handleListDrivers))).Methods(http.MethodGet)

	api.Handle("/admin/apikeys", admin(s.instrument(s.handleCreateAPIKey))).Methods(http.MethodPost)
	api.Handle("/admin/apikeys", admin(s.instrument(s.handleListAPIKeys))).Methods(http.MethodGet)
	api.Handle("/admin/apikeys/{id}", admin(s.instrument(s.handleRevokeAPIKey))).Methods(http.MethodDelete)
}

func (s *Service) instrument(h http.HandlerFunc) http.Handler {
	return s.stats.MetricsMiddleware(h)
}

// =============================================================================
// Role resolution (consumed by the auth middleware)
// =============================================================================

// ResolveRole maps an authenticated user to their storefront role. Results
// are cached briefly; unknown users default to customer.
func (s *Service) ResolveRole(ctx context.Context, userID string) (string, error) {
	key := roleCachePrefix + userID
	if s.cache != nil {
		if role, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			if s.metrics != nil {
				s.metrics.RecordCacheOutcome("hit")
			}
			return role, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOutcome("miss")
		}
	}

	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if database.IsNotFound(err) {
			return accountssupabase.RoleCustomer, nil
		}
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, p.Role, roleCacheTTL); err != nil {
			s.Logger().WithError(err).Warn("role cache write failed")
		}
	}
	return p.Role, nil
}

func (s *Service) invalidateRole(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, roleCachePrefix+userID); err != nil {
		s.Logger().WithError(err).Warn("role cache invalidation failed")
	}
}

// =============================================================================
// Directory methods (consumed by the orders service)
// =============================================================================

// GetProfile returns a profile by user ID.
func (s *Service) GetProfile(ctx context.Context, userID string) (*accountssupabase.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// IsDriver reports whether the user is an active driver.
func (s *Service) IsDriver(ctx context.Context, userID string) (bool, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if database.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return p.Role == accountssupabase.RoleDriver && p.Active, nil
}

// =============================================================================
// API key verification (consumed by the API key middleware)
// =============================================================================

// GenerateAPIKey returns a fresh raw key and its lookup prefix.
func GenerateAPIKey() (raw, prefix string, err error) {
	buf := make([]byte, apiKeyRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api key: %v", err)
	}
	encoded := hex.EncodeToString(buf)
	return apiKeyPrefix + encoded, encoded[:apiKeyPrefixLen], nil
}

// VerifyKey checks a raw API key against the stored hash. Successful use is
// recorded asynchronously.
func (s *Service) VerifyKey(ctx context.Context, rawKey string) (*middleware.APIKeyIdentity, error) {
	if !strings.HasPrefix(rawKey, apiKeyPrefix) || len(rawKey) < len(apiKeyPrefix)+apiKeyPrefixLen {
		return nil, fmt.Errorf("malformed api key")
	}
	prefix := rawKey[len(apiKeyPrefix) : len(apiKeyPrefix)+apiKeyPrefixLen]

	k, err := s.repo.GetAPIKeyByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("api key lookup: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)); err != nil {
		return nil, fmt.Errorf("api key mismatch")
	}

	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.TouchAPIKey(touchCtx, k.ID); err != nil {
			s.Logger().WithError(err).Warn("api key touch failed")
		}
	}()

	return &middleware.APIKeyIdentity{KeyID: k.ID, Name: k.Name, Role: middleware.RoleAdmin}, nil
}

var _ middleware.KeyVerifier = (*Service)(nil)
