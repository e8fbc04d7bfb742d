// Package settings manages the storefront's singleton configuration row:
// branding, currency, VAT rate and the admin menu toggles.
package settings

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/cache"
	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/metrics"
	"github.com/vegdirect/storefront/internal/middleware"
	commonservice "github.com/vegdirect/storefront/services/common/service"
	settingssupabase "github.com/vegdirect/storefront/services/settings/supabase"
)

const (
	ServiceID   = "settings"
	ServiceName = "Settings Service"
	Version     = "1.0.0"

	settingsCacheKey = "settings:row"
	settingsCacheTTL = 5 * time.Minute
)

// Service implements the settings service.
type Service struct {
	*commonservice.BaseService

	repo    settingssupabase.RepositoryInterface
	cache   cache.Cache
	metrics *metrics.Metrics
	stats   *commonservice.ServiceMetrics
}

// Config holds settings service configuration.
type Config struct {
	DB      *database.Repository
	Repo    settingssupabase.RepositoryInterface
	Cache   cache.Cache
	Metrics *metrics.Metrics
	Logger  *logging.Logger
	Router  *mux.Router
}

// New creates a new settings service and registers its routes.
func New(cfg Config) (*Service, error) {
	repo := cfg.Repo
	if repo == nil {
		repo = settingssupabase.NewRepository(cfg.DB)
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

	api.Handle("/settings", s.instrument(s.handleGetPublicSettings)).Methods(http.MethodGet)
	api.Handle("/admin/settings", admin(s.instrument(s.handleGetAdminSettings))).Methods(http.MethodGet)
	api.Handle("/admin/settings", admin(s.instrument(s.handleUpdateSettings))).Methods(http.MethodPut)
}

func (s *Service) instrument(h http.HandlerFunc) http.Handler {
	return s.stats.MetricsMiddleware(h)
}

// Current returns the effective settings: the stored row when present, the
// defaults otherwise. Other services (checkout VAT, mail branding) read
// through this method so they share the cache.
func (s *Service) Current(ctx context.Context) (*settingssupabase.Settings, error) {
	if s.cache != nil {
		var cached settingssupabase.Settings
		if ok, err := cache.GetJSON(ctx, s.cache, settingsCacheKey, &cached); err == nil && ok {
			if s.metrics != nil {
				s.metrics.RecordCacheOutcome("hit")
			}
			return &cached, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOutcome("miss")
		}
	}

	row, err := s.repo.Get(ctx)
	if err != nil {
		if database.IsNotFound(err) {
			return settingssupabase.Default(), nil
		}
		return nil, err
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, settingsCacheKey, row, settingsCacheTTL); err != nil {
			s.Logger().WithError(err).Warn("settings cache write failed")
		}
	}
	return row, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, settingsCacheKey); err != nil {
		s.Logger().WithError(err).Warn("settings cache invalidation failed")
	}
}
