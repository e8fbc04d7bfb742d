// Package catalog provides the product catalog service: storefront listing,
// admin CRUD, stock adjustment and product image storage.
package catalog

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
	catalogsupabase "github.com/vegdirect/storefront/services/catalog/supabase"
)

const (
	ServiceID   = "catalog"
	ServiceName = "Catalog Service"
	Version     = "1.0.0"

	// Default storefront listing is the hot path; it is cached briefly and
	// dropped on any product mutation.
	listCacheKey = "catalog:products:default"
	listCacheTTL = 90 * time.Second

	// Optimistic stock swaps retry a bounded number of times under contention.
	stockRetries = 3

	maxImageBytes = 4 << 20
)

// OpenOrderChecker reports whether open orders still reference a product.
// The orders service provides the production implementation.
type OpenOrderChecker interface {
	ProductInOpenOrders(ctx context.Context, productID string) (bool, error)
}

// Service implements the catalog service.
type Service struct {
	*commonservice.BaseService

	repo    catalogsupabase.RepositoryInterface
	cache   cache.Cache
	metrics *metrics.Metrics
	stats   *commonservice.ServiceMetrics
	orders  OpenOrderChecker

	bucket          string
	defaultCurrency string
}

// Config holds catalog service configuration.
type Config struct {
	DB      *database.Repository
	Repo    catalogsupabase.RepositoryInterface
	Cache   cache.Cache
	Metrics *metrics.Metrics
	Logger  *logging.Logger
	Router  *mux.Router
	Orders  OpenOrderChecker

	// ProductBucket is the storage bucket for product images.
	ProductBucket string
	// DefaultCurrency is applied to products created without one.
	DefaultCurrency string
}

// New creates a new catalog service and registers its routes.
func New(cfg Config) (*Service, error) {
	repo := cfg.Repo
	if repo == nil {
		repo = catalogsupabase.NewRepository(cfg.DB)
	}

	s := &Service{
		repo:            repo,
		cache:           cfg.Cache,
		metrics:         cfg.Metrics,
		stats:           commonservice.NewServiceMetrics(ServiceID),
		orders:          cfg.Orders,
		bucket:          cfg.ProductBucket,
		defaultCurrency: cfg.DefaultCurrency,
	}
	if s.bucket == "" {
		s.bucket = "product-images"
	}
	if s.defaultCurrency == "" {
		s.defaultCurrency = "VND"
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

// SetOpenOrderChecker wires the open-order check used before product
// deletion. The orders service is constructed after the catalog, so the
// check binds late; call before Start.
func (s *Service) SetOpenOrderChecker(o OpenOrderChecker) {
	s.orders = o
}

func (s *Service) registerRoutes(api *mux.Router) {
	admin := middleware.RequireRole(middleware.RoleAdmin)

	api.Handle("/products", s.instrument(s.handleListProducts)).Methods(http.MethodGet)
	api.Handle("/products/{id}", s.instrument(s.handleGetProduct)).Methods(http.MethodGet)

	api.Handle("/products", admin(s.instrument(s.handleCreateProduct))).Methods(http.MethodPost)
	api.Handle("/products/{id}", admin(s.instrument(s.handleUpdateProduct))).Methods(http.MethodPatch)
	api.Handle("/products/{id}", admin(s.instrument(s.handleDeleteProduct))).Methods(http.MethodDelete)
	api.Handle("/products/{id}/stock", admin(s.instrument(s.handleAdjustStock))).Methods(http.MethodPost)
	api.Handle("/products/{id}/image", admin(s.instrument(s.handleUploadImage))).Methods(http.MethodPost)
}

func (s *Service) instrument(h http.HandlerFunc) http.Handler {
	return s.stats.MetricsMiddleware(h)
}

// invalidateListCache drops the cached default listing after a mutation.
func (s *Service) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, listCacheKey); err != nil {
		s.Logger().WithError(err).Warn("catalog cache invalidation failed")
	}
}

// publicImageURL derives the public URL for a stored product image.
func (s *Service) publicImageURL(path string) string {
	if path == "" || s.DB() == nil {
		return ""
	}
	return s.DB().Client().Storage.GetPublicURL(s.bucket, path)
}

func (s *Service) recordCacheOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCacheOutcome(outcome)
	}
}
