// Package orders implements the order lifecycle: cart staging, checkout,
// status transitions, driver deliveries, invoices and the admin order plane.
package orders

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/metrics"
	"github.com/vegdirect/storefront/internal/middleware"
	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
	catalogsupabase "github.com/vegdirect/storefront/services/catalog/supabase"
	commonservice "github.com/vegdirect/storefront/services/common/service"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
	settingssupabase "github.com/vegdirect/storefront/services/settings/supabase"
)

const (
	ServiceID   = "orders"
	ServiceName = "Orders Service"
	Version     = "1.0.0"

	stockRetries     = 3
	maxCheckoutLines = 50
	maxExportRows    = 2000
	maxInvoiceBytes  = 8 << 20

	notifyTimeout = 10 * time.Second
)

// SettingsSource supplies the store settings used at checkout (VAT rate,
// currency) without binding to the settings service directly.
type SettingsSource interface {
	Current(ctx context.Context) (*settingssupabase.Settings, error)
}

// AccountDirectory resolves driver eligibility and customer contact data.
type AccountDirectory interface {
	IsDriver(ctx context.Context, userID string) (bool, error)
	GetProfile(ctx context.Context, userID string) (*accountssupabase.Profile, error)
}

// ProductSource reads products and adjusts stock during checkout and
// cancellation.
type ProductSource interface {
	GetByID(ctx context.Context, id string) (*catalogsupabase.Product, error)
	CompareAndSetStock(ctx context.Context, id string, expected, next int) (bool, error)
}

// Notifier delivers order lifecycle email. Implementations own templating
// and transport; failures are logged, never propagated to the request.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, o *orderssupabase.Order, items []orderssupabase.OrderItem, recipient, customerName string) error
	NotifyStatusChanged(ctx context.Context, o *orderssupabase.Order, recipient, customerName string) error
	NotifyDriverAssigned(ctx context.Context, o *orderssupabase.Order, recipient, driverName string) error
	NotifyInvoiceIssued(ctx context.Context, o *orderssupabase.Order, inv *orderssupabase.Invoice, recipient, customerName string) error
}

// EventPublisher fans order change events out to live admin dashboards.
type EventPublisher interface {
	PublishOrderEvent(event string, o *orderssupabase.Order)
}

// keyedMutex hands out one mutex per key so cart read-modify-write cycles
// for the same user serialize without a global lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}

// Service implements the orders service.
type Service struct {
	*commonservice.BaseService

	repo      orderssupabase.RepositoryInterface
	metrics   *metrics.Metrics
	stats     *commonservice.ServiceMetrics
	settings  SettingsSource
	accounts  AccountDirectory
	products  ProductSource
	notifier  Notifier
	publisher EventPublisher

	invoiceBucket string
	cartLocks     *keyedMutex
}

// Config holds orders service configuration.
type Config struct {
	DB        *database.Repository
	Repo      orderssupabase.RepositoryInterface
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
	Router    *mux.Router
	Settings  SettingsSource
	Accounts  AccountDirectory
	Products  ProductSource
	Notifier  Notifier
	Publisher EventPublisher

	// InvoiceBucket is the storage bucket for uploaded invoice PDFs.
	InvoiceBucket string
}

// New creates a new orders service and registers its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("orders: settings source is required")
	}
	if cfg.Accounts == nil {
		return nil, fmt.Errorf("orders: account directory is required")
	}
	if cfg.Products == nil {
		return nil, fmt.Errorf("orders: product source is required")
	}
	repo := cfg.Repo
	if repo == nil {
		repo = orderssupabase.NewRepository(cfg.DB)
	}
	bucket := cfg.InvoiceBucket
	if bucket == "" {
		bucket = "invoices"
	}

	s := &Service{
		repo:          repo,
		metrics:       cfg.Metrics,
		stats:         commonservice.NewServiceMetrics(ServiceID),
		settings:      cfg.Settings,
		accounts:      cfg.Accounts,
		products:      cfg.Products,
		notifier:      cfg.Notifier,
		publisher:     cfg.Publisher,
		invoiceBucket: bucket,
		cartLocks:     newKeyedMutex(),
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
	driver := middleware.RequireRole(middleware.RoleDriver)

	api.Handle("/orders", s.instrument(s.handleCheckout)).Methods(http.MethodPost)
	api.Handle("/orders", s.instrument(s.handleListMyOrders)).Methods(http.MethodGet)
	api.Handle("/orders/{id}", s.instrument(s.handleGetOrder)).Methods(http.MethodGet)
	api.Handle("/orders/{id}/status", s.instrument(s.handleUpdateStatus)).Methods(http.MethodPost)
	api.Handle("/orders/{id}/buy-again", s.instrument(s.handleBuyAgain)).Methods(http.MethodPost)

	api.Handle("/deliveries", driver(s.instrument(s.handleListDeliveries))).Methods(http.MethodGet)

	api.Handle("/cart", s.instrument(s.handleGetCart)).Methods(http.MethodGet)
	api.Handle("/cart", s.instrument(s.handleReplaceCart)).Methods(http.MethodPut)
	api.Handle("/cart", s.instrument(s.handleClearCart)).Methods(http.MethodDelete)
	api.Handle("/cart/items", s.instrument(s.handleAddCartItem)).Methods(http.MethodPost)
	api.Handle("/cart/items/{productID}", s.instrument(s.handleRemoveCartItem)).Methods(http.MethodDelete)

	api.Handle("/orders/{id}/payment", admin(s.instrument(s.handleUpdatePayment))).Methods(http.MethodPost)
	api.Handle("/orders/{id}/assign", admin(s.instrument(s.handleAssignDriver))).Methods(http.MethodPost)
	api.Handle("/admin/orders", admin(s.instrument(s.handleAdminListOrders))).Methods(http.MethodGet)
	api.Handle("/admin/orders/export", admin(s.instrument(s.handleExportOrders))).Methods(http.MethodGet)

	api.Handle("/orders/{id}/invoice", admin(s.instrument(s.handleCreateInvoice))).Methods(http.MethodPost)
	api.Handle("/invoices/{id}", s.instrument(s.handleGetInvoice)).Methods(http.MethodGet)
	api.Handle("/invoices/{id}/file", admin(s.instrument(s.handleUploadInvoiceFile))).Methods(http.MethodPut)
	api.Handle("/invoices/{id}/status", admin(s.instrument(s.handleUpdateInvoiceStatus))).Methods(http.MethodPost)
}

func (s *Service) instrument(h http.HandlerFunc) http.Handler {
	return s.stats.MetricsMiddleware(h)
}

// =============================================================================
// Helpers
// =============================================================================

func newOrderNumber() string {
	return fmt.Sprintf("VD-%s-%s", time.Now().UTC().Format("060102"), strings.ToUpper(uuid.NewString()[:8]))
}

func newInvoiceNumber() string {
	return fmt.Sprintf("INV-%s-%s", time.Now().UTC().Format("060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// notifyAsync runs a notification off the request path. Email must never
// decide the fate of an order write.
func (s *Service) notifyAsync(what string, fn func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.Logger().WithError(err).WithField("notification", what).Warn("order notification failed")
		}
	}()
}

func (s *Service) publish(event string, o *orderssupabase.Order) {
	if s.publisher != nil {
		s.publisher.PublishOrderEvent(event, o)
	}
}

// customerContact returns the email and display name for order notifications,
// honoring the opt-out. A missing profile or address yields empty strings.
func (s *Service) customerContact(ctx context.Context, userID string) (email, name string) {
	p, err := s.accounts.GetProfile(ctx, userID)
	if err != nil {
		if !database.IsNotFound(err) {
			s.Logger().WithError(err).Warn("customer contact lookup failed")
		}
		return "", ""
	}
	if !p.Notifications.OrderUpdates {
		return "", p.FullName
	}
	return p.Email, p.FullName
}

// ProductInOpenOrders reports whether the product appears on an order that
// is still pending or processing. The catalog consults this before deletes.
func (s *Service) ProductInOpenOrders(ctx context.Context, productID string) (bool, error) {
	return s.repo.ProductInOpenOrders(ctx, productID)
}
