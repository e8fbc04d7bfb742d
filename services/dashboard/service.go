// Package dashboard serves the admin analytics plane: order aggregates,
// revenue reports, host health and a live order feed over websocket.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/metrics"
	"github.com/vegdirect/storefront/internal/middleware"
	"github.com/vegdirect/storefront/internal/reporting"
	"github.com/vegdirect/storefront/internal/supabase"
	commonservice "github.com/vegdirect/storefront/services/common/service"
	dashsupabase "github.com/vegdirect/storefront/services/dashboard/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
	settingssupabase "github.com/vegdirect/storefront/services/settings/supabase"
)

const (
	ServiceID   = "dashboard"
	ServiceName = "Dashboard Service"
	Version     = "1.0.0"

	defaultDailyWindow = 7
	maxDailyWindow     = 90
	defaultRecentLimit = 10
	maxRecentLimit     = 50
	summaryRecent      = 5

	defaultPollInterval = 15 * time.Second

	// Source labels report which path produced an aggregate.
	sourceRPC       = "rpc"
	sourceRows      = "rows"
	sourceWarehouse = "warehouse"
)

// SettingsSource supplies the store currency for revenue formatting.
type SettingsSource interface {
	Current(ctx context.Context) (*settingssupabase.Settings, error)
}

// RevenueStore reads rollups from the SQL warehouse when one is configured.
type RevenueStore interface {
	RevenueByDay(ctx context.Context, from, to time.Time) ([]reporting.DayRevenue, error)
}

// Service implements the dashboard service.
type Service struct {
	*commonservice.BaseService

	repo     dashsupabase.RepositoryInterface
	metrics  *metrics.Metrics
	stats    *commonservice.ServiceMetrics
	settings SettingsSource
	revenue  RevenueStore
	hub      *hub

	pollInterval time.Duration
}

// Config holds dashboard service configuration.
type Config struct {
	DB       *database.Repository
	Repo     dashsupabase.RepositoryInterface
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	Router   *mux.Router
	Settings SettingsSource

	// Revenue is optional; without it the revenue report aggregates order
	// rows client-side.
	Revenue RevenueStore

	// PollInterval tunes the live feed's polling fallback.
	PollInterval time.Duration
}

// New creates a new dashboard service and registers its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("dashboard: settings source is required")
	}
	repo := cfg.Repo
	if repo == nil {
		repo = dashsupabase.NewRepository(cfg.DB)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	s := &Service{
		repo:         repo,
		metrics:      cfg.Metrics,
		stats:        commonservice.NewServiceMetrics(ServiceID),
		settings:     cfg.Settings,
		revenue:      cfg.Revenue,
		pollInterval: poll,
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

	s.hub = newHub(s.Logger())
	s.AddWorker(func(ctx context.Context) { s.hub.run(ctx, s.StopChan()) })
	if cfg.DB != nil {
		s.AddWorker(s.watchOrders)
	}

	s.RegisterStandardRoutes()
	diag.HandleFunc("/metrics", s.stats.MetricsHandler()).Methods(http.MethodGet)
	s.registerRoutes(cfg.Router)

	return s, nil
}

func (s *Service) registerRoutes(api *mux.Router) {
	admin := middleware.RequireRole(middleware.RoleAdmin)

	api.Handle("/dashboard/summary", admin(s.instrument(s.handleSummary))).Methods(http.MethodGet)
	api.Handle("/dashboard/daily", admin(s.instrument(s.handleDaily))).Methods(http.MethodGet)
	api.Handle("/dashboard/hourly", admin(s.instrument(s.handleHourly))).Methods(http.MethodGet)
	api.Handle("/dashboard/revenue", admin(s.instrument(s.handleRevenue))).Methods(http.MethodGet)
	api.Handle("/dashboard/recent", admin(s.instrument(s.handleRecent))).Methods(http.MethodGet)
	api.Handle("/dashboard/system", admin(s.instrument(s.handleSystem))).Methods(http.MethodGet)
	api.Handle("/dashboard/live", admin(http.HandlerFunc(s.hub.serve))).Methods(http.MethodGet)
}

func (s *Service) instrument(h http.HandlerFunc) http.Handler {
	return s.stats.MetricsMiddleware(h)
}

// PublishOrderEvent pushes an in-process order change to connected
// dashboards.
func (s *Service) PublishOrderEvent(event string, o *orderssupabase.Order) {
	s.hub.Broadcast(event, o)
	if s.metrics != nil {
		s.metrics.RecordRealtimeEvent("orders", event)
	}
}

// watchOrders feeds external order changes into the hub. It prefers the
// realtime change feed and falls back to polling when the websocket endpoint
// is unreachable.
func (s *Service) watchOrders(ctx context.Context) {
	rt := supabase.NewRealtimeClient(s.DB().Client())
	if err := rt.Connect(ctx); err == nil {
		_, subErr := rt.SubscribeToChanges(ctx, supabase.ChangeConfig{Table: "orders"}, s.onOrderChange)
		if subErr == nil {
			s.Logger().Info("live feed subscribed to order changes")
			select {
			case <-ctx.Done():
			case <-s.StopChan():
			}
			rt.Disconnect()
			return
		}
		s.Logger().WithError(subErr).Warn("order change subscription failed")
		rt.Disconnect()
	} else {
		s.Logger().WithError(err).Warn("realtime unavailable, polling order changes")
	}

	poller := supabase.NewChangePoller(s.DB().Client(), "orders", s.pollInterval, s.onOrderChange)
	poller.Start(ctx)
	defer poller.Stop()
	select {
	case <-ctx.Done():
	case <-s.StopChan():
	}
}

func (s *Service) onOrderChange(e *supabase.RealtimeEvent) {
	eventType := e.Event
	if t, ok := e.Payload["type"].(string); ok {
		eventType = t
	}
	event := "order_updated"
	switch strings.ToUpper(eventType) {
	case "INSERT":
		event = "order_created"
	case "DELETE":
		event = "order_deleted"
	}
	s.hub.Broadcast(event, e.Record())
	if s.metrics != nil {
		s.metrics.RecordRealtimeEvent("orders", event)
	}
}

// currency returns the configured store currency, defaulting when the
// settings read fails so a broken settings row never blanks the dashboard.
func (s *Service) currency(ctx context.Context) string {
	cfg, err := s.settings.Current(ctx)
	if err != nil || cfg.Currency == "" {
		if err != nil {
			s.Logger().WithError(err).Warn("settings unavailable, using default currency")
		}
		return settingssupabase.Default().Currency
	}
	return cfg.Currency
}
