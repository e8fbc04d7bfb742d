// Package main runs the storefront API. Every service enabled in
// config/services.yaml mounts on one router behind shared authentication,
// rate limiting and request metrics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/cache"
	"github.com/vegdirect/storefront/internal/config"
	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/metrics"
	"github.com/vegdirect/storefront/internal/middleware"
	"github.com/vegdirect/storefront/internal/reporting"
	"github.com/vegdirect/storefront/internal/supabase"
	"github.com/vegdirect/storefront/services/accounts"
	"github.com/vegdirect/storefront/services/catalog"
	catalogsupabase "github.com/vegdirect/storefront/services/catalog/supabase"
	"github.com/vegdirect/storefront/services/dashboard"
	dashboardsupabase "github.com/vegdirect/storefront/services/dashboard/supabase"
	"github.com/vegdirect/storefront/services/geocode"
	"github.com/vegdirect/storefront/services/mailer"
	"github.com/vegdirect/storefront/services/orders"
	"github.com/vegdirect/storefront/services/settings"
)

// runner is the lifecycle surface every mounted service shares.
type runner interface {
	Start(ctx context.Context) error
	Stop() error
	HealthStatus() string
}

type mounted struct {
	id  string
	svc runner
}

func main() {
	var (
		envFile      = flag.String("env", "", "path to an optional .env file")
		servicesFile = flag.String("services", "", "path to a services.yaml override")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "storefront",
		File:    cfg.Log.File,
	})

	var servicesCfg *config.ServicesConfig
	if *servicesFile != "" {
		servicesCfg, err = config.LoadServicesConfigFromPath(*servicesFile)
		if err != nil {
			log.Fatalf("Failed to load services config: %v", err)
		}
	} else {
		servicesCfg = config.LoadServicesConfigOrDefault()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	client, err := supabase.NewClient(supabase.Config{
		ProjectURL:       cfg.Supabase.URL,
		AnonKey:          cfg.Supabase.AnonKey,
		ServiceKey:       cfg.Supabase.ServiceKey,
		OnRequestOutcome: m.RecordBackendRequest,
		OnBreakerOpen:    m.RecordBreakerOpen,
	})
	if err != nil {
		log.Fatalf("Failed to create backend client: %v", err)
	}
	db := database.NewRepository(client)

	var store cache.Cache
	if cfg.CacheEnabled() {
		redisCache, cacheErr := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if cacheErr != nil {
			log.Printf("Warning: redis unavailable, falling back to in-process cache: %v", cacheErr)
			store = cache.NewMemoryCache()
		} else {
			store = redisCache
		}
	} else {
		store = cache.NewMemoryCache()
	}
	defer store.Close()

	root := mux.NewRouter()
	root.Use(middleware.NewTracingMiddleware(logger).Handler)
	root.Use(middleware.NewCORSMiddleware(splitCSV(cfg.HTTP.AllowedOrigins)).Handler)
	root.Use(middleware.MetricsMiddleware("storefront", m))

	api := root.PathPrefix("/api/v1").Subrouter()

	var services []mounted

	// Settings first; checkout VAT, dashboard branding and mail templates
	// all read through it.
	var settingsSvc *settings.Service
	if servicesCfg.Enabled(settings.ServiceID) {
		settingsSvc, err = settings.New(settings.Config{
			DB:      db,
			Cache:   store,
			Metrics: m,
			Logger:  logger,
			Router:  api,
		})
		if err != nil {
			log.Fatalf("Failed to create settings service: %v", err)
		}
		services = append(services, mounted{settings.ServiceID, settingsSvc})
	}

	var accountsSvc *accounts.Service
	if servicesCfg.Enabled(accounts.ServiceID) {
		accountsSvc, err = accounts.New(accounts.Config{
			DB:      db,
			Cache:   store,
			Metrics: m,
			Logger:  logger,
			Router:  api,
		})
		if err != nil {
			log.Fatalf("Failed to create accounts service: %v", err)
		}
		services = append(services, mounted{accounts.ServiceID, accountsSvc})
	}

	// The catalog repository outlives the catalog service toggle: checkout
	// reads products and adjusts stock through it either way.
	catalogRepo := catalogsupabase.NewRepository(db)

	var catalogSvc *catalog.Service
	if servicesCfg.Enabled(catalog.ServiceID) {
		catalogSvc, err = catalog.New(catalog.Config{
			DB:              db,
			Repo:            catalogRepo,
			Cache:           store,
			Metrics:         m,
			Logger:          logger,
			Router:          api,
			ProductBucket:   cfg.Store.ProductBucket,
			DefaultCurrency: cfg.Store.Currency,
		})
		if err != nil {
			log.Fatalf("Failed to create catalog service: %v", err)
		}
		services = append(services, mounted{catalog.ServiceID, catalogSvc})
	}

	var dashboardSvc *dashboard.Service
	if servicesCfg.Enabled(dashboard.ServiceID) {
		if settingsSvc == nil {
			log.Fatalf("dashboard service requires the settings service")
		}
		var revenueStore dashboard.RevenueStore
		if cfg.ReportingEnabled() {
			reportingStore, repErr := reporting.Open(ctx, cfg.Reporting.DSN)
			if repErr != nil {
				log.Printf("Warning: reporting database unavailable, aggregating order rows instead: %v", repErr)
			} else {
				defer reportingStore.Close()
				revenueStore = reportingStore
			}
		}
		dashboardSvc, err = dashboard.New(dashboard.Config{
			DB:       db,
			Metrics:  m,
			Logger:   logger,
			Router:   api,
			Settings: settingsSvc,
			Revenue:  revenueStore,
		})
		if err != nil {
			log.Fatalf("Failed to create dashboard service: %v", err)
		}
		services = append(services, mounted{dashboard.ServiceID, dashboardSvc})
	}

	var mailerSvc *mailer.Service
	if servicesCfg.Enabled(mailer.ServiceID) {
		switch {
		case !cfg.MailEnabled():
			log.Printf("Warning: MAIL_API_URL or MAIL_API_KEY not set; mailer disabled")
		case settingsSvc == nil:
			log.Printf("Warning: mailer requires the settings service; mailer disabled")
		default:
			var queue mailer.Queue
			if cfg.QueueEnabled() {
				broker, queueErr := mailer.ConnectBroker(cfg.Queue.AMQPURL)
				if queueErr != nil {
					log.Printf("Warning: mail broker unavailable, sending directly: %v", queueErr)
				} else {
					queue = broker
				}
			}
			var keys *middleware.APIKeyMiddleware
			if accountsSvc != nil {
				keys = middleware.NewAPIKeyMiddleware(accountsSvc, logger)
			}
			from := cfg.Mail.Sender
			if cfg.Mail.SenderName != "" {
				from = fmt.Sprintf("%s <%s>", cfg.Mail.SenderName, cfg.Mail.Sender)
			}
			mailerSvc, err = mailer.New(mailer.Config{
				DB:          db,
				Metrics:     m,
				Logger:      logger,
				Router:      api,
				Settings:    settingsSvc,
				Summary:     dashboardsupabase.NewRepository(db),
				Provider:    mailer.NewHTTPProvider(cfg.Mail.BaseURL, cfg.Mail.APIKey),
				Queue:       queue,
				Keys:        keys,
				FromAddress: from,
				AdminCopy:   cfg.Mail.AdminCopyTo,
			})
			if err != nil {
				log.Fatalf("Failed to create mailer service: %v", err)
			}
			services = append(services, mounted{mailer.ServiceID, mailerSvc})
		}
	}

	var ordersSvc *orders.Service
	if servicesCfg.Enabled(orders.ServiceID) {
		if settingsSvc == nil || accountsSvc == nil {
			log.Fatalf("orders service requires the settings and accounts services")
		}
		ordersCfg := orders.Config{
			DB:            db,
			Metrics:       m,
			Logger:        logger,
			Router:        api,
			Settings:      settingsSvc,
			Accounts:      accountsSvc,
			Products:      catalogRepo,
			InvoiceBucket: cfg.Store.InvoiceBucket,
		}
		if mailerSvc != nil {
			ordersCfg.Notifier = mailerSvc
		}
		if dashboardSvc != nil {
			ordersCfg.Publisher = dashboardSvc
		}
		ordersSvc, err = orders.New(ordersCfg)
		if err != nil {
			log.Fatalf("Failed to create orders service: %v", err)
		}
		services = append(services, mounted{orders.ServiceID, ordersSvc})
	}

	// Deleting a product that open orders still reference must fail, so the
	// catalog asks the orders service. It binds late; the orders service is
	// built after the catalog.
	if catalogSvc != nil && ordersSvc != nil {
		catalogSvc.SetOpenOrderChecker(ordersSvc)
	}

	if servicesCfg.Enabled(geocode.ServiceID) {
		geocodeSvc, geoErr := geocode.New(geocode.Config{
			Cache:       store,
			Metrics:     m,
			Logger:      logger,
			Router:      api,
			ProviderURL: cfg.Geocode.BaseURL,
			UserAgent:   cfg.Geocode.UserAgent,
			MinDelay:    cfg.Geocode.MinDelay,
			CacheTTL:    cfg.Geocode.CacheTTL,
		})
		if geoErr != nil {
			log.Fatalf("Failed to create geocode service: %v", geoErr)
		}
		services = append(services, mounted{geocode.ServiceID, geocodeSvc})
	}

	if len(services) == 0 {
		log.Fatalf("No services enabled; nothing to serve")
	}

	// The public settings read and the per-service diagnostics stay open;
	// everything else on /api/v1 needs a verified identity.
	skipPaths := []string{"/api/v1/settings"}
	for _, ms := range services {
		skipPaths = append(skipPaths,
			"/api/v1/"+ms.id+"/health",
			"/api/v1/"+ms.id+"/info",
			"/api/v1/"+ms.id+"/metrics",
		)
	}
	var resolveRole middleware.RoleResolver
	if accountsSvc != nil {
		resolveRole = accountsSvc.ResolveRole
	}
	auth := middleware.NewAuthMiddleware(cfg.Supabase.JWTSecret, client.Auth, resolveRole, logger, skipPaths)
	api.Use(auth.Handler)
	api.Use(middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, logger).Handler)

	root.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	root.HandleFunc("/health", healthHandler(services)).Methods(http.MethodGet)

	for _, ms := range services {
		if err := ms.svc.Start(ctx); err != nil {
			log.Fatalf("Failed to start %s service: %v", ms.id, err)
		}
		log.Printf("Mounted %s service", ms.id)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      root,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Storefront listening on port %d", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].svc.Stop(); err != nil {
			log.Printf("Service %s stop error: %v", services[i].id, err)
		}
	}

	log.Println("Storefront stopped")
}

// healthHandler aggregates the mounted services' health. Any unhealthy
// service makes the whole process report 503 so the load balancer rotates
// it out; degraded services are reported but keep serving.
func healthHandler(services []mounted) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overall := "healthy"
		detail := make(map[string]string, len(services))
		for _, ms := range services {
			status := ms.svc.HealthStatus()
			detail[ms.id] = status
			switch status {
			case "unhealthy":
				overall = "unhealthy"
			case "degraded":
				if overall == "healthy" {
					overall = "degraded"
				}
			}
		}
		code := http.StatusOK
		if overall == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":   overall,
			"services": detail,
		})
	}
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
