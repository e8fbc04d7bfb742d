package service

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/logging"
)

const healthCheckTimeout = 5 * time.Second

// Service is the lifecycle every storefront service implements.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// HealthChecker reports aggregated service health.
type HealthChecker interface {
	HealthStatus() string
	HealthDetails() map[string]any
}

// DependencyProbe checks one external dependency. Critical probes take
// the service to "unhealthy" when failing; others only to "degraded".
type DependencyProbe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Config contains shared configuration for all services.
type Config struct {
	ID      string
	Name    string
	Version string
	DB      *database.Repository
	Logger  *logging.Logger
	Router  *mux.Router
}

// BaseService provides the shared service foundation:
//   - safe stop channel management (sync.Once prevents double-close panic)
//   - optional hydration hook for loading state on startup
//   - background worker management
//   - dependency probing for /health and a statistics provider for /info
type BaseService struct {
	id      string
	name    string
	version string
	db      *database.Repository
	logger  *logging.Logger
	router  *mux.Router

	stopCh   chan struct{}
	stopOnce sync.Once

	hydrate func(context.Context) error
	statsFn func() map[string]any
	workers []func(context.Context)

	probes []DependencyProbe

	healthMu        sync.RWMutex
	failing         map[string]bool
	criticalFailing bool
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService from shared config. A DB probe is
// registered automatically when cfg.DB is set.
func NewBase(cfg Config) *BaseService {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	b := &BaseService{
		id:      cfg.ID,
		name:    cfg.Name,
		version: cfg.Version,
		db:      cfg.DB,
		logger:  cfg.Logger.WithField("service", cfg.Name),
		router:  cfg.Router,
		stopCh:  make(chan struct{}),
		failing: make(map[string]bool),
	}
	if cfg.DB != nil {
		b.AddDependency(DependencyProbe{
			Name:     "database",
			Critical: true,
			Check:    cfg.DB.HealthCheck,
		})
	}
	return b
}

// Name returns the service name.
func (b *BaseService) Name() string { return b.name }

// Version returns the service version.
func (b *BaseService) Version() string { return b.version }

// DB returns the repository base, or nil.
func (b *BaseService) DB() *database.Repository { return b.db }

// Logger returns the service-scoped logger.
func (b *BaseService) Logger() *logging.Logger { return b.logger }

// Router returns the service's route namespace.
func (b *BaseService) Router() *mux.Router { return b.router }

// WithHydrate sets an optional hydrate hook executed during Start, after
// the base starts but before background workers launch.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets a statistics provider called on each /info request.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddDependency registers a health probe.
func (b *BaseService) AddDependency(probe DependencyProbe) *BaseService {
	b.probes = append(b.probes, probe)
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// Workers should respect both context cancellation and StopChan.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

// AddTickerWorker registers a periodic background worker running fn at
// the given interval until Stop.
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(context.Context) error) *BaseService {
	worker := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					b.logger.WithError(err).Warn("worker error")
				}
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// StopChan exposes the stop channel for worker goroutines.
func (b *BaseService) StopChan() <-chan struct{} {
	return b.stopCh
}

// Start runs hydrate once, then spins workers.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return err
		}
	}
	for _, w := range b.workers {
		worker := w
		go worker(ctx)
	}
	return nil
}

// Stop signals workers. Calling it repeatedly is safe.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	return nil
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// CheckHealth refreshes the cached health state by running every probe.
func (b *BaseService) CheckHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	failing := make(map[string]bool)
	criticalFailing := false
	for _, probe := range b.probes {
		if err := probe.Check(ctx); err != nil {
			failing[probe.Name] = true
			if probe.Critical {
				criticalFailing = true
			}
		}
	}

	b.healthMu.Lock()
	b.failing = failing
	b.criticalFailing = criticalFailing
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus probes dependencies and returns healthy, degraded or
// unhealthy.
func (b *BaseService) HealthStatus() string {
	b.CheckHealth()
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthStatusLocked()
}

// HealthDetails returns a map describing the most recent health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	deps := make(map[string]string, len(b.probes))
	for _, probe := range b.probes {
		if b.failing[probe.Name] {
			deps[probe.Name] = "failing"
		} else {
			deps[probe.Name] = "ok"
		}
	}
	details := map[string]any{
		"dependencies": deps,
	}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	} else {
		details["last_check"] = ""
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.String()
	return details
}

func (b *BaseService) healthStatusLocked() string {
	if b.criticalFailing {
		return "unhealthy"
	}
	if len(b.failing) > 0 {
		return "degraded"
	}
	return "healthy"
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ Service = (*BaseService)(nil)
var _ HealthChecker = (*BaseService)(nil)
