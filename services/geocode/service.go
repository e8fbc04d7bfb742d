// Package geocode proxies address lookups to a public GeoJSON geocoding
// service. The storefront's address forms autocomplete through it instead of
// calling the provider from the browser, which keeps the provider's usage
// policy enforceable in one place: results are cached, provider calls are
// rate limited, and failures map to an upstream error.
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/vegdirect/storefront/internal/cache"
	"github.com/vegdirect/storefront/internal/errors"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/metrics"
	"github.com/vegdirect/storefront/internal/middleware"
	commonservice "github.com/vegdirect/storefront/services/common/service"
)

const (
	ServiceID   = "geocode"
	ServiceName = "Geocode Service"
	Version     = "1.0.0"

	minQueryRunes = 2
	defaultLimit  = 5
	maxLimit      = 10

	defaultProviderURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent   = "vegdirect-storefront/1.0"
	defaultMinDelay    = time.Second
	defaultCacheTTL    = 24 * time.Hour

	kindSearch  = "search"
	kindReverse = "reverse"
)

// Service implements the geocode service.
type Service struct {
	*commonservice.BaseService

	provider Provider
	cache    cache.Cache
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	stats    *commonservice.ServiceMetrics
	cacheTTL time.Duration
	minDelay time.Duration
}

// Config holds geocode service configuration.
type Config struct {
	Cache   cache.Cache
	Metrics *metrics.Metrics
	Logger  *logging.Logger
	Router  *mux.Router

	// Provider overrides the HTTP client, for tests. When nil a client is
	// built from ProviderURL and UserAgent.
	Provider    Provider
	ProviderURL string
	UserAgent   string

	// MinDelay is the spacing between provider calls; the public default
	// deployment allows one request per second.
	MinDelay time.Duration
	CacheTTL time.Duration
}

// New creates a new geocode service and registers its routes.
func New(cfg Config) (*Service, error) {
	provider := cfg.Provider
	if provider == nil {
		baseURL := cfg.ProviderURL
		if baseURL == "" {
			baseURL = defaultProviderURL
		}
		userAgent := cfg.UserAgent
		if userAgent == "" {
			userAgent = defaultUserAgent
		}
		provider = NewHTTPProvider(baseURL, userAgent)
	}

	minDelay := cfg.MinDelay
	if minDelay <= 0 {
		minDelay = defaultMinDelay
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}

	s := &Service{
		provider: provider,
		cache:    cfg.Cache,
		limiter:  rate.NewLimiter(rate.Every(minDelay), 1),
		metrics:  cfg.Metrics,
		stats:    commonservice.NewServiceMetrics(ServiceID),
		cacheTTL: cacheTTL,
		minDelay: minDelay,
	}

	diag := cfg.Router.PathPrefix("/" + ServiceID).Subrouter()
	base := commonservice.NewBase(commonservice.Config{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
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
	api.Handle("/geocode/search", middleware.RequireUserID(s.instrument(s.handleSearch))).Methods(http.MethodGet)
	api.Handle("/geocode/reverse", middleware.RequireUserID(s.instrument(s.handleReverse))).Methods(http.MethodGet)
}

func (s *Service) instrument(h http.HandlerFunc) http.Handler {
	return s.stats.MetricsMiddleware(h)
}

// search answers a forward lookup, serving from cache when possible. The
// limiter only gates provider calls; cached answers are always served.
func (s *Service) search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	normalized := normalizeQuery(query)
	if utf8.RuneCountInString(normalized) < minQueryRunes {
		return nil, errors.Validation(fmt.Sprintf("query must be at least %d characters", minQueryRunes))
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	key := cacheKey(kindSearch, fmt.Sprintf("%s:%d", normalized, limit))
	var suggestions []Suggestion
	if s.cached(ctx, key, &suggestions) {
		s.record(kindSearch, "hit")
		return &SearchResponse{Query: normalized, Suggestions: suggestions}, nil
	}

	if !s.limiter.Allow() {
		s.record(kindSearch, "throttled")
		return nil, errors.RateLimitExceeded(1, s.minDelay.String())
	}

	suggestions, err := s.provider.Search(ctx, normalized, limit)
	if err != nil {
		s.record(kindSearch, "error")
		return nil, errors.Upstream("geocoding provider", err)
	}
	if suggestions == nil {
		suggestions = []Suggestion{}
	}
	s.record(kindSearch, "ok")
	s.store(ctx, key, suggestions)

	return &SearchResponse{Query: normalized, Suggestions: suggestions}, nil
}

// reverse resolves a coordinate to its nearest address.
func (s *Service) reverse(ctx context.Context, lat, lon float64) (*ReverseResponse, error) {
	if lat < -90 || lat > 90 {
		return nil, errors.Validation("latitude must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return nil, errors.Validation("longitude must be between -180 and 180")
	}

	// Five decimals is meter precision, close enough to share cache entries
	// between repeated lookups of the same pin.
	key := cacheKey(kindReverse, fmt.Sprintf("%.5f:%.5f", lat, lon))
	var address Suggestion
	if s.cached(ctx, key, &address) {
		s.record(kindReverse, "hit")
		return &ReverseResponse{Lat: lat, Lon: lon, Address: address}, nil
	}

	if !s.limiter.Allow() {
		s.record(kindReverse, "throttled")
		return nil, errors.RateLimitExceeded(1, s.minDelay.String())
	}

	results, err := s.provider.Reverse(ctx, lat, lon)
	if err != nil {
		s.record(kindReverse, "error")
		return nil, errors.Upstream("geocoding provider", err)
	}
	if len(results) == 0 {
		s.record(kindReverse, "ok")
		return nil, errors.NotFound("address")
	}
	s.record(kindReverse, "ok")
	s.store(ctx, key, results[0])

	return &ReverseResponse{Lat: lat, Lon: lon, Address: results[0]}, nil
}

func (s *Service) cached(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := cache.GetJSON(ctx, s.cache, key, dest)
	if err != nil {
		s.Logger().WithError(err).Warn("geocode cache read failed")
		return false
	}
	return ok
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, value, s.cacheTTL); err != nil {
		s.Logger().WithError(err).Warn("geocode cache write failed")
	}
}

func (s *Service) record(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordGeocodeLookup(kind, outcome)
	}
}

func cacheKey(kind, rest string) string {
	return "geocode:" + kind + ":" + rest
}

// normalizeQuery lowercases and collapses whitespace so per-keystroke
// variants of the same query share one cache entry.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
