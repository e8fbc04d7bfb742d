// Package mailer composes and delivers transactional email: order lifecycle
// mail for customers and drivers, invoices, and the admin daily digest.
// Delivery goes straight to the HTTP provider, or through a durable RabbitMQ
// queue when a broker is configured. Every dispatch leaves an email log row.
package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/errors"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/metrics"
	"github.com/vegdirect/storefront/internal/middleware"
	commonservice "github.com/vegdirect/storefront/services/common/service"
	dashboardsupabase "github.com/vegdirect/storefront/services/dashboard/supabase"
	mailersupabase "github.com/vegdirect/storefront/services/mailer/supabase"
	settingssupabase "github.com/vegdirect/storefront/services/settings/supabase"
)

const (
	ServiceID   = "mailer"
	ServiceName = "Mailer Service"
	Version     = "1.0.0"

	dispatchQueue  = "email_dispatch"
	consumerTag    = "mailer"
	publishTimeout = 5 * time.Second
	sendTimeout    = 30 * time.Second

	defaultFrom      = "no-reply@vegdirect.vn"
	defaultRetention = 90 * 24 * time.Hour

	defaultSummarySchedule = "0 7 * * *"
	defaultSweepSchedule   = "30 3 * * *"
)

// SettingsSource supplies branding and the admin inbox without binding to
// the settings service directly.
type SettingsSource interface {
	Current(ctx context.Context) (*settingssupabase.Settings, error)
}

// SummarySource supplies the previous day's orders for the digest mail.
type SummarySource interface {
	OrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]dashboardsupabase.OrderRow, error)
}

// Service implements the mailer service.
type Service struct {
	*commonservice.BaseService

	repo     mailersupabase.RepositoryInterface
	provider Provider
	queue    Queue
	settings SettingsSource
	summary  SummarySource
	keys     *middleware.APIKeyMiddleware
	metrics  *metrics.Metrics
	stats    *commonservice.ServiceMetrics

	from            string
	adminCopy       string
	retention       time.Duration
	summarySchedule string
	sweepSchedule   string
}

// Config holds mailer service configuration.
type Config struct {
	DB       *database.Repository
	Repo     mailersupabase.RepositoryInterface
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	Router   *mux.Router
	Settings SettingsSource
	Summary  SummarySource
	Provider Provider
	Queue    Queue
	Keys     *middleware.APIKeyMiddleware

	// FromAddress is the sender on outgoing mail.
	FromAddress string
	// AdminCopy receives the daily summary when the store settings name
	// no admin inbox.
	AdminCopy string
	// LogRetention is how long email logs are kept before the sweep
	// deletes them.
	LogRetention time.Duration
	// SummarySchedule and SweepSchedule override the cron expressions for
	// the scheduled jobs.
	SummarySchedule string
	SweepSchedule   string
}

// New creates a new mailer service and registers its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("mailer service requires a settings source")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("mailer service requires a mail provider")
	}
	repo := cfg.Repo
	if repo == nil {
		repo = mailersupabase.NewRepository(cfg.DB)
	}

	s := &Service{
		repo:            repo,
		provider:        cfg.Provider,
		queue:           cfg.Queue,
		settings:        cfg.Settings,
		summary:         cfg.Summary,
		keys:            cfg.Keys,
		metrics:         cfg.Metrics,
		stats:           commonservice.NewServiceMetrics(ServiceID),
		from:            cfg.FromAddress,
		adminCopy:       cfg.AdminCopy,
		retention:       cfg.LogRetention,
		summarySchedule: cfg.SummarySchedule,
		sweepSchedule:   cfg.SweepSchedule,
	}
	if s.from == "" {
		s.from = defaultFrom
	}
	if s.retention <= 0 {
		s.retention = defaultRetention
	}
	if s.summarySchedule == "" {
		s.summarySchedule = defaultSummarySchedule
	}
	if s.sweepSchedule == "" {
		s.sweepSchedule = defaultSweepSchedule
	}
	if _, err := cron.ParseStandard(s.summarySchedule); err != nil {
		return nil, fmt.Errorf("summary schedule %q: %w", s.summarySchedule, err)
	}
	if _, err := cron.ParseStandard(s.sweepSchedule); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", s.sweepSchedule, err)
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

	if s.queue != nil {
		s.AddWorker(s.consumeQueue)
	}
	s.AddWorker(s.runScheduler)

	return s, nil
}

func (s *Service) registerRoutes(api *mux.Router) {
	admin := middleware.RequireRole(middleware.RoleAdmin)

	api.Handle("/email/dispatch", s.authDispatch(s.instrument(s.handleDispatch))).Methods(http.MethodPost)
	api.Handle("/admin/email/logs", admin(s.instrument(s.handleListLogs))).Methods(http.MethodGet)
}

func (s *Service) instrument(h http.HandlerFunc) http.Handler {
	return s.stats.MetricsMiddleware(h)
}

// authDispatch admits admins by JWT and server callers by API key. The key
// path is only live when a verifier was configured.
func (s *Service) authDispatch(next http.Handler) http.Handler {
	admin := middleware.RequireRole(middleware.RoleAdmin)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.keys != nil && r.Header.Get(middleware.APIKeyHeader) != "" {
			s.keys.Handler(next).ServeHTTP(w, r)
			return
		}
		admin.ServeHTTP(w, r)
	})
}

// dispatch validates, composes and sends one mail. It reports whether the
// message was handed to the broker (true) or delivered inline (false).
func (s *Service) dispatch(ctx context.Context, req *DispatchRequest) (bool, error) {
	if err := req.validate(); err != nil {
		return false, err
	}
	if req.OrderID == "" && req.Order != nil {
		req.OrderID = req.Order.ID
	}

	msg, err := composeMail(req, s.branding(ctx, req.Branding), s.from)
	if err != nil {
		return false, err
	}
	return s.sendLogged(ctx, req.Type, req.OrderID, msg)
}

// validate rejects requests the templates cannot render. The daily digest is
// scheduled internally and not accepted over HTTP.
func (req *DispatchRequest) validate() error {
	if req.Type == "" {
		return errors.Validation("type is required")
	}
	if !mailersupabase.ValidType(req.Type) || req.Type == mailersupabase.TypeDailySummary {
		return errors.Validation("unknown email type: " + req.Type)
	}
	if req.Recipient == "" {
		return errors.Validation("recipient is required")
	}
	if !looksLikeEmail(req.Recipient) {
		return errors.Validation("recipient must be an email address")
	}
	if req.Order == nil {
		return errors.Validation("order payload is required")
	}
	if req.Type == mailersupabase.TypeInvoiceIssued && req.Invoice == nil {
		return errors.Validation("invoice payload is required")
	}
	return nil
}

// branding returns the request override when present, otherwise the store
// settings.
func (s *Service) branding(ctx context.Context, override *Branding) Branding {
	if override != nil && override.StoreName != "" {
		return *override
	}
	row, err := s.settings.Current(ctx)
	if err != nil {
		s.Logger().WithError(err).Warn("settings lookup failed, using default branding")
		row = settingssupabase.Default()
	}
	return Branding{StoreName: row.StoreName, LogoURL: row.LogoURL, SupportEmail: row.SupportEmail}
}

// sendLogged records the dispatch, then hands the message to the broker or
// the provider. The log row is created as queued and settled by deliver.
func (s *Service) sendLogged(ctx context.Context, emailType, orderID string, msg *Message) (bool, error) {
	log := &mailersupabase.EmailLog{
		Recipient: msg.To,
		EmailType: emailType,
		OrderID:   orderID,
		Subject:   msg.Subject,
		Status:    mailersupabase.StatusQueued,
	}
	if err := s.repo.CreateLog(ctx, log); err != nil {
		s.Logger().WithError(err).Warn("email log write failed")
		log.ID = ""
	}
	if s.metrics != nil {
		s.metrics.RecordEmailDispatched(emailType, mailersupabase.StatusQueued)
	}

	if s.queue != nil {
		payload, merr := json.Marshal(queuedMail{LogID: log.ID, Type: emailType, Message: *msg})
		if merr == nil {
			err := s.queue.Publish(ctx, payload)
			if err == nil {
				return true, nil
			}
			s.Logger().WithError(err).Warn("mail enqueue failed, sending directly")
		}
	}
	return false, s.deliver(ctx, log.ID, emailType, msg)
}

// deliver performs the provider call and settles the log row either way.
func (s *Service) deliver(ctx context.Context, logID, emailType string, msg *Message) error {
	sendErr := s.provider.Send(ctx, msg)

	status := mailersupabase.StatusSent
	patch := map[string]any{"status": status}
	if sendErr != nil {
		status = mailersupabase.StatusFailed
		patch = map[string]any{"status": status, "error": sendErr.Error()}
	}
	if logID != "" {
		if err := s.repo.PatchLog(ctx, logID, patch); err != nil {
			s.Logger().WithError(err).Warn("email log update failed")
		}
	}
	if s.metrics != nil {
		s.metrics.RecordEmailDispatched(emailType, status)
	}

	if sendErr != nil {
		return errors.Upstream("mail provider", sendErr)
	}
	return nil
}

func looksLikeEmail(addr string) bool {
	at := strings.Index(addr, "@")
	return at > 0 && at < len(addr)-1 && strings.Count(addr, "@") == 1
}
