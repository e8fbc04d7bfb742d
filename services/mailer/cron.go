package mailer

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vegdirect/storefront/pkg/money"
	dashboardsupabase "github.com/vegdirect/storefront/services/dashboard/supabase"
	mailersupabase "github.com/vegdirect/storefront/services/mailer/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

const jobTimeout = 2 * time.Minute

// runScheduler hosts the cron jobs: the daily order digest for the admin
// inbox and the email-log retention sweep. Schedules were validated in New,
// so AddFunc cannot fail here.
func (s *Service) runScheduler(ctx context.Context) {
	c := cron.New()
	if _, err := c.AddFunc(s.summarySchedule, s.runDailySummary); err != nil {
		s.Logger().WithError(err).Error("summary schedule rejected")
		return
	}
	if _, err := c.AddFunc(s.sweepSchedule, s.runSweep); err != nil {
		s.Logger().WithError(err).Error("sweep schedule rejected")
		return
	}
	c.Start()

	select {
	case <-ctx.Done():
	case <-s.StopChan():
	}
	<-c.Stop().Done()
}

func (s *Service) runDailySummary() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.sendDailySummary(ctx, time.Now().UTC()); err != nil {
		s.Logger().WithError(err).Error("daily summary failed")
	}
}

func (s *Service) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.sweepLogs(ctx); err != nil {
		s.Logger().WithError(err).Error("email log sweep failed")
	}
}

// sendDailySummary mails yesterday's order figures to the store admin. It
// is a no-op when no order source or admin inbox is configured.
func (s *Service) sendDailySummary(ctx context.Context, now time.Time) error {
	if s.summary == nil {
		return nil
	}
	row, err := s.settings.Current(ctx)
	if err != nil {
		return err
	}
	recipient := row.AdminEmail
	if recipient == "" {
		recipient = row.SupportEmail
	}
	if recipient == "" {
		recipient = s.adminCopy
	}
	if recipient == "" {
		s.Logger().Warn("daily summary skipped: no admin email configured")
		return nil
	}

	dayEnd := startOfDay(now)
	dayStart := dayEnd.Add(-24 * time.Hour)
	rows, err := s.summary.OrdersCreatedBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return err
	}

	data := &mailData{
		Branding: Branding{StoreName: row.StoreName, LogoURL: row.LogoURL, SupportEmail: row.SupportEmail},
		Summary:  buildSummary(dayStart, rows, row.Currency),
	}
	msg, err := renderMail(mailersupabase.TypeDailySummary, data, recipient, s.from)
	if err != nil {
		return err
	}
	_, err = s.sendLogged(ctx, mailersupabase.TypeDailySummary, "", msg)
	return err
}

// buildSummary tallies one day of orders. Cancellations stay out of the
// order count and only paid orders count toward revenue, matching the
// dashboard figures.
func buildSummary(day time.Time, rows []dashboardsupabase.OrderRow, currency string) *summaryFigures {
	f := &summaryFigures{Day: day.Format("2006-01-02")}
	var revenue float64
	for _, r := range rows {
		switch r.Status {
		case orderssupabase.StatusPending:
			f.Pending++
		case orderssupabase.StatusProcessing:
			f.Processing++
		case orderssupabase.StatusCompleted:
			f.Completed++
		case orderssupabase.StatusCancelled:
			f.Cancelled++
		}
		if r.Status != orderssupabase.StatusCancelled {
			f.Orders++
		}
		if r.PaymentStatus == orderssupabase.PaymentPaid {
			revenue += r.Total
		}
	}
	f.Revenue = money.Format(revenue, currency)
	return f
}

// sweepLogs deletes email logs older than the retention horizon.
func (s *Service) sweepLogs(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.retention)
	n, err := s.repo.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		s.Logger().WithField("deleted", n).Info("email logs swept")
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
