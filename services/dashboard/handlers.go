package dashboard

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/pkg/money"
	dashsupabase "github.com/vegdirect/storefront/services/dashboard/supabase"
)

// =============================================================================
// Aggregation with fallback
// =============================================================================

// statusCounts prefers the database function and falls back to scanning
// order rows. Both paths emit the same zero-filled shape.
func (s *Service) statusCounts(ctx context.Context) ([]dashsupabase.StatusCount, string, error) {
	rows, err := s.repo.StatusCounts(ctx)
	if err == nil {
		return normalizeStatusCounts(rows), sourceRPC, nil
	}
	s.Logger().WithError(err).Warn("status counts rpc failed, scanning rows")

	all, scanErr := s.repo.AllOrders(ctx)
	if scanErr != nil {
		return nil, "", scanErr
	}
	return statusCountsFromRows(all), sourceRows, nil
}

// dayCounts returns the trailing window of daily buckets ending today.
func (s *Service) dayCounts(ctx context.Context, days int) ([]dashsupabase.DayCount, string, error) {
	from := startOfDayUTC(time.Now()).AddDate(0, 0, -(days - 1))

	rows, err := s.repo.OrdersByDay(ctx, days)
	if err == nil {
		return normalizeDayCounts(rows, from, days), sourceRPC, nil
	}
	s.Logger().WithError(err).Warn("daily rollup rpc failed, scanning rows")

	raw, scanErr := s.repo.OrdersCreatedBetween(ctx, from, from.AddDate(0, 0, days))
	if scanErr != nil {
		return nil, "", scanErr
	}
	return dayCountsFromRows(raw, from, days), sourceRows, nil
}

// hourCounts returns one day's 24 hourly buckets. day is "2006-01-02" UTC.
func (s *Service) hourCounts(ctx context.Context, day string) ([]dashsupabase.HourCount, string, error) {
	rows, err := s.repo.OrdersByHour(ctx, day)
	if err == nil {
		return normalizeHourCounts(rows), sourceRPC, nil
	}
	s.Logger().WithError(err).Warn("hourly rollup rpc failed, scanning rows")

	dayStart, parseErr := time.Parse(dayFormat, day)
	if parseErr != nil {
		return nil, "", parseErr
	}
	raw, scanErr := s.repo.OrdersCreatedBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if scanErr != nil {
		return nil, "", scanErr
	}
	return hourCountsFromRows(raw, day), sourceRows, nil
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Service) handleSummary(w http.ResponseWriter, r *http.Request) {
	var (
		counts       []dashsupabase.StatusCount
		countsSource string
		today        dashsupabase.DayCount
		todaySource  string
		recent       []dashsupabase.OrderRow
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		counts, countsSource, err = s.statusCounts(ctx)
		return err
	})
	g.Go(func() error {
		buckets, source, err := s.dayCounts(ctx, 1)
		if err != nil {
			return err
		}
		today, todaySource = buckets[0], source
		return nil
	})
	g.Go(func() error {
		var err error
		recent, err = s.repo.RecentOrders(ctx, summaryRecent)
		return err
	})
	if err := g.Wait(); err != nil {
		s.Logger().WithError(err).Error("summary assembly failed")
		httputil.WriteError(w, err)
		return
	}

	source := countsSource
	if todaySource == sourceRows {
		source = sourceRows
	}
	currency := s.currency(r.Context())
	httputil.WriteJSON(w, http.StatusOK, Summary{
		GeneratedAt:      time.Now().UTC(),
		Currency:         currency,
		StatusCounts:     counts,
		Today:            today,
		FormattedRevenue: money.Format(today.Revenue, currency),
		Recent:           recent,
		Source:           source,
	})
}

func (s *Service) handleDaily(w http.ResponseWriter, r *http.Request) {
	days, ok := intQuery(w, r, "days", defaultDailyWindow, 1, maxDailyWindow)
	if !ok {
		return
	}

	items, source, err := s.dayCounts(r.Context(), days)
	if err != nil {
		s.Logger().WithError(err).Error("daily report failed")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DailyReport{Days: days, Source: source, Items: items})
}

func (s *Service) handleHourly(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("date")
	if day == "" {
		day = startOfDayUTC(time.Now()).Format(dayFormat)
	} else if _, err := time.Parse(dayFormat, day); err != nil {
		httputil.BadRequest(w, "date must look like 2006-01-02")
		return
	}

	items, source, err := s.hourCounts(r.Context(), day)
	if err != nil {
		s.Logger().WithError(err).Error("hourly report failed")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HourlyReport{Day: day, Source: source, Items: items})
}

func (s *Service) handleRevenue(w http.ResponseWriter, r *http.Request) {
	to := startOfDayUTC(time.Now())
	from := to.AddDate(0, 0, -29)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(dayFormat, v)
		if err != nil {
			httputil.BadRequest(w, "from must look like 2006-01-02")
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(dayFormat, v)
		if err != nil {
			httputil.BadRequest(w, "to must look like 2006-01-02")
			return
		}
		to = parsed
	}
	if to.Before(from) {
		httputil.BadRequest(w, "to must not precede from")
		return
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if days > maxDailyWindow {
		httputil.BadRequest(w, "window too large")
		return
	}

	items, source, err := s.revenueItems(r.Context(), from, to, days)
	if err != nil {
		s.Logger().WithError(err).Error("revenue report failed")
		httputil.WriteError(w, err)
		return
	}

	var total float64
	for _, item := range items {
		total += item.Revenue
	}
	currency := s.currency(r.Context())
	httputil.WriteJSON(w, http.StatusOK, RevenueReport{
		From:           from.Format(dayFormat),
		To:             to.Format(dayFormat),
		Currency:       currency,
		Source:         source,
		TotalRevenue:   total,
		FormattedTotal: money.Format(total, currency),
		Items:          items,
	})
}

// revenueItems consults the warehouse when one is wired, order rows
// otherwise.
func (s *Service) revenueItems(ctx context.Context, from, to time.Time, days int) ([]dashsupabase.DayCount, string, error) {
	if s.revenue != nil {
		rows, err := s.revenue.RevenueByDay(ctx, from, to.AddDate(0, 0, 1))
		if err == nil {
			mapped := make([]dashsupabase.DayCount, 0, len(rows))
			for _, row := range rows {
				mapped = append(mapped, dashsupabase.DayCount{Day: row.Day, Orders: row.Orders, Revenue: row.Revenue})
			}
			return normalizeDayCounts(mapped, from, days), sourceWarehouse, nil
		}
		s.Logger().WithError(err).Warn("warehouse unavailable, scanning rows")
	}

	raw, err := s.repo.OrdersCreatedBetween(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, "", err
	}
	return dayCountsFromRows(raw, from, days), sourceRows, nil
}

func (s *Service) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit", defaultRecentLimit, 1, maxRecentLimit)
	if !ok {
		return
	}
	rows, err := s.repo.RecentOrders(r.Context(), limit)
	if err != nil {
		s.Logger().WithError(err).Error("recent orders failed")
		httputil.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []dashsupabase.OrderRow{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"orders": rows})
}

// handleSystem reports host health. Every probe is best effort: a sensor
// that fails on this platform leaves its fields zero.
func (s *Service) handleSystem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := SystemStatus{
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		status.Hostname = info.Hostname
		status.Platform = info.Platform
		status.UptimeSeconds = info.Uptime
	} else {
		s.Logger().WithError(err).Warn("host probe failed")
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = percents[0]
	} else if err != nil {
		s.Logger().WithError(err).Warn("cpu probe failed")
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		status.MemTotal = vm.Total
		status.MemUsed = vm.Used
		status.MemUsedPercent = vm.UsedPercent
	} else {
		s.Logger().WithError(err).Warn("memory probe failed")
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		status.DiskTotal = du.Total
		status.DiskUsed = du.Used
		status.DiskPercent = du.UsedPercent
	} else {
		s.Logger().WithError(err).Warn("disk probe failed")
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		status.Load1 = avg.Load1
		status.Load5 = avg.Load5
		status.Load15 = avg.Load15
	} else {
		s.Logger().WithError(err).Warn("load probe failed")
	}

	httputil.WriteJSON(w, http.StatusOK, status)
}

// intQuery parses an optional integer query parameter with bounds. A value
// outside [min, max] or non-numeric writes a 400 and returns ok=false.
func intQuery(w http.ResponseWriter, r *http.Request, name string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		httputil.BadRequest(w, name+" must be a number between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
		return 0, false
	}
	return n, true
}
