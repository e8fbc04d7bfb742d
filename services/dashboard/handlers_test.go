package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/logging"
	"github.com/vegdirect/storefront/internal/middleware"
	"github.com/vegdirect/storefront/internal/reporting"
	dashsupabase "github.com/vegdirect/storefront/services/dashboard/supabase"
	settingssupabase "github.com/vegdirect/storefront/services/settings/supabase"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeDashRepo serves canned RPC results and raw rows. Setting rpcDown makes
// every database function call fail so handlers exercise the fallback.
type fakeDashRepo struct {
	dashsupabase.RepositoryInterface
	rows    []dashsupabase.OrderRow
	rpcDown bool
	scanErr error
}

func (f *fakeDashRepo) rpcErr() error {
	return database.ErrDatabaseError
}

func (f *fakeDashRepo) StatusCounts(ctx context.Context) ([]dashsupabase.StatusCount, error) {
	if f.rpcDown {
		return nil, f.rpcErr()
	}
	return functionStatusCounts(f.rows), nil
}

func (f *fakeDashRepo) OrdersByDay(ctx context.Context, days int) ([]dashsupabase.DayCount, error) {
	if f.rpcDown {
		return nil, f.rpcErr()
	}
	return functionDayCounts(f.rows), nil
}

func (f *fakeDashRepo) OrdersByHour(ctx context.Context, day string) ([]dashsupabase.HourCount, error) {
	if f.rpcDown {
		return nil, f.rpcErr()
	}
	grouped := make(map[int]int64)
	for _, row := range f.rows {
		created := row.CreatedAt.UTC()
		if created.Format(dayFormat) != day || row.Status == "cancelled" {
			continue
		}
		grouped[created.Hour()]++
	}
	var out []dashsupabase.HourCount
	for hour, orders := range grouped {
		out = append(out, dashsupabase.HourCount{Hour: hour, Orders: orders})
	}
	return out, nil
}

func (f *fakeDashRepo) AllOrders(ctx context.Context) ([]dashsupabase.OrderRow, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return append([]dashsupabase.OrderRow(nil), f.rows...), nil
}

func (f *fakeDashRepo) OrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]dashsupabase.OrderRow, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	var out []dashsupabase.OrderRow
	for _, row := range f.rows {
		if !row.CreatedAt.Before(from) && row.CreatedAt.Before(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeDashRepo) RecentOrders(ctx context.Context, limit int) ([]dashsupabase.OrderRow, error) {
	sorted := append([]dashsupabase.OrderRow(nil), f.rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

type fakeDashSettings struct{}

func (fakeDashSettings) Current(ctx context.Context) (*settingssupabase.Settings, error) {
	return &settingssupabase.Settings{Currency: "VND", VATPercent: 8}, nil
}

type fakeRevenueStore struct {
	rows []reporting.DayRevenue
	err  error
}

func (f *fakeRevenueStore) RevenueByDay(ctx context.Context, from, to time.Time) ([]reporting.DayRevenue, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

// =============================================================================
// Helpers
// =============================================================================

type dashTestEnv struct {
	repo    *fakeDashRepo
	revenue *fakeRevenueStore
	svc     *Service
	router  *mux.Router
}

func newDashEnv(t *testing.T, revenue *fakeRevenueStore) *dashTestEnv {
	t.Helper()
	env := &dashTestEnv{
		repo:    &fakeDashRepo{},
		revenue: revenue,
		router:  mux.NewRouter(),
	}
	cfg := Config{
		Repo:     env.repo,
		Logger:   logging.NewNop(),
		Router:   env.router,
		Settings: fakeDashSettings{},
	}
	if revenue != nil {
		cfg.Revenue = revenue
	}
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.svc = svc
	return env
}

func asAdmin(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), logging.UserIDKey, "admin-1")
	ctx = context.WithValue(ctx, logging.RoleKey, middleware.RoleAdmin)
	return r.WithContext(ctx)
}

func adminGet(env *dashTestEnv, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, asAdmin(httptest.NewRequest(http.MethodGet, path, nil)))
	return rec
}

// =============================================================================
// Tests
// =============================================================================

func TestSummarySourcesFromFunctions(t *testing.T) {
	env := newDashEnv(t, nil)
	env.repo.rows = sampleOrders(t)

	rec := adminGet(env, "/dashboard/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var summary Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Source != sourceRPC {
		t.Fatalf("source = %q, want %q", summary.Source, sourceRPC)
	}
	if len(summary.StatusCounts) != 4 {
		t.Fatalf("status counts = %d entries, want 4", len(summary.StatusCounts))
	}
	if summary.Currency != "VND" || summary.FormattedRevenue == "" {
		t.Fatalf("currency = %q, formatted = %q", summary.Currency, summary.FormattedRevenue)
	}
	if len(summary.Recent) == 0 {
		t.Fatal("recent orders missing")
	}
}

// TestSummaryFallbackAgreesWithFunctions drives the same data through the
// function path and the row-scan path and requires identical aggregates.
func TestSummaryFallbackAgreesWithFunctions(t *testing.T) {
	rows := sampleOrders(t)

	fetch := func(rpcDown bool) Summary {
		env := newDashEnv(t, nil)
		env.repo.rows = rows
		env.repo.rpcDown = rpcDown
		rec := adminGet(env, "/dashboard/summary")
		if rec.Code != http.StatusOK {
			t.Fatalf("rpcDown=%v: status = %d: %s", rpcDown, rec.Code, rec.Body.String())
		}
		var summary Summary
		if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return summary
	}

	viaFunctions := fetch(false)
	viaScan := fetch(true)

	if viaScan.Source != sourceRows {
		t.Fatalf("fallback source = %q, want %q", viaScan.Source, sourceRows)
	}
	if !reflect.DeepEqual(viaFunctions.StatusCounts, viaScan.StatusCounts) {
		t.Fatalf("status counts diverge:\nfunctions: %+v\nscan:      %+v", viaFunctions.StatusCounts, viaScan.StatusCounts)
	}
	if viaFunctions.Today != viaScan.Today {
		t.Fatalf("today diverges:\nfunctions: %+v\nscan:      %+v", viaFunctions.Today, viaScan.Today)
	}
}

func TestDailyReportFallbackAgreesWithFunctions(t *testing.T) {
	rows := sampleOrders(t)

	fetch := func(rpcDown bool) DailyReport {
		env := newDashEnv(t, nil)
		env.repo.rows = rows
		env.repo.rpcDown = rpcDown
		rec := adminGet(env, "/dashboard/daily?days=7")
		if rec.Code != http.StatusOK {
			t.Fatalf("rpcDown=%v: status = %d: %s", rpcDown, rec.Code, rec.Body.String())
		}
		var report DailyReport
		if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return report
	}

	viaFunctions := fetch(false)
	viaScan := fetch(true)

	if len(viaFunctions.Items) != 7 || len(viaScan.Items) != 7 {
		t.Fatalf("window = %d / %d items, want 7", len(viaFunctions.Items), len(viaScan.Items))
	}
	if !reflect.DeepEqual(viaFunctions.Items, viaScan.Items) {
		t.Fatalf("daily buckets diverge:\nfunctions: %+v\nscan:      %+v", viaFunctions.Items, viaScan.Items)
	}
}

func TestDailyWindowValidation(t *testing.T) {
	env := newDashEnv(t, nil)
	for _, q := range []string{"?days=0", "?days=91", "?days=abc"} {
		rec := adminGet(env, "/dashboard/daily"+q)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestHourlyReport(t *testing.T) {
	env := newDashEnv(t, nil)
	env.repo.rows = sampleOrders(t)

	rec := adminGet(env, "/dashboard/hourly?date=2026-08-25")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var report HourlyReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Items) != 24 {
		t.Fatalf("buckets = %d, want 24", len(report.Items))
	}
	if report.Items[2].Orders != 2 {
		t.Fatalf("02:00 = %d, want 2", report.Items[2].Orders)
	}

	if rec := adminGet(env, "/dashboard/hourly?date=25-08-2026"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: status = %d, want 400", rec.Code)
	}
}

func TestRevenuePrefersWarehouse(t *testing.T) {
	store := &fakeRevenueStore{rows: []reporting.DayRevenue{
		{Day: "2026-08-24", Orders: 2, Revenue: 25000},
		{Day: "2026-08-25", Orders: 2, Revenue: 45000},
	}}
	env := newDashEnv(t, store)
	env.repo.rows = sampleOrders(t)

	rec := adminGet(env, "/dashboard/revenue?from=2026-08-24&to=2026-08-25")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var report RevenueReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Source != sourceWarehouse {
		t.Fatalf("source = %q, want %q", report.Source, sourceWarehouse)
	}
	if report.TotalRevenue != 70000 {
		t.Fatalf("total = %v, want 70000", report.TotalRevenue)
	}
	if report.FormattedTotal != "70.000 ₫" {
		t.Fatalf("formatted = %q", report.FormattedTotal)
	}
}

func TestRevenueFallsBackToRowsWhenWarehouseDown(t *testing.T) {
	store := &fakeRevenueStore{err: context.DeadlineExceeded}
	env := newDashEnv(t, store)
	env.repo.rows = sampleOrders(t)

	rec := adminGet(env, "/dashboard/revenue?from=2026-08-24&to=2026-08-25")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var report RevenueReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Source != sourceRows {
		t.Fatalf("source = %q, want %q", report.Source, sourceRows)
	}
	// Paid orders only: 25000 on the 24th, 45000 on the 25th.
	if report.TotalRevenue != 70000 {
		t.Fatalf("total = %v, want 70000", report.TotalRevenue)
	}

	if rec := adminGet(env, "/dashboard/revenue?from=2026-08-25&to=2026-08-24"); rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range: status = %d, want 400", rec.Code)
	}
}

func TestRecentOrders(t *testing.T) {
	env := newDashEnv(t, nil)
	env.repo.rows = sampleOrders(t)

	rec := adminGet(env, "/dashboard/recent?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Orders []dashsupabase.OrderRow `json:"orders"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(resp.Orders))
	}
	if resp.Orders[0].ID != "o5" {
		t.Fatalf("first = %s, want newest o5", resp.Orders[0].ID)
	}

	if rec := adminGet(env, "/dashboard/recent?limit=500"); rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized limit: status = %d, want 400", rec.Code)
	}
}

func TestSystemStatus(t *testing.T) {
	env := newDashEnv(t, nil)

	rec := adminGet(env, "/dashboard/system")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var status SystemStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Goroutines <= 0 {
		t.Fatalf("goroutines = %d", status.Goroutines)
	}
	if status.GoVersion == "" {
		t.Fatal("go version missing")
	}
}

func TestDashboardRequiresAdmin(t *testing.T) {
	env := newDashEnv(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard/summary", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard/summary", nil)
	ctx := context.WithValue(req.Context(), logging.UserIDKey, "cust-1")
	ctx = context.WithValue(ctx, logging.RoleKey, middleware.RoleCustomer)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("customer: status = %d, want 403", rec.Code)
	}
}
