package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/vegdirect/storefront/internal/database"
)

const (
	tableOrders = "orders"

	orderColumns = "id,order_number,user_id,status,payment_status,total,currency,created_at"

	// scanPage bounds one fallback sweep so a large order table never turns
	// into a single unbounded PostgREST response.
	scanPage = 1000
)

// RepositoryInterface defines dashboard read operations. The three RPC
// methods call database functions; the row methods exist so aggregation can
// fall back to client-side math when a function is missing or broken.
type RepositoryInterface interface {
	StatusCounts(ctx context.Context) ([]StatusCount, error)
	OrdersByDay(ctx context.Context, days int) ([]DayCount, error)
	OrdersByHour(ctx context.Context, day string) ([]HourCount, error)

	AllOrders(ctx context.Context) ([]OrderRow, error)
	OrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]OrderRow, error)
	RecentOrders(ctx context.Context, limit int) ([]OrderRow, error)
}

// Repository implements RepositoryInterface against PostgREST.
type Repository struct {
	base *database.Repository
}

// NewRepository creates a dashboard repository.
func NewRepository(base *database.Repository) *Repository {
	return &Repository{base: base}
}

// StatusCounts invokes the order_status_counts database function.
func (r *Repository) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	if err := r.base.Client().DB.RPC(ctx, "order_status_counts", nil, &rows); err != nil {
		return nil, fmt.Errorf("%w: rpc order_status_counts: %v", database.ErrDatabaseError, err)
	}
	return rows, nil
}

// OrdersByDay invokes the orders_by_day database function for the trailing
// window of the given length.
func (r *Repository) OrdersByDay(ctx context.Context, days int) ([]DayCount, error) {
	var rows []DayCount
	params := map[string]any{"window_days": days}
	if err := r.base.Client().DB.RPC(ctx, "orders_by_day", params, &rows); err != nil {
		return nil, fmt.Errorf("%w: rpc orders_by_day: %v", database.ErrDatabaseError, err)
	}
	return rows, nil
}

// OrdersByHour invokes the orders_by_hour database function for one day.
func (r *Repository) OrdersByHour(ctx context.Context, day string) ([]HourCount, error) {
	var rows []HourCount
	params := map[string]any{"bucket_day": day}
	if err := r.base.Client().DB.RPC(ctx, "orders_by_hour", params, &rows); err != nil {
		return nil, fmt.Errorf("%w: rpc orders_by_hour: %v", database.ErrDatabaseError, err)
	}
	return rows, nil
}

// AllOrders sweeps the whole orders table in pages. Only the fallback
// aggregation path uses it.
func (r *Repository) AllOrders(ctx context.Context) ([]OrderRow, error) {
	var out []OrderRow
	for offset := 0; ; offset += scanPage {
		q := database.NewQuery().
			Select(orderColumns).
			OrderAsc("created_at").
			Limit(scanPage).
			Offset(offset).
			Build()
		rows, err := database.GenericListWithQuery[OrderRow](r.base, ctx, tableOrders, q)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) < scanPage {
			return out, nil
		}
	}
}

// OrdersCreatedBetween lists orders created in [from, to).
func (r *Repository) OrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]OrderRow, error) {
	var out []OrderRow
	for offset := 0; ; offset += scanPage {
		q := database.NewQuery().
			Select(orderColumns).
			Gte("created_at", from.UTC().Format(time.RFC3339)).
			Lt("created_at", to.UTC().Format(time.RFC3339)).
			OrderAsc("created_at").
			Limit(scanPage).
			Offset(offset).
			Build()
		rows, err := database.GenericListWithQuery[OrderRow](r.base, ctx, tableOrders, q)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) < scanPage {
			return out, nil
		}
	}
}

// RecentOrders lists the newest orders first.
func (r *Repository) RecentOrders(ctx context.Context, limit int) ([]OrderRow, error) {
	q := database.NewQuery().
		Select(orderColumns).
		OrderDesc("created_at").
		Limit(limit).
		Build()
	return database.GenericListWithQuery[OrderRow](r.base, ctx, tableOrders, q)
}

var _ RepositoryInterface = (*Repository)(nil)
