// Package reporting reads revenue aggregates from the SQL warehouse. The
// storefront itself talks PostgREST; deployments that mirror orders into a
// reporting database point REPORTING_DSN here and get exact SQL rollups
// instead of row scans.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DayRevenue is one day's rollup from the warehouse.
type DayRevenue struct {
	Day     string  `db:"day" json:"day"`
	Orders  int64   `db:"orders" json:"orders"`
	Revenue float64 `db:"revenue" json:"revenue"`
}

// Store queries the reporting database.
type Store struct {
	db *sqlx.DB
}

// Open connects to the reporting database and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("reporting: open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("reporting: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, for tests.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the warehouse is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const revenueByDayQuery = `
SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
       count(*) FILTER (WHERE status <> 'cancelled')       AS orders,
       coalesce(sum(total) FILTER (WHERE payment_status = 'paid'), 0) AS revenue
FROM orders
WHERE created_at >= $1 AND created_at < $2
GROUP BY 1
ORDER BY 1`

// RevenueByDay returns per-day order counts and paid revenue for
// [from, to). Days without orders are absent from the result.
func (s *Store) RevenueByDay(ctx context.Context, from, to time.Time) ([]DayRevenue, error) {
	var rows []DayRevenue
	if err := s.db.SelectContext(ctx, &rows, revenueByDayQuery, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("reporting: revenue by day: %w", err)
	}
	return rows, nil
}
