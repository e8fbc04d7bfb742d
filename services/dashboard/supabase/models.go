// Package supabase contains the dashboard read models and queries.
package supabase

import "time"

// StatusCount is one slice of the order status breakdown.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// DayCount is one day's order volume and realized revenue. Orders counts
// everything except cancellations; revenue sums paid orders only.
type DayCount struct {
	Day     string  `json:"day"`
	Orders  int64   `json:"orders"`
	Revenue float64 `json:"revenue"`
}

// HourCount is one hour bucket of a single day.
type HourCount struct {
	Hour   int   `json:"hour"`
	Orders int64 `json:"orders"`
}

// OrderRow is the slim order projection the dashboard reads. Aggregations
// and the recent-orders panel never need line items or addresses.
type OrderRow struct {
	ID            string    `json:"id"`
	OrderNumber   string    `json:"order_number"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	Total         float64   `json:"total"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}
