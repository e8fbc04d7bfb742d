package dashboard

import (
	"time"

	dashsupabase "github.com/vegdirect/storefront/services/dashboard/supabase"
)

// Summary is the landing-page payload: status breakdown, today's volume and
// the newest orders, assembled concurrently.
type Summary struct {
	GeneratedAt      time.Time                  `json:"generated_at"`
	Currency         string                     `json:"currency"`
	StatusCounts     []dashsupabase.StatusCount `json:"status_counts"`
	Today            dashsupabase.DayCount      `json:"today"`
	FormattedRevenue string                     `json:"formatted_revenue"`
	Recent           []dashsupabase.OrderRow    `json:"recent"`
	Source           string                     `json:"source"`
}

// DailyReport is the order volume per day over a trailing window.
type DailyReport struct {
	Days   int                     `json:"days"`
	Source string                  `json:"source"`
	Items  []dashsupabase.DayCount `json:"items"`
}

// HourlyReport is one day's volume per hour.
type HourlyReport struct {
	Day    string                   `json:"day"`
	Source string                   `json:"source"`
	Items  []dashsupabase.HourCount `json:"items"`
}

// RevenueReport is realized revenue per day over [From, To].
type RevenueReport struct {
	From           string                  `json:"from"`
	To             string                  `json:"to"`
	Currency       string                  `json:"currency"`
	Source         string                  `json:"source"`
	TotalRevenue   float64                 `json:"total_revenue"`
	FormattedTotal string                  `json:"formatted_total"`
	Items          []dashsupabase.DayCount `json:"items"`
}

// SystemStatus reports host health for the operations panel.
type SystemStatus struct {
	Hostname       string  `json:"hostname"`
	Platform       string  `json:"platform"`
	UptimeSeconds  uint64  `json:"uptime_seconds"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemTotal       uint64  `json:"mem_total"`
	MemUsed        uint64  `json:"mem_used"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	DiskTotal      uint64  `json:"disk_total"`
	DiskUsed       uint64  `json:"disk_used"`
	DiskPercent    float64 `json:"disk_percent"`
	Load1          float64 `json:"load1"`
	Load5          float64 `json:"load5"`
	Load15         float64 `json:"load15"`
	Goroutines     int     `json:"goroutines"`
	GoVersion      string  `json:"go_version"`
}
