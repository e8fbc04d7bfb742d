package dashboard

import (
	"time"

	dashsupabase "github.com/vegdirect/storefront/services/dashboard/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

const dayFormat = "2006-01-02"

// statusOrder fixes the reporting order of the status breakdown so row scans
// and database functions shape their output identically.
var statusOrder = []string{
	orderssupabase.StatusPending,
	orderssupabase.StatusProcessing,
	orderssupabase.StatusCompleted,
	orderssupabase.StatusCancelled,
}

// normalizeStatusCounts zero-fills missing statuses and fixes the order.
// Unknown statuses from drifted data are dropped rather than reported.
func normalizeStatusCounts(rows []dashsupabase.StatusCount) []dashsupabase.StatusCount {
	byStatus := make(map[string]int64, len(rows))
	for _, row := range rows {
		byStatus[row.Status] += row.Count
	}
	out := make([]dashsupabase.StatusCount, 0, len(statusOrder))
	for _, status := range statusOrder {
		out = append(out, dashsupabase.StatusCount{Status: status, Count: byStatus[status]})
	}
	return out
}

// statusCountsFromRows computes the status breakdown from raw order rows.
func statusCountsFromRows(rows []dashsupabase.OrderRow) []dashsupabase.StatusCount {
	counts := make([]dashsupabase.StatusCount, 0, len(statusOrder))
	byStatus := make(map[string]int64)
	for _, row := range rows {
		byStatus[row.Status]++
	}
	for _, status := range statusOrder {
		counts = append(counts, dashsupabase.StatusCount{Status: status, Count: byStatus[status]})
	}
	return counts
}

// normalizeDayCounts zero-fills the [from, from+days) window in day order.
func normalizeDayCounts(rows []dashsupabase.DayCount, from time.Time, days int) []dashsupabase.DayCount {
	byDay := make(map[string]dashsupabase.DayCount, len(rows))
	for _, row := range rows {
		byDay[row.Day] = row
	}
	out := make([]dashsupabase.DayCount, 0, days)
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i).Format(dayFormat)
		bucket := byDay[day]
		bucket.Day = day
		out = append(out, bucket)
	}
	return out
}

// dayCountsFromRows buckets raw order rows per day over [from, from+days).
// Cancelled orders never count; revenue sums paid orders only, matching the
// database functions.
func dayCountsFromRows(rows []dashsupabase.OrderRow, from time.Time, days int) []dashsupabase.DayCount {
	buckets := make(map[string]*dashsupabase.DayCount, days)
	out := make([]dashsupabase.DayCount, days)
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i).Format(dayFormat)
		out[i] = dashsupabase.DayCount{Day: day}
		buckets[day] = &out[i]
	}
	for _, row := range rows {
		bucket, ok := buckets[row.CreatedAt.UTC().Format(dayFormat)]
		if !ok {
			continue
		}
		if row.Status != orderssupabase.StatusCancelled {
			bucket.Orders++
		}
		if row.PaymentStatus == orderssupabase.PaymentPaid {
			bucket.Revenue += row.Total
		}
	}
	return out
}

// normalizeHourCounts zero-fills all 24 hour buckets in order.
func normalizeHourCounts(rows []dashsupabase.HourCount) []dashsupabase.HourCount {
	byHour := make(map[int]int64, len(rows))
	for _, row := range rows {
		byHour[row.Hour] += row.Orders
	}
	out := make([]dashsupabase.HourCount, 24)
	for h := 0; h < 24; h++ {
		out[h] = dashsupabase.HourCount{Hour: h, Orders: byHour[h]}
	}
	return out
}

// hourCountsFromRows buckets one UTC day's rows per hour of creation.
func hourCountsFromRows(rows []dashsupabase.OrderRow, day string) []dashsupabase.HourCount {
	out := make([]dashsupabase.HourCount, 24)
	for h := 0; h < 24; h++ {
		out[h] = dashsupabase.HourCount{Hour: h}
	}
	for _, row := range rows {
		created := row.CreatedAt.UTC()
		if created.Format(dayFormat) != day {
			continue
		}
		if row.Status == orderssupabase.StatusCancelled {
			continue
		}
		out[created.Hour()].Orders++
	}
	return out
}
