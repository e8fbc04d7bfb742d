package dashboard

import (
	"reflect"
	"testing"
	"time"

	dashsupabase "github.com/vegdirect/storefront/services/dashboard/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(dayFormat, s)
	if err != nil {
		t.Fatalf("parse day %q: %v", s, err)
	}
	return parsed
}

func sampleOrders(t *testing.T) []dashsupabase.OrderRow {
	t.Helper()
	at := func(s string) time.Time {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		return parsed
	}
	return []dashsupabase.OrderRow{
		{ID: "o1", Status: orderssupabase.StatusPending, PaymentStatus: orderssupabase.PaymentPending, Total: 10000, CreatedAt: at("2026-08-24T08:10:00Z")},
		{ID: "o2", Status: orderssupabase.StatusCompleted, PaymentStatus: orderssupabase.PaymentPaid, Total: 25000, CreatedAt: at("2026-08-24T08:45:00Z")},
		{ID: "o3", Status: orderssupabase.StatusCancelled, PaymentStatus: orderssupabase.PaymentPending, Total: 40000, CreatedAt: at("2026-08-24T13:00:00Z")},
		{ID: "o4", Status: orderssupabase.StatusProcessing, PaymentStatus: orderssupabase.PaymentPaid, Total: 30000, CreatedAt: at("2026-08-25T02:30:00Z")},
		{ID: "o5", Status: orderssupabase.StatusCompleted, PaymentStatus: orderssupabase.PaymentPaid, Total: 15000, CreatedAt: at("2026-08-25T02:59:00Z")},
	}
}

// functionStatusCounts reproduces what the order_status_counts database
// function computes: a plain GROUP BY over the same rows.
func functionStatusCounts(rows []dashsupabase.OrderRow) []dashsupabase.StatusCount {
	grouped := make(map[string]int64)
	for _, row := range rows {
		grouped[row.Status]++
	}
	out := make([]dashsupabase.StatusCount, 0, len(grouped))
	for status, count := range grouped {
		out = append(out, dashsupabase.StatusCount{Status: status, Count: count})
	}
	return out
}

// functionDayCounts reproduces the orders_by_day function: days without
// orders are absent, cancellations excluded, revenue from paid orders.
func functionDayCounts(rows []dashsupabase.OrderRow) []dashsupabase.DayCount {
	grouped := make(map[string]*dashsupabase.DayCount)
	for _, row := range rows {
		key := row.CreatedAt.UTC().Format(dayFormat)
		bucket, ok := grouped[key]
		if !ok {
			bucket = &dashsupabase.DayCount{Day: key}
			grouped[key] = bucket
		}
		if row.Status != orderssupabase.StatusCancelled {
			bucket.Orders++
		}
		if row.PaymentStatus == orderssupabase.PaymentPaid {
			bucket.Revenue += row.Total
		}
	}
	out := make([]dashsupabase.DayCount, 0, len(grouped))
	for _, bucket := range grouped {
		out = append(out, *bucket)
	}
	return out
}

func TestStatusCountFallbackMatchesFunction(t *testing.T) {
	rows := sampleOrders(t)

	viaFunction := normalizeStatusCounts(functionStatusCounts(rows))
	viaScan := statusCountsFromRows(rows)

	if !reflect.DeepEqual(viaFunction, viaScan) {
		t.Fatalf("status counts diverge:\nfunction: %+v\nscan:     %+v", viaFunction, viaScan)
	}
	if len(viaScan) != 4 {
		t.Fatalf("breakdown = %d entries, want all four statuses", len(viaScan))
	}
}

func TestDayCountFallbackMatchesFunction(t *testing.T) {
	rows := sampleOrders(t)
	from := day(t, "2026-08-23")
	const window = 3 // 23rd through 25th

	viaFunction := normalizeDayCounts(functionDayCounts(rows), from, window)
	viaScan := dayCountsFromRows(rows, from, window)

	if !reflect.DeepEqual(viaFunction, viaScan) {
		t.Fatalf("day counts diverge:\nfunction: %+v\nscan:     %+v", viaFunction, viaScan)
	}

	if viaScan[0].Day != "2026-08-23" || viaScan[0].Orders != 0 {
		t.Fatalf("empty leading day = %+v", viaScan[0])
	}
	aug24 := viaScan[1]
	if aug24.Orders != 2 {
		t.Fatalf("aug 24 orders = %d, want 2 (cancellation excluded)", aug24.Orders)
	}
	if aug24.Revenue != 25000 {
		t.Fatalf("aug 24 revenue = %v, want paid only 25000", aug24.Revenue)
	}
	aug25 := viaScan[2]
	if aug25.Orders != 2 || aug25.Revenue != 45000 {
		t.Fatalf("aug 25 = %+v", aug25)
	}
}

func TestHourCountsBucketByCreationHour(t *testing.T) {
	rows := sampleOrders(t)

	buckets := hourCountsFromRows(rows, "2026-08-25")
	if len(buckets) != 24 {
		t.Fatalf("buckets = %d, want 24", len(buckets))
	}
	if buckets[2].Orders != 2 {
		t.Fatalf("02:00 bucket = %d, want 2", buckets[2].Orders)
	}
	for h, b := range buckets {
		if b.Hour != h {
			t.Fatalf("bucket %d labeled %d", h, b.Hour)
		}
		if h != 2 && b.Orders != 0 {
			t.Fatalf("bucket %d = %d, want 0", h, b.Orders)
		}
	}

	// The cancelled 13:00 order on the 24th never counts.
	buckets = hourCountsFromRows(rows, "2026-08-24")
	if buckets[13].Orders != 0 {
		t.Fatalf("13:00 bucket = %d, want cancelled order excluded", buckets[13].Orders)
	}
	if buckets[8].Orders != 2 {
		t.Fatalf("08:00 bucket = %d, want 2", buckets[8].Orders)
	}
}

func TestNormalizeHourCountsZeroFills(t *testing.T) {
	sparse := []dashsupabase.HourCount{{Hour: 9, Orders: 4}, {Hour: 17, Orders: 1}}
	full := normalizeHourCounts(sparse)
	if len(full) != 24 {
		t.Fatalf("buckets = %d, want 24", len(full))
	}
	if full[9].Orders != 4 || full[17].Orders != 1 || full[0].Orders != 0 {
		t.Fatalf("buckets = %+v", full)
	}
}
