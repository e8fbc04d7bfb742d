package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/vegdirect/storefront/internal/middleware"
	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

func TestAdminListOrdersFilters(t *testing.T) {
	env := newOrdersEnv(t)
	env.repo.addOrder(orderssupabase.Order{UserID: "cust-1", Status: orderssupabase.StatusPending, Total: 10000, Currency: "VND"})
	env.repo.addOrder(orderssupabase.Order{UserID: "cust-2", Status: orderssupabase.StatusCompleted, PaymentStatus: orderssupabase.PaymentPaid, Total: 20000, Currency: "VND"})
	env.repo.addOrder(orderssupabase.Order{UserID: "cust-3", Status: orderssupabase.StatusPending, DriverID: "drv-1", Total: 30000, Currency: "VND"})

	cases := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?status=pending", 2},
		{"?payment_status=paid", 1},
		{"?driver_id=drv-1", 1},
		{"?status=completed&payment_status=paid", 1},
	}
	for _, tc := range cases {
		req := authed(httptest.NewRequest(http.MethodGet, "/admin/orders"+tc.query, nil), "admin-1", middleware.RoleAdmin)
		rec := do(env.router, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: status = %d: %s", tc.query, rec.Code, rec.Body.String())
		}
		var page struct {
			Items []OrderView `json:"items"`
			Total int64       `json:"total"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
			t.Fatalf("%q: decode: %v", tc.query, err)
		}
		if int(page.Total) != tc.want || len(page.Items) != tc.want {
			t.Fatalf("%q: total = %d, items = %d, want %d", tc.query, page.Total, len(page.Items), tc.want)
		}
	}

	req := authed(httptest.NewRequest(http.MethodGet, "/admin/orders?status=shipped", nil), "admin-1", middleware.RoleAdmin)
	if rec := do(env.router, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter: status = %d, want 400", rec.Code)
	}

	req = authed(httptest.NewRequest(http.MethodGet, "/admin/orders", nil), "cust-1", middleware.RoleCustomer)
	if rec := do(env.router, req); rec.Code != http.StatusForbidden {
		t.Fatalf("customer: status = %d, want 403", rec.Code)
	}
}

func TestUpdatePaymentStatus(t *testing.T) {
	env := newOrdersEnv(t)
	order := env.repo.addOrder(orderssupabase.Order{UserID: "cust-1", Status: orderssupabase.StatusPending, Currency: "VND"})

	body := jsonBody(t, map[string]any{"payment_status": orderssupabase.PaymentPaid})
	req := authed(httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/payment", body), "admin-1", middleware.RoleAdmin)
	rec := do(env.router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.repo.orders[order.ID].PaymentStatus; got != orderssupabase.PaymentPaid {
		t.Fatalf("payment = %q, want paid", got)
	}
	if !env.publisher.has("order_updated") {
		t.Fatal("order_updated event not published")
	}

	body = jsonBody(t, map[string]any{"payment_status": "refunded"})
	req = authed(httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/payment", body), "admin-1", middleware.RoleAdmin)
	if rec = do(env.router, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad payment status: status = %d, want 400", rec.Code)
	}
}

func TestExportOrdersWorkbook(t *testing.T) {
	env := newOrdersEnv(t)
	env.repo.addOrder(orderssupabase.Order{
		OrderNumber: "VD-260825-AAAA1111", UserID: "cust-1",
		Status: orderssupabase.StatusPending, PaymentStatus: orderssupabase.PaymentPending,
		Subtotal: 66000, VATAmount: 5280, Total: 71280, Currency: "VND",
	})
	env.repo.addOrder(orderssupabase.Order{
		OrderNumber: "VD-260825-BBBB2222", UserID: "cust-2",
		Status: orderssupabase.StatusCompleted, PaymentStatus: orderssupabase.PaymentPaid,
		Subtotal: 30000, VATAmount: 2400, Total: 32400, Currency: "VND", DriverID: "drv-1",
	})

	req := authed(httptest.NewRequest(http.MethodGet, "/admin/orders/export", nil), "admin-1", middleware.RoleAdmin)
	rec := do(env.router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "orders-") || !strings.Contains(cd, ".xlsx") {
		t.Fatalf("content disposition = %q", cd)
	}

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer book.Close()

	rows, err := book.GetRows("Orders")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 orders", len(rows))
	}
	if rows[0][0] != "Order" || rows[0][len(exportColumns)-1] != "Currency" {
		t.Fatalf("header = %v", rows[0])
	}
	found := false
	for _, row := range rows[1:] {
		if row[0] == "VD-260825-AAAA1111" {
			found = true
		}
	}
	if !found {
		t.Fatal("exported rows missing the first order")
	}
}

// =============================================================================
// Invoices
// =============================================================================

func TestInvoiceLifecycle(t *testing.T) {
	env := newOrdersEnv(t)
	env.accounts.add(accountssupabase.Profile{
		ID: "cust-1", Email: "lan@pho24.vn", FullName: "Lan",
		Role: accountssupabase.RoleCustomer, Active: true,
	})
	order := env.repo.addOrder(orderssupabase.Order{UserID: "cust-1", Status: orderssupabase.StatusCompleted, Total: 71280, Currency: "VND"})

	req := authed(httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/invoice", nil), "admin-1", middleware.RoleAdmin)
	rec := do(env.router, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body.String())
	}

	var inv orderssupabase.Invoice
	if err := json.NewDecoder(rec.Body).Decode(&inv); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}
	if !strings.HasPrefix(inv.InvoiceNumber, "INV-") {
		t.Fatalf("invoice number = %q", inv.InvoiceNumber)
	}
	if inv.Status != orderssupabase.InvoicePending {
		t.Fatalf("status = %q, want pending", inv.Status)
	}
	waitFor(t, func() bool { return env.notifier.count("invoice_issued") == 1 }, "invoice email not sent")

	// Second invoice for the same order conflicts.
	req = authed(httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/invoice", nil), "admin-1", middleware.RoleAdmin)
	if rec = do(env.router, req); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: status = %d, want 409", rec.Code)
	}

	// Owner reads it, strangers do not.
	req = authed(httptest.NewRequest(http.MethodGet, "/invoices/"+inv.ID, nil), "cust-1", middleware.RoleCustomer)
	if rec = do(env.router, req); rec.Code != http.StatusOK {
		t.Fatalf("owner read: status = %d: %s", rec.Code, rec.Body.String())
	}
	req = authed(httptest.NewRequest(http.MethodGet, "/invoices/"+inv.ID, nil), "cust-2", middleware.RoleCustomer)
	if rec = do(env.router, req); rec.Code != http.StatusForbidden {
		t.Fatalf("stranger read: status = %d, want 403", rec.Code)
	}

	// Status moves to paid.
	body := jsonBody(t, map[string]any{"status": orderssupabase.InvoicePaid})
	req = authed(httptest.NewRequest(http.MethodPost, "/invoices/"+inv.ID+"/status", body), "admin-1", middleware.RoleAdmin)
	if rec = do(env.router, req); rec.Code != http.StatusOK {
		t.Fatalf("status update: status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.repo.invoices[inv.ID].Status; got != orderssupabase.InvoicePaid {
		t.Fatalf("stored status = %q, want paid", got)
	}

	body = jsonBody(t, map[string]any{"status": "void"})
	req = authed(httptest.NewRequest(http.MethodPost, "/invoices/"+inv.ID+"/status", body), "admin-1", middleware.RoleAdmin)
	if rec = do(env.router, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status: status = %d, want 400", rec.Code)
	}
}

func TestUploadInvoiceFileRequiresPDF(t *testing.T) {
	env := newOrdersEnv(t)
	order := env.repo.addOrder(orderssupabase.Order{UserID: "cust-1", Status: orderssupabase.StatusCompleted})
	inv := &orderssupabase.Invoice{OrderID: order.ID, InvoiceNumber: "INV-260825-CCCC3333", Status: orderssupabase.InvoicePending}
	if err := env.repo.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}

	req := authed(httptest.NewRequest(http.MethodPut, "/invoices/"+inv.ID+"/file", bytes.NewBufferString("plain text")), "admin-1", middleware.RoleAdmin)
	req.Header.Set("Content-Type", "text/plain")
	if rec := do(env.router, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-pdf upload: status = %d, want 400", rec.Code)
	}
	if env.repo.invoices[inv.ID].PDFPath != "" {
		t.Fatal("pdf path must stay empty")
	}
}
