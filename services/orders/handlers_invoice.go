package orders

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/internal/middleware"
	"github.com/vegdirect/storefront/internal/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

const invoiceURLTTL = time.Hour

// handleCreateInvoice attaches a billing record to an order. One invoice
// per order.
func (s *Service) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	if existing, err := s.repo.GetInvoiceByOrder(r.Context(), order.ID); err == nil {
		httputil.Conflict(w, "order already has invoice "+existing.InvoiceNumber)
		return
	} else if !database.IsNotFound(err) {
		s.Logger().WithError(err).Error("invoice lookup failed")
		httputil.WriteError(w, err)
		return
	}

	inv := &orderssupabase.Invoice{
		OrderID:       order.ID,
		InvoiceNumber: newInvoiceNumber(),
		Status:        orderssupabase.InvoicePending,
		IssuedBy:      middleware.GetUserID(r.Context()),
	}
	if err := s.repo.CreateInvoice(r.Context(), inv); err != nil {
		s.Logger().WithError(err).Error("invoice creation failed")
		httputil.WriteError(w, err)
		return
	}

	if profile, err := s.accounts.GetProfile(r.Context(), order.UserID); err == nil && profile.Email != "" {
		o, record, recipient, name := order, inv, profile.Email, profile.FullName
		s.notifyAsync("invoice_issued", func(ctx context.Context) error {
			return s.notifier.NotifyInvoiceIssued(ctx, o, record, recipient, name)
		})
	}

	s.Logger().WithFields(map[string]interface{}{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
		"order_id":       order.ID,
	}).Info("invoice created")
	httputil.WriteJSON(w, http.StatusCreated, inv)
}

// loadInvoice fetches the path invoice, writing 404 on a miss.
func (s *Service) loadInvoice(w http.ResponseWriter, r *http.Request) (*orderssupabase.Invoice, bool) {
	id := mux.Vars(r)["id"]
	inv, err := s.repo.GetInvoice(r.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "invoice not found")
			return nil, false
		}
		s.Logger().WithError(err).Error("failed to load invoice")
		httputil.WriteError(w, err)
		return nil, false
	}
	return inv, true
}

func (s *Service) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	role := middleware.GetUserRole(r.Context())

	inv, ok := s.loadInvoice(w, r)
	if !ok {
		return
	}

	if role != middleware.RoleAdmin {
		order, err := s.repo.GetOrder(r.Context(), inv.OrderID)
		if err != nil || order.UserID != userID {
			httputil.Forbidden(w, "not your invoice")
			return
		}
	}

	view := InvoiceView{Invoice: *inv}
	if inv.PDFPath != "" && s.DB() != nil {
		url, err := s.DB().Client().Storage.CreateSignedURL(r.Context(), s.invoiceBucket, inv.PDFPath, invoiceURLTTL)
		if err != nil {
			s.Logger().WithError(err).Warn("invoice download url failed")
		} else {
			view.DownloadURL = url
		}
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// handleUploadInvoiceFile stores the invoice PDF and records its object
// path.
func (s *Service) handleUploadInvoiceFile(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "application/pdf" {
		httputil.BadRequest(w, "invoice file must be application/pdf")
		return
	}

	inv, ok := s.loadInvoice(w, r)
	if !ok {
		return
	}

	data, err := httputil.ReadAllStrict(r.Body, maxInvoiceBytes)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if len(data) == 0 {
		httputil.BadRequest(w, "invoice file is empty")
		return
	}
	if s.DB() == nil {
		httputil.InternalError(w, "storage unavailable")
		return
	}

	path := inv.ID + "/" + uuid.NewString() + ".pdf"
	if _, err := s.DB().Client().Storage.Upload(r.Context(), s.invoiceBucket, path, data, supabase.UploadOptions{
		ContentType:  "application/pdf",
		CacheControl: "3600",
		Upsert:       true,
	}); err != nil {
		s.Logger().WithError(err).Error("invoice upload failed")
		httputil.WriteError(w, err)
		return
	}

	if err := s.repo.PatchInvoice(r.Context(), inv.ID, map[string]any{"pdf_path": path}); err != nil {
		s.Logger().WithError(err).Error("invoice path update failed")
		httputil.WriteError(w, err)
		return
	}
	inv.PDFPath = path
	httputil.WriteJSON(w, http.StatusOK, inv)
}

func (s *Service) handleUpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var input UpdateInvoiceStatusInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if !orderssupabase.ValidInvoiceStatus(input.Status) {
		httputil.BadRequest(w, "unknown invoice status: "+input.Status)
		return
	}

	inv, ok := s.loadInvoice(w, r)
	if !ok {
		return
	}

	if err := s.repo.PatchInvoice(r.Context(), inv.ID, map[string]any{"status": input.Status}); err != nil {
		s.Logger().WithError(err).Error("invoice status update failed")
		httputil.WriteError(w, err)
		return
	}
	inv.Status = input.Status
	httputil.WriteJSON(w, http.StatusOK, inv)
}
