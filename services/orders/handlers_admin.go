package orders

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/xuri/excelize/v2"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/internal/middleware"
	"github.com/vegdirect/storefront/pkg/money"
	"github.com/vegdirect/storefront/pkg/pagination"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

// orderFilters extracts and validates the admin listing filters.
func orderFilters(r *http.Request) (orderssupabase.OrderQuery, string) {
	q := orderssupabase.OrderQuery{
		Status:        r.URL.Query().Get("status"),
		PaymentStatus: r.URL.Query().Get("payment_status"),
		DriverID:      r.URL.Query().Get("driver_id"),
	}
	if q.Status != "" && !orderssupabase.ValidStatus(q.Status) {
		return q, "unknown status: " + q.Status
	}
	if q.PaymentStatus != "" && !orderssupabase.ValidPaymentStatus(q.PaymentStatus) {
		return q, "unknown payment status: " + q.PaymentStatus
	}
	return q, ""
}

func (s *Service) handleAdminListOrders(w http.ResponseWriter, r *http.Request) {
	query, msg := orderFilters(r)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}
	params := pagination.FromRequest(r)
	query.Page = params.Page
	query.Limit = params.Limit

	rows, total, err := s.repo.ListOrders(r.Context(), query)
	if err != nil {
		s.Logger().WithError(err).Error("failed to list orders")
		httputil.WriteError(w, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	views := s.orderViews(rows, userID, middleware.RoleAdmin)
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(views, total, params))
}

func (s *Service) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var input UpdatePaymentInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if !orderssupabase.ValidPaymentStatus(input.PaymentStatus) {
		httputil.BadRequest(w, "unknown payment status: "+input.PaymentStatus)
		return
	}

	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	if err := s.repo.PatchOrder(r.Context(), order.ID, map[string]any{"payment_status": input.PaymentStatus}); err != nil {
		s.Logger().WithError(err).Error("payment update failed")
		httputil.WriteError(w, err)
		return
	}
	order.PaymentStatus = input.PaymentStatus
	s.publish("order_updated", order)

	userID := middleware.GetUserID(r.Context())
	httputil.WriteJSON(w, http.StatusOK, OrderView{
		Order:            *order,
		FormattedTotal:   money.Format(order.Total, order.Currency),
		AvailableActions: AvailableActions(order, userID, middleware.RoleAdmin),
	})
}

// handleAssignDriver validates both identifiers and the driver's role before
// touching the order; a failed validation never reaches the backend write.
func (s *Service) handleAssignDriver(w http.ResponseWriter, r *http.Request) {
	var input AssignDriverInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	orderID := strings.TrimSpace(mux.Vars(r)["id"])
	driverID := strings.TrimSpace(input.DriverID)
	if orderID == "" {
		httputil.BadRequest(w, "order id is required")
		return
	}
	if driverID == "" {
		httputil.BadRequest(w, "driver id is required")
		return
	}

	isDriver, err := s.accounts.IsDriver(r.Context(), driverID)
	if err != nil {
		s.Logger().WithError(err).Error("driver lookup failed")
		httputil.WriteError(w, err)
		return
	}
	if !isDriver {
		httputil.BadRequest(w, "user "+driverID+" does not hold the driver role")
		return
	}

	order, err := s.repo.GetOrder(r.Context(), orderID)
	if err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "order not found")
			return
		}
		s.Logger().WithError(err).Error("failed to load order")
		httputil.WriteError(w, err)
		return
	}
	if order.Status != orderssupabase.StatusPending && order.Status != orderssupabase.StatusProcessing {
		httputil.Conflict(w, "cannot assign a driver to a "+order.Status+" order")
		return
	}

	if err := s.repo.PatchOrder(r.Context(), order.ID, map[string]any{"assigned_driver_id": driverID}); err != nil {
		s.Logger().WithError(err).Error("driver assignment failed")
		httputil.WriteError(w, err)
		return
	}
	order.DriverID = driverID
	s.publish("order_updated", order)

	if driver, err := s.accounts.GetProfile(r.Context(), driverID); err == nil && driver.Email != "" {
		o, recipient, name := order, driver.Email, driver.FullName
		s.notifyAsync("driver_assigned", func(ctx context.Context) error {
			return s.notifier.NotifyDriverAssigned(ctx, o, recipient, name)
		})
	}

	s.Logger().WithFields(map[string]interface{}{
		"order_id":  order.ID,
		"driver_id": driverID,
		"admin":     middleware.GetUserID(r.Context()),
	}).Info("driver assigned")

	userID := middleware.GetUserID(r.Context())
	httputil.WriteJSON(w, http.StatusOK, OrderView{
		Order:            *order,
		FormattedTotal:   money.Format(order.Total, order.Currency),
		AvailableActions: AvailableActions(order, userID, middleware.RoleAdmin),
	})
}

// =============================================================================
// Export
// =============================================================================

var exportColumns = []string{
	"Order", "Created", "Customer", "Status", "Payment", "Driver",
	"Subtotal", "VAT", "Total", "Currency",
}

// handleExportOrders streams the filtered order list as an .xlsx workbook,
// one row per order.
func (s *Service) handleExportOrders(w http.ResponseWriter, r *http.Request) {
	query, msg := orderFilters(r)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}
	query.Page = 1
	query.Limit = maxExportRows

	rows, _, err := s.repo.ListOrders(r.Context(), query)
	if err != nil {
		s.Logger().WithError(err).Error("failed to list orders for export")
		httputil.WriteError(w, err)
		return
	}

	book := excelize.NewFile()
	defer func() {
		if err := book.Close(); err != nil {
			s.Logger().WithError(err).Warn("workbook close failed")
		}
	}()

	const sheet = "Orders"
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		s.Logger().WithError(err).Error("workbook setup failed")
		httputil.InternalError(w, "export failed")
		return
	}
	for i, col := range exportColumns {
		cell := fmt.Sprintf("%c%d", 'A'+i, 1)
		if err := book.SetCellValue(sheet, cell, col); err != nil {
			s.Logger().WithError(err).Error("workbook header write failed")
			httputil.InternalError(w, "export failed")
			return
		}
	}
	for i, o := range rows {
		values := []any{
			o.OrderNumber,
			o.CreatedAt.Format(time.RFC3339),
			o.UserID,
			o.Status,
			o.PaymentStatus,
			o.DriverID,
			o.Subtotal,
			o.VATAmount,
			o.Total,
			o.Currency,
		}
		for j, v := range values {
			cell := fmt.Sprintf("%c%d", 'A'+j, i+2)
			if err := book.SetCellValue(sheet, cell, v); err != nil {
				s.Logger().WithError(err).Error("workbook row write failed")
				httputil.InternalError(w, "export failed")
				return
			}
		}
	}

	filename := "orders-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := book.Write(w); err != nil {
		s.Logger().WithError(err).Error("workbook stream failed")
	}
}
