package orders

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/httputil"
	"github.com/vegdirect/storefront/internal/middleware"
	"github.com/vegdirect/storefront/pkg/money"
	"github.com/vegdirect/storefront/pkg/pagination"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

// =============================================================================
// Checkout and order reads
// =============================================================================

func (s *Service) handleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	var input CheckoutInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	view, err := s.checkout(r.Context(), userID, middleware.GetUserRole(r.Context()), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (s *Service) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	params := pagination.FromRequest(r)

	rows, total, err := s.repo.ListOrdersByUser(r.Context(), userID, params.Page, params.Limit)
	if err != nil {
		s.Logger().WithError(err).Error("failed to list orders")
		httputil.WriteError(w, err)
		return
	}

	views := s.orderViews(rows, userID, middleware.GetUserRole(r.Context()))
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(views, total, params))
}

func (s *Service) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	role := middleware.GetUserRole(r.Context())

	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if !canViewOrder(order, userID, role) {
		httputil.Forbidden(w, "not your order")
		return
	}

	items, err := s.repo.ListOrderItems(r.Context(), order.ID)
	if err != nil {
		s.Logger().WithError(err).Error("failed to load order items")
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, OrderView{
		Order:            *order,
		Items:            items,
		FormattedTotal:   money.Format(order.Total, order.Currency),
		AvailableActions: AvailableActions(order, userID, role),
	})
}

// =============================================================================
// Status transitions
// =============================================================================

func (s *Service) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	role := middleware.GetUserRole(r.Context())

	var input UpdateStatusInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if !orderssupabase.ValidStatus(input.Status) {
		httputil.BadRequest(w, "unknown status: "+input.Status)
		return
	}

	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if !canViewOrder(order, userID, role) {
		httputil.Forbidden(w, "not your order")
		return
	}

	target := input.Status
	if !containsString(AvailableActions(order, userID, role), target) {
		if !orderssupabase.CanTransition(order.Status, target) {
			httputil.Conflict(w, "cannot move order from "+order.Status+" to "+target)
			return
		}
		httputil.Forbidden(w, "not allowed to move this order to "+target)
		return
	}

	from := order.Status
	now := time.Now().UTC()
	fields := map[string]any{"status": target}
	switch target {
	case orderssupabase.StatusCompleted:
		fields["delivered_at"] = now
	case orderssupabase.StatusCancelled:
		fields["cancelled_at"] = now
	}

	if err := s.repo.PatchOrder(r.Context(), order.ID, fields); err != nil {
		s.Logger().WithError(err).Error("status update failed")
		httputil.WriteError(w, err)
		return
	}

	order.Status = target
	order.UpdatedAt = now
	switch target {
	case orderssupabase.StatusCompleted:
		order.DeliveredAt = &now
	case orderssupabase.StatusCancelled:
		order.CancelledAt = &now
		s.restockCancelledOrder(r.Context(), order.ID)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderTransition(from, target)
	}
	s.publish("order_updated", order)
	if recipient, name := s.customerContact(r.Context(), order.UserID); recipient != "" {
		o := order
		s.notifyAsync("status_update", func(ctx context.Context) error {
			return s.notifier.NotifyStatusChanged(ctx, o, recipient, name)
		})
	}

	s.Logger().WithFields(map[string]interface{}{
		"order_id": order.ID,
		"from":     from,
		"to":       target,
		"actor":    userID,
	}).Info("order status changed")

	httputil.WriteJSON(w, http.StatusOK, OrderView{
		Order:            *order,
		FormattedTotal:   money.Format(order.Total, order.Currency),
		AvailableActions: AvailableActions(order, userID, role),
	})
}

// restockCancelledOrder returns every line's units to the shelf.
func (s *Service) restockCancelledOrder(ctx context.Context, orderID string) {
	items, err := s.repo.ListOrderItems(ctx, orderID)
	if err != nil {
		s.Logger().WithError(err).WithField("order_id", orderID).Error("restock lookup failed")
		return
	}
	for _, item := range items {
		s.restoreStock(ctx, item.ProductID, item.Quantity)
	}
}

// =============================================================================
// Driver deliveries
// =============================================================================

func (s *Service) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	rows, err := s.repo.ListAssigned(r.Context(), userID)
	if err != nil {
		s.Logger().WithError(err).Error("failed to list deliveries")
		httputil.WriteError(w, err)
		return
	}

	views := s.orderViews(rows, userID, middleware.RoleDriver)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"deliveries": views})
}

// =============================================================================
// Buy again
// =============================================================================

func (s *Service) handleBuyAgain(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if order.UserID != userID {
		httputil.Forbidden(w, "not your order")
		return
	}

	items, err := s.repo.ListOrderItems(r.Context(), order.ID)
	if err != nil {
		s.Logger().WithError(err).Error("failed to load order items")
		httputil.WriteError(w, err)
		return
	}

	var (
		staged  []orderssupabase.CartItem
		skipped []string
	)
	for _, item := range items {
		product, err := s.products.GetByID(r.Context(), item.ProductID)
		if err != nil || !product.Active {
			skipped = append(skipped, item.ProductName)
			continue
		}
		staged = append(staged, orderssupabase.CartItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Unit:        product.Unit,
			UnitPrice:   product.Price,
			Quantity:    item.Quantity,
		})
	}
	if len(staged) == 0 {
		httputil.Conflict(w, "none of the order's products are available any more")
		return
	}

	defer s.cartLocks.Lock(userID).Unlock()
	cart := &orderssupabase.Cart{UserID: userID, Items: staged}
	if err := s.repo.SaveCart(r.Context(), cart); err != nil {
		s.Logger().WithError(err).Error("failed to stage cart")
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, BuyAgainResult{Cart: cart, Skipped: skipped})
}

// =============================================================================
// Shared handler plumbing
// =============================================================================

// loadOrder fetches the path order, writing 404 on a miss.
func (s *Service) loadOrder(w http.ResponseWriter, r *http.Request) (*orderssupabase.Order, bool) {
	id := mux.Vars(r)["id"]
	order, err := s.repo.GetOrder(r.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			httputil.NotFound(w, "order not found")
			return nil, false
		}
		s.Logger().WithError(err).Error("failed to load order")
		httputil.WriteError(w, err)
		return nil, false
	}
	return order, true
}

func canViewOrder(o *orderssupabase.Order, userID, role string) bool {
	if role == middleware.RoleAdmin {
		return true
	}
	if role == middleware.RoleDriver && o.DriverID == userID {
		return true
	}
	return o.UserID == userID
}

func (s *Service) orderViews(rows []orderssupabase.Order, viewerID, role string) []OrderView {
	views := make([]OrderView, 0, len(rows))
	for i := range rows {
		o := rows[i]
		views = append(views, OrderView{
			Order:            o,
			FormattedTotal:   money.Format(o.Total, o.Currency),
			AvailableActions: AvailableActions(&o, viewerID, role),
		})
	}
	return views
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
