package orders

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/httputil"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

const maxCartQuantity = 999

// loadCartOrEmpty returns the user's staged cart, or a fresh empty one when
// no row exists yet.
func (s *Service) loadCartOrEmpty(r *http.Request, userID string) (*orderssupabase.Cart, error) {
	cart, err := s.repo.GetCart(r.Context(), userID)
	if err != nil {
		if database.IsNotFound(err) {
			return &orderssupabase.Cart{UserID: userID, Items: []orderssupabase.CartItem{}}, nil
		}
		return nil, err
	}
	if cart.Items == nil {
		cart.Items = []orderssupabase.CartItem{}
	}
	return cart, nil
}

func (s *Service) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	cart, err := s.loadCartOrEmpty(r, userID)
	if err != nil {
		s.Logger().WithError(err).Error("failed to load cart")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cart)
}

// snapshotLine turns a requested product line into a cart item with the
// current name and price.
func (s *Service) snapshotLine(r *http.Request, productID string, quantity int) (*orderssupabase.CartItem, string) {
	if productID == "" {
		return nil, "product_id is required"
	}
	if quantity <= 0 {
		return nil, "quantity must be positive"
	}
	if quantity > maxCartQuantity {
		return nil, "quantity too large"
	}
	product, err := s.products.GetByID(r.Context(), productID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, "unknown product: " + productID
		}
		return nil, "product lookup failed"
	}
	if !product.Active {
		return nil, "product is no longer available: " + product.Name
	}
	return &orderssupabase.CartItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Unit:        product.Unit,
		UnitPrice:   product.Price,
		Quantity:    quantity,
	}, ""
}

func (s *Service) handleReplaceCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	var input ReplaceCartInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	// Duplicate product lines in the payload merge by summing quantities.
	quantities := make(map[string]int, len(input.Items))
	orderOfFirstUse := make([]string, 0, len(input.Items))
	for _, line := range input.Items {
		if _, seen := quantities[line.ProductID]; !seen {
			orderOfFirstUse = append(orderOfFirstUse, line.ProductID)
		}
		quantities[line.ProductID] += line.Quantity
	}

	items := make([]orderssupabase.CartItem, 0, len(orderOfFirstUse))
	for _, productID := range orderOfFirstUse {
		item, msg := s.snapshotLine(r, productID, quantities[productID])
		if msg != "" {
			httputil.BadRequest(w, msg)
			return
		}
		items = append(items, *item)
	}

	defer s.cartLocks.Lock(userID).Unlock()
	cart := &orderssupabase.Cart{UserID: userID, Items: items}
	if err := s.repo.SaveCart(r.Context(), cart); err != nil {
		s.Logger().WithError(err).Error("failed to save cart")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cart)
}

func (s *Service) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	var input AddCartItemInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	item, msg := s.snapshotLine(r, input.ProductID, input.Quantity)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}

	defer s.cartLocks.Lock(userID).Unlock()
	cart, err := s.loadCartOrEmpty(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Same product again merges into the existing line instead of
	// duplicating it.
	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			cart.Items[i].Quantity += item.Quantity
			cart.Items[i].ProductName = item.ProductName
			cart.Items[i].UnitPrice = item.UnitPrice
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, *item)
	}

	if err := s.repo.SaveCart(r.Context(), cart); err != nil {
		s.Logger().WithError(err).Error("failed to save cart")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cart)
}

func (s *Service) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	productID := mux.Vars(r)["productID"]

	defer s.cartLocks.Lock(userID).Unlock()
	cart, err := s.loadCartOrEmpty(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	cart.Items = kept

	if err := s.repo.SaveCart(r.Context(), cart); err != nil {
		s.Logger().WithError(err).Error("failed to save cart")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cart)
}

func (s *Service) handleClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	defer s.cartLocks.Lock(userID).Unlock()
	if err := s.repo.DeleteCart(r.Context(), userID); err != nil && !database.IsNotFound(err) {
		s.Logger().WithError(err).Error("failed to clear cart")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &orderssupabase.Cart{UserID: userID, Items: []orderssupabase.CartItem{}})
}
