package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/vegdirect/storefront/internal/database"
	"github.com/vegdirect/storefront/internal/errors"
	"github.com/vegdirect/storefront/pkg/money"
	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
	catalogsupabase "github.com/vegdirect/storefront/services/catalog/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

// stockDelta records one applied decrement so a failed checkout can put the
// units back.
type stockDelta struct {
	productID string
	qty       int
}

// checkout turns cart lines into a persisted order. Stock is taken first
// with optimistic swaps; any later failure restores the taken units.
func (s *Service) checkout(ctx context.Context, userID, role string, input CheckoutInput) (*OrderView, error) {
	lines, fromCart, err := s.resolveLines(ctx, userID, input.Items)
	if err != nil {
		return nil, err
	}
	address, err := s.resolveAddress(ctx, userID, input)
	if err != nil {
		return nil, err
	}

	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return nil, errors.Internal("store settings unavailable", err)
	}

	var (
		taken    []stockDelta
		items    []orderssupabase.OrderItem
		subtotal float64
	)
	for _, line := range lines {
		product, err := s.takeStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			s.restoreAll(taken)
			return nil, err
		}
		taken = append(taken, stockDelta{productID: product.ID, qty: line.Quantity})

		lineTotal := money.Round(product.Price*float64(line.Quantity), cfg.Currency)
		subtotal += lineTotal
		items = append(items, orderssupabase.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Unit:        product.Unit,
			UnitPrice:   product.Price,
			Quantity:    line.Quantity,
			LineTotal:   lineTotal,
		})
	}

	subtotal = money.Round(subtotal, cfg.Currency)
	order := &orderssupabase.Order{
		OrderNumber:     newOrderNumber(),
		UserID:          userID,
		Status:          orderssupabase.StatusPending,
		PaymentStatus:   orderssupabase.PaymentPending,
		Subtotal:        subtotal,
		VATPercent:      cfg.VATPercent,
		VATAmount:       money.VATAmount(subtotal, cfg.VATPercent, cfg.Currency),
		Total:           money.Total(subtotal, cfg.VATPercent, cfg.Currency),
		Currency:        cfg.Currency,
		DeliveryAddress: *address,
		Note:            input.Note,
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		s.restoreAll(taken)
		return nil, err
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := s.repo.CreateOrderItems(ctx, items); err != nil {
		s.Logger().WithError(err).WithField("order_id", order.ID).Error("order item write failed, rolling back order")
		if delErr := s.repo.DeleteOrder(ctx, order.ID); delErr != nil {
			s.Logger().WithError(delErr).WithField("order_id", order.ID).Error("order rollback failed")
		}
		s.restoreAll(taken)
		return nil, err
	}

	if fromCart {
		if err := s.repo.DeleteCart(ctx, userID); err != nil && !database.IsNotFound(err) {
			s.Logger().WithError(err).Warn("cart cleanup after checkout failed")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.publish("order_created", order)
	if recipient, name := s.customerContact(ctx, userID); recipient != "" {
		o, snapshot := order, items
		s.notifyAsync("order_confirmation", func(ctx context.Context) error {
			return s.notifier.NotifyOrderCreated(ctx, o, snapshot, recipient, name)
		})
	}

	s.Logger().WithFields(map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      userID,
		"total":        order.Total,
		"lines":        len(items),
	}).Info("order created")

	return &OrderView{
		Order:            *order,
		Items:            items,
		FormattedTotal:   money.Format(order.Total, order.Currency),
		AvailableActions: AvailableActions(order, userID, role),
	}, nil
}

// resolveLines picks the explicit checkout lines or falls back to the staged
// cart, then merges duplicates and validates quantities.
func (s *Service) resolveLines(ctx context.Context, userID string, explicit []CheckoutLine) ([]CheckoutLine, bool, error) {
	lines := explicit
	fromCart := false
	if len(lines) == 0 {
		cart, err := s.repo.GetCart(ctx, userID)
		if err != nil {
			if database.IsNotFound(err) {
				return nil, false, errors.Validation("cart is empty")
			}
			return nil, false, err
		}
		for _, item := range cart.Items {
			lines = append(lines, CheckoutLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		fromCart = true
	}
	if len(lines) == 0 {
		return nil, false, errors.Validation("cart is empty")
	}
	if len(lines) > maxCheckoutLines {
		return nil, false, errors.Validation(fmt.Sprintf("too many lines: max %d", maxCheckoutLines))
	}

	merged := make([]CheckoutLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, false, errors.Validation("product_id is required on every line")
		}
		if line.Quantity <= 0 {
			return nil, false, errors.Validation("quantity must be positive")
		}
		if at, ok := index[line.ProductID]; ok {
			merged[at].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged, fromCart, nil
}

// resolveAddress returns the delivery address from the profile address book
// or the inline payload.
func (s *Service) resolveAddress(ctx context.Context, userID string, input CheckoutInput) (*accountssupabase.Address, error) {
	if input.AddressIndex != nil {
		p, err := s.accounts.GetProfile(ctx, userID)
		if err != nil {
			if database.IsNotFound(err) {
				return nil, errors.Validation("no saved addresses")
			}
			return nil, err
		}
		idx := *input.AddressIndex
		if idx < 0 || idx >= len(p.Addresses) {
			return nil, errors.Validation("address index out of range")
		}
		addr := p.Addresses[idx]
		return &addr, nil
	}

	if input.DeliveryAddress == nil {
		return nil, errors.Validation("delivery address is required")
	}
	if input.DeliveryAddress.Street == "" || input.DeliveryAddress.City == "" {
		return nil, errors.Validation("delivery address needs street and city")
	}
	return input.DeliveryAddress, nil
}

// takeStock atomically decrements product stock for one line, retrying on
// concurrent writers.
func (s *Service) takeStock(ctx context.Context, productID string, qty int) (*catalogsupabase.Product, error) {
	for attempt := 0; attempt < stockRetries; attempt++ {
		product, err := s.products.GetByID(ctx, productID)
		if err != nil {
			if database.IsNotFound(err) {
				return nil, errors.Validation("unknown product: " + productID)
			}
			return nil, err
		}
		if !product.Active {
			return nil, errors.Validation("product is no longer available: " + product.Name)
		}
		next := product.Stock - qty
		if next < 0 {
			return nil, errors.Conflict(fmt.Sprintf("insufficient stock for %s: %d available", product.Name, product.Stock))
		}
		swapped, err := s.products.CompareAndSetStock(ctx, productID, product.Stock, next)
		if err != nil {
			return nil, err
		}
		if swapped {
			return product, nil
		}
	}
	return nil, errors.Conflict("stock is being updated concurrently, retry")
}

// restoreStock puts units back after a failed checkout or a cancellation.
// Best effort: a lost increment is logged for manual correction.
func (s *Service) restoreStock(ctx context.Context, productID string, qty int) {
	for attempt := 0; attempt < stockRetries; attempt++ {
		product, err := s.products.GetByID(ctx, productID)
		if err != nil {
			break
		}
		swapped, err := s.products.CompareAndSetStock(ctx, productID, product.Stock, product.Stock+qty)
		if err != nil {
			break
		}
		if swapped {
			return
		}
	}
	s.Logger().WithFields(map[string]interface{}{
		"product_id": productID,
		"quantity":   qty,
	}).Error("stock restore failed, manual correction needed")
}

func (s *Service) restoreAll(taken []stockDelta) {
	if len(taken) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, d := range taken {
		s.restoreStock(ctx, d.productID, d.qty)
	}
}
