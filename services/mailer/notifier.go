package mailer

import (
	"context"

	mailersupabase "github.com/vegdirect/storefront/services/mailer/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

// The orders service calls these on lifecycle events. Each one funnels into
// the same dispatch path the HTTP endpoint uses, so every notification shows
// up in the email log.

// NotifyOrderCreated sends the order confirmation.
func (s *Service) NotifyOrderCreated(ctx context.Context, o *orderssupabase.Order, items []orderssupabase.OrderItem, recipient, customerName string) error {
	_, err := s.dispatch(ctx, &DispatchRequest{
		Type:      mailersupabase.TypeOrderConfirmation,
		OrderID:   o.ID,
		Recipient: recipient,
		Customer:  customerName,
		Order:     o,
		Items:     items,
	})
	return err
}

// NotifyStatusChanged tells the customer their order moved.
func (s *Service) NotifyStatusChanged(ctx context.Context, o *orderssupabase.Order, recipient, customerName string) error {
	_, err := s.dispatch(ctx, &DispatchRequest{
		Type:      mailersupabase.TypeStatusUpdate,
		OrderID:   o.ID,
		Recipient: recipient,
		Customer:  customerName,
		Order:     o,
	})
	return err
}

// NotifyDriverAssigned tells the driver about a new delivery.
func (s *Service) NotifyDriverAssigned(ctx context.Context, o *orderssupabase.Order, recipient, driverName string) error {
	_, err := s.dispatch(ctx, &DispatchRequest{
		Type:      mailersupabase.TypeDriverAssigned,
		OrderID:   o.ID,
		Recipient: recipient,
		Customer:  driverName,
		Order:     o,
	})
	return err
}

// NotifyInvoiceIssued sends the invoice mail.
func (s *Service) NotifyInvoiceIssued(ctx context.Context, o *orderssupabase.Order, inv *orderssupabase.Invoice, recipient, customerName string) error {
	_, err := s.dispatch(ctx, &DispatchRequest{
		Type:      mailersupabase.TypeInvoiceIssued,
		OrderID:   o.ID,
		Recipient: recipient,
		Customer:  customerName,
		Order:     o,
		Invoice:   inv,
	})
	return err
}
