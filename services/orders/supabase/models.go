// Package supabase provides order-specific database operations.
package supabase

import (
	"time"

	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
)

// Order statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Payment statuses
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// Invoice statuses
const (
	InvoicePending   = "pending"
	InvoicePaid      = "paid"
	InvoiceCancelled = "cancelled"
)

// legalTransitions is the order status machine: pending moves to processing
// or cancelled, processing moves to completed, the rest are terminal.
var legalTransitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// ValidStatus reports whether s names an order status.
func ValidStatus(s string) bool {
	_, ok := legalTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from the given one.
func NextStatuses(from string) []string {
	next := legalTransitions[from]
	out := make([]string, len(next))
	copy(out, next)
	return out
}

// ValidPaymentStatus reports whether s names a payment status.
func ValidPaymentStatus(s string) bool {
	return s == PaymentPending || s == PaymentPaid
}

// ValidInvoiceStatus reports whether s names an invoice status.
func ValidInvoiceStatus(s string) bool {
	return s == InvoicePending || s == InvoicePaid || s == InvoiceCancelled
}

// Order is a customer order row. Items live in their own table and are
// loaded alongside when needed.
type Order struct {
	ID              string                   `json:"id,omitempty"`
	OrderNumber     string                   `json:"order_number"`
	UserID          string                   `json:"user_id"`
	Status          string                   `json:"status"`
	PaymentStatus   string                   `json:"payment_status"`
	Subtotal        float64                  `json:"subtotal"`
	VATPercent      float64                  `json:"vat_percent"`
	VATAmount       float64                  `json:"vat_amount"`
	Total           float64                  `json:"total"`
	Currency        string                   `json:"currency"`
	DeliveryAddress accountssupabase.Address `json:"delivery_address"`
	DriverID        string                   `json:"assigned_driver_id,omitempty"`
	Note            string                   `json:"note,omitempty"`
	CreatedAt       time.Time                `json:"created_at,omitempty"`
	UpdatedAt       time.Time                `json:"updated_at,omitempty"`
	DeliveredAt     *time.Time               `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time               `json:"cancelled_at,omitempty"`
}

// SetTimestamps stamps creation and update times.
func (o *Order) SetTimestamps() {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
}

// OrderItem is one snapshot line of an order. Name and price are copied from
// the product at checkout time so later edits never rewrite history.
type OrderItem struct {
	ID          string  `json:"id,omitempty"`
	OrderID     string  `json:"order_id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Unit        string  `json:"unit,omitempty"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}

// CartItem is one staged line in a cart.
type CartItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Unit        string  `json:"unit,omitempty"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
}

// Cart is the single staged cart row a user owns.
type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// Invoice is a billing record attached to an order. The PDF itself lives in
// the storage bucket at PDFPath.
type Invoice struct {
	ID            string    `json:"id,omitempty"`
	OrderID       string    `json:"order_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Status        string    `json:"status"`
	PDFPath       string    `json:"pdf_path,omitempty"`
	IssuedBy      string    `json:"issued_by,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// SetTimestamps stamps creation and update times.
func (i *Invoice) SetTimestamps() {
	now := time.Now().UTC()
	if i.CreatedAt.IsZero() {
		i.CreatedAt = now
	}
	i.UpdatedAt = now
}
