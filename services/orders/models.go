package orders

import (
	"github.com/vegdirect/storefront/internal/middleware"
	accountssupabase "github.com/vegdirect/storefront/services/accounts/supabase"
	orderssupabase "github.com/vegdirect/storefront/services/orders/supabase"
)

// CheckoutLine is one requested product line at checkout.
type CheckoutLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CheckoutInput creates an order. When Items is empty the caller's staged
// cart is used. The delivery address comes either from the profile address
// book (AddressIndex) or inline.
type CheckoutInput struct {
	Items           []CheckoutLine            `json:"items"`
	AddressIndex    *int                      `json:"address_index"`
	DeliveryAddress *accountssupabase.Address `json:"delivery_address"`
	Note            string                    `json:"note"`
}

// UpdateStatusInput requests a status transition.
type UpdateStatusInput struct {
	Status string `json:"status"`
}

// UpdatePaymentInput flips the payment flag.
type UpdatePaymentInput struct {
	PaymentStatus string `json:"payment_status"`
}

// AssignDriverInput names the driver for an order.
type AssignDriverInput struct {
	DriverID string `json:"driver_id"`
}

// CartLineInput is one line of a cart replacement.
type CartLineInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ReplaceCartInput replaces the staged cart wholesale.
type ReplaceCartInput struct {
	Items []CartLineInput `json:"items"`
}

// AddCartItemInput stages one product line.
type AddCartItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// UpdateInvoiceStatusInput moves an invoice between pending/paid/cancelled.
type UpdateInvoiceStatusInput struct {
	Status string `json:"status"`
}

// OrderView is an order plus everything a client renders: line items, the
// formatted total and the transitions this viewer may trigger.
type OrderView struct {
	orderssupabase.Order
	Items            []orderssupabase.OrderItem `json:"items,omitempty"`
	FormattedTotal   string                     `json:"formatted_total,omitempty"`
	AvailableActions []string                   `json:"available_actions"`
}

// BuyAgainResult reports the restaged cart and any lines that could not be
// carried over.
type BuyAgainResult struct {
	Cart    *orderssupabase.Cart `json:"cart"`
	Skipped []string             `json:"skipped,omitempty"`
}

// InvoiceView is an invoice plus a short-lived download URL when a PDF has
// been attached.
type InvoiceView struct {
	orderssupabase.Invoice
	DownloadURL string `json:"download_url,omitempty"`
}

// AvailableActions lists the target statuses this viewer may move the order
// to. Clients render exactly one button per entry, so an illegal transition
// is never offered.
func AvailableActions(o *orderssupabase.Order, viewerID, role string) []string {
	legal := orderssupabase.NextStatuses(o.Status)
	switch {
	case role == middleware.RoleAdmin:
		return legal
	case role == middleware.RoleDriver && o.DriverID == viewerID:
		return intersect(legal, orderssupabase.StatusProcessing, orderssupabase.StatusCompleted)
	case o.UserID == viewerID:
		return intersect(legal, orderssupabase.StatusCancelled)
	default:
		return []string{}
	}
}

func intersect(legal []string, allowed ...string) []string {
	out := []string{}
	for _, l := range legal {
		for _, a := range allowed {
			if l == a {
				out = append(out, l)
			}
		}
	}
	return out
}
